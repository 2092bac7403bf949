package service

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/feeds"
	"github.com/mmcdole/gofeed"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-translator/internal/model"
)

func renderFixture() (*model.Feed, []model.Entry) {
	feed := &model.Feed{Slug: "abc", Name: "Example", URL: "https://example.com/feed.xml", TargetLanguage: model.Spanish}
	entries := []model.Entry{
		{
			GUID:              "one",
			Link:              "https://example.com/1",
			Published:         time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
			OriginalTitle:     "Hello",
			TranslatedTitle:   "Hola",
			OriginalContent:   "<p>Body</p>",
			TranslatedContent: "<p>Cuerpo</p>",
			AISummary:         "**Resumen**",
		},
		{GUID: "two", Link: "https://example.com/2", OriginalTitle: "Untranslated", OriginalContent: "<p>Raw</p>"},
	}
	return feed, entries
}

func TestRenderAtom(t *testing.T) {
	feed, entries := renderFixture()
	data, err := RenderAtom(feed, entries, "https://rss.example.org/", time.Date(2024, 1, 3, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parsed, err := gofeed.NewParser().ParseString(string(data))
	require.NoError(t, err)
	assert.Equal(t, "atom", parsed.FeedType)
	assert.Equal(t, "Example", parsed.Title)
	require.Len(t, parsed.Items, 2)

	assert.Equal(t, "Hola", parsed.Items[0].Title)
	assert.Contains(t, parsed.Items[0].Content, "🤖:<p><strong>Resumen</strong></p>")
	assert.Contains(t, parsed.Items[0].Content, "<p>Cuerpo</p>")
	assert.Equal(t, "Untranslated", parsed.Items[1].Title)
	assert.Contains(t, parsed.Items[1].Content, "<p>Raw</p>")
	assert.NotContains(t, parsed.Items[1].Content, "🤖")
	assert.Contains(t, string(data), "https://rss.example.org/rss/abc")
}

func TestRenderJSON(t *testing.T) {
	feed, entries := renderFixture()
	data, err := Render(feed, entries, "https://rss.example.org", time.Now(), FormatJSON)
	require.NoError(t, err)

	var doc feeds.JSONFeed
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "Example", doc.Title)
	require.Len(t, doc.Items, 2)
	assert.Equal(t, "Hola", doc.Items[0].Title)
	assert.Contains(t, doc.Items[0].ContentHTML, "<strong>Resumen</strong>")
	assert.Contains(t, doc.Items[0].ContentHTML, "<p>Cuerpo</p>")
	assert.Equal(t, "Untranslated", doc.Items[1].Title)
}

func TestRenderOriginal(t *testing.T) {
	feed, entries := renderFixture()
	data, err := Render(feed, entries, "https://rss.example.org", time.Now(), FormatOriginal)
	require.NoError(t, err)

	parsed, err := gofeed.NewParser().ParseString(string(data))
	require.NoError(t, err)
	require.Len(t, parsed.Items, 2)
	assert.Equal(t, "Hello", parsed.Items[0].Title)
	assert.Contains(t, parsed.Items[0].Content, "<p>Body</p>")
	assert.NotContains(t, parsed.Items[0].Content, "Cuerpo")
	assert.NotContains(t, parsed.Items[0].Content, "🤖")
	assert.Contains(t, string(data), "https://rss.example.org/proxy/abc")
}

func TestFilePublisher(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "feeds")
	p := NewFilePublisher(dir)

	require.NoError(t, p.Publish(ctx, "abc", []byte("v1")))
	require.NoError(t, p.Publish(ctx, "abc", []byte("v2")))
	data, err := os.ReadFile(p.Path("abc"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))

	leftovers, err := filepath.Glob(filepath.Join(dir, "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)

	require.NoError(t, p.Remove(ctx, "abc"))
	_, err = os.Stat(p.Path("abc"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
	assert.NoError(t, p.Remove(ctx, "abc"), "removing a missing artifact is not an error")

	assert.Equal(t, filepath.Join(dir, "passwd.xml"), p.Path("../../etc/passwd"))
}

type recordingPublisher struct {
	published map[string][]byte
	removed   []string
	err       error
}

func (r *recordingPublisher) Publish(_ context.Context, slug string, data []byte) error {
	if r.published == nil {
		r.published = make(map[string][]byte)
	}
	r.published[slug] = data
	return r.err
}

func (r *recordingPublisher) Remove(_ context.Context, slug string) error {
	r.removed = append(r.removed, slug)
	return r.err
}

func TestMultiPublisher(t *testing.T) {
	ok := &recordingPublisher{}
	bad := &recordingPublisher{err: errors.New("bucket unavailable")}
	m := MultiPublisher{bad, ok}

	err := m.Publish(context.Background(), "abc", []byte("x"))
	require.Error(t, err)
	assert.Equal(t, []byte("x"), ok.published["abc"], "later targets still receive the artifact")

	require.Error(t, m.Remove(context.Background(), "abc"))
	assert.Equal(t, []string{"abc"}, ok.removed)
}

func TestS3PublisherRequiresBucket(t *testing.T) {
	_, err := NewS3Publisher(configWithBucket(""))
	assert.Error(t, err)

	p, err := NewS3Publisher(configWithBucket("feeds"))
	require.NoError(t, err)
	assert.Equal(t, "public/abc.xml", p.key("abc"))
}
