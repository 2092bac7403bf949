package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

// FetchResult 一次条件请求的结果。Updated 为 false 表示 304，Feed 为空
type FetchResult struct {
	Feed    *gofeed.Feed
	Raw     string
	ETag    string
	Updated bool
}

// FeedService 抓取并解析订阅源
type FeedService struct {
	client     *http.Client
	parser     *gofeed.Parser
	userAgent  string
	maxEntries int
	maxBytes   int64
}

const defaultMaxFeedBytes = 10 << 20

// NewFeedService maxBytes 限制响应体大小，<=0 时使用 10MB
func NewFeedService(client *http.Client, userAgent string, maxEntries int, maxBytes int64) *FeedService {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if maxEntries <= 0 {
		maxEntries = 1000
	}
	if maxBytes <= 0 {
		maxBytes = defaultMaxFeedBytes
	}
	return &FeedService{
		client:     client,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
		maxEntries: maxEntries,
		maxBytes:   maxBytes,
	}
}

// Fetch 带 If-None-Match 的条件 GET
func (s *FeedService) Fetch(ctx context.Context, url, etag string) (*FetchResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, apperr.Configuration("feed url %q: %v", url, err)
	}
	if etag != "" {
		req.Header.Set("If-None-Match", etag)
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/feed+json, application/xml;q=0.9, */*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotModified {
		return &FetchResult{ETag: etag, Updated: false}, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, s.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	if int64(len(body)) > s.maxBytes {
		return nil, fmt.Errorf("fetch %s: response exceeds %d bytes", url, s.maxBytes)
	}
	parsed, err := s.parser.ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", url, err)
	}
	if len(parsed.Items) > s.maxEntries {
		parsed.Items = parsed.Items[:s.maxEntries]
	}

	return &FetchResult{
		Feed:    parsed,
		Raw:     string(body),
		ETag:    resp.Header.Get("ETag"),
		Updated: true,
	}, nil
}

// EntriesFromFeed 转换为条目，按发布时间从新到旧，最多 limit 条。没有 guid 和 link 的条目被跳过
func EntriesFromFeed(parsed *gofeed.Feed, limit int, now time.Time) []model.Entry {
	if parsed == nil {
		return nil
	}
	seen := make(map[string]struct{}, len(parsed.Items))
	entries := make([]model.Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		guid := strings.TrimSpace(item.GUID)
		if guid == "" {
			guid = strings.TrimSpace(item.Link)
		}
		if guid == "" {
			continue
		}
		if _, ok := seen[guid]; ok {
			continue
		}
		seen[guid] = struct{}{}

		content := item.Content
		if content == "" {
			content = item.Description
		}
		entry := model.Entry{
			GUID:            guid,
			Link:            item.Link,
			Published:       parseTime(item, now),
			OriginalTitle:   strings.TrimSpace(item.Title),
			OriginalContent: content,
			OriginalSummary: item.Description,
		}
		if item.Author != nil {
			entry.Author = item.Author.Name
		} else if len(item.Authors) > 0 && item.Authors[0] != nil {
			entry.Author = item.Authors[0].Name
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Published.After(entries[j].Published)
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

func parseTime(item *gofeed.Item, now time.Time) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return now
}
