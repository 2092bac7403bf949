package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm/logger"

	"feed-translator/config"
	"feed-translator/internal/cache"
	"feed-translator/internal/chunk"
	"feed-translator/internal/engine"
	"feed-translator/internal/model"
	"feed-translator/internal/store"
)

// fakeEngine 记录每次调用，按字符计量
type fakeEngine struct {
	mu        sync.Mutex
	max       int
	requests  []engine.Request
	summaries []string
	err       error
	failAfter int
	translate func(text string) string
}

func newFakeEngine(max int) *fakeEngine {
	return &fakeEngine{max: max}
}

func (f *fakeEngine) Name() string { return "fake" }
func (f *fakeEngine) Kind() string { return "fake" }

func (f *fakeEngine) Translate(_ context.Context, req engine.Request) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return engine.Result{}, f.err
	}
	if f.failAfter > 0 && len(f.requests) > f.failAfter {
		return engine.Result{}, errors.New("quota exceeded")
	}
	text := "[" + req.Text + "]"
	if f.translate != nil {
		text = f.translate(req.Text)
	}
	return engine.Result{Text: text, Characters: utf8.RuneCountInString(req.Text)}, nil
}

func (f *fakeEngine) Summarize(_ context.Context, text string, _ model.Language) (engine.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.summaries = append(f.summaries, text)
	if f.err != nil {
		return engine.Result{}, f.err
	}
	return engine.Result{Text: "**summary**", Tokens: 10}, nil
}

func (f *fakeEngine) Validate(context.Context) bool { return f.err == nil }
func (f *fakeEngine) MinSize() int { return f.max * 7 / 10 }
func (f *fakeEngine) MaxSize() int { return f.max * 9 / 10 }
func (f *fakeEngine) Measure() chunk.Measure { return chunk.Characters }

func (f *fakeEngine) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeEngine) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.requests))
	for i, r := range f.requests {
		out[i] = r.Text
	}
	return out
}

var errNoEngine = errors.New("no engine selected")

// fixedEngines 任何 ID 都返回同一个引擎，nil ID 视为未配置
type fixedEngines struct{ eng engine.Engine }

func (s fixedEngines) Engine(_ context.Context, id *uint) (engine.Engine, error) {
	if id == nil || s.eng == nil {
		return nil, errNoEngine
	}
	return s.eng, nil
}

func newTestRepo(t *testing.T) *store.Repository {
	t.Helper()
	db, err := store.Open(config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "test.db")}, logger.Silent)
	require.NoError(t, err)
	require.NoError(t, store.Migrate(db))
	t.Cleanup(func() { store.Close(db) })
	return store.NewRepository(db)
}

func newTestProcessor(t *testing.T, repo *store.Repository, articles ArticleSource) (*EntryProcessor, *cache.Cache) {
	t.Helper()
	c, err := cache.New(cache.NewGormStore(repo.DB()), 64, zap.NewNop())
	require.NoError(t, err)
	retrier := engine.NewRetrier(1, time.Millisecond, 0, zap.NewNop())
	return NewEntryProcessor(c, retrier, articles, nil, zap.NewNop(), ProcessorOptions{SummaryMinChunk: 20, RecursiveSummary: true}), c
}

func uintPtr(v uint) *uint { return &v }

func configWithBucket(bucket string) config.PublishConfig {
	return config.PublishConfig{
		S3Bucket:    bucket,
		S3Prefix:    "/public/",
		S3Endpoint:  "http://127.0.0.1:9000",
		S3AccessKey: "key",
		S3SecretKey: "secret",
	}
}
