package cache

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"feed-translator/internal/model"
)

func newGormStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "cache.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&model.CacheEntry{}))
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	return NewGormStore(db)
}

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisStore(client)
}

func stores(t *testing.T) map[string]Store {
	return map[string]Store{
		"gorm":  newGormStore(t),
		"redis": newRedisStore(t),
	}
}

func TestKey(t *testing.T) {
	assert.Equal(t, Key("Hello", model.Spanish), Key("Hello", model.Spanish))
	assert.NotEqual(t, Key("Hello", model.Spanish), Key("Hello", model.French))
	assert.Len(t, Key("Hello", model.Spanish), 64)
	assert.Equal(t, Key("  Hello\n", model.Spanish), Key("Hello", model.Spanish))
	// 组合形式与预组合形式视为同一文本
	assert.Equal(t, Key("cafe\u0301", model.German), Key("caf\u00e9", model.German))
}

func TestStoreIdempotent(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			c, err := New(store, 16, zap.NewNop())
			require.NoError(t, err)

			c.Store(ctx, model.KindTranslation, "Hello", model.Spanish, Value{Text: "Hola", Tokens: 3})
			c.Store(ctx, model.KindTranslation, "Hello", model.Spanish, Value{Text: "Buenas", Tokens: 9})

			got, ok := c.Lookup(ctx, model.KindTranslation, "Hello", model.Spanish)
			require.True(t, ok)
			assert.Equal(t, Value{Text: "Hola", Tokens: 3}, got)

			entry, err := store.Get(ctx, model.KindTranslation, Key("Hello", model.Spanish))
			require.NoError(t, err)
			require.NotNil(t, entry)
			assert.Equal(t, "Hola", entry.Text)
			assert.Equal(t, "Hello", entry.OriginalText)
			assert.Equal(t, model.Spanish, entry.TargetLanguage)

			_, ok = c.Lookup(ctx, model.KindTranslation, "Hello", model.French)
			assert.False(t, ok)
			_, ok = c.Lookup(ctx, model.KindSummary, "Hello", model.Spanish)
			assert.False(t, ok)

			n, err := c.Count(ctx)
			require.NoError(t, err)
			assert.EqualValues(t, 1, n)
		})
	}
}

func TestLookupFromStoreWithColdHotSet(t *testing.T) {
	ctx := context.Background()
	store := newGormStore(t)
	warm, err := New(store, 16, nil)
	require.NoError(t, err)
	warm.Store(ctx, model.KindSummary, "long text", model.Japanese, Value{Text: "要約", Tokens: 12})

	cold, err := New(store, 16, nil)
	require.NoError(t, err)
	got, ok := cold.Lookup(ctx, model.KindSummary, "long text", model.Japanese)
	require.True(t, ok)
	assert.Equal(t, "要約", got.Text)
	assert.EqualValues(t, 1, cold.Stats().Hits)
}

func TestResolveComputesOnce(t *testing.T) {
	ctx := context.Background()
	c, err := New(newGormStore(t), 16, zap.NewNop())
	require.NoError(t, err)

	var calls, charged atomic.Int32
	compute := func(ctx context.Context) (Value, error) {
		calls.Add(1)
		time.Sleep(50 * time.Millisecond)
		return Value{Text: "Hola", Tokens: 5}, nil
	}

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			v, computed, err := c.Resolve(ctx, model.KindTranslation, "Hello", model.Spanish, compute)
			assert.NoError(t, err)
			assert.Equal(t, "Hola", v.Text)
			if computed {
				charged.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.EqualValues(t, 1, calls.Load())
	assert.EqualValues(t, 1, charged.Load())

	_, computed, err := c.Resolve(ctx, model.KindTranslation, "Hello", model.Spanish, compute)
	require.NoError(t, err)
	assert.False(t, computed)
	assert.EqualValues(t, 1, calls.Load())
}

func TestResolveDoesNotCacheFailuresOrEmptyText(t *testing.T) {
	ctx := context.Background()
	c, err := New(newRedisStore(t), 16, zap.NewNop())
	require.NoError(t, err)

	boom := errors.New("boom")
	v, computed, err := c.Resolve(ctx, model.KindTranslation, "Hello", model.Spanish, func(context.Context) (Value, error) {
		return Value{Text: "partial", Tokens: 7}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.True(t, computed)
	assert.Equal(t, Value{Tokens: 7}, v, "cost of a failed compute is kept")

	v, computed, err = c.Resolve(ctx, model.KindTranslation, "Hello", model.Spanish, func(context.Context) (Value, error) {
		return Value{Tokens: 4}, nil
	})
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Empty(t, v.Text)

	_, ok := c.Lookup(ctx, model.KindTranslation, "Hello", model.Spanish)
	assert.False(t, ok)
}

type brokenStore struct{}

func (brokenStore) Get(context.Context, model.CacheKind, string) (*model.CacheEntry, error) {
	return nil, errors.New("connection refused")
}

func (brokenStore) Put(context.Context, *model.CacheEntry) error {
	return errors.New("connection refused")
}

func (brokenStore) Count(context.Context) (int64, error) { return 0, errors.New("connection refused") }

func TestFailOpen(t *testing.T) {
	ctx := context.Background()
	c, err := New(brokenStore{}, 16, zap.NewNop())
	require.NoError(t, err)

	_, ok := c.Lookup(ctx, model.KindTranslation, "Hello", model.Spanish)
	assert.False(t, ok)

	v, computed, err := c.Resolve(ctx, model.KindTranslation, "Hello", model.Spanish, func(context.Context) (Value, error) {
		return Value{Text: "Hola", Tokens: 2}, nil
	})
	require.NoError(t, err)
	assert.True(t, computed)
	assert.Equal(t, "Hola", v.Text)
	assert.NotZero(t, c.Stats().Errors)
}
