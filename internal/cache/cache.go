package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/unicode/norm"

	"feed-translator/internal/model"
)

// Value 缓存的一次调用结果
type Value struct {
	Text       string
	Tokens     int
	Characters int
}

// Store 持久化后端。Get 未命中返回 nil, nil；Put 遇到相同主键时保持原记录并返回 nil
type Store interface {
	Get(ctx context.Context, kind model.CacheKind, hash string) (*model.CacheEntry, error)
	Put(ctx context.Context, entry *model.CacheEntry) error
	Count(ctx context.Context) (int64, error)
}

// Stats 命中统计
type Stats struct {
	Hits   uint64 `json:"hits"`
	Misses uint64 `json:"misses"`
	Errors uint64 `json:"errors"`
}

// Cache 内容寻址的翻译缓存：进程内 LRU + 持久化 Store，并发的相同 miss 只计算一次
type Cache struct {
	store  Store
	hot    *lru.Cache[string, Value]
	group  singleflight.Group
	logger *zap.Logger

	hits   atomic.Uint64
	misses atomic.Uint64
	errors atomic.Uint64
}

func New(store Store, hotEntries int, logger *zap.Logger) (*Cache, error) {
	if hotEntries <= 0 {
		hotEntries = 1024
	}
	hot, err := lru.New[string, Value](hotEntries)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{store: store, hot: hot, logger: logger.Named("cache")}, nil
}

// Key sha256(NFC(trim(text)) + "\x00" + lang) 的十六进制
func Key(text string, lang model.Language) string {
	h := sha256.New()
	h.Write([]byte(norm.NFC.String(strings.TrimSpace(text))))
	h.Write([]byte{0})
	h.Write([]byte(lang))
	return hex.EncodeToString(h.Sum(nil))
}

func hotKey(kind model.CacheKind, hash string) string {
	return string(kind) + ":" + hash
}

// Lookup 查询缓存；存储层错误按未命中处理
func (c *Cache) Lookup(ctx context.Context, kind model.CacheKind, text string, lang model.Language) (Value, bool) {
	hash := Key(text, lang)
	if v, ok := c.hot.Get(hotKey(kind, hash)); ok {
		c.hits.Add(1)
		return v, true
	}
	entry, err := c.store.Get(ctx, kind, hash)
	if err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache lookup failed, treating as miss",
			zap.String("kind", string(kind)), zap.String("hash", hash), zap.Error(err))
		c.misses.Add(1)
		return Value{}, false
	}
	if entry == nil {
		c.misses.Add(1)
		return Value{}, false
	}
	v := Value{Text: entry.Text, Tokens: entry.Tokens, Characters: entry.Characters}
	c.hot.Add(hotKey(kind, hash), v)
	c.hits.Add(1)
	return v, true
}

// Store 幂等写入，先写入者为准。写入失败只记录日志
func (c *Cache) Store(ctx context.Context, kind model.CacheKind, text string, lang model.Language, v Value) {
	hash := Key(text, lang)
	entry := &model.CacheEntry{
		Hash:           hash,
		Kind:           kind,
		OriginalText:   text,
		TargetLanguage: lang,
		Text:           v.Text,
		Tokens:         v.Tokens,
		Characters:     v.Characters,
	}
	if err := c.store.Put(ctx, entry); err != nil {
		c.errors.Add(1)
		c.logger.Warn("cache store failed",
			zap.String("kind", string(kind)), zap.String("hash", hash), zap.Error(err))
		return
	}
	// 以存储中的记录为准，避免并发写入时热集合与存储不一致
	if stored, err := c.store.Get(ctx, kind, hash); err == nil && stored != nil {
		v = Value{Text: stored.Text, Tokens: stored.Tokens, Characters: stored.Characters}
	}
	c.hot.Add(hotKey(kind, hash), v)
}

// Resolve 命中直接返回；未命中时调用 compute 并写入缓存。
// computed 仅对真正执行 compute 的调用者为 true，调用方据此累计成本。
// compute 返回空文本或出错时不写入缓存；出错时返回值只带成本。
func (c *Cache) Resolve(ctx context.Context, kind model.CacheKind, text string, lang model.Language,
	compute func(ctx context.Context) (Value, error)) (v Value, computed bool, err error) {
	if v, ok := c.Lookup(ctx, kind, text, lang); ok {
		return v, false, nil
	}

	ran := false
	res, err, _ := c.group.Do(hotKey(kind, Key(text, lang)), func() (any, error) {
		ran = true
		if v, ok := c.Lookup(ctx, kind, text, lang); ok {
			ran = false
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			// 失败时只保留已经产生的成本
			return Value{Tokens: v.Tokens, Characters: v.Characters}, err
		}
		if v.Text != "" {
			c.Store(ctx, kind, text, lang, v)
		}
		return v, nil
	})
	if err != nil {
		v, _ = res.(Value)
		return v, ran, err
	}
	return res.(Value), ran, nil
}

// Stats 当前命中统计
func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Errors: c.errors.Load()}
}

// Count 持久化记录数
func (c *Cache) Count(ctx context.Context) (int64, error) {
	return c.store.Count(ctx)
}
