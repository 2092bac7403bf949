package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

const redisKeyPrefix = "feed-translator:cache:"

// RedisStore 以 SETNX 保证先写入者为准，不设置过期时间
type RedisStore struct {
	client *redis.Client
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func redisKey(kind model.CacheKind, hash string) string {
	return redisKeyPrefix + string(kind) + ":" + hash
}

func (s *RedisStore) Get(ctx context.Context, kind model.CacheKind, hash string) (*model.CacheEntry, error) {
	data, err := s.client.Get(ctx, redisKey(kind, hash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	var entry model.CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", apperr.ErrPersistence, hash, err)
	}
	return &entry, nil
}

func (s *RedisStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	if err := s.client.SetNX(ctx, redisKey(entry.Kind, entry.Hash), data, 0).Err(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	return nil
}

func (s *RedisStore) Count(ctx context.Context) (int64, error) {
	var (
		n      int64
		cursor uint64
	)
	for {
		keys, next, err := s.client.Scan(ctx, cursor, redisKeyPrefix+"*", 500).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
		}
		n += int64(len(keys))
		if next == 0 {
			return n, nil
		}
		cursor = next
	}
}
