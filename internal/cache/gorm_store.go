package cache

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

// GormStore 使用业务数据库的 cache_entries 表
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, kind model.CacheKind, hash string) (*model.CacheEntry, error) {
	var entry model.CacheEntry
	err := s.db.WithContext(ctx).
		Where("hash = ? AND kind = ?", hash, kind).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	return &entry, nil
}

// Put 主键冲突时什么都不做
func (s *GormStore) Put(ctx context.Context, entry *model.CacheEntry) error {
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	return nil
}

func (s *GormStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&model.CacheEntry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
	}
	return n, nil
}
