package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
)

// 各阶段写回的条目列
var (
	FetchEntryColumns = []string{
		"link", "author", "published",
		"original_title", "original_content", "original_summary",
		"translated_title", "translated_content", "ai_summary",
		"updated_at",
	}
	TranslateEntryColumns = []string{"translated_title", "translated_content", "updated_at"}
	SummaryEntryColumns   = []string{"ai_summary", "updated_at"}
)

// Repository Feed/Entry/EngineConfig 的持久化
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *gorm.DB { return r.db }

func persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.ErrNotFound
	}
	return fmt.Errorf("%w: %v", apperr.ErrPersistence, err)
}

// ===== Feed =====

func (r *Repository) CreateFeed(ctx context.Context, feed *model.Feed) error {
	return persistence(r.db.WithContext(ctx).Create(feed).Error)
}

func (r *Repository) FeedBySlug(ctx context.Context, slug string) (*model.Feed, error) {
	var feed model.Feed
	if err := r.db.WithContext(ctx).Where("slug = ?", slug).Take(&feed).Error; err != nil {
		return nil, persistence(err)
	}
	return &feed, nil
}

func (r *Repository) ListFeeds(ctx context.Context) ([]model.Feed, error) {
	var feeds []model.Feed
	err := r.db.WithContext(ctx).Order("id").Find(&feeds).Error
	return feeds, persistence(err)
}

// FeedsByBucket 某个刷新间隔下的全部订阅源
func (r *Repository) FeedsByBucket(ctx context.Context, bucket model.RefreshBucket) ([]model.Feed, error) {
	var feeds []model.Feed
	err := r.db.WithContext(ctx).Where("refresh_bucket = ?", bucket).Order("id").Find(&feeds).Error
	return feeds, persistence(err)
}

// DeleteFeed 删除订阅源及其全部条目
func (r *Repository) DeleteFeed(ctx context.Context, feed *model.Feed) error {
	return persistence(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("feed_id = ?", feed.ID).Delete(&model.Entry{}).Error; err != nil {
			return err
		}
		return tx.Delete(feed).Error
	}))
}

// UpdateFeed 只写入指定字段
func (r *Repository) UpdateFeed(ctx context.Context, feed *model.Feed, fields ...string) error {
	return persistence(r.db.WithContext(ctx).Model(feed).Select(fields).Updates(feed).Error)
}

// ResetFeed 清空全部译文和计数器
func (r *Repository) ResetFeed(ctx context.Context, feed *model.Feed) error {
	feed.ResetTranslations()
	return persistence(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&model.Entry{}).Where("feed_id = ?", feed.ID).Updates(map[string]any{
			"translated_title":   "",
			"translated_content": "",
			"ai_summary":         "",
		}).Error
		if err != nil {
			return err
		}
		return tx.Model(feed).
			Select("TotalTokens", "TotalCharacters", "TranslationStatus", "SummaryStatus").
			Updates(feed).Error
	}))
}

// ===== Entry =====

// Entries 按发布时间从新到旧
func (r *Repository) Entries(ctx context.Context, feedID uint) ([]model.Entry, error) {
	var entries []model.Entry
	err := r.db.WithContext(ctx).
		Where("feed_id = ?", feedID).
		Order("published DESC").Order("id DESC").
		Find(&entries).Error
	return entries, persistence(err)
}

// SaveFetch 抓取阶段的批量写入：按 (feed_id, guid) upsert 条目，保留最新的 maxPosts 条，更新 feed 字段。
// 全部在一个事务中完成
func (r *Repository) SaveFetch(ctx context.Context, feed *model.Feed, fresh []model.Entry, feedFields []string) error {
	return persistence(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(fresh) > 0 {
			guids := make([]string, 0, len(fresh))
			for _, e := range fresh {
				guids = append(guids, e.GUID)
			}
			var existing []model.Entry
			if err := tx.Where("feed_id = ? AND guid IN ?", feed.ID, guids).Find(&existing).Error; err != nil {
				return err
			}
			byGUID := make(map[string]*model.Entry, len(existing))
			for i := range existing {
				byGUID[existing[i].GUID] = &existing[i]
			}

			rows := make([]model.Entry, 0, len(fresh))
			for _, e := range fresh {
				e.FeedID = feed.ID
				if old, ok := byGUID[e.GUID]; ok {
					merged := *old
					merged.Merge(e)
					e = merged
				}
				// 由唯一索引 (feed_id, guid) 判定冲突
				e.ID = 0
				rows = append(rows, e)
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "feed_id"}, {Name: "guid"}},
				DoUpdates: clause.AssignmentColumns(FetchEntryColumns),
			}).CreateInBatches(&rows, 200).Error
			if err != nil {
				return err
			}
		}

		if err := prune(tx, feed); err != nil {
			return err
		}
		return tx.Model(feed).Select(feedFields).Updates(feed).Error
	}))
}

// prune 只保留最新的 MaxPosts 条
func prune(tx *gorm.DB, feed *model.Feed) error {
	if feed.MaxPosts <= 0 {
		return nil
	}
	var stale []uint
	err := tx.Model(&model.Entry{}).
		Where("feed_id = ?", feed.ID).
		Order("published DESC").Order("id DESC").
		Offset(feed.MaxPosts).Limit(1 << 20).
		Pluck("id", &stale).Error
	if err != nil || len(stale) == 0 {
		return err
	}
	return tx.Where("id IN ?", stale).Delete(&model.Entry{}).Error
}

// SaveStage 翻译/摘要阶段的批量写入：一条语句写回条目的指定列，再更新 feed 字段
func (r *Repository) SaveStage(ctx context.Context, feed *model.Feed, feedFields []string, entries []model.Entry, entryColumns []string) error {
	return persistence(r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(entries) > 0 {
			now := time.Now()
			for i := range entries {
				entries[i].UpdatedAt = now
			}
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "id"}},
				DoUpdates: clause.AssignmentColumns(entryColumns),
			}).CreateInBatches(&entries, 200).Error
			if err != nil {
				return err
			}
		}
		return tx.Model(feed).Select(feedFields).Updates(feed).Error
	}))
}

// ===== EngineConfig =====

func (r *Repository) ListEngines(ctx context.Context) ([]model.EngineConfig, error) {
	var engines []model.EngineConfig
	err := r.db.WithContext(ctx).Order("id").Find(&engines).Error
	return engines, persistence(err)
}

func (r *Repository) EngineByID(ctx context.Context, id uint) (*model.EngineConfig, error) {
	var cfg model.EngineConfig
	if err := r.db.WithContext(ctx).Take(&cfg, id).Error; err != nil {
		return nil, persistence(err)
	}
	return &cfg, nil
}

func (r *Repository) EngineByName(ctx context.Context, name string) (*model.EngineConfig, error) {
	var cfg model.EngineConfig
	if err := r.db.WithContext(ctx).Where("name = ?", name).Take(&cfg).Error; err != nil {
		return nil, persistence(err)
	}
	return &cfg, nil
}

func (r *Repository) CreateEngine(ctx context.Context, cfg *model.EngineConfig) error {
	return persistence(r.db.WithContext(ctx).Create(cfg).Error)
}

// UpsertEngine 按名称写入，已存在时更新 kind 和 settings
func (r *Repository) UpsertEngine(ctx context.Context, cfg *model.EngineConfig) error {
	return persistence(r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"kind", "settings", "updated_at"}),
	}).Create(cfg).Error)
}

// SetEngineValid 只由显式校验调用
func (r *Repository) SetEngineValid(ctx context.Context, cfg *model.EngineConfig, valid bool) error {
	cfg.Valid = model.Bool(valid)
	return persistence(r.db.WithContext(ctx).Model(cfg).UpdateColumn("valid", valid).Error)
}

// ===== 统计 =====

// FeedCounts 各阶段状态的订阅源数量
type FeedCounts struct {
	Total             int64 `json:"total"`
	FetchFailed       int64 `json:"fetch_failed"`
	TranslationFailed int64 `json:"translation_failed"`
	SummaryFailed     int64 `json:"summary_failed"`
	InProgress        int64 `json:"in_progress"`
}

func (r *Repository) CountFeeds(ctx context.Context) (FeedCounts, error) {
	var c FeedCounts
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Feed{}).Count(&c.Total).Error; err != nil {
		return c, persistence(err)
	}
	db.Model(&model.Feed{}).Where("fetch_status = ?", false).Count(&c.FetchFailed)
	db.Model(&model.Feed{}).Where("translation_status = ?", false).Count(&c.TranslationFailed)
	db.Model(&model.Feed{}).Where("summary_status = ?", false).Count(&c.SummaryFailed)
	// 状态为空且阶段已启用：正在进行或尚未运行过
	db.Model(&model.Feed{}).
		Where("fetch_status IS NULL").
		Or("(translate_title = ? OR translate_content = ?) AND translation_status IS NULL", true, true).
		Or("summarize = ? AND summary_status IS NULL", true).
		Count(&c.InProgress)
	return c, nil
}

func (r *Repository) CountEntries(ctx context.Context) (total, translated int64, err error) {
	db := r.db.WithContext(ctx)
	if err := db.Model(&model.Entry{}).Count(&total).Error; err != nil {
		return 0, 0, persistence(err)
	}
	db.Model(&model.Entry{}).Where("translated_title <> '' OR translated_content <> ''").Count(&translated)
	return total, translated, nil
}
