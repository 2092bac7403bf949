package service

import (
	"context"
	"time"

	"feed-translator/internal/cache"
	"feed-translator/internal/store"
)

// Schedule 提供各刷新间隔的下次运行时间
type Schedule interface {
	NextRuns() map[string]time.Time
}

type StatusService struct {
	repo     *store.Repository
	cache    *cache.Cache
	schedule Schedule
}

type SystemStatus struct {
	// 订阅源统计
	Feeds store.FeedCounts `json:"feeds"`

	// 条目统计
	TotalEntries      int64 `json:"total_entries"`
	TranslatedEntries int64 `json:"translated_entries"`

	// 缓存
	CacheRecords int64       `json:"cache_records"`
	Cache        cache.Stats `json:"cache"`

	// 定时任务信息
	NextRuns map[string]time.Time `json:"next_runs,omitempty"`
}

func NewStatusService(repo *store.Repository, c *cache.Cache, schedule Schedule) *StatusService {
	return &StatusService{repo: repo, cache: c, schedule: schedule}
}

// GetSystemStatus 获取系统状态
func (s *StatusService) GetSystemStatus(ctx context.Context) (*SystemStatus, error) {
	status := &SystemStatus{}

	feeds, err := s.repo.CountFeeds(ctx)
	if err != nil {
		return nil, err
	}
	status.Feeds = feeds

	status.TotalEntries, status.TranslatedEntries, err = s.repo.CountEntries(ctx)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		// 缓存统计失败不影响其它信息
		status.CacheRecords, _ = s.cache.Count(ctx)
		status.Cache = s.cache.Stats()
	}
	if s.schedule != nil {
		status.NextRuns = s.schedule.NextRuns()
	}
	return status, nil
}
