package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/model"
	"feed-translator/internal/store"
)

const defaultMaxPosts = 20

// FeedManager 订阅源的注册、删除和重置
type FeedManager struct {
	repo      *store.Repository
	sync      *Orchestrator
	publisher Publisher
	secret    string
	logger    *zap.Logger
}

func NewFeedManager(repo *store.Repository, sync *Orchestrator, publisher Publisher, secret string, logger *zap.Logger) *FeedManager {
	return &FeedManager{repo: repo, sync: sync, publisher: publisher, secret: secret, logger: logger.Named("feeds")}
}

func (m *FeedManager) List(ctx context.Context) ([]model.Feed, error) {
	return m.repo.ListFeeds(ctx)
}

func (m *FeedManager) Get(ctx context.Context, slug string) (*model.Feed, error) {
	return m.repo.FeedBySlug(ctx, slug)
}

// Create 补全默认值并由地址派生 slug
func (m *FeedManager) Create(ctx context.Context, feed *model.Feed) error {
	feed.URL = strings.TrimSpace(feed.URL)
	if feed.MaxPosts == 0 {
		feed.MaxPosts = defaultMaxPosts
	}
	if feed.RefreshBucket == 0 {
		feed.RefreshBucket = model.Every30Minutes
	}
	if feed.TargetLanguage == "" {
		feed.TargetLanguage = model.English
	}
	if err := feed.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperr.ErrConfiguration, err)
	}
	feed.ID = 0
	feed.Slug = model.FeedSlug(feed.URL+"@"+string(feed.TargetLanguage), m.secret)
	feed.ETag = ""
	feed.FetchStatus, feed.TranslationStatus, feed.SummaryStatus = nil, nil, nil
	feed.TotalTokens, feed.TotalCharacters = 0, 0
	if err := m.repo.CreateFeed(ctx, feed); err != nil {
		return err
	}
	m.logger.Info("feed created", zap.String("slug", feed.Slug), zap.String("url", feed.URL))
	return nil
}

// Sync 立即同步一个订阅源
func (m *FeedManager) Sync(ctx context.Context, slug string) (FeedReport, error) {
	feed, err := m.repo.FeedBySlug(ctx, slug)
	if err != nil {
		return FeedReport{}, err
	}
	return m.sync.SyncFeed(ctx, feed)
}

// Render 生成 JSON 或原文格式的输出
func (m *FeedManager) Render(ctx context.Context, slug string, format FeedFormat) ([]byte, error) {
	feed, err := m.repo.FeedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	return m.sync.Render(ctx, feed, format)
}

// Delete 删除订阅源、条目和输出文件。同步进行中时拒绝
func (m *FeedManager) Delete(ctx context.Context, slug string) error {
	feed, err := m.repo.FeedBySlug(ctx, slug)
	if err != nil {
		return err
	}
	err = m.sync.Exclusive(feed.ID, func() error {
		return m.repo.DeleteFeed(ctx, feed)
	})
	if err != nil {
		return err
	}
	if m.publisher != nil {
		if err := m.publisher.Remove(ctx, feed.Slug); err != nil {
			m.logger.Warn("remove artifact failed", zap.String("slug", feed.Slug), zap.Error(err))
		}
	}
	m.logger.Info("feed deleted", zap.String("slug", feed.Slug))
	return nil
}

// Reset 清空译文和计数器，并用原文重新生成输出文件
func (m *FeedManager) Reset(ctx context.Context, slug string) (*model.Feed, error) {
	feed, err := m.repo.FeedBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	err = m.sync.Exclusive(feed.ID, func() error {
		if err := m.repo.ResetFeed(ctx, feed); err != nil {
			return err
		}
		if err := m.sync.Republish(ctx, feed); err != nil {
			m.logger.Warn("republish after reset failed", zap.String("slug", feed.Slug), zap.Error(err))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return feed, nil
}
