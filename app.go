package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"feed-translator/config"
	"feed-translator/internal/cache"
	"feed-translator/internal/engine"
	"feed-translator/internal/logging"
	"feed-translator/internal/service"
	"feed-translator/internal/store"
)

// app 进程内共享的组件
type app struct {
	cfg    *config.Config
	logger *zap.Logger
	db     *gorm.DB
	redis  *redis.Client

	repo     *store.Repository
	cache    *cache.Cache
	registry *prometheus.Registry
	metrics  *service.Metrics
	engines  *service.EngineService
	files    *service.FilePublisher
	sync     *service.Orchestrator
	feeds    *service.FeedManager
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	db, err := store.Open(cfg.Database, logging.GormLevel(cfg.Log.Level))
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	a := &app{cfg: cfg, logger: logger, db: db, repo: store.NewRepository(db)}

	var backend cache.Store
	switch cfg.Cache.Backend {
	case "redis":
		a.redis = redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr, DB: cfg.Cache.RedisDB})
		if err := a.redis.Ping(ctx).Err(); err != nil {
			a.close()
			return nil, fmt.Errorf("redis ping %s: %w", cfg.Cache.RedisAddr, err)
		}
		backend = cache.NewRedisStore(a.redis)
	default:
		backend = cache.NewGormStore(db)
	}
	a.cache, err = cache.New(backend, cfg.Cache.HotEntries, logger)
	if err != nil {
		a.close()
		return nil, err
	}

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = service.NewMetrics(a.registry, a.cache)

	sc := cfg.Sync
	engines := engine.NewRegistry(engine.Options{
		HTTPClient: &http.Client{Timeout: sc.ProviderTimeout},
		Logger:     logger,
	})
	a.engines = service.NewEngineService(a.repo, engines, engine.NewResolver(engines), logger)
	for _, seed := range cfg.Engines {
		if err := a.engines.Seed(ctx, seed.Name, seed.Kind, seed.Settings); err != nil {
			a.close()
			return nil, fmt.Errorf("seed engine %s: %w", seed.Name, err)
		}
	}

	publisher, err := a.publisher()
	if err != nil {
		a.close()
		return nil, err
	}

	processor := service.NewEntryProcessor(
		a.cache,
		engine.NewRetrier(sc.MaxRetries, sc.RetryBaseDelay, sc.ProviderTimeout, logger),
		service.NewArticleService(&http.Client{Timeout: sc.ArticleTimeout}, sc.UserAgent),
		a.metrics,
		logger,
		service.ProcessorOptions{SummaryMinChunk: sc.SummaryMinChunk, RecursiveSummary: sc.RecursiveSummary},
	)
	a.sync = service.NewOrchestrator(
		a.repo,
		service.NewFeedService(&http.Client{Timeout: sc.FetchTimeout}, sc.UserAgent, sc.MaxEntries, sc.MaxFeedBytes),
		processor,
		a.engines,
		publisher,
		a.metrics,
		logger,
		service.SyncOptions{Workers: sc.Workers, MaxEntries: sc.MaxEntries, BaseURL: cfg.Publish.BaseURL},
	)
	a.feeds = service.NewFeedManager(a.repo, a.sync, publisher, sc.SecretKey, logger)
	return a, nil
}

// publisher 本地目录始终写入，配置了 bucket 时同时上传
func (a *app) publisher() (service.Publisher, error) {
	a.files = service.NewFilePublisher(a.cfg.Publish.Dir)
	if a.cfg.Publish.S3Bucket == "" {
		return a.files, nil
	}
	s3p, err := service.NewS3Publisher(a.cfg.Publish)
	if err != nil {
		return nil, err
	}
	return service.MultiPublisher{a.files, s3p}, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Warn("close redis failed", zap.Error(err))
		}
	}
	if err := store.Close(a.db); err != nil {
		a.logger.Warn("close database failed", zap.Error(err))
	}
}
