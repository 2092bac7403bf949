package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"feed-translator/config"
	"feed-translator/internal/logging"
	"feed-translator/internal/model"
)

// DefaultSchedules 每个刷新间隔对应的 cron 表达式
var DefaultSchedules = map[model.RefreshBucket]string{
	model.Every5Minutes:  "*/5 * * * *",
	model.Every15Minutes: "*/15 * * * *",
	model.Every30Minutes: "*/30 * * * *",
	model.Hourly:         "@hourly",
	model.Daily:          "@daily",
	model.Weekly:         "@weekly",
}

// BucketSyncer 同步一个刷新间隔下的全部订阅源
type BucketSyncer interface {
	SyncBucket(ctx context.Context, bucket model.RefreshBucket) error
}

// SyncFunc 适配普通函数
type SyncFunc func(ctx context.Context, bucket model.RefreshBucket) error

func (f SyncFunc) SyncBucket(ctx context.Context, bucket model.RefreshBucket) error {
	return f(ctx, bucket)
}

type Scheduler struct {
	cron    *cron.Cron
	syncer  BucketSyncer
	logger  *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
	running sync.WaitGroup
	entries map[model.RefreshBucket]cron.EntryID
}

// NewScheduler 每个刷新间隔注册一个任务。上一轮还没结束时跳过本轮
func NewScheduler(syncer BucketSyncer, cfg config.CronConfig, logger *zap.Logger) (*Scheduler, error) {
	logger = logger.Named("cron")
	cl := logging.NewCronLogger(logger)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		syncer:  syncer,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
		entries: make(map[model.RefreshBucket]cron.EntryID),
	}

	for _, bucket := range model.Buckets() {
		spec := DefaultSchedules[bucket]
		if override, ok := cfg.Schedules[bucket.String()]; ok && override != "" {
			spec = override
		}
		id, err := s.cron.AddFunc(spec, s.job(bucket))
		if err != nil {
			cancel()
			return nil, fmt.Errorf("schedule %s (%q): %w", bucket, spec, err)
		}
		s.entries[bucket] = id
	}
	return s, nil
}

func (s *Scheduler) job(bucket model.RefreshBucket) func() {
	return func() {
		s.running.Add(1)
		defer s.running.Done()
		start := time.Now()
		s.logger.Info("sync bucket started", zap.Stringer("bucket", bucket))
		if err := s.syncer.SyncBucket(s.ctx, bucket); err != nil {
			s.logger.Error("sync bucket failed", zap.Stringer("bucket", bucket), zap.Error(err))
			return
		}
		s.logger.Info("sync bucket finished", zap.Stringer("bucket", bucket), zap.Duration("elapsed", time.Since(start)))
	}
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.entries)))
}

// NextRuns 各刷新间隔的下次运行时间，未启动时为空
func (s *Scheduler) NextRuns() map[string]time.Time {
	runs := make(map[string]time.Time, len(s.entries))
	for bucket, id := range s.entries {
		if next := s.cron.Entry(id).Next; !next.IsZero() {
			runs[bucket.String()] = next
		}
	}
	return runs
}

// Stop 停止调度并等待运行中的任务结束。ctx 到期时取消任务，返回 ctx 的错误
func (s *Scheduler) Stop(ctx context.Context) error {
	stopped := s.cron.Stop()
	done := make(chan struct{})
	go func() {
		<-stopped.Done()
		s.running.Wait()
		close(done)
	}()
	defer s.cancel()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("cancel running jobs", zap.Error(ctx.Err()))
		return ctx.Err()
	}
}

// Graceful 返回的 ctx 在 parent 取消 grace 之后才取消，
// 让进行中的调用有机会完成
func Graceful(parent context.Context, grace time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.WithoutCancel(parent))
	go func() {
		select {
		case <-parent.Done():
		case <-ctx.Done():
			return
		}
		t := time.NewTimer(grace)
		defer t.Stop()
		select {
		case <-t.C:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
