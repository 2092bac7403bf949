package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feed-translator/config"
	"feed-translator/internal/model"
)

func TestSchedulerRegistersEveryBucket(t *testing.T) {
	s, err := NewScheduler(SyncFunc(func(context.Context, model.RefreshBucket) error { return nil }), config.CronConfig{}, zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, s.entries, len(model.Buckets()))

	assert.Empty(t, s.NextRuns())
	s.Start()
	defer s.Stop(context.Background())

	runs := s.NextRuns()
	require.Len(t, runs, len(model.Buckets()))
	assert.True(t, runs["5min"].After(time.Now()))
	assert.True(t, runs["5min"].Before(runs["weekly"]) || runs["5min"].Equal(runs["weekly"]))
}

func TestSchedulerOverride(t *testing.T) {
	_, err := NewScheduler(SyncFunc(func(context.Context, model.RefreshBucket) error { return nil }),
		config.CronConfig{Schedules: map[string]string{"hourly": "not a cron spec"}}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "hourly")

	s, err := NewScheduler(SyncFunc(func(context.Context, model.RefreshBucket) error { return nil }),
		config.CronConfig{Schedules: map[string]string{"daily": "0 3 * * *"}}, zap.NewNop())
	require.NoError(t, err)
	s.Start()
	defer s.Stop(context.Background())
	assert.Equal(t, 3, s.NextRuns()["daily"].Hour())
}

func TestJobRunsBucket(t *testing.T) {
	var (
		calls int32
		got   model.RefreshBucket
	)
	s, err := NewScheduler(SyncFunc(func(_ context.Context, b model.RefreshBucket) error {
		atomic.AddInt32(&calls, 1)
		got = b
		if b == model.Daily {
			return errors.New("boom")
		}
		return nil
	}), config.CronConfig{}, zap.NewNop())
	require.NoError(t, err)

	s.job(model.Hourly)()
	s.job(model.Daily)()
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, model.Daily, got)
}

func TestStopWaitsForRunningJobs(t *testing.T) {
	started := make(chan struct{})
	var jobErr atomic.Value
	s, err := NewScheduler(SyncFunc(func(ctx context.Context, _ model.RefreshBucket) error {
		close(started)
		// 模拟一次较慢的服务调用
		select {
		case <-time.After(100 * time.Millisecond):
			jobErr.Store("finished")
		case <-ctx.Done():
			jobErr.Store(ctx.Err().Error())
		}
		return nil
	}), config.CronConfig{}, zap.NewNop())
	require.NoError(t, err)

	go s.job(model.Every5Minutes)()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Stop(ctx))
	assert.Equal(t, "finished", jobErr.Load())
}

func TestStopCancelsJobsAfterDeadline(t *testing.T) {
	started := make(chan struct{})
	done := make(chan struct{})
	s, err := NewScheduler(SyncFunc(func(ctx context.Context, _ model.RefreshBucket) error {
		close(started)
		<-ctx.Done()
		close(done)
		return ctx.Err()
	}), config.CronConfig{}, zap.NewNop())
	require.NoError(t, err)

	go s.job(model.Every5Minutes)()
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, s.Stop(ctx), context.DeadlineExceeded)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job did not observe cancellation")
	}
}

func TestGraceful(t *testing.T) {
	parent, stop := context.WithCancel(context.Background())
	ctx, cancel := Graceful(parent, 50*time.Millisecond)
	defer cancel()

	stop()
	assert.NoError(t, ctx.Err(), "still running during the grace period")
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context was not cancelled after the grace period")
	}

	ctx, cancel = Graceful(context.Background(), time.Hour)
	cancel()
	assert.ErrorIs(t, ctx.Err(), context.Canceled)
}
