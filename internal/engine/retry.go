package engine

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = 500 * time.Millisecond
)

// Retrier 包装单次引擎调用：失败后按 base*2^attempt 退避重试。
// 重试耗尽时返回零值结果和最后一次的错误，调用方据此降级而不是中止整条内容。
type Retrier struct {
	MaxRetries int
	BaseDelay  time.Duration
	// 单次尝试的超时，0 表示不限制
	Timeout time.Duration
	Logger  *zap.Logger

	sleep func(ctx context.Context, d time.Duration) error
}

func NewRetrier(maxRetries int, baseDelay, timeout time.Duration, logger *zap.Logger) *Retrier {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{MaxRetries: maxRetries, BaseDelay: baseDelay, Timeout: timeout, Logger: logger}
}

// Invoke 最多调用 fn MaxRetries 次。配置错误和语言不支持不重试
func (r *Retrier) Invoke(ctx context.Context, op string, fn func(ctx context.Context) (Result, error)) (Result, error) {
	var lastErr error
	for attempt := 0; attempt < r.MaxRetries; attempt++ {
		res, err := r.attempt(ctx, fn)
		if err == nil {
			return res, nil
		}
		lastErr = err
		r.Logger.Warn("engine call failed",
			zap.String("op", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_retries", r.MaxRetries),
			zap.Error(err))

		if !apperr.IsRetryable(err) || ctx.Err() != nil {
			break
		}
		if attempt == r.MaxRetries-1 {
			break
		}
		if err := r.wait(ctx, r.BaseDelay<<attempt); err != nil {
			break
		}
	}
	return Result{}, fmt.Errorf("%s: %w", op, lastErr)
}

func (r *Retrier) attempt(ctx context.Context, fn func(ctx context.Context) (Result, error)) (Result, error) {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(ctx)
}

func (r *Retrier) wait(ctx context.Context, d time.Duration) error {
	if r.sleep != nil {
		return r.sleep(ctx, d)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
