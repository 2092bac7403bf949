package engine

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Throttle 服务要求的最小调用间隔，进程内同一引擎实例共享
type Throttle struct {
	limiter *rate.Limiter
}

// NewThrottle interval <= 0 时不限速
func NewThrottle(interval time.Duration) *Throttle {
	if interval <= 0 {
		return &Throttle{}
	}
	return &Throttle{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

func (t *Throttle) Wait(ctx context.Context) error {
	if t == nil || t.limiter == nil {
		return nil
	}
	return t.limiter.Wait(ctx)
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}
