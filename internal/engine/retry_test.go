package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"feed-translator/internal/apperr"
)

func newTestRetrier(delays *[]time.Duration) *Retrier {
	r := NewRetrier(3, 500*time.Millisecond, 0, zap.NewNop())
	r.sleep = func(ctx context.Context, d time.Duration) error {
		*delays = append(*delays, d)
		return nil
	}
	return r
}

func TestRetrierExhaustsAndReturnsZeroResult(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	calls := 0
	res, err := r.Invoke(context.Background(), "translate", func(context.Context) (Result, error) {
		calls++
		return Result{Text: "partial", Tokens: 7}, errors.New("connection reset")
	})

	require.Error(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, Result{}, res)
	assert.Equal(t, []time.Duration{500 * time.Millisecond, time.Second}, delays)
}

func TestRetrierSucceedsAfterFailure(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)

	calls := 0
	res, err := r.Invoke(context.Background(), "translate", func(context.Context) (Result, error) {
		calls++
		if calls < 2 {
			return Result{}, apperr.Provider("x", 503, errors.New("unavailable"))
		}
		return Result{Text: "Hola", Tokens: 4}, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, "Hola", res.Text)
	assert.Len(t, delays, 1)
}

func TestRetrierSkipsNonRetryable(t *testing.T) {
	cases := map[string]error{
		"configuration":        apperr.Configuration("missing key"),
		"unsupported language": apperr.UnsupportedLanguage("deepl", "zh-Hant"),
		"unauthorized":         apperr.Provider("openai", 401, errors.New("bad key")),
	}
	for name, failure := range cases {
		t.Run(name, func(t *testing.T) {
			var delays []time.Duration
			r := newTestRetrier(&delays)
			calls := 0
			_, err := r.Invoke(context.Background(), "translate", func(context.Context) (Result, error) {
				calls++
				return Result{}, failure
			})
			require.Error(t, err)
			assert.ErrorIs(t, err, failure)
			assert.Equal(t, 1, calls)
			assert.Empty(t, delays)
		})
	}
}

func TestRetrierStopsOnCancel(t *testing.T) {
	var delays []time.Duration
	r := newTestRetrier(&delays)
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	_, err := r.Invoke(ctx, "translate", func(context.Context) (Result, error) {
		calls++
		cancel()
		return Result{}, errors.New("timeout")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetrierPerAttemptTimeout(t *testing.T) {
	r := NewRetrier(2, time.Millisecond, 20*time.Millisecond, nil)
	calls := 0
	_, err := r.Invoke(context.Background(), "translate", func(ctx context.Context) (Result, error) {
		calls++
		<-ctx.Done()
		return Result{}, ctx.Err()
	})
	require.Error(t, err)
	assert.Equal(t, 2, calls)
}
