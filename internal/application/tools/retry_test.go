package tools

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func noSleepPolicy(attempts int) (RetryPolicy, *[]time.Duration) {
	var waits []time.Duration
	return RetryPolicy{
		MaxAttempts: attempts,
		Backoff:     Exponential(100*time.Millisecond, 250*time.Millisecond),
		Sleep: func(ctx context.Context, d time.Duration) error {
			waits = append(waits, d)
			return ctx.Err()
		},
	}, &waits
}

func TestBackoff(t *testing.T) {
	exp := Exponential(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, exp(1))
	assert.Equal(t, 200*time.Millisecond, exp(2))
	assert.Equal(t, 400*time.Millisecond, exp(3))
	assert.Equal(t, time.Second, exp(10))
	assert.Equal(t, 100*time.Millisecond, exp(0))

	assert.Equal(t, 50*time.Millisecond, Constant(50*time.Millisecond)(7))
}

func TestCall_SucceedsAfterRetries(t *testing.T) {
	policy, waits := noSleepPolicy(3)
	calls := 0

	out := Call(context.Background(), policy, zap.NewNop(), "fetch", func(ctx context.Context) (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("ERP API timeout")
		}
		return 42, nil
	})

	assert.True(t, out.OK())
	assert.Equal(t, 42, out.Value)
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 2, out.Failures)
	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, *waits)
}

func TestCall_Exhaustion(t *testing.T) {
	policy, waits := noSleepPolicy(3)
	cause := errors.New("ERP API timeout")

	out := Call(context.Background(), policy, zap.NewNop(), "fetch", func(ctx context.Context) (string, error) {
		return "", cause
	})

	require.False(t, out.OK())
	assert.Equal(t, 3, out.Attempts)
	assert.Equal(t, 3, out.Failures)
	assert.Equal(t, "fetch", out.Err.Tool)
	assert.Equal(t, 3, out.Err.Attempt)
	assert.ErrorIs(t, out.Err, cause)
	assert.Len(t, *waits, 2, "no wait after the final attempt")
}

func TestCall_ZeroAttemptsMeansOne(t *testing.T) {
	policy, _ := noSleepPolicy(0)
	calls := 0
	out := Call(context.Background(), policy, nil, "fetch", func(ctx context.Context) (int, error) {
		calls++
		return 0, errors.New("down")
	})
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, out.Attempts)
	assert.False(t, out.OK())
}

func TestCall_PermanentStopsRetrying(t *testing.T) {
	policy, waits := noSleepPolicy(5)
	calls := 0
	cause := errors.New("vendor blocked")

	out := Call(context.Background(), policy, zap.NewNop(), "pay", func(ctx context.Context) (int, error) {
		calls++
		return 0, Permanent(cause)
	})

	assert.Equal(t, 1, calls)
	assert.Empty(t, *waits)
	assert.True(t, IsPermanent(out.Err))
	assert.ErrorIs(t, out.Err, cause)
	assert.Nil(t, Permanent(nil))
}

func TestCall_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	policy := RetryPolicy{
		MaxAttempts: 5,
		Backoff:     Constant(time.Hour),
		Sleep:       ContextSleep,
	}
	calls := 0

	out := Call(ctx, policy, zap.NewNop(), "fetch", func(ctx context.Context) (int, error) {
		calls++
		cancel()
		return 0, errors.New("timeout")
	})

	assert.Equal(t, 1, calls)
	require.NotNil(t, out.Err)
	assert.ErrorIs(t, out.Err, context.Canceled)
}

func TestWithFallback(t *testing.T) {
	ok := Outcome[[]string]{Value: []string{"a"}, Attempts: 1}
	assert.Equal(t, ok, WithFallback(ok, nil))

	failed := Outcome[[]string]{Attempts: 3, Err: &ToolError{Tool: "fetch", Attempt: 3, Err: errors.New("x")}}
	fb := WithFallback(failed, []string{})
	assert.True(t, fb.UsedFallback)
	assert.NotNil(t, fb.Value)
	assert.Empty(t, fb.Value)
	assert.NotNil(t, fb.Err, "fallback keeps the error visible")
}

func TestToolError_Record(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	rec := (&ToolError{Tool: "execute_payment", Attempt: 3, Err: errors.New("gateway down")}).Record(at)
	assert.Equal(t, "execute_payment", rec.Tool)
	assert.Equal(t, "gateway down", rec.Message)
	assert.Equal(t, 3, rec.Attempts)
	assert.Equal(t, at, rec.At)
}
