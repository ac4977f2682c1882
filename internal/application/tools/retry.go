// Package tools wraps the ERP and payment ports as typed tool calls with
// retry, backoff and per-tool fallback.
package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/invoice-reconciler/internal/domain/entity"
)

// BackoffFunc returns the wait before the given retry (attempt starts at 1)
type BackoffFunc func(attempt int) time.Duration

// SleepFunc waits for d or until ctx is done
type SleepFunc func(ctx context.Context, d time.Duration) error

// Constant waits the same delay before every retry
func Constant(delay time.Duration) BackoffFunc {
	return func(int) time.Duration { return delay }
}

// Exponential doubles the delay on every retry, capped at max
func Exponential(initial, max time.Duration) BackoffFunc {
	return func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		d := initial
		for i := 1; i < attempt; i++ {
			d *= 2
			if max > 0 && d >= max {
				return max
			}
		}
		if max > 0 && d > max {
			return max
		}
		return d
	}
}

// ContextSleep is the default SleepFunc
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// RetryPolicy controls how a tool call is retried
type RetryPolicy struct {
	MaxAttempts int
	Backoff     BackoffFunc
	Sleep       SleepFunc
}

// DefaultRetryPolicy is three attempts with exponential backoff from 200ms to 2s
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		Backoff:     Exponential(200*time.Millisecond, 2*time.Second),
		Sleep:       ContextSleep,
	}
}

func (p RetryPolicy) attempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff == nil {
		return ctx.Err()
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = ContextSleep
	}
	return sleep(ctx, p.Backoff(attempt))
}

// ToolError is the last failure of a tool invocation
type ToolError struct {
	Tool    string
	Attempt int
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("tool %s failed on attempt %d: %v", e.Tool, e.Attempt, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Record converts the error into the form stored on thread state
func (e *ToolError) Record(at time.Time) *entity.ToolErrorRecord {
	return &entity.ToolErrorRecord{
		Tool:     e.Tool,
		Message:  e.Err.Error(),
		Attempts: e.Attempt,
		At:       at,
	}
}

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, was marked Permanent
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Outcome is the result of a tool invocation after retries and fallback.
// Err is set whenever the underlying call never succeeded, even if a
// fallback value was substituted.
type Outcome[T any] struct {
	Value        T
	Attempts     int
	Failures     int
	Err          *ToolError
	UsedFallback bool
}

// OK reports whether the call eventually succeeded
func (o Outcome[T]) OK() bool {
	return o.Err == nil
}

// Call runs fn under policy. On exhaustion it returns the zero value with Err set.
func Call[T any](ctx context.Context, policy RetryPolicy, logger *zap.Logger, tool string, fn func(ctx context.Context) (T, error)) Outcome[T] {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out Outcome[T]
	max := policy.attempts()

	for attempt := 1; attempt <= max; attempt++ {
		out.Attempts = attempt

		value, err := fn(ctx)
		if err == nil {
			out.Value = value
			out.Err = nil
			return out
		}

		out.Failures++
		out.Err = &ToolError{Tool: tool, Attempt: attempt, Err: err}

		if IsPermanent(err) {
			logger.Warn("Tool failed with permanent error, not retrying",
				zap.String("tool", tool),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return out
		}

		if attempt == max {
			break
		}

		logger.Warn("Tool call failed, retrying",
			zap.String("tool", tool),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", max),
			zap.Error(err))

		if werr := policy.wait(ctx, attempt); werr != nil {
			out.Err = &ToolError{Tool: tool, Attempt: attempt, Err: fmt.Errorf("retry aborted: %w", werr)}
			return out
		}
	}

	logger.Error("Tool failed after retries",
		zap.String("tool", tool),
		zap.Int("attempts", out.Attempts),
		zap.Error(out.Err.Err))
	return out
}

// WithFallback substitutes value when the call never succeeded
func WithFallback[T any](out Outcome[T], value T) Outcome[T] {
	if out.OK() {
		return out
	}
	out.Value = value
	out.UsedFallback = true
	return out
}
