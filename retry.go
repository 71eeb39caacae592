package llmcore

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/xraph/llmcore/llm"
)

// RetryOptions controls the generic backoff-retry wrapper.
type RetryOptions struct {
	// MaxAttempts is the total number of invocations, first try
	// included.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64

	// Jitter is the random fraction applied to each delay (0.1 means
	// ±10%). Zero disables jitter.
	Jitter float64

	// RetryIf decides whether an error is worth another attempt.
	// Defaults to llm.IsRetryable.
	RetryIf func(error) bool
}

// DefaultRetryOptions returns 3 attempts with 1s→60s exponential
// backoff, multiplier 2 and 10% jitter.
func DefaultRetryOptions() RetryOptions {
	return RetryOptions{
		MaxAttempts:  3,
		InitialDelay: time.Second,
		MaxDelay:     60 * time.Second,
		Multiplier:   2.0,
		Jitter:       0.1,
	}
}

// delay computes the backoff before attempt n+1 (0-based n).
func (o RetryOptions) delay(attempt int) time.Duration {
	d := float64(o.InitialDelay) * math.Pow(o.Multiplier, float64(attempt))
	if o.MaxDelay > 0 && d > float64(o.MaxDelay) {
		d = float64(o.MaxDelay)
	}
	if o.Jitter > 0 {
		d += d * o.Jitter * (2*rand.Float64() - 1)
	}
	if d < 0 {
		d = 0
	}
	return time.Duration(d)
}

// Retry invokes op until it succeeds, a non-retryable error occurs, the
// attempt budget is spent, or ctx is done. op must capture fresh copies
// of anything not reusable across attempts (request bodies in
// particular).
//
// This wrapper is orthogonal to the executor's one-shot 401 retry: each
// attempt here may internally perform its own credential-refresh retry.
func Retry[T any](ctx context.Context, opts RetryOptions, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 1
	}
	retryIf := opts.RetryIf
	if retryIf == nil {
		retryIf = llm.IsRetryable
	}

	var lastErr error
	for attempt := 0; attempt < opts.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if !retryIf(err) {
			return zero, err
		}
		if attempt == opts.MaxAttempts-1 {
			break
		}
		timer := time.NewTimer(opts.delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	if lastErr == nil {
		return zero, llm.NewInternalError("retry finished without an error or a result")
	}
	return zero, lastErr
}
