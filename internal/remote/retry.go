package remote

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
)

// Policy controls retries of a single remote operation.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseDelay is the wait before the second attempt; it doubles per attempt.
	BaseDelay time.Duration
	// MaxDelay caps the backoff. Zero means no cap.
	MaxDelay time.Duration
	// AttemptTimeout bounds each attempt. Zero means no per-attempt bound.
	AttemptTimeout time.Duration
	// Sleep waits between attempts. Nil uses a context-aware timer.
	Sleep func(ctx context.Context, d time.Duration) error
}

// DefaultPolicy returns 3 attempts, 1s base delay, 10s cap and a 120s attempt timeout.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       10 * time.Second,
		AttemptTimeout: 120 * time.Second,
	}
}

// Backoff returns the delay to wait after the given failed attempt (1-based).
func (p Policy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			return p.MaxDelay
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		return p.MaxDelay
	}
	return d
}

// Sleep waits for d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
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

// Do runs fn until it succeeds, fails with a non-transient error, or runs out
// of attempts. Every returned error is a *Error. A call that exhausts its
// attempts on transient failures is escalated to ErrProcessingFailed with
// Exhausted set.
func Do[T any](ctx context.Context, p Policy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	maxAttempts := p.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = Sleep
	}

	for attempt := 1; ; attempt++ {
		start := time.Now()
		result, err := runAttempt(ctx, p.AttemptTimeout, fn)
		elapsed := time.Since(start)
		if err == nil {
			log.Debug().
				Str("op", op).
				Int("attempt", attempt).
				Dur("duration", elapsed).
				Msg("Remote call succeeded")
			return result, nil
		}

		if ctx.Err() != nil {
			return zero, &Error{Kind: ErrProcessingFailed, Op: op, Attempts: attempt, Err: ctx.Err()}
		}

		rerr := Classify(op, err)
		rerr.Attempts = attempt
		if !IsRetryable(rerr) {
			return zero, rerr
		}

		if attempt >= maxAttempts {
			log.Warn().
				Str("op", op).
				Int("attempts", attempt).
				Err(err).
				Msg("Remote call failed after exhausting retries")
			return zero, &Error{
				Kind:       ErrProcessingFailed,
				Op:         op,
				StatusCode: rerr.StatusCode,
				Attempts:   attempt,
				Exhausted:  true,
				Err:        rerr.Err,
			}
		}

		delay := p.Backoff(attempt)
		log.Warn().
			Str("op", op).
			Int("attempt", attempt).
			Int("status", rerr.StatusCode).
			Dur("backoff", delay).
			Err(err).
			Msg("Transient remote failure, retrying")

		if err := sleep(ctx, delay); err != nil {
			return zero, &Error{Kind: ErrProcessingFailed, Op: op, Attempts: attempt, Err: err}
		}
	}
}

func runAttempt[T any](ctx context.Context, timeout time.Duration, fn func(ctx context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	result, err := fn(attemptCtx)
	if err != nil && attemptCtx.Err() == context.DeadlineExceeded && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
		err = errors.Join(err, context.DeadlineExceeded)
	}
	return result, err
}
