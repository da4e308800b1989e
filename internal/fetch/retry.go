package fetch

import (
	"context"
	"errors"
	"math/rand/v2"
	"time"
)

// Transient failure classes. Source clients wrap their status-code errors
// in these sentinels so the retry wrapper can tell transient from fatal:
// rate limits and server errors are retried, everything else is not.
var (
	ErrRateLimited = errors.New("rate limited")
	ErrServerError = errors.New("server error")
)

// IsTransient reports whether err belongs to a retryable failure class.
func IsTransient(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrServerError)
}

// Policy is an explicit retry-with-backoff policy: bounded attempts,
// exponential delay doubling from BaseDelay up to MaxDelay, with a
// Jitter fraction of each delay randomized to spread retry storms.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64 // 0..1, fraction of the delay randomized
}

// Do invokes op until it succeeds, fails with a non-transient error, or the
// attempt budget is exhausted. It returns the number of attempts made along
// with op's final result. onRetry, if non-nil, is called before each
// backoff sleep.
func Do[T any](ctx context.Context, p Policy, op func(context.Context) (T, error), onRetry func(attempt int, err error)) (T, int, error) {
	var zero T
	delay := p.BaseDelay
	for attempt := 1; ; attempt++ {
		v, err := op(ctx)
		if err == nil {
			return v, attempt, nil
		}
		if !IsTransient(err) || attempt >= p.MaxAttempts {
			return zero, attempt, err
		}
		if onRetry != nil {
			onRetry(attempt, err)
		}
		if !sleepContext(ctx, jittered(delay, p.Jitter)) {
			return zero, attempt, ctx.Err()
		}
		delay = nextDelay(delay, p.MaxDelay)
	}
}

func jittered(d time.Duration, jitter float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	spread := jitter * (2*rand.Float64() - 1) // ±jitter
	return time.Duration(float64(d) * (1 + spread))
}

func nextDelay(current, maxDelay time.Duration) time.Duration {
	next := current * 2
	if maxDelay > 0 && next > maxDelay {
		return maxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
