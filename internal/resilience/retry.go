package resilience

import (
	"context"
	"errors"
	"time"
)

// RetryPolicy bounds a [Retry] loop.
type RetryPolicy struct {
	// Attempts is the maximum number of calls. Values < 1 mean one call.
	Attempts int

	// Backoff is the base delay. The wait after attempt n (1-based) is
	// n × Backoff, so delays grow linearly.
	Backoff time.Duration

	// AttemptTimeout bounds each call on its own. A call that runs out of
	// time counts as one failed attempt and the loop goes on while the outer
	// ctx allows. Zero leaves calls bounded by the outer ctx only.
	AttemptTimeout time.Duration

	// Sleep waits for d or until ctx is done. Nil uses a timer; tests replace
	// it to avoid real waits.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Delay returns the wait that follows the given 1-based attempt.
func (p RetryPolicy) Delay(attempt int) time.Duration {
	return time.Duration(attempt) * p.Backoff
}

type permanentError struct{ err error }

func (p permanentError) Error() string { return p.err.Error() }
func (p permanentError) Unwrap() error { return p.err }

// Permanent marks err as not worth retrying. [Retry] returns it unwrapped.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// Retry calls fn until it succeeds, returns a [Permanent] error, ctx is done
// or the attempt budget is exhausted. fn receives the 1-based attempt number.
// The returned count is the number of calls made; err is the last failure.
func Retry(ctx context.Context, p RetryPolicy, fn func(ctx context.Context, attempt int) error) (int, error) {
	attempts := max(p.Attempts, 1)
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = p.call(ctx, attempt, fn)
		if err == nil {
			return attempt, nil
		}
		var perm permanentError
		if errors.As(err, &perm) {
			return attempt, perm.err
		}
		if attempt == attempts {
			return attempt, err
		}
		if serr := sleep(ctx, p.Delay(attempt)); serr != nil {
			return attempt, err
		}
	}
	return attempts, err
}

func (p RetryPolicy) call(ctx context.Context, attempt int, fn func(ctx context.Context, attempt int) error) error {
	if p.AttemptTimeout <= 0 {
		return fn(ctx, attempt)
	}
	actx, cancel := context.WithTimeout(ctx, p.AttemptTimeout)
	defer cancel()
	return fn(actx, attempt)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
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
