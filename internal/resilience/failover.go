package resilience

import (
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned by [Failover] when every candidate failed or was
// skipped.
var ErrAllFailed = errors.New("resilience: all candidates failed")

// Candidate pairs a value with the breaker guarding it. A nil Breaker never
// trips.
type Candidate[T any] struct {
	Name    string
	Value   T
	Breaker *Breaker
}

// Failover calls fn on each candidate in order and returns the first success
// together with the name of the candidate that produced it. Candidates whose
// breaker is open are skipped. A [Canceled] error ends the walk and is
// returned as is. When nothing succeeds the error wraps [ErrAllFailed] and
// the last failure.
func Failover[T, R any](candidates []Candidate[T], fn func(T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for _, c := range candidates {
		var res R
		call := func() error {
			var err error
			res, err = fn(c.Value)
			return err
		}
		var err error
		if c.Breaker != nil {
			err = c.Breaker.Do(call)
		} else {
			err = call()
		}
		if err == nil {
			return res, c.Name, nil
		}
		if IsCanceled(err) {
			return zero, "", err
		}
		lastErr = err
		if errors.Is(err, ErrCircuitOpen) {
			slog.Debug("resilience: skipping candidate, circuit open", "candidate", c.Name)
			continue
		}
		slog.Warn("resilience: candidate failed, trying next", "candidate", c.Name, "err", err)
	}
	if lastErr == nil {
		return zero, "", ErrAllFailed
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
