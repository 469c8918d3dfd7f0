// Package resilience provides the failure-handling primitives shared by the
// node pool, the voice-join negotiator and the search path.
//
// [Breaker] is a three-state circuit breaker (closed → open → half-open) kept
// per remote audio node. [Retry] runs an operation a bounded number of times
// with linearly growing backoff. [Failover] walks an ordered list of
// candidates, skipping those whose breaker is open.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrCircuitOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a single probe through. Success closes the breaker,
	// failure re-opens it.
	StateHalfOpen
)

// String returns the human-readable name of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

const (
	defaultThreshold = 5
	defaultCooldown  = 30 * time.Second
)

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithThreshold sets the number of consecutive failures that open the
// breaker. Values < 1 are ignored.
func WithThreshold(n int) BreakerOption {
	return func(b *Breaker) {
		if n > 0 {
			b.threshold = n
		}
	}
}

// WithCooldown sets how long the breaker stays open before allowing a probe.
func WithCooldown(d time.Duration) BreakerOption {
	return func(b *Breaker) {
		if d > 0 {
			b.cooldown = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// WithStateHook registers fn to be called after every state transition. fn
// runs outside the breaker lock.
func WithStateHook(fn func(name string, from, to State)) BreakerOption {
	return func(b *Breaker) { b.onChange = fn }
}

// Breaker guards calls to one remote dependency.
type Breaker struct {
	name      string
	threshold int
	cooldown  time.Duration
	now       func() time.Time
	onChange  func(name string, from, to State)

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// NewBreaker returns a closed breaker labelled name.
func NewBreaker(name string, opts ...BreakerOption) *Breaker {
	b := &Breaker{
		name:      name,
		threshold: defaultThreshold,
		cooldown:  defaultCooldown,
		now:       time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the breaker label.
func (b *Breaker) Name() string { return b.name }

// State returns the effective state. An open breaker whose cooldown elapsed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Allow reports whether a call would currently be let through, without
// reserving the half-open probe.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	switch b.state {
	case StateOpen:
		return b.now().Sub(b.openedAt) >= b.cooldown
	case StateHalfOpen:
		return !b.probing
	default:
		return true
	}
}

type canceledError struct{ err error }

func (c canceledError) Error() string { return c.err.Error() }
func (c canceledError) Unwrap() error { return c.err }

// Canceled marks err as the caller giving up rather than the dependency
// failing. [Breaker.Do] records nothing for it and [Failover] stops at it.
func Canceled(err error) error {
	if err == nil {
		return nil
	}
	return canceledError{err: err}
}

// IsCanceled reports whether err was marked with [Canceled].
func IsCanceled(err error) bool {
	var c canceledError
	return errors.As(err, &c)
}

// Do runs fn if the breaker permits it and records the outcome. It returns
// [ErrCircuitOpen] without calling fn otherwise. A [Canceled] error counts
// neither as success nor as failure.
func (b *Breaker) Do(fn func() error) error {
	probe, ok := b.acquire()
	if !ok {
		return ErrCircuitOpen
	}
	err := fn()
	if IsCanceled(err) {
		b.release(probe)
		return err
	}
	b.record(probe, err == nil)
	return err
}

// release gives back a half-open probe slot without changing state.
func (b *Breaker) release(probe bool) {
	if !probe {
		return
	}
	b.mu.Lock()
	b.probing = false
	b.mu.Unlock()
}

func (b *Breaker) acquire() (probe, ok bool) {
	b.mu.Lock()
	var from, to State
	changed := false
	defer func() {
		b.mu.Unlock()
		if changed {
			b.notify(from, to)
		}
	}()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, false
		}
		from, to, changed = StateOpen, StateHalfOpen, true
		b.state = StateHalfOpen
		b.probing = true
		return true, true
	case StateHalfOpen:
		if b.probing {
			return false, false
		}
		b.probing = true
		return true, true
	default:
		return false, true
	}
}

func (b *Breaker) record(probe, success bool) {
	b.mu.Lock()
	from := b.state
	if probe {
		b.probing = false
	}
	switch {
	case success:
		b.failures = 0
		b.state = StateClosed
	case probe:
		b.state = StateOpen
		b.openedAt = b.now()
	default:
		b.failures++
		if b.failures >= b.threshold && b.state == StateClosed {
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	to := b.state
	failures := b.failures
	b.mu.Unlock()

	if from != to {
		if to == StateOpen {
			slog.Warn("resilience: breaker opened", "name", b.name, "consecutive_failures", failures)
		}
		b.notify(from, to)
	}
}

func (b *Breaker) notify(from, to State) {
	if from != to && b.onChange != nil {
		b.onChange(b.name, from, to)
	}
}

// Reset forces the breaker closed and clears its counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	from := b.state
	b.state = StateClosed
	b.failures = 0
	b.probing = false
	b.mu.Unlock()
	b.notify(from, StateClosed)
}
