package redis

import (
	"errors"
	"sync"
	"time"
)

// BreakerState is the circuit state of the store's write path.
type BreakerState int

const (
	BreakerClosed   BreakerState = 0 // normal operation
	BreakerOpen     BreakerState = 1 // tripped, calls rejected immediately
	BreakerHalfOpen BreakerState = 2 // one probe call allowed through
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrBreakerOpen is returned while the breaker rejects calls.
var ErrBreakerOpen = errors.New("redis breaker is open")

// Breaker guards the account-store write path against a flapping Redis.
// After maxFailures consecutive failures it opens and rejects writes for
// resetTimeout, then lets one probe through: probe success closes it, probe
// failure reopens it. Reads bypass the breaker; a stale read is preferable
// to refusing signal processing outright.
type Breaker struct {
	mu           sync.Mutex
	state        BreakerState
	failures     int
	maxFailures  int
	resetTimeout time.Duration
	lastFailure  time.Time
}

// NewBreaker creates a closed breaker.
func NewBreaker(maxFailures int, resetTimeout time.Duration) *Breaker {
	return &Breaker{maxFailures: maxFailures, resetTimeout: resetTimeout, state: BreakerClosed}
}

// Do runs fn unless the breaker is open.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	if b.state == BreakerOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = BreakerHalfOpen
		} else {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.failures++
		b.lastFailure = time.Now()
		if b.state == BreakerHalfOpen || b.failures >= b.maxFailures {
			b.state = BreakerOpen
		}
		return err
	}
	b.state = BreakerClosed
	b.failures = 0
	return nil
}

// State returns the current breaker state.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
