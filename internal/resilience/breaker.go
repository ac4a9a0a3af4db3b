// Package resilience provides circuit breaker and provider failover primitives.
//
// A [Breaker] stops calling a provider after repeated failures and lets a
// single probe through once its cooldown has passed. [FallbackGroup] gives
// every provider of one kind its own breaker and tries them in order.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned by [Breaker.Execute] while the breaker rejects
// calls.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota
	// StateOpen rejects calls until the cooldown has passed.
	StateOpen
	// StateProbing lets exactly one call through to decide between closed and
	// open.
	StateProbing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker].
type BreakerConfig struct {
	// Name labels log lines and trip callbacks.
	Name string

	// Threshold is the number of consecutive failures that opens the breaker.
	// Default: 5.
	Threshold int

	// Cooldown is how long the breaker stays open before probing. Default: 30s.
	Cooldown time.Duration

	// OnTrip, if set, is called each time the breaker opens.
	OnTrip func(name string)
}

// Breaker is a consecutive-failure circuit breaker. Cancelled calls do not
// count as failures. Safe for concurrent use.
type Breaker struct {
	cfg BreakerConfig
	now func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
}

// NewBreaker returns a closed [Breaker]. Zero config fields get defaults.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.Threshold <= 0 {
		cfg.Threshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	return &Breaker{cfg: cfg, now: time.Now}
}

// Execute calls fn unless the breaker is open or a probe is already running,
// in which case it returns [ErrCircuitOpen].
func (b *Breaker) Execute(fn func() error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}
	err = fn()
	b.settle(probe, err)
	return err
}

func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cfg.Cooldown {
			return false, ErrCircuitOpen
		}
		b.state = StateProbing
		slog.Info("circuit breaker probing", "name", b.cfg.Name)
		return true, nil
	case StateProbing:
		return false, ErrCircuitOpen
	}
	return false, nil
}

func (b *Breaker) settle(probe bool, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if probe {
			b.mu.Lock()
			b.state = StateOpen
			b.mu.Unlock()
		}
		return
	}

	b.mu.Lock()
	if err == nil {
		if probe {
			slog.Info("circuit breaker closed", "name", b.cfg.Name)
		}
		b.state = StateClosed
		b.failures = 0
		b.mu.Unlock()
		return
	}

	b.failures++
	tripped := probe || (b.state == StateClosed && b.failures >= b.cfg.Threshold)
	if tripped {
		b.state = StateOpen
		b.openedAt = b.now()
	}
	failures := b.failures
	b.mu.Unlock()

	if tripped {
		slog.Warn("circuit breaker opened", "name", b.cfg.Name, "consecutive_failures", failures)
		if b.cfg.OnTrip != nil {
			b.cfg.OnTrip(b.cfg.Name)
		}
	}
}

// State reports the current mode. An open breaker whose cooldown has passed
// reports [StateProbing]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cfg.Cooldown {
		return StateProbing
	}
	return b.state
}

// Reset closes the breaker and clears the failure count.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = StateClosed
	b.failures = 0
}
