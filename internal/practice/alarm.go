package practice

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrAlarmCancelled is returned by [Alarm.Wait] when [Alarm.Cancel] ends the
// wait early.
var ErrAlarmCancelled = errors.New("practice: alarm cancelled")

// Alarm is a one-shot delay that can be cut short from another goroutine.
// Only one Wait may be pending at a time.
type Alarm struct {
	mu      sync.Mutex
	pending chan struct{}
}

// Wait blocks for d. It returns nil when the delay elapses,
// [ErrAlarmCancelled] after [Alarm.Cancel], or the context error.
func (a *Alarm) Wait(ctx context.Context, d time.Duration) error {
	cancelled := make(chan struct{})
	a.mu.Lock()
	a.pending = cancelled
	a.mu.Unlock()
	defer func() {
		a.mu.Lock()
		if a.pending == cancelled {
			a.pending = nil
		}
		a.mu.Unlock()
	}()

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-cancelled:
		return ErrAlarmCancelled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Cancel ends a pending Wait. It reports whether one was pending.
func (a *Alarm) Cancel() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.pending == nil {
		return false
	}
	close(a.pending)
	a.pending = nil
	return true
}

// Pending reports whether a Wait is in progress.
func (a *Alarm) Pending() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.pending != nil
}
