package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

var errTest = errors.New("test error")

// fakeClock is advanced by hand so cooldowns never sleep.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(cfg BreakerConfig) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	b := NewBreaker(cfg)
	b.now = clock.now
	return b, clock
}

func fail() error    { return errTest }
func succeed() error { return nil }

func TestNewBreaker_Defaults(t *testing.T) {
	t.Parallel()

	b := NewBreaker(BreakerConfig{Name: "llm"})
	if b.cfg.Threshold != 5 || b.cfg.Cooldown != 30*time.Second {
		t.Errorf("defaults = %d, %v", b.cfg.Threshold, b.cfg.Cooldown)
	}
	if b.State() != StateClosed {
		t.Errorf("initial state = %v", b.State())
	}
}

func TestBreaker_Transitions(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		run   func(b *Breaker, clock *fakeClock)
		want  State
		trips int
	}{
		{
			name: "below threshold stays closed",
			run: func(b *Breaker, _ *fakeClock) {
				_ = b.Execute(fail)
				_ = b.Execute(fail)
			},
			want: StateClosed,
		},
		{
			name: "success resets the count",
			run: func(b *Breaker, _ *fakeClock) {
				_ = b.Execute(fail)
				_ = b.Execute(fail)
				_ = b.Execute(succeed)
				_ = b.Execute(fail)
				_ = b.Execute(fail)
			},
			want: StateClosed,
		},
		{
			name: "threshold opens",
			run: func(b *Breaker, _ *fakeClock) {
				for range 3 {
					_ = b.Execute(fail)
				}
			},
			want:  StateOpen,
			trips: 1,
		},
		{
			name: "cooldown allows a probe",
			run: func(b *Breaker, clock *fakeClock) {
				for range 3 {
					_ = b.Execute(fail)
				}
				clock.advance(time.Minute)
			},
			want:  StateProbing,
			trips: 1,
		},
		{
			name: "successful probe closes",
			run: func(b *Breaker, clock *fakeClock) {
				for range 3 {
					_ = b.Execute(fail)
				}
				clock.advance(time.Minute)
				_ = b.Execute(succeed)
			},
			want:  StateClosed,
			trips: 1,
		},
		{
			name: "failed probe reopens",
			run: func(b *Breaker, clock *fakeClock) {
				for range 3 {
					_ = b.Execute(fail)
				}
				clock.advance(time.Minute)
				_ = b.Execute(fail)
			},
			want:  StateOpen,
			trips: 2,
		},
		{
			name: "cancellation is not a failure",
			run: func(b *Breaker, _ *fakeClock) {
				for range 5 {
					_ = b.Execute(func() error { return context.Canceled })
				}
			},
			want: StateClosed,
		},
		{
			name: "reset closes",
			run: func(b *Breaker, _ *fakeClock) {
				for range 3 {
					_ = b.Execute(fail)
				}
				b.Reset()
			},
			want:  StateClosed,
			trips: 1,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var mu sync.Mutex
			trips := 0
			b, clock := newTestBreaker(BreakerConfig{
				Name:      "stt",
				Threshold: 3,
				Cooldown:  30 * time.Second,
				OnTrip: func(name string) {
					if name != "stt" {
						t.Errorf("OnTrip name = %q", name)
					}
					mu.Lock()
					trips++
					mu.Unlock()
				},
			})
			tc.run(b, clock)

			if got := b.State(); got != tc.want {
				t.Errorf("state = %v, want %v", got, tc.want)
			}
			mu.Lock()
			defer mu.Unlock()
			if trips != tc.trips {
				t.Errorf("trips = %d, want %d", trips, tc.trips)
			}
		})
	}
}

func TestBreaker_OpenRejectsWithoutCalling(t *testing.T) {
	t.Parallel()

	b, _ := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Hour})
	_ = b.Execute(fail)

	called := false
	err := b.Execute(func() error { called = true; return nil })
	if !errors.Is(err, ErrCircuitOpen) || called {
		t.Errorf("err = %v, called = %v", err, called)
	}
}

func TestBreaker_SingleProbe(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	clock.advance(2 * time.Second)

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Execute(func() error {
			close(entered)
			<-release
			return nil
		})
	}()
	<-entered

	if err := b.Execute(succeed); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("second call during probe: err = %v, want ErrCircuitOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Fatalf("probe: %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("state = %v after probe", b.State())
	}
}

func TestBreaker_CancelledProbeStaysOpen(t *testing.T) {
	t.Parallel()

	b, clock := newTestBreaker(BreakerConfig{Threshold: 1, Cooldown: time.Second})
	_ = b.Execute(fail)
	clock.advance(2 * time.Second)
	_ = b.Execute(func() error { return context.DeadlineExceeded })

	// The cooldown is measured from the original trip, so the next call probes again.
	if b.State() != StateProbing {
		t.Errorf("state = %v, want probing", b.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()

	for s, want := range map[State]string{StateClosed: "closed", StateOpen: "open", StateProbing: "probing", State(9): "unknown"} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
