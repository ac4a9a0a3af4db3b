// Package practice runs the vocabulary practice session: it introduces a word,
// listens to the learner, replies and speaks the reply, then listens again
// until the learner says goodbye.
//
// The [Orchestrator] owns the active word and the conversation history. Stage
// work (listening, replying, speaking) runs on a bounded worker pool, one task
// at a time. Any stage failure is shown on the display, followed by a short
// pause and a restart with a fresh word.
package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/MrWong99/vocabloop/internal/listen"
	"github.com/MrWong99/vocabloop/internal/observe"
	"github.com/MrWong99/vocabloop/internal/session"
)

// ErrStageBusy is returned when a stage is dispatched while another is still
// active. It ends the session.
var ErrStageBusy = errors.New("practice: a stage is already active")

const (
	defaultRetryDelay = 3 * time.Second
	defaultWorkers    = 5

	// errorTextRunes is how much of an error message fits on the word line.
	errorTextRunes = 20
)

// Listener runs one listening turn for the given word.
type Listener interface {
	RunTurn(ctx context.Context, word string) (listen.Outcome, error)
}

// Replier produces the tutor reply for a learner utterance.
type Replier interface {
	Generate(ctx context.Context, h session.History, userText string) (string, session.History, error)
}

// Speaker speaks text and returns once playback has finished.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Display shows the session phase and the word line. Implementations must not
// block.
type Display interface {
	SetPhase(Phase)
	SetWord(text string)
}

type nopDisplay struct{}

func (nopDisplay) SetPhase(Phase)  {}
func (nopDisplay) SetWord(string) {}

// Option configures an [Orchestrator].
type Option func(*Orchestrator)

// WithDisplay sets the display that mirrors the session phase.
func WithDisplay(d Display) Option {
	return func(o *Orchestrator) {
		if d != nil {
			o.display = d
		}
	}
}

// WithRetryDelay sets the pause between a stage failure and the restart.
// Default: 3s.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d >= 0 {
			o.retryDelay = d
		}
	}
}

// WithWorkers sets the stage worker pool capacity. Default: 5.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// WithMetrics sets the metrics sink. Default: [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.metrics = m
		}
	}
}

// WithSessionID sets the session ID used in logs and spans. Default: a random
// UUID.
func WithSessionID(id string) Option {
	return func(o *Orchestrator) {
		if id != "" {
			o.id = id
		}
	}
}

// step is the next phase to enter together with the text it consumes: the
// yielded utterance for Processing, the reply for Speaking.
type step struct {
	phase Phase
	text  string
}

// Orchestrator drives one practice session. Run may be called once.
type Orchestrator struct {
	id       string
	listener Listener
	replier  Replier
	speaker  Speaker
	words    WordPicker
	display  Display
	metrics  *observe.Metrics
	log      *slog.Logger

	retryDelay time.Duration
	workers    int
	pool       *semaphore.Weighted
	alarm      Alarm

	state   session.State
	phase   atomic.Int32
	busy    atomic.Bool
	running atomic.Bool
}

// New creates an Orchestrator over the three stages and a word source.
func New(l Listener, r Replier, s Speaker, words WordPicker, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		id:         uuid.NewString(),
		listener:   l,
		replier:    r,
		speaker:    s,
		words:      words,
		display:    nopDisplay{},
		retryDelay: defaultRetryDelay,
		workers:    defaultWorkers,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.log = slog.Default().With("session_id", o.id)
	if o.metrics == nil {
		o.metrics = observe.DefaultMetrics()
	}
	o.pool = semaphore.NewWeighted(int64(o.workers))
	return o
}

// ID returns the session identifier attached to every log line.
func (o *Orchestrator) ID() string { return o.id }

// Phase returns the current phase.
func (o *Orchestrator) Phase() Phase { return Phase(o.phase.Load()) }

// Snapshot returns the active word and a copy of its conversation history.
func (o *Orchestrator) Snapshot() (string, session.History) { return o.state.Snapshot() }

// RetryNow cuts a pending post-failure pause short. It reports whether a
// pause was pending.
func (o *Orchestrator) RetryNow() bool { return o.alarm.Cancel() }

// Run executes the session until the learner says goodbye (nil), ctx is
// cancelled (the context error) or the stages are miswired ([ErrStageBusy]).
// Stage failures never end the session.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("practice: session already running")
	}
	ctx = observe.WithSession(ctx, o.id)
	o.log.Info("practice session started", "workers", o.workers, "retry_delay", o.retryDelay)

	o.pickWord()
	next := step{phase: PhaseIntroducing}
	for {
		s, err := o.advance(ctx, next)
		switch {
		case err == nil && s.phase == PhaseClosed:
			o.setPhase(PhaseClosed)
			o.log.Info("practice session closed by learner")
			return nil
		case err == nil:
			next = s
			continue
		case ctx.Err() != nil:
			o.setPhase(PhaseClosed)
			o.log.Info("practice session cancelled")
			return ctx.Err()
		case errors.Is(err, ErrStageBusy):
			o.setPhase(PhaseClosed)
			o.log.Error("practice session aborted", "err", err)
			return err
		}

		if rerr := o.recoverFrom(ctx, err); rerr != nil {
			o.setPhase(PhaseClosed)
			o.log.Info("practice session cancelled during recovery")
			return rerr
		}
		next = step{phase: PhaseIntroducing}
	}
}

// advance runs the entry action of s.phase and returns the step that follows.
func (o *Orchestrator) advance(ctx context.Context, s step) (step, error) {
	word := o.state.Word()
	o.setPhase(s.phase)

	switch s.phase {
	case PhaseIntroducing:
		o.display.SetWord("Explain: " + word)
		err := o.dispatch(ctx, "introduce", func(ctx context.Context) error {
			return o.speaker.Speak(ctx, "Explain the meaning of "+word)
		})
		if err != nil {
			return s, err
		}
		return step{phase: PhaseListening}, nil

	case PhaseListening:
		var out listen.Outcome
		err := o.dispatch(ctx, "listen", func(ctx context.Context) error {
			var err error
			out, err = o.listener.RunTurn(ctx, word)
			return err
		})
		if err != nil {
			return s, err
		}
		o.metrics.RecordTurn(ctx, out.Kind.String())
		o.log.Debug("listening turn ended", "outcome", out.Kind, "chars", len(out.Text))
		switch out.Kind {
		case listen.TurnYielded:
			return step{phase: PhaseProcessing, text: out.Text}, nil
		case listen.WordChangeRequested:
			o.pickWord()
			return step{phase: PhaseIntroducing}, nil
		case listen.CloseRequested:
			return step{phase: PhaseClosed}, nil
		default:
			return s, fmt.Errorf("practice: listening ended without a decision (%s)", out.Kind)
		}

	case PhaseProcessing:
		_, h := o.state.Snapshot()
		var (
			text string
			next session.History
		)
		err := o.dispatch(ctx, "reply", func(ctx context.Context) error {
			var err error
			text, next, err = o.replier.Generate(ctx, h, s.text)
			return err
		})
		if err != nil {
			return s, err
		}
		if !o.state.Commit(word, next) {
			o.log.Warn("discarding reply for a word that is no longer active", "word", word)
		}
		return step{phase: PhaseSpeaking, text: text}, nil

	case PhaseSpeaking:
		o.display.SetWord("Responding: " + word)
		err := o.dispatch(ctx, "speak", func(ctx context.Context) error {
			return o.speaker.Speak(ctx, s.text)
		})
		if err != nil {
			return s, err
		}
		return step{phase: PhaseListening}, nil
	}
	return s, fmt.Errorf("practice: no entry action for phase %s", s.phase)
}

// dispatch runs task on the worker pool and waits for its result. Only one
// task may be in flight.
func (o *Orchestrator) dispatch(ctx context.Context, stage string, task func(context.Context) error) error {
	if !o.busy.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: cannot start %s", ErrStageBusy, stage)
	}
	defer o.busy.Store(false)

	if err := o.pool.Acquire(ctx, 1); err != nil {
		return err
	}

	ctx, span := observe.StartSpan(ctx, "practice."+stage)
	defer span.End()

	o.metrics.StagesActive.Add(ctx, 1)
	defer o.metrics.StagesActive.Add(ctx, -1)

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("practice: %s stage panicked: %v", stage, r)
			}
			o.pool.Release(1)
			done <- err
		}()
		err = task(ctx)
	}()
	err := <-done

	o.metrics.RecordStage(ctx, stage, time.Since(start), err)
	if err != nil {
		return observe.Fail(span, stage+" failed", err)
	}
	return nil
}

// recoverFrom shows err on the display, waits out the retry delay and picks a
// new word. It only fails when ctx ends during the wait.
func (o *Orchestrator) recoverFrom(ctx context.Context, err error) error {
	failed := o.Phase()
	o.log.Error("stage failed, restarting with a new word", "phase", failed, "err", err)
	o.metrics.RecordRecovery(ctx, failed.String())

	o.setPhase(PhaseIdle)
	o.display.SetWord(ErrorText(err))

	if werr := o.alarm.Wait(ctx, o.retryDelay); werr != nil && !errors.Is(werr, ErrAlarmCancelled) {
		return werr
	}
	o.pickWord()
	return nil
}

func (o *Orchestrator) pickWord() {
	word := o.words.Pick()
	o.state.Reset(word)
	o.log.Info("new practice word", "word", word)
}

func (o *Orchestrator) setPhase(p Phase) {
	if Phase(o.phase.Swap(int32(p))) == p {
		return
	}
	o.log.Debug("phase changed", "phase", p)
	o.display.SetPhase(p)
}

// ErrorText renders err for the word line: the first 20 characters of the
// message followed by an ellipsis.
func ErrorText(err error) string {
	msg := []rune(err.Error())
	if len(msg) > errorTextRunes {
		msg = msg[:errorTextRunes]
	}
	return "Error: " + string(msg) + "..."
}
