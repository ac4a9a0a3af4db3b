// Package listen runs one listening turn: it drives audio capture through a
// recognizer, watches the finalized transcript for control phrases and
// accumulates everything else into the learner's utterance.
package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/MrWong99/vocabloop/internal/transcript"
	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// ErrCapture wraps failures of the audio capture pipeline.
var ErrCapture = errors.New("listen: capture failed")

// Outcome is the terminal decision of a listening turn.
type Outcome struct {
	Kind OutcomeKind

	// Text is the accumulated utterance: every finalized segment followed by
	// one space, plus the words spoken before the control phrase. Control
	// phrases themselves are never part of it.
	Text string
}

// FrameSource is the capture side of a turn. [*audio.Source] implements it.
type FrameSource interface {
	Start() error
	Next(ctx context.Context) (audio.AudioFrame, error)
	Stop() error
}

// RecognizerFactory opens a recognizer for one turn. word is the vocabulary
// word being practised and may be used as a recognition hint.
type RecognizerFactory func(ctx context.Context, word string) (Recognizer, error)

// ProviderRecognizers returns a RecognizerFactory that opens a streaming
// session on p for every turn, boosting the practice word.
func ProviderRecognizers(p stt.Provider, format audio.Format, language string) RecognizerFactory {
	return func(ctx context.Context, word string) (Recognizer, error) {
		cfg := stt.StreamConfig{
			SampleRate: format.SampleRate,
			Channels:   format.Channels,
			Language:   language,
		}
		if word != "" {
			cfg.Keywords = []stt.KeywordBoost{{Keyword: word, Boost: 2}}
		}
		return NewStreamRecognizer(ctx, p, cfg)
	}
}

// Progress receives display-only updates while a turn is running. Calls must
// not block.
type Progress interface {
	// Partial reports the latest interim transcript.
	Partial(text string)

	// Utterance reports the length in characters of the accumulated
	// utterance after a segment was appended.
	Utterance(length int)
}

type nopProgress struct{}

func (nopProgress) Partial(string) {}
func (nopProgress) Utterance(int)  {}

// Recorder stores the audio of a listening turn.
type Recorder interface {
	StartTurn(word string) (TurnRecording, error)
}

// TurnRecording receives the frames of one turn.
type TurnRecording interface {
	Add(frame audio.AudioFrame) error
	Close() error
}

// Option configures a [Controller].
type Option func(*Controller)

// WithProgress sets the display sink for partials and utterance length.
func WithProgress(p Progress) Option {
	return func(c *Controller) {
		if p != nil {
			c.progress = p
		}
	}
}

// WithPhraseMatcher replaces the default control phrase matcher.
func WithPhraseMatcher(m *PhraseMatcher) Option {
	return func(c *Controller) {
		if m != nil {
			c.matcher = m
		}
	}
}

// WithCorrector corrects appended text toward the practice word.
func WithCorrector(tc *transcript.Corrector) Option {
	return func(c *Controller) { c.corrector = tc }
}

// WithRecorder records the audio of every turn.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithFrameHook is called for every frame pulled from the source.
func WithFrameHook(fn func()) Option {
	return func(c *Controller) { c.onFrame = fn }
}

// Controller runs listening turns. A Controller runs one turn at a time.
type Controller struct {
	source     FrameSource
	recognizer RecognizerFactory
	matcher    *PhraseMatcher
	corrector  *transcript.Corrector
	recorder   Recorder
	progress   Progress
	onFrame    func()
}

// NewController creates a Controller reading from source and recognizing with
// recognizers.
func NewController(source FrameSource, recognizers RecognizerFactory, opts ...Option) *Controller {
	c := &Controller{
		source:     source,
		recognizer: recognizers,
		matcher:    NewPhraseMatcher(),
		progress:   nopProgress{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// RunTurn captures and recognizes audio until the learner yields the turn,
// asks for a new word or says goodbye.
//
// Capture is started on entry and stopped on every return path. Partials are
// only reported to the progress sink. Each non-empty final is tested for
// control phrases with yield taking precedence over word change, and word
// change over close; a final without a control phrase is appended to the
// utterance followed by one space. Capture failures return an error wrapping
// [ErrCapture]; recognizer loss returns one wrapping [ErrRecognizerLost];
// cancellation returns ctx.Err().
func (c *Controller) RunTurn(ctx context.Context, word string) (Outcome, error) {
	log := slog.With("component", "listen", "word", word)

	rec, err := c.recognizer(ctx, word)
	if err != nil {
		return Outcome{}, err
	}
	defer func() {
		if cerr := rec.Close(); cerr != nil {
			log.Debug("close recognizer", "err", cerr)
		}
	}()

	if err := c.source.Start(); err != nil {
		return Outcome{}, fmt.Errorf("%w: %w", ErrCapture, err)
	}
	defer func() {
		if serr := c.source.Stop(); serr != nil {
			log.Warn("stop capture", "err", serr)
		}
	}()

	recording := c.startRecording(log, word)
	defer func() {
		if recording == nil {
			return
		}
		if rerr := recording.Close(); rerr != nil {
			log.Warn("close turn recording", "err", rerr)
		}
	}()

	var vocabulary []string
	if word != "" {
		vocabulary = []string{word}
	}

	var utterance strings.Builder
	for {
		frame, err := c.source.Next(ctx)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			return Outcome{}, fmt.Errorf("%w: %w", ErrCapture, err)
		}
		if c.onFrame != nil {
			c.onFrame()
		}
		if recording != nil {
			if rerr := recording.Add(frame); rerr != nil {
				log.Warn("turn recording failed, disabling it", "err", rerr)
				_ = recording.Close()
				recording = nil
			}
		}

		ev, ok, err := rec.Feed(ctx, frame)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return Outcome{}, ctxErr
			}
			return Outcome{}, err
		}
		if !ok {
			continue
		}

		if ev.Kind == Partial {
			c.progress.Partial(ev.Text)
			continue
		}

		text := strings.TrimSpace(ev.Text)
		if text == "" {
			continue
		}

		if m, found := c.matcher.Match(text); found {
			log.Debug("control phrase", "kind", m.Kind, "phrase", m.Phrase)
			if m.Kind == TurnYielded && m.Prefix != "" {
				c.appendSegment(&utterance, m.Prefix, vocabulary, log)
			}
			return Outcome{Kind: m.Kind, Text: utterance.String()}, nil
		}

		c.appendSegment(&utterance, text, vocabulary, log)
	}
}

func (c *Controller) appendSegment(b *strings.Builder, text string, vocabulary []string, log *slog.Logger) {
	if c.corrector != nil {
		res := c.corrector.Correct(text, vocabulary)
		for _, fix := range res.Corrections {
			log.Info("corrected transcript", "heard", fix.Original, "as", fix.Corrected, "score", fix.Score)
		}
		text = res.Text
	}
	b.WriteString(text)
	b.WriteByte(' ')
	c.progress.Utterance(utf8.RuneCountInString(b.String()))
}

func (c *Controller) startRecording(log *slog.Logger, word string) TurnRecording {
	if c.recorder == nil {
		return nil
	}
	r, err := c.recorder.StartTurn(word)
	if err != nil {
		log.Warn("turn recording unavailable", "err", err)
		return nil
	}
	return r
}
