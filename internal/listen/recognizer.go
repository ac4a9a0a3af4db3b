package listen

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/vocabloop/pkg/audio"
	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// ErrRecognizerLost is returned by [Recognizer.Feed] when the underlying
// recognition session has gone away. It ends the listening turn.
var ErrRecognizerLost = errors.New("listen: recognizer session lost")

// maxSendFailures is how many consecutive rejected frames are absorbed before
// the session is considered lost.
const maxSendFailures = 5

// EventKind distinguishes interim from committed recognition results.
type EventKind int

const (
	Partial EventKind = iota
	Final
)

// Event is one recognition result produced while feeding audio.
type Event struct {
	Kind EventKind
	Text string
}

// Recognizer turns audio frames into transcript events. A recognizer is
// stateful and serves exactly one listening turn.
type Recognizer interface {
	// Feed delivers one frame and returns at most one event. ok is false when
	// the frame produced nothing new. A non-nil error means the recognizer can
	// no longer be used.
	Feed(ctx context.Context, frame audio.AudioFrame) (ev Event, ok bool, err error)

	// Close releases the recognizer.
	Close() error
}

// StreamRecognizer adapts a streaming [stt.SessionHandle] to [Recognizer].
//
// Finals are returned in the order the provider committed them, one per
// Feed. When no final is pending, the most recent partial is returned if it
// changed since the last Feed.
type StreamRecognizer struct {
	sess stt.SessionHandle
	log  *slog.Logger

	finals       []string
	lastPartial  string
	shownPartial string
	sendFailures int
	partialsDone bool
	finalsDone   bool
}

var _ Recognizer = (*StreamRecognizer)(nil)

// NewStreamRecognizer opens a streaming session on p.
func NewStreamRecognizer(ctx context.Context, p stt.Provider, cfg stt.StreamConfig) (*StreamRecognizer, error) {
	sess, err := p.StartStream(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: start stream: %w", ErrRecognizerLost, err)
	}
	return &StreamRecognizer{
		sess: sess,
		log:  slog.With("component", "recognizer"),
	}, nil
}

// Feed implements [Recognizer].
func (r *StreamRecognizer) Feed(ctx context.Context, frame audio.AudioFrame) (Event, bool, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, false, err
	}

	if err := r.sess.SendAudio(frame.Data); err != nil {
		if errors.Is(err, stt.ErrSessionClosed) {
			return Event{}, false, fmt.Errorf("%w: %w", ErrRecognizerLost, err)
		}
		r.sendFailures++
		if r.sendFailures >= maxSendFailures {
			return Event{}, false, fmt.Errorf("%w: %d frames rejected: %w", ErrRecognizerLost, r.sendFailures, err)
		}
		r.log.Debug("frame rejected by recognizer", "err", err, "consecutive", r.sendFailures)
	} else {
		r.sendFailures = 0
	}

	r.collect()

	if len(r.finals) > 0 {
		text := r.finals[0]
		r.finals = r.finals[1:]
		r.lastPartial, r.shownPartial = "", ""
		return Event{Kind: Final, Text: text}, true, nil
	}
	if r.finalsDone {
		return Event{}, false, ErrRecognizerLost
	}
	if r.lastPartial != "" && r.lastPartial != r.shownPartial {
		r.shownPartial = r.lastPartial
		return Event{Kind: Partial, Text: r.lastPartial}, true, nil
	}
	return Event{}, false, nil
}

// collect moves everything the provider has produced so far into the
// recognizer state without blocking.
func (r *StreamRecognizer) collect() {
	for !r.finalsDone {
		select {
		case t, ok := <-r.sess.Finals():
			if !ok {
				r.finalsDone = true
				continue
			}
			r.finals = append(r.finals, t.Text)
			continue
		default:
		}
		break
	}
	for !r.partialsDone {
		select {
		case t, ok := <-r.sess.Partials():
			if !ok {
				r.partialsDone = true
				continue
			}
			r.lastPartial = t.Text
			continue
		default:
		}
		break
	}
}

// Close implements [Recognizer].
func (r *StreamRecognizer) Close() error {
	return r.sess.Close()
}
