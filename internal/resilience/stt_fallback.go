package resilience

import (
	"context"
	"errors"
	"log/slog"

	"github.com/MrWong99/vocabloop/pkg/provider/stt"
)

// errNoSession is reported when a recognizer returns neither a session nor an
// error.
var errNoSession = errors.New("recognizer returned no session")

// STTFallback opens recognition sessions on the first healthy recognizer.
// Only opening a session fails over: a session that breaks during a turn is
// reported by the session itself and the next turn starts over with the
// primary.
type STTFallback struct {
	group *FallbackGroup[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback wraps primary. Further recognizers are added with
// [STTFallback.AddFallback].
func NewSTTFallback(primary stt.Provider, primaryName string, cfg FallbackConfig) *STTFallback {
	return &STTFallback{group: NewFallbackGroup(primary, primaryName, cfg)}
}

// AddFallback appends a recognizer tried after the ones already added.
func (f *STTFallback) AddFallback(name string, provider stt.Provider) {
	f.group.AddFallback(name, provider)
}

// StartStream implements [stt.Provider].
func (f *STTFallback) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	return ExecuteWithResult(f.group, func(p stt.Provider) (stt.SessionHandle, error) {
		h, err := p.StartStream(ctx, cfg)
		if err == nil && h == nil {
			return nil, errNoSession
		}
		if err == nil {
			slog.Debug("recognition session opened", "language", cfg.Language, "keywords", len(cfg.Keywords))
		}
		return h, err
	})
}
