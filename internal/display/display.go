// Package display renders the practice session for the learner.
//
// [TUI] draws a terminal bubble with a phase indicator, the word line, the
// live partial transcript and how much has been heard so far. [Log] writes the
// same updates to the structured log for headless runs. Both satisfy
// practice.Display and listen.Progress and never block the caller.
package display

import (
	"log/slog"

	"github.com/MrWong99/vocabloop/internal/listen"
	"github.com/MrWong99/vocabloop/internal/practice"
)

var (
	_ practice.Display = (*TUI)(nil)
	_ listen.Progress  = (*TUI)(nil)
	_ practice.Display = (*Log)(nil)
	_ listen.Progress  = (*Log)(nil)
)

// Log reports display updates through slog.
type Log struct {
	log *slog.Logger
}

// NewLog returns a Log writing to l, or to the default logger when l is nil.
func NewLog(l *slog.Logger) *Log {
	if l == nil {
		l = slog.Default()
	}
	return &Log{log: l.With("component", "display")}
}

func (d *Log) SetPhase(p practice.Phase) { d.log.Info("phase", "phase", p) }

func (d *Log) SetWord(text string) { d.log.Info("word line", "text", text) }

func (d *Log) Partial(text string) { d.log.Debug("hearing", "partial", text) }

func (d *Log) Utterance(length int) { d.log.Debug("utterance grew", "chars", length) }
