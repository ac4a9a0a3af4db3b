package practice

// Phase is the externally visible state of a practice session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseIntroducing
	PhaseListening
	PhaseProcessing
	PhaseSpeaking
	PhaseClosed
)

// String returns the lower-case phase name used in logs and metrics.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseIntroducing:
		return "introducing"
	case PhaseListening:
		return "listening"
	case PhaseProcessing:
		return "processing"
	case PhaseSpeaking:
		return "speaking"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}
