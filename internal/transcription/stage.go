package transcription

// StageStatus tags how an optional pipeline stage ended
type StageStatus int

const (
	// StageOK means the stage ran and its output replaced the input
	StageOK StageStatus = iota
	// StageDegraded means the stage failed; Value carries the fallback
	StageDegraded
	// StageSkipped means the stage's precondition did not hold
	StageSkipped
)

func (s StageStatus) String() string {
	switch s {
	case StageOK:
		return "ok"
	case StageDegraded:
		return "degraded"
	case StageSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Outcome is the tagged result of one optional stage
type Outcome[T any] struct {
	Value  T
	Status StageStatus
	Reason error
}

// OK wraps a successful stage output
func OK[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v, Status: StageOK}
}

// Degraded wraps the fallback value of a failed stage
func Degraded[T any](v T, reason error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StageDegraded, Reason: reason}
}

// Skipped wraps the pass-through value of a stage that was not run
func Skipped[T any](v T, reason error) Outcome[T] {
	return Outcome[T]{Value: v, Status: StageSkipped, Reason: reason}
}
