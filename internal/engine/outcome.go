package engine

import "time"

// OutcomeKind tags the variant of an execution outcome.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRuntimeFailure
	OutcomeTimeout
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRuntimeFailure:
		return "error"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Outcome is the structured result of one execution. Exactly one variant
// is populated per submission: Stdout for success, PartialStdout and
// ErrorTrace for a runtime failure, neither for a timeout.
type Outcome struct {
	Kind          OutcomeKind
	Stdout        string
	PartialStdout string
	ErrorTrace    string
	Elapsed       time.Duration
}

// Output returns whatever stdout the execution produced, regardless of
// variant.
func (o Outcome) Output() string {
	if o.Kind == OutcomeRuntimeFailure {
		return o.PartialStdout
	}
	return o.Stdout
}
