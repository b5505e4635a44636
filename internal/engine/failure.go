package engine

import "fmt"

// FailureKind classifies an exhausted retry ceiling.
type FailureKind int

const (
	FailureAudit FailureKind = iota // Audit chain or final audit gave up
	FailureTest                     // Test-run family gave up
)

// String returns the canonical name used in persisted records and messages.
func (k FailureKind) String() string {
	switch k {
	case FailureAudit:
		return "audit"
	case FailureTest:
		return "test"
	default:
		return fmt.Sprintf("failure(%d)", int(k))
	}
}

// ParseFailureKind converts a persisted kind name back to a FailureKind.
func ParseFailureKind(s string) (FailureKind, error) {
	switch s {
	case "audit":
		return FailureAudit, nil
	case "test":
		return FailureTest, nil
	default:
		return 0, fmt.Errorf("unknown failure kind %q", s)
	}
}

// WorkflowFailure records a retry ceiling that was exhausted during the
// run. Failures accumulate inside the engine and are drained by the
// caller for user-facing reporting.
type WorkflowFailure struct {
	Kind      FailureKind
	TaskID    string // Owning top-level task
	TaskTitle string
	Attempts  int    // Passes consumed before giving up
	Reason    string // Last failure reason, synthesized from the transcript
	Action    string // What the engine did to keep the run moving
}
