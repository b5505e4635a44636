package engine

import (
	"fmt"
	"strings"

	"github.com/oakbuild/foreman/internal/plan"
)

// JobKind distinguishes agent-backed steps from deterministic test runs.
type JobKind int

const (
	JobAgent JobKind = iota // Run an agent worker with Job.Prompt
	JobTest                 // Run the configured test command; no prompt
)

// Job is a single dispatched unit of work. The engine hands out at most
// one at a time; the caller executes it externally and reports back via
// FinishActiveJob.
type Job struct {
	TaskID    string // Owning top-level task
	TaskTitle string
	NodeID    string // Node being executed
	Role      plan.Role
	Kind      JobKind
	Prompt    string // Opaque; empty for JobTest

	// ParentContextKey is a stable correlation key for the owning branch
	// instance. A caller may reuse a persistent worker session for every
	// job carrying the same key; keys are never reused across branches.
	ParentContextKey string
}

// PromptRequest carries everything prompt construction may draw on.
// The engine treats the produced string as opaque.
type PromptRequest struct {
	Node     plan.Node
	Role     plan.Role
	Tier     Tier     // Strictness tier for audit-style steps
	Context  []string // Rolling context entries, oldest first
	Feedback string   // Feedback text from the previous attempt, if any
	Cleanup  bool     // Test-writer cleanup pass: remove failing tests
}

// PromptBuilder produces the opaque prompt string for a job.
type PromptBuilder func(PromptRequest) string

// defaultPromptBuilder is the fallback used when the caller supplies no
// builder. It concatenates the node details, docs, rolling context, and
// prior feedback into plain text.
func defaultPromptBuilder(req PromptRequest) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Role: %s\n", req.Role)
	if req.Role == plan.RoleAuditor || req.Role == plan.RoleFinalAudit {
		fmt.Fprintf(&b, "Review strictness: %s\n", req.Tier)
		b.WriteString("Report your verdict as AUDIT_RESULT: PASS or AUDIT_RESULT: FAIL.\n")
	}
	fmt.Fprintf(&b, "\n%s: %s\n\n%s\n", req.Node.Role, req.Node.Title, req.Node.Details)

	for _, doc := range req.Node.Docs {
		fmt.Fprintf(&b, "\nReference: %s (%s)\n%s\n", doc.Title, doc.URL, doc.Summary)
	}

	if req.Cleanup {
		b.WriteString("\nThe tests written here could not be made to pass. Remove the failing tests; do not replace them.\n")
	}

	if len(req.Context) > 0 {
		b.WriteString("\nRecent history:\n")
		for _, entry := range req.Context {
			fmt.Fprintf(&b, "- %s\n", entry)
		}
	}

	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nFeedback from the previous attempt:\n%s\n", req.Feedback)
	}

	return b.String()
}
