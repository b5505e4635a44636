package plan

import "fmt"

// Role identifies the kind of work a node represents.
type Role int

const (
	RoleTask       Role = iota // Top-level unit of user-visible work
	RoleImplementor            // Writes the implementation for its parent task
	RoleAuditor                // Reviews the output of its parent branch
	RoleTestWriter             // Authors tests for its parent task
	RoleTestRunner             // Runs the deterministic test command
	RoleFinalAudit             // Whole-run gate, queued after all tasks finish
)

// String returns the canonical name used in persisted records and messages.
func (r Role) String() string {
	switch r {
	case RoleTask:
		return "task"
	case RoleImplementor:
		return "implementor"
	case RoleAuditor:
		return "auditor"
	case RoleTestWriter:
		return "test_writer"
	case RoleTestRunner:
		return "test_runner"
	case RoleFinalAudit:
		return "final_audit"
	default:
		return fmt.Sprintf("role(%d)", int(r))
	}
}

// ParseRole converts a persisted role name back to a Role.
func ParseRole(s string) (Role, error) {
	switch s {
	case "task":
		return RoleTask, nil
	case "implementor":
		return RoleImplementor, nil
	case "auditor":
		return RoleAuditor, nil
	case "test_writer":
		return RoleTestWriter, nil
	case "test_runner":
		return RoleTestRunner, nil
	case "final_audit":
		return RoleFinalAudit, nil
	default:
		return 0, fmt.Errorf("unknown role %q", s)
	}
}

// Status represents the lifecycle state of a node.
// Pending -> InProgress -> {Done, NeedsChanges}; NeedsChanges -> InProgress.
type Status int

const (
	StatusPending Status = iota
	StatusInProgress
	StatusDone
	StatusNeedsChanges
)

// String returns the canonical name used in persisted records and messages.
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusInProgress:
		return "in_progress"
	case StatusDone:
		return "done"
	case StatusNeedsChanges:
		return "needs_changes"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// ParseStatus converts a persisted status name back to a Status.
func ParseStatus(s string) (Status, error) {
	switch s {
	case "pending":
		return StatusPending, nil
	case "in_progress":
		return StatusInProgress, nil
	case "done":
		return StatusDone, nil
	case "needs_changes":
		return StatusNeedsChanges, nil
	default:
		return 0, fmt.Errorf("unknown status %q", s)
	}
}

// DocRef is an attached documentation reference. The engine never
// interprets these; they are threaded into prompts verbatim.
type DocRef struct {
	Title   string
	URL     string
	Summary string
}

// Node is a single work item in the task forest.
// Parent relationships are expressed by ID, not pointers, so the arena
// serializes directly and cannot form ownership cycles.
type Node struct {
	ID       string
	Title    string
	Details  string // Must be non-empty; enforced by Validate
	Docs     []DocRef
	Role     Role
	Status   Status
	ParentID string // Empty for top-level nodes
	Order    int    // Sibling ordering key; ties broken by declaration order

	seq int // Declaration index, assigned by the graph on insert
}

// Seq returns the node's declaration index within its graph.
func (n *Node) Seq() int { return n.seq }

func cloneNode(n *Node) *Node {
	if n == nil {
		return nil
	}
	cp := *n
	if n.Docs != nil {
		cp.Docs = append([]DocRef(nil), n.Docs...)
	}
	return &cp
}
