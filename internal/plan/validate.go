package plan

import (
	"fmt"

	"github.com/gammazero/toposort"
)

// Validate checks a candidate node list against the structural rules the
// engine depends on. It is a pure function: the input is never mutated.
// Errors name the offending node, role, and rule so an authoring agent
// can self-correct.
func Validate(nodes []*Node) error {
	byID := make(map[string]*Node, len(nodes))
	for _, node := range nodes {
		if node.ID == "" {
			return fmt.Errorf("node %q has an empty ID", node.Title)
		}
		if _, dup := byID[node.ID]; dup {
			return fmt.Errorf("duplicate node ID %q", node.ID)
		}
		byID[node.ID] = node
	}

	// Parent references must resolve and must not form a cycle. The
	// topological sort doubles as the cycle detector, the same way the
	// scheduler DAG validates dependency edges.
	var edges []toposort.Edge
	for _, node := range nodes {
		if node.ParentID == "" {
			edges = append(edges, toposort.Edge{nil, node.ID})
			continue
		}
		if _, exists := byID[node.ParentID]; !exists {
			return fmt.Errorf("node %q references non-existent parent %q", node.ID, node.ParentID)
		}
		edges = append(edges, toposort.Edge{node.ParentID, node.ID})
	}
	if _, err := toposort.Toposort(edges); err != nil {
		return fmt.Errorf("parent references contain a cycle: %w", err)
	}

	children := make(map[string][]*Node)
	for _, node := range nodes {
		children[node.ParentID] = append(children[node.ParentID], node)
	}

	for _, node := range nodes {
		if node.Details == "" {
			return fmt.Errorf("node %q (%s): details must not be empty", node.ID, node.Role)
		}

		switch node.Role {
		case RoleTask:
			if node.ParentID != "" {
				return fmt.Errorf("task %q must be top-level, found parent %q", node.ID, node.ParentID)
			}

		case RoleImplementor:
			parent := byID[node.ParentID]
			if parent == nil || parent.Role != RoleTask || parent.ParentID != "" {
				return fmt.Errorf("implementor %q must be a direct child of a top-level task", node.ID)
			}
			if countRole(children[node.ID], RoleAuditor) == 0 {
				return fmt.Errorf("implementor %q must include at least one auditor", node.ID)
			}

		case RoleTestWriter:
			// A test writer missing its runner is not rejected here:
			// the scheduler synthesizes the default runner before the
			// branch is activated or judged complete.
			parent := byID[node.ParentID]
			if parent == nil || parent.Role != RoleTask || parent.ParentID != "" {
				return fmt.Errorf("test writer %q must be a direct child of a top-level task", node.ID)
			}

		case RoleAuditor:
			parent := byID[node.ParentID]
			if parent == nil || (parent.Role != RoleImplementor && parent.Role != RoleTestWriter) {
				return fmt.Errorf("auditor %q must be a child of an implementor or test writer", node.ID)
			}

		case RoleTestRunner:
			parent := byID[node.ParentID]
			if parent == nil || (parent.Role != RoleImplementor && parent.Role != RoleTestWriter) {
				return fmt.Errorf("test runner %q must be a child of an implementor or test writer", node.ID)
			}
			if countRole(children[node.ParentID], RoleTestRunner) > 1 {
				return fmt.Errorf("node %q (%s) has more than one test runner child", node.ParentID, parent.Role)
			}

		case RoleFinalAudit:
			if node.ParentID != "" {
				return fmt.Errorf("final audit %q must be top-level, found parent %q", node.ID, node.ParentID)
			}

		default:
			return fmt.Errorf("node %q has unknown role %d", node.ID, int(node.Role))
		}
	}

	// An implementor's own test runner must sort after its audit chain,
	// so the runner never executes on un-audited work. Sibling order is
	// the order key with declaration order breaking ties, matching
	// Graph.Children.
	declIndex := make(map[string]int, len(nodes))
	for i, node := range nodes {
		declIndex[node.ID] = i
	}
	sortsAfter := func(a, b *Node) bool {
		if a.Order != b.Order {
			return a.Order > b.Order
		}
		return declIndex[a.ID] > declIndex[b.ID]
	}
	for _, node := range nodes {
		if node.Role != RoleImplementor {
			continue
		}
		for _, runner := range children[node.ID] {
			if runner.Role != RoleTestRunner {
				continue
			}
			for _, auditor := range children[node.ID] {
				if auditor.Role == RoleAuditor && !sortsAfter(runner, auditor) {
					return fmt.Errorf("test runner %q under implementor %q must sort after the audit chain", runner.ID, node.ID)
				}
			}
		}
	}

	return nil
}

// Build validates a candidate node list and assembles the arena.
// Declaration order of the input slice is preserved.
func Build(nodes []*Node) (*Graph, error) {
	if err := Validate(nodes); err != nil {
		return nil, err
	}

	graph := NewGraph()
	for _, node := range nodes {
		if err := graph.Add(node); err != nil {
			return nil, err
		}
	}
	return graph, nil
}

func countRole(nodes []*Node, role Role) int {
	count := 0
	for _, node := range nodes {
		if node.Role == role {
			count++
		}
	}
	return count
}
