package plan

import (
	"fmt"
	"sort"
	"sync"
)

// Graph is an arena of nodes keyed by stable ID. Parent/child
// relationships are resolved by ID lookup on demand.
type Graph struct {
	mu    sync.RWMutex
	nodes map[string]*Node
	order []string // IDs in declaration order
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes: make(map[string]*Node),
	}
}

// Add inserts a node into the arena. Returns an error if the ID is taken.
// The node's declaration index is assigned from insertion order.
func (g *Graph) Add(node *Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.nodes[node.ID]; exists {
		return fmt.Errorf("node with ID %q already exists", node.ID)
	}

	cp := cloneNode(node)
	cp.seq = len(g.order)
	g.nodes[cp.ID] = cp
	g.order = append(g.order, cp.ID)
	return nil
}

// Get returns a copy of the node with the given ID.
func (g *Graph) Get(id string) (*Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[id]
	if !exists {
		return nil, false
	}
	return cloneNode(node), true
}

// Len returns the number of nodes in the arena.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Nodes returns copies of all nodes in declaration order.
func (g *Graph) Nodes() []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	nodes := make([]*Node, 0, len(g.order))
	for _, id := range g.order {
		nodes = append(nodes, cloneNode(g.nodes[id]))
	}
	return nodes
}

// SetStatus transitions the node with the given ID to the given status.
func (g *Graph) SetStatus(id string, status Status) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	node, exists := g.nodes[id]
	if !exists {
		return fmt.Errorf("node %q not found", id)
	}
	node.Status = status
	return nil
}

// Children returns copies of the direct children of parentID, sorted by
// order key with declaration order breaking ties.
func (g *Graph) Children(parentID string) []*Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.childrenLocked(parentID)
}

func (g *Graph) childrenLocked(parentID string) []*Node {
	var children []*Node
	for _, id := range g.order {
		node := g.nodes[id]
		if node.ParentID == parentID {
			children = append(children, cloneNode(node))
		}
	}
	sort.SliceStable(children, func(i, j int) bool {
		if children[i].Order != children[j].Order {
			return children[i].Order < children[j].Order
		}
		return children[i].seq < children[j].seq
	})
	return children
}

// ChildrenWithRole returns the ordered direct children of parentID
// restricted to the given role.
func (g *Graph) ChildrenWithRole(parentID string, role Role) []*Node {
	var out []*Node
	for _, child := range g.Children(parentID) {
		if child.Role == role {
			out = append(out, child)
		}
	}
	return out
}

// TopLevelTasks returns the ordered top-level Task nodes. FinalAudit
// roots are excluded; they are sequenced separately as the final gate.
func (g *Graph) TopLevelTasks() []*Node {
	var tasks []*Node
	for _, node := range g.Children("") {
		if node.Role == RoleTask {
			tasks = append(tasks, node)
		}
	}
	return tasks
}

// FinalAudits returns the ordered top-level FinalAudit nodes.
func (g *Graph) FinalAudits() []*Node {
	var audits []*Node
	for _, node := range g.Children("") {
		if node.Role == RoleFinalAudit {
			audits = append(audits, node)
		}
	}
	return audits
}

// TopLevelAncestor walks parent links from id up to the root node.
func (g *Graph) TopLevelAncestor(id string) (*Node, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	node, exists := g.nodes[id]
	if !exists {
		return nil, fmt.Errorf("node %q not found", id)
	}
	for node.ParentID != "" {
		parent, ok := g.nodes[node.ParentID]
		if !ok {
			return nil, fmt.Errorf("node %q references missing parent %q", node.ID, node.ParentID)
		}
		node = parent
	}
	return cloneNode(node), nil
}
