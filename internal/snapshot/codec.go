// Package snapshot projects the live task graph into the external
// persisted node representation and back. The external form is the
// serialization target for the task store; the live graph stays the
// source of truth during a run.
package snapshot

import (
	"fmt"

	"github.com/oakbuild/foreman/internal/plan"
)

// DocRef mirrors plan.DocRef in the external representation.
type DocRef struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
}

// Record is one persisted node. Every live node maps 1:1 to a record,
// including children the scheduler auto-created during execution, so a
// reload reconstructs identical structure.
type Record struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Details  string   `json:"details"`
	Docs     []DocRef `json:"docs,omitempty"`
	Role     string   `json:"role"`
	Status   string   `json:"status"`
	ParentID string   `json:"parent_id,omitempty"`
	Order    int      `json:"order"`
}

// Encode projects the live graph into persisted records in declaration
// order, preserving current statuses so mid-run state survives.
func Encode(g *plan.Graph) []Record {
	nodes := g.Nodes()
	records := make([]Record, 0, len(nodes))
	for _, node := range nodes {
		records = append(records, encodeNode(node))
	}
	return records
}

func encodeNode(node *plan.Node) Record {
	rec := Record{
		ID:       node.ID,
		Title:    node.Title,
		Details:  node.Details,
		Role:     node.Role.String(),
		Status:   node.Status.String(),
		ParentID: node.ParentID,
		Order:    node.Order,
	}
	for _, doc := range node.Docs {
		rec.Docs = append(rec.Docs, DocRef(doc))
	}
	return rec
}

// Decode converts persisted records back into candidate nodes in record
// order. Structural acceptance is the validator's job: feed the result
// to the engine's Load, which rejects or atomically installs it.
func Decode(records []Record) ([]*plan.Node, error) {
	nodes := make([]*plan.Node, 0, len(records))
	for _, rec := range records {
		node, err := decodeRecord(rec)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func decodeRecord(rec Record) (*plan.Node, error) {
	role, err := plan.ParseRole(rec.Role)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", rec.ID, err)
	}
	status, err := plan.ParseStatus(rec.Status)
	if err != nil {
		return nil, fmt.Errorf("record %q: %w", rec.ID, err)
	}

	node := &plan.Node{
		ID:       rec.ID,
		Title:    rec.Title,
		Details:  rec.Details,
		Role:     role,
		Status:   status,
		ParentID: rec.ParentID,
		Order:    rec.Order,
	}
	for _, doc := range rec.Docs {
		node.Docs = append(node.Docs, plan.DocRef(doc))
	}
	return node, nil
}
