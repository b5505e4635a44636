package snapshot

import (
	"reflect"
	"testing"

	"github.com/oakbuild/foreman/internal/engine"
	"github.com/oakbuild/foreman/internal/plan"
)

func sampleNodes() []*plan.Node {
	return []*plan.Node{
		{
			ID:      "t1",
			Title:   "Build parser",
			Details: "Parse the input format",
			Docs: []plan.DocRef{
				{Title: "format notes", URL: "https://example.com/fmt", Summary: "grammar sketch"},
			},
			Role:   plan.RoleTask,
			Status: plan.StatusPending,
			Order:  1,
		},
		{
			ID:       "imp1",
			Title:    "Implement parser",
			Details:  "Write the parser",
			Role:     plan.RoleImplementor,
			Status:   plan.StatusPending,
			ParentID: "t1",
			Order:    1,
		},
		{
			ID:       "aud1",
			Title:    "Audit parser",
			Details:  "Review the parser",
			Role:     plan.RoleAuditor,
			Status:   plan.StatusPending,
			ParentID: "imp1",
			Order:    1,
		},
	}
}

// TestRoundTrip: encoding a graph and decoding the records reproduces
// the same nodes, statuses and docs included.
func TestRoundTrip(t *testing.T) {
	nodes := sampleNodes()
	nodes[1].Status = plan.StatusDone // Mid-run status must survive

	g, err := plan.Build(nodes)
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	records := Encode(g)
	if len(records) != len(nodes) {
		t.Fatalf("expected %d records, got %d", len(nodes), len(records))
	}

	decoded, err := Decode(records)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	g2, err := plan.Build(decoded)
	if err != nil {
		t.Fatalf("Build of decoded nodes failed: %v", err)
	}

	if !reflect.DeepEqual(Encode(g2), records) {
		t.Fatal("round trip is not loss-less")
	}

	if decoded[1].Status != plan.StatusDone {
		t.Fatal("mid-run status lost in round trip")
	}
	if len(decoded[0].Docs) != 1 || decoded[0].Docs[0].URL != "https://example.com/fmt" {
		t.Fatalf("docs lost in round trip: %+v", decoded[0].Docs)
	}
}

// TestMidRunRoundTrip snapshots an engine mid-branch, including a
// runner the scheduler synthesized, and verifies a fresh engine resumes
// at the same step.
func TestMidRunRoundTrip(t *testing.T) {
	nodes := []*plan.Node{
		{ID: "t1", Title: "Task", Details: "d", Role: plan.RoleTask, Status: plan.StatusPending, Order: 1},
		{ID: "tw1", Title: "Write tests", Details: "d", Role: plan.RoleTestWriter, Status: plan.StatusPending, ParentID: "t1", Order: 1},
	}

	eng := engine.New(engine.DefaultConfig(), nil)
	if _, err := eng.Load(nodes); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	eng.StartExecution()

	job := eng.StartNextJob()
	if job == nil || job.Role != plan.RoleTestWriter {
		t.Fatalf("expected test writer job, got %+v", job)
	}
	if _, err := eng.FinishActiveJob(true, 0); err != nil {
		t.Fatalf("FinishActiveJob failed: %v", err)
	}

	// The synthesized runner must be part of the snapshot.
	records := Encode(eng.Graph())
	if len(records) != 3 {
		t.Fatalf("expected 3 records including synthesized runner, got %d", len(records))
	}

	decoded, err := Decode(records)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	resumed := engine.New(engine.DefaultConfig(), nil)
	if _, err := resumed.Load(decoded); err != nil {
		t.Fatalf("Load of snapshot failed: %v", err)
	}
	resumed.StartExecution()

	next := resumed.StartNextJob()
	if next == nil || next.Role != plan.RoleTestRunner {
		t.Fatalf("expected resume at test runner, got %+v", next)
	}

	if !reflect.DeepEqual(Encode(resumed.Graph()), recordsWithStatus(records, next.NodeID, plan.StatusInProgress)) {
		t.Fatal("resumed snapshot diverged beyond the dispatched step")
	}
}

// recordsWithStatus returns a copy of records with one node's status
// replaced, for comparing snapshots across a single dispatch.
func recordsWithStatus(records []Record, id string, status plan.Status) []Record {
	out := append([]Record(nil), records...)
	for i := range out {
		if out[i].ID == id {
			out[i].Status = status.String()
		}
	}
	return out
}

func TestDecodeRejectsUnknownRole(t *testing.T) {
	_, err := Decode([]Record{{ID: "x", Title: "t", Role: "overseer", Status: "pending"}})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestDecodeRejectsUnknownStatus(t *testing.T) {
	_, err := Decode([]Record{{ID: "x", Title: "t", Role: "task", Status: "paused"}})
	if err == nil {
		t.Fatal("expected error for unknown status")
	}
}
