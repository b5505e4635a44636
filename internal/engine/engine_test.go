package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/oakbuild/foreman/internal/plan"
)

func pnode(id, parent string, role plan.Role, order int) *plan.Node {
	return &plan.Node{
		ID:       id,
		Title:    "title " + id,
		Details:  "details for " + id,
		Role:     role,
		Status:   plan.StatusPending,
		ParentID: parent,
		Order:    order,
	}
}

// standardTree is a single top-level task with one implementor branch
// (one auditor) and one test-writer branch (one runner).
func standardTree() []*plan.Node {
	return []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("tw1", "t1", plan.RoleTestWriter, 2),
		pnode("run1", "tw1", plan.RoleTestRunner, 1),
	}
}

func newTestEngine(t *testing.T, cfg Config, nodes []*plan.Node) *Engine {
	t.Helper()
	eng := New(cfg, nil)
	if _, err := eng.Load(nodes); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	eng.StartExecution()
	return eng
}

// startJob pops the next job and asserts its role.
func startJob(t *testing.T, eng *Engine, want plan.Role) *Job {
	t.Helper()
	job := eng.StartNextJob()
	if job == nil {
		t.Fatalf("expected a %s job, queue was empty", want)
	}
	if job.Role != want {
		t.Fatalf("expected role %s, got %s (node %s)", want, job.Role, job.NodeID)
	}
	return job
}

// finish streams the given lines and reports completion.
func finish(t *testing.T, eng *Engine, success bool, exitCode int, lines ...string) []string {
	t.Helper()
	for _, line := range lines {
		if err := eng.AppendActiveOutput(line); err != nil {
			t.Fatalf("AppendActiveOutput failed: %v", err)
		}
	}
	msgs, err := eng.FinishActiveJob(success, exitCode)
	if err != nil {
		t.Fatalf("FinishActiveJob failed: %v", err)
	}
	return msgs
}

func nodeStatus(t *testing.T, eng *Engine, id string) plan.Status {
	t.Helper()
	node, ok := eng.Graph().Get(id)
	if !ok {
		t.Fatalf("node %s not found", id)
	}
	return node.Status
}

// TestHappyPath walks the standard tree to completion:
// implementor -> auditor(PASS) -> test writer -> runner(pass).
func TestHappyPath(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0, "implemented the feature")

	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	startJob(t, eng, plan.RoleTestWriter)
	finish(t, eng, true, 0, "wrote tests")

	startJob(t, eng, plan.RoleTestRunner)
	msgs := finish(t, eng, true, 0, "ok   pkg   0.2s")

	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("top-level task should be done")
	}
	if job := eng.StartNextJob(); job != nil {
		t.Fatalf("expected no further job, got %s on %s", job.Role, job.NodeID)
	}

	foundComplete := false
	for _, msg := range msgs {
		if strings.Contains(msg, "complete") {
			foundComplete = true
		}
	}
	if !foundComplete {
		t.Fatalf("expected a completion message, got %v", msgs)
	}
	if failures := eng.DrainFailures(); len(failures) != 0 {
		t.Fatalf("expected no failures, got %v", failures)
	}
}

// TestAuditFailResetsChain verifies a FAIL verdict requeues the
// implementor with synthesized feedback and restarts the chain.
func TestAuditFailResetsChain(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: FAIL", "issue: off-by-one in loop")

	if nodeStatus(t, eng, "imp1") != plan.StatusNeedsChanges {
		t.Fatal("implementor should need changes after audit FAIL")
	}
	if nodeStatus(t, eng, "aud1") != plan.StatusPending {
		t.Fatal("auditor should be reset to pending")
	}

	job := startJob(t, eng, plan.RoleImplementor)
	if !strings.Contains(job.Prompt, "off-by-one in loop") {
		t.Fatal("implementor prompt should carry the audit feedback")
	}
	finish(t, eng, true, 0)

	// The chain restarts from its first member.
	startJob(t, eng, plan.RoleAuditor)
}

// TestAuditCeiling exhausts the implementor<->auditor chain: the fourth
// FAIL does not requeue the implementor, records one workflow failure
// with four attempts, and advances to the next step.
func TestAuditCeiling(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	for pass := 1; pass <= 4; pass++ {
		startJob(t, eng, plan.RoleImplementor)
		finish(t, eng, true, 0)

		startJob(t, eng, plan.RoleAuditor)
		finish(t, eng, true, 0, "AUDIT_RESULT: FAIL")

		if pass < 4 {
			if nodeStatus(t, eng, "imp1") != plan.StatusNeedsChanges {
				t.Fatalf("pass %d: implementor should be requeued", pass)
			}
			continue
		}

		// Fourth failure: chain closed, branch advances.
		if nodeStatus(t, eng, "imp1") != plan.StatusDone {
			t.Fatal("implementor must not be requeued on the final pass")
		}
		if nodeStatus(t, eng, "aud1") != plan.StatusDone {
			t.Fatal("audit step should be marked done on exhaustion")
		}
	}

	failures := eng.DrainFailures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].Kind != FailureAudit || failures[0].Attempts != 4 {
		t.Fatalf("unexpected failure record: %+v", failures[0])
	}

	// Next step is the test-writer branch, not another implementor pass.
	startJob(t, eng, plan.RoleTestWriter)
}

// TestTestWriterCeilingQueuesCleanup fails the deterministic runner
// five times and expects a sixth cleanup pass that closes the branch
// without a further test run.
func TestTestWriterCeilingQueuesCleanup(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("tw1", "t1", plan.RoleTestWriter, 1),
		pnode("run1", "tw1", plan.RoleTestRunner, 1),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	for pass := 1; pass <= 5; pass++ {
		startJob(t, eng, plan.RoleTestWriter)
		finish(t, eng, true, 0)

		startJob(t, eng, plan.RoleTestRunner)
		finish(t, eng, false, 1, "--- FAIL: TestThing")
	}

	failures := eng.DrainFailures()
	if len(failures) != 1 {
		t.Fatalf("expected 1 failure, got %d", len(failures))
	}
	if failures[0].Kind != FailureTest || failures[0].Attempts != 5 {
		t.Fatalf("unexpected failure record: %+v", failures[0])
	}

	// Sixth pass: cleanup, instructing removal of the failing tests.
	job := startJob(t, eng, plan.RoleTestWriter)
	if !strings.Contains(job.Prompt, "Remove the failing tests") {
		t.Fatalf("cleanup prompt missing removal instruction: %q", job.Prompt)
	}
	finish(t, eng, true, 0, "removed failing tests")

	if nodeStatus(t, eng, "tw1") != plan.StatusDone {
		t.Fatal("test writer should be done after cleanup")
	}
	if nodeStatus(t, eng, "run1") != plan.StatusDone {
		t.Fatal("runner should be forced done without another run")
	}
	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("task should be done")
	}
	if job := eng.StartNextJob(); job != nil {
		t.Fatalf("expected no further job, got %s", job.Role)
	}
}

// TestImplementorRunnerCeiling exhausts an implementor's own
// existing-test runner: both are forced done and the run proceeds.
func TestImplementorRunnerCeiling(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("irun", "imp1", plan.RoleTestRunner, 2),
		pnode("t2", "", plan.RoleTask, 2),
		pnode("imp2", "t2", plan.RoleImplementor, 1),
		pnode("aud2", "imp2", plan.RoleAuditor, 1),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	for pass := 1; pass <= 5; pass++ {
		startJob(t, eng, plan.RoleTestRunner)
		finish(t, eng, false, 2, "FAIL: existing test broke")

		if pass < 5 {
			// Test failure requeues the implementor without touching
			// the already-passed audit chain.
			if nodeStatus(t, eng, "imp1") != plan.StatusNeedsChanges {
				t.Fatalf("pass %d: implementor should be requeued", pass)
			}
			if nodeStatus(t, eng, "aud1") != plan.StatusDone {
				t.Fatalf("pass %d: audit chain should stay done", pass)
			}
			startJob(t, eng, plan.RoleImplementor)
			finish(t, eng, true, 0)
		}
	}

	if nodeStatus(t, eng, "irun") != plan.StatusDone {
		t.Fatal("runner should be forced done on exhaustion")
	}
	if nodeStatus(t, eng, "imp1") != plan.StatusDone {
		t.Fatal("implementor should be forced done on exhaustion")
	}
	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("task one should be done")
	}

	failures := eng.DrainFailures()
	if len(failures) != 1 || failures[0].Kind != FailureTest || failures[0].Attempts != 5 {
		t.Fatalf("unexpected failures: %+v", failures)
	}

	// Execution proceeds to the next top-level task.
	job := startJob(t, eng, plan.RoleImplementor)
	if job.TaskID != "t2" {
		t.Fatalf("expected next task t2, got %s", job.TaskID)
	}
}

// TestImplementorWorkerFailure verifies a failed implementor run is
// requeued with generic feedback and no audit-chain involvement.
func TestImplementorWorkerFailure(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, false, 3, "panic: out of cheese")

	if nodeStatus(t, eng, "imp1") != plan.StatusNeedsChanges {
		t.Fatal("implementor should need changes")
	}
	if nodeStatus(t, eng, "aud1") != plan.StatusPending {
		t.Fatal("auditor should be untouched")
	}

	job := startJob(t, eng, plan.RoleImplementor)
	if !strings.Contains(job.Prompt, "previous run failed with code 3") {
		t.Fatalf("prompt missing generic failure feedback: %q", job.Prompt)
	}
}

// TestFailedAuditorWorkerCountsAsFail: success=false on an audit step
// is treated as a failed pass regardless of transcript content.
func TestFailedAuditorWorkerCountsAsFail(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, false, 1, "AUDIT_RESULT: PASS") // success=false wins

	if nodeStatus(t, eng, "imp1") != plan.StatusNeedsChanges {
		t.Fatal("worker failure on an auditor must requeue the implementor")
	}
}

// TestFinalAuditRequiresExplicitToken: a successful exit with only a
// heuristic pass leaves the node needing changes and queues a retry.
func TestFinalAuditRequiresExplicitToken(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("fa1", "", plan.RoleFinalAudit, 9),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	startJob(t, eng, plan.RoleFinalAudit)
	finish(t, eng, true, 0, "No issues found")

	if nodeStatus(t, eng, "fa1") != plan.StatusNeedsChanges {
		t.Fatal("final audit without explicit token must stay needs-changes")
	}

	// Retry queued; explicit token closes the gate.
	startJob(t, eng, plan.RoleFinalAudit)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	if nodeStatus(t, eng, "fa1") != plan.StatusDone {
		t.Fatal("final audit should be done after explicit pass")
	}
	if job := eng.StartNextJob(); job != nil {
		t.Fatalf("expected run complete, got %s", job.Role)
	}
}

// TestFinalAuditGatedOnAllTasks: the final audit is not queued while a
// non-final top-level task is unfinished.
func TestFinalAuditGatedOnAllTasks(t *testing.T) {
	nodes := []*plan.Node{
		pnode("fa1", "", plan.RoleFinalAudit, 0), // Declared first; still gated
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	startJob(t, eng, plan.RoleFinalAudit)
}

// TestFinalAuditCeilingHaltsRun: on exhaustion the node stays
// needs-changes, a failure is recorded, and nothing further is queued.
func TestFinalAuditCeilingHaltsRun(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("fa1", "", plan.RoleFinalAudit, 9),
	}
	cfg := DefaultConfig()
	cfg.FinalAuditPasses = 2
	eng := newTestEngine(t, cfg, nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	startJob(t, eng, plan.RoleFinalAudit)
	finish(t, eng, true, 0, "AUDIT_RESULT: FAIL")
	startJob(t, eng, plan.RoleFinalAudit)
	msgs := finish(t, eng, true, 0, "AUDIT_RESULT: FAIL")

	if nodeStatus(t, eng, "fa1") != plan.StatusNeedsChanges {
		t.Fatal("final audit must not be forced done on exhaustion")
	}
	if job := eng.StartNextJob(); job != nil {
		t.Fatalf("expected no further job after halt, got %s", job.Role)
	}

	failures := eng.DrainFailures()
	if len(failures) != 1 || failures[0].Kind != FailureAudit || failures[0].Attempts != 2 {
		t.Fatalf("unexpected failures: %+v", failures)
	}

	halted := false
	for _, msg := range msgs {
		if strings.Contains(msg, "halted") {
			halted = true
		}
	}
	if !halted {
		t.Fatalf("expected a halt message, got %v", msgs)
	}
}

// TestLoadBusy rejects a structural reload while work is queued.
func TestLoadBusy(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	if _, err := eng.Load(standardTree()); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}

	// Prior tree untouched.
	if eng.Graph().Len() != 5 {
		t.Fatalf("graph mutated by rejected load: %d nodes", eng.Graph().Len())
	}
}

// TestResumeMidBranch loads a snapshot with the implementor already
// done and expects execution to resume at the auditor, not restart.
func TestResumeMidBranch(t *testing.T) {
	nodes := standardTree()
	nodes[1].Status = plan.StatusDone // imp1

	eng := newTestEngine(t, DefaultConfig(), nodes)
	startJob(t, eng, plan.RoleAuditor)
}

// TestContextKeyStableWithinBranch: one branch keeps its correlation
// key across retry cycles; other branches get different keys.
func TestContextKeyStableWithinBranch(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	impJob := startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	audJob := startJob(t, eng, plan.RoleAuditor)
	if audJob.ParentContextKey != impJob.ParentContextKey {
		t.Fatal("auditor and implementor in one branch must share a context key")
	}
	finish(t, eng, true, 0, "AUDIT_RESULT: FAIL")

	retryJob := startJob(t, eng, plan.RoleImplementor)
	if retryJob.ParentContextKey != impJob.ParentContextKey {
		t.Fatal("context key must be stable across the branch's retry cycles")
	}
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	twJob := startJob(t, eng, plan.RoleTestWriter)
	if twJob.ParentContextKey == impJob.ParentContextKey {
		t.Fatal("different branches must not share a context key")
	}
}

// TestRunnerSynthesizedForTestWriter: a test writer loaded without a
// runner gets a default one at branch activation, and it executes.
func TestRunnerSynthesizedForTestWriter(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("tw1", "t1", plan.RoleTestWriter, 1),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleTestWriter)
	finish(t, eng, true, 0)

	job := startJob(t, eng, plan.RoleTestRunner)
	if job.Kind != JobTest {
		t.Fatal("runner job should carry the test directive")
	}
	finish(t, eng, true, 0, "ok")

	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("task should be done")
	}
	if eng.Graph().Len() != 3 {
		t.Fatalf("expected synthesized runner in graph, len=%d", eng.Graph().Len())
	}
}

// TestDoneTestWriterWithoutRunnerStillRuns: a snapshot can hold a test
// writer already done but missing its runner. The branch must not close
// without a test run; a default runner is synthesized and dispatched.
func TestDoneTestWriterWithoutRunnerStillRuns(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("tw1", "t1", plan.RoleTestWriter, 1),
	}
	nodes[1].Status = plan.StatusDone

	eng := newTestEngine(t, DefaultConfig(), nodes)

	job := startJob(t, eng, plan.RoleTestRunner)
	if job.Kind != JobTest {
		t.Fatal("synthesized runner must carry the test directive")
	}
	if nodeStatus(t, eng, "t1") == plan.StatusDone {
		t.Fatal("task must not close before the test run")
	}

	finish(t, eng, true, 0, "ok")
	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("task should be done after the test run")
	}
}

// TestTaskNotClosedPastRunnerlessTestWriter: finishing a sibling branch
// must not mark the task done while a done-but-runnerless test writer
// still owes its test run.
func TestTaskNotClosedPastRunnerlessTestWriter(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("tw1", "t1", plan.RoleTestWriter, 2),
	}
	nodes[3].Status = plan.StatusDone

	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	if nodeStatus(t, eng, "t1") == plan.StatusDone {
		t.Fatal("task closed while the test writer's run was outstanding")
	}

	startJob(t, eng, plan.RoleTestRunner)
	finish(t, eng, true, 0, "ok")
	if nodeStatus(t, eng, "t1") != plan.StatusDone {
		t.Fatal("task should be done after the outstanding test run")
	}
}

// TestAuditTierTracksEachAuditor: strictness escalates with how often a
// given auditor has run. A chain member reached for the first time on a
// later cycle still starts thorough.
func TestAuditTierTracksEachAuditor(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
		pnode("aud2", "imp1", plan.RoleAuditor, 2),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	job := startJob(t, eng, plan.RoleAuditor)
	if job.NodeID != "aud1" || !strings.Contains(job.Prompt, "Review strictness: thorough") {
		t.Fatalf("first pass should be thorough: %q", job.Prompt)
	}
	finish(t, eng, true, 0, "AUDIT_RESULT: FAIL")

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	job = startJob(t, eng, plan.RoleAuditor)
	if job.NodeID != "aud1" || !strings.Contains(job.Prompt, "Review strictness: standard") {
		t.Fatalf("rerun auditor should escalate to standard: %q", job.Prompt)
	}
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	job = startJob(t, eng, plan.RoleAuditor)
	if job.NodeID != "aud2" || !strings.Contains(job.Prompt, "Review strictness: thorough") {
		t.Fatalf("fresh chain member should start thorough: %q", job.Prompt)
	}
}

// TestRollingContextThreadedIntoPrompts: earlier step summaries appear
// in later prompts.
func TestRollingContextThreadedIntoPrompts(t *testing.T) {
	eng := newTestEngine(t, DefaultConfig(), standardTree())

	startJob(t, eng, plan.RoleImplementor)
	finish(t, eng, true, 0)

	job := startJob(t, eng, plan.RoleAuditor)
	if !strings.Contains(job.Prompt, "implementor on title t1: completed") {
		t.Fatalf("auditor prompt missing rolling context: %q", job.Prompt)
	}
}

// TestNoActiveJobErrors: output and completion without an active job
// are rejected.
func TestNoActiveJobErrors(t *testing.T) {
	eng := New(DefaultConfig(), nil)

	if err := eng.AppendActiveOutput("line"); !errors.Is(err, ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
	if _, err := eng.FinishActiveJob(true, 0); !errors.Is(err, ErrNoActiveJob) {
		t.Fatalf("expected ErrNoActiveJob, got %v", err)
	}
}

// TestTopLevelOrdering: task two never starts before task one is done.
func TestTopLevelOrdering(t *testing.T) {
	nodes := []*plan.Node{
		pnode("t2", "", plan.RoleTask, 2),
		pnode("imp2", "t2", plan.RoleImplementor, 1),
		pnode("aud2", "imp2", plan.RoleAuditor, 1),
		pnode("t1", "", plan.RoleTask, 1),
		pnode("imp1", "t1", plan.RoleImplementor, 1),
		pnode("aud1", "imp1", plan.RoleAuditor, 1),
	}
	eng := newTestEngine(t, DefaultConfig(), nodes)

	job := startJob(t, eng, plan.RoleImplementor)
	if job.TaskID != "t1" {
		t.Fatalf("task order violated: first job belongs to %s", job.TaskID)
	}
	finish(t, eng, true, 0)
	startJob(t, eng, plan.RoleAuditor)
	finish(t, eng, true, 0, "AUDIT_RESULT: PASS")

	job = startJob(t, eng, plan.RoleImplementor)
	if job.TaskID != "t2" {
		t.Fatalf("expected task t2 next, got %s", job.TaskID)
	}
}
