package engine

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/oakbuild/foreman/internal/plan"
)

// Engine errors surfaced synchronously to the caller.
var (
	// ErrBusy is returned when a structural reload is attempted while a
	// job is active or queued. The prior tree is left untouched.
	ErrBusy = errors.New("engine is busy: reload requires an idle engine")

	// ErrNoActiveJob is returned when output or a completion report
	// arrives without an in-flight job.
	ErrNoActiveJob = errors.New("no active job")
)

// Config holds the engine's retry ceilings and context window size.
// Zero values fall back to the package defaults.
type Config struct {
	AuditPasses      int // Implementor <-> auditor chain ceiling
	TestPasses       int // Test-run family ceiling
	FinalAuditPasses int // Final audit ceiling; no evidenced default, so always configurable
	ContextWindow    int // Rolling context entries retained
}

// DefaultConfig returns the default ceilings.
func DefaultConfig() Config {
	return Config{
		AuditPasses:      DefaultAuditPasses,
		TestPasses:       DefaultTestPasses,
		FinalAuditPasses: DefaultFinalAuditPasses,
		ContextWindow:    DefaultContextWindow,
	}
}

func (c Config) withDefaults() Config {
	if c.AuditPasses <= 0 {
		c.AuditPasses = DefaultAuditPasses
	}
	if c.TestPasses <= 0 {
		c.TestPasses = DefaultTestPasses
	}
	if c.FinalAuditPasses <= 0 {
		c.FinalAuditPasses = DefaultFinalAuditPasses
	}
	if c.ContextWindow <= 0 {
		c.ContextWindow = DefaultContextWindow
	}
	return c
}

// branchState is the transient per-branch-instance bookkeeping: pass
// counters, threaded feedback, and the correlation key. It is never
// persisted; reload reconstructs resume position from node statuses and
// starts counters fresh.
type branchState struct {
	contextKey      string
	auditCycle      int // 1-based implementor <-> auditor pass number
	testPasses      int // 1-based test-run family pass number
	auditorAttempts map[string]int // Runs per auditor; drives that auditor's strictness tier
	cleanupPending  bool
	feedback        string
}

type activeJob struct {
	job   Job
	lines []string
}

// Engine drives the single-job workflow: it owns the task graph, a FIFO
// queue of pending jobs plus at most one active job, and the retry and
// audit interpretation policy. All methods are synchronous; the caller
// alternates StartNextJob and FinishActiveJob from one control thread.
type Engine struct {
	mu sync.Mutex

	cfg   Config
	build PromptBuilder

	graph   *plan.Graph
	started bool
	halted  bool // Final audit ceiling exhausted; nothing further is queued

	queue  []Job
	active *activeJob

	branches      map[string]*branchState
	finalAttempts map[string]int
	finalFeedback map[string]string

	log      *ContextLog
	failures []WorkflowFailure
}

// New creates an engine with the given ceilings. A nil builder falls
// back to the plain-text default.
func New(cfg Config, build PromptBuilder) *Engine {
	cfg = cfg.withDefaults()
	if build == nil {
		build = defaultPromptBuilder
	}
	return &Engine{
		cfg:           cfg,
		build:         build,
		graph:         plan.NewGraph(),
		branches:      make(map[string]*branchState),
		finalAttempts: make(map[string]int),
		finalFeedback: make(map[string]string),
		log:           NewContextLog(cfg.ContextWindow),
	}
}

// Load validates a candidate node list and atomically replaces the live
// tree. It fails without touching prior state if validation rejects the
// tree or the engine has an active or queued job. Per-branch pass
// counters are reset; the rolling context survives, since it belongs to
// the run rather than to any one tree revision.
func (e *Engine) Load(nodes []*plan.Node) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil || len(e.queue) > 0 {
		return 0, fmt.Errorf("%w (%d queued, active=%v)", ErrBusy, len(e.queue), e.active != nil)
	}

	graph, err := plan.Build(nodes)
	if err != nil {
		return 0, err
	}

	e.graph = graph
	e.branches = make(map[string]*branchState)
	e.finalAttempts = make(map[string]int)
	e.finalFeedback = make(map[string]string)
	e.halted = false
	return graph.Len(), nil
}

// Graph returns the live task graph. Reads produce copies, so callers
// may snapshot it at any point, including mid-run.
func (e *Engine) Graph() *plan.Graph {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph
}

// ContextEntries returns the rolling context window, oldest first.
func (e *Engine) ContextEntries() []string {
	return e.log.Entries()
}

// Busy reports whether a job is active or queued.
func (e *Engine) Busy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.active != nil || len(e.queue) > 0
}

// DrainFailures returns all recorded workflow failures and clears them.
func (e *Engine) DrainFailures() []WorkflowFailure {
	e.mu.Lock()
	defer e.mu.Unlock()
	failures := e.failures
	e.failures = nil
	return failures
}

// StartExecution enables dispatch. If nothing is queued it seeds the
// queue with the first outstanding step of the first unfinished
// top-level task, resuming mid-branch from persisted statuses.
func (e *Engine) StartExecution() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.started = true
	if e.active == nil && len(e.queue) == 0 {
		e.seed()
	}
}

// StartNextJob pops the queue into the active slot and returns the job.
// Returns nil when nothing is queued: the run is idle or complete.
// Advancing to the next top-level task never happens here; only
// FinishActiveJob enqueues further work, so two top-level tasks are
// never concurrently active.
func (e *Engine) StartNextJob() *Job {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active != nil || len(e.queue) == 0 {
		return nil
	}

	job := e.queue[0]
	e.queue = e.queue[1:]
	e.active = &activeJob{job: job}

	_ = e.graph.SetStatus(job.NodeID, plan.StatusInProgress)
	if task, ok := e.graph.Get(job.TaskID); ok && task.Status == plan.StatusPending {
		_ = e.graph.SetStatus(task.ID, plan.StatusInProgress)
	}

	out := job
	return &out
}

// AppendActiveOutput accumulates one transcript line for the in-flight
// job. The caller streams worker output as it arrives.
func (e *Engine) AppendActiveOutput(line string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return ErrNoActiveJob
	}
	e.active.lines = append(e.active.lines, line)
	return nil
}

// FinishActiveJob is the core transition function. It interprets the
// worker report per the active job's role, updates node statuses and
// pass counters, appends a rolling context entry, clears the active
// slot, queues the next job, and returns human-readable messages for
// the caller to surface. Worker failure is never itself fatal here; it
// only becomes a recorded WorkflowFailure once a retry ceiling is
// exhausted.
func (e *Engine) FinishActiveJob(success bool, exitCode int) ([]string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.active == nil {
		return nil, ErrNoActiveJob
	}

	job := e.active.job
	lines := e.active.lines
	e.active = nil

	var msgs []string
	var outcome string

	switch job.Role {
	case plan.RoleImplementor, plan.RoleTestWriter:
		outcome = e.finishGenerative(job, lines, success, exitCode, &msgs)
	case plan.RoleAuditor:
		outcome = e.finishAudit(job, lines, success, exitCode, &msgs)
	case plan.RoleTestRunner:
		outcome = e.finishTestRun(job, lines, success, exitCode, &msgs)
	case plan.RoleFinalAudit:
		outcome = e.finishFinalAudit(job, lines, success, exitCode, &msgs)
	default:
		outcome = fmt.Sprintf("unhandled role %s", job.Role)
	}

	e.log.Append(fmt.Sprintf("%s on %s: %s", job.Role, job.TaskTitle, outcome))

	if job.Role != plan.RoleFinalAudit {
		if task, ok := e.graph.Get(job.TaskID); ok && task.Status != plan.StatusDone && e.taskDone(task) {
			_ = e.graph.SetStatus(task.ID, plan.StatusDone)
			msgs = append(msgs, fmt.Sprintf("Task %q complete", task.Title))
		}
	}

	if e.started && len(e.queue) == 0 {
		if !e.seed() && !e.halted && e.runComplete() {
			msgs = append(msgs, "All tasks complete; run finished")
		}
	}

	return msgs, nil
}

// seed scans top-level tasks in ascending order for the first one not
// fully done and enqueues its next outstanding step. Once every
// non-final task is done, final audit nodes become eligible in order.
// Returns false when nothing was enqueued.
func (e *Engine) seed() bool {
	if e.halted {
		return false
	}

	for _, task := range e.graph.TopLevelTasks() {
		roots := e.branchRoots(task.ID)
		if len(roots) == 0 {
			if task.Status != plan.StatusDone {
				_ = e.graph.SetStatus(task.ID, plan.StatusDone)
			}
			continue
		}

		allDone := true
		for _, root := range roots {
			// Synthesize missing default children before judging the
			// branch complete, or a test writer persisted as done with
			// no runner would close without any test run.
			e.ensureDefaults(root)
			if e.branchDone(root.ID) {
				continue
			}
			allDone = false
			if job, ok := e.nextJobForBranch(task, root); ok {
				e.queue = append(e.queue, job)
				return true
			}
			break
		}
		if allDone {
			if task.Status != plan.StatusDone {
				_ = e.graph.SetStatus(task.ID, plan.StatusDone)
			}
			continue
		}
		return false
	}

	for _, audit := range e.graph.FinalAudits() {
		if audit.Status == plan.StatusDone {
			continue
		}
		e.queue = append(e.queue, e.finalAuditJob(audit))
		return true
	}

	return false
}

// branchRoots returns the task's implementor and test-writer children
// in sibling order.
func (e *Engine) branchRoots(taskID string) []*plan.Node {
	var roots []*plan.Node
	for _, child := range e.graph.Children(taskID) {
		if child.Role == plan.RoleImplementor || child.Role == plan.RoleTestWriter {
			roots = append(roots, child)
		}
	}
	return roots
}

// branchDone reports whether a branch subtree has fully completed: the
// branch step itself, every auditor in its chain, and its test runner.
func (e *Engine) branchDone(rootID string) bool {
	root, ok := e.graph.Get(rootID)
	if !ok || root.Status != plan.StatusDone {
		return false
	}
	for _, child := range e.graph.Children(rootID) {
		if child.Role != plan.RoleAuditor && child.Role != plan.RoleTestRunner {
			continue
		}
		if child.Status != plan.StatusDone {
			return false
		}
	}
	return true
}

func (e *Engine) taskDone(task *plan.Node) bool {
	for _, root := range e.branchRoots(task.ID) {
		e.ensureDefaults(root)
		if !e.branchDone(root.ID) {
			return false
		}
	}
	return true
}

// nextJobForBranch derives the branch's next outstanding step from node
// statuses alone, which is what makes mid-run snapshots resumable.
func (e *Engine) nextJobForBranch(task, root *plan.Node) (Job, bool) {
	e.ensureDefaults(root)
	bs := e.branch(root.ID)

	if root.Status != plan.StatusDone {
		req := PromptRequest{
			Node:     *root,
			Role:     root.Role,
			Context:  e.log.Entries(),
			Feedback: bs.feedback,
			Cleanup:  bs.cleanupPending && root.Role == plan.RoleTestWriter,
		}
		return Job{
			TaskID:           task.ID,
			TaskTitle:        task.Title,
			NodeID:           root.ID,
			Role:             root.Role,
			Kind:             JobAgent,
			Prompt:           e.build(req),
			ParentContextKey: bs.contextKey,
		}, true
	}

	for _, auditor := range e.graph.ChildrenWithRole(root.ID, plan.RoleAuditor) {
		if auditor.Status == plan.StatusDone {
			continue
		}
		req := PromptRequest{
			Node: *auditor,
			Role: plan.RoleAuditor,
			// Strictness tracks how often this auditor has run, not the
			// chain cycle: a chain member reached for the first time on a
			// later cycle still reviews thoroughly.
			Tier:    tierForPass(bs.auditorAttempts[auditor.ID]+1, e.cfg.AuditPasses),
			Context: e.log.Entries(),
		}
		return Job{
			TaskID:           task.ID,
			TaskTitle:        task.Title,
			NodeID:           auditor.ID,
			Role:             plan.RoleAuditor,
			Kind:             JobAgent,
			Prompt:           e.build(req),
			ParentContextKey: bs.contextKey,
		}, true
	}

	for _, runner := range e.graph.ChildrenWithRole(root.ID, plan.RoleTestRunner) {
		if runner.Status == plan.StatusDone {
			continue
		}
		return Job{
			TaskID:           task.ID,
			TaskTitle:        task.Title,
			NodeID:           runner.ID,
			Role:             plan.RoleTestRunner,
			Kind:             JobTest,
			ParentContextKey: bs.contextKey,
		}, true
	}

	return Job{}, false
}

func (e *Engine) finalAuditJob(node *plan.Node) Job {
	bs := e.branch(node.ID)
	req := PromptRequest{
		Node:     *node,
		Role:     plan.RoleFinalAudit,
		Tier:     tierForPass(e.finalAttempts[node.ID]+1, e.cfg.FinalAuditPasses),
		Context:  e.log.Entries(),
		Feedback: e.finalFeedback[node.ID],
	}
	return Job{
		TaskID:           node.ID,
		TaskTitle:        node.Title,
		NodeID:           node.ID,
		Role:             plan.RoleFinalAudit,
		Kind:             JobAgent,
		Prompt:           e.build(req),
		ParentContextKey: bs.contextKey,
	}
}

// ensureDefaults synthesizes a branch's mandatory children when they
// are missing: an "Audit" auditor under an implementor, a "Run tests"
// runner under a test writer. Nothing is synthesized under roots that
// are already done or that are final audit nodes.
func (e *Engine) ensureDefaults(root *plan.Node) {
	top, err := e.graph.TopLevelAncestor(root.ID)
	if err != nil || top.Status == plan.StatusDone || top.Role == plan.RoleFinalAudit {
		return
	}

	maxOrder := 0
	for _, child := range e.graph.Children(root.ID) {
		if child.Order > maxOrder {
			maxOrder = child.Order
		}
	}

	if root.Role == plan.RoleImplementor && len(e.graph.ChildrenWithRole(root.ID, plan.RoleAuditor)) == 0 {
		_ = e.graph.Add(&plan.Node{
			ID:       uuid.NewString(),
			Title:    "Audit",
			Details:  "Review the work produced by this branch for correctness and completeness.",
			Role:     plan.RoleAuditor,
			Status:   plan.StatusPending,
			ParentID: root.ID,
			Order:    maxOrder + 1,
		})
	}

	if root.Role == plan.RoleTestWriter && len(e.graph.ChildrenWithRole(root.ID, plan.RoleTestRunner)) == 0 {
		_ = e.graph.Add(&plan.Node{
			ID:       uuid.NewString(),
			Title:    "Run tests",
			Details:  "Run the configured test command against the tests written by this branch.",
			Role:     plan.RoleTestRunner,
			Status:   plan.StatusPending,
			ParentID: root.ID,
			Order:    maxOrder + 2,
		})
	}
}

// branch returns the transient state for a branch instance, creating it
// with a fresh correlation key on first use. Keys are stable across the
// branch's retry cycles and never reused across branches.
func (e *Engine) branch(rootID string) *branchState {
	bs, ok := e.branches[rootID]
	if !ok {
		bs = &branchState{
			contextKey:      fmt.Sprintf("%s/%s", rootID, uuid.NewString()),
			auditCycle:      1,
			testPasses:      1,
			auditorAttempts: make(map[string]int),
		}
		e.branches[rootID] = bs
	}
	return bs
}

// finishGenerative handles implementor and test-writer completions,
// including the post-exhaustion cleanup pass for test writers.
func (e *Engine) finishGenerative(job Job, lines []string, success bool, exitCode int, msgs *[]string) string {
	bs := e.branch(job.NodeID)
	node, ok := e.graph.Get(job.NodeID)
	if !ok {
		return fmt.Sprintf("node %q vanished from graph", job.NodeID)
	}

	if bs.cleanupPending && node.Role == plan.RoleTestWriter {
		if !success {
			_ = e.graph.SetStatus(node.ID, plan.StatusNeedsChanges)
			bs.feedback = fmt.Sprintf("previous run failed with code %d", exitCode)
			return fmt.Sprintf("cleanup pass failed (exit code %d), requeued", exitCode)
		}
		// Branch closes without a further test run.
		_ = e.graph.SetStatus(node.ID, plan.StatusDone)
		for _, runner := range e.graph.ChildrenWithRole(node.ID, plan.RoleTestRunner) {
			_ = e.graph.SetStatus(runner.ID, plan.StatusDone)
		}
		bs.cleanupPending = false
		bs.feedback = ""
		*msgs = append(*msgs, fmt.Sprintf("Failing tests removed on %q; branch closed", job.TaskTitle))
		return "cleanup pass succeeded, failing tests removed"
	}

	if !success {
		_ = e.graph.SetStatus(node.ID, plan.StatusNeedsChanges)
		bs.feedback = fmt.Sprintf("previous run failed with code %d", exitCode)
		return fmt.Sprintf("failed (exit code %d), requeued", exitCode)
	}

	_ = e.graph.SetStatus(node.ID, plan.StatusDone)
	bs.feedback = ""
	return "completed"
}

// finishAudit interprets an auditor transcript. A worker failure counts
// as a failed pass. A FAIL verdict resets the whole chain: the branch
// root is requeued and, on its next success, the chain restarts from
// its first member.
func (e *Engine) finishAudit(job Job, lines []string, success bool, exitCode int, msgs *[]string) string {
	node, ok := e.graph.Get(job.NodeID)
	if !ok {
		return fmt.Sprintf("node %q vanished from graph", job.NodeID)
	}
	bs := e.branch(node.ParentID)
	bs.auditorAttempts[node.ID]++

	verdict := VerdictFail
	if success {
		verdict = Classify(lines)
	}

	if verdict == VerdictPass {
		_ = e.graph.SetStatus(node.ID, plan.StatusDone)
		return "PASS"
	}

	attempts := bs.auditCycle
	if attempts >= e.cfg.AuditPasses {
		// Ceiling hit: close the chain and keep the run moving.
		for _, auditor := range e.graph.ChildrenWithRole(node.ParentID, plan.RoleAuditor) {
			if auditor.Status != plan.StatusDone {
				_ = e.graph.SetStatus(auditor.ID, plan.StatusDone)
			}
		}
		e.failures = append(e.failures, WorkflowFailure{
			Kind:      FailureAudit,
			TaskID:    job.TaskID,
			TaskTitle: job.TaskTitle,
			Attempts:  attempts,
			Reason:    lastReason(lines, exitCode),
			Action:    "audit chain closed after repeated failures; continuing to next step",
		})
		*msgs = append(*msgs, fmt.Sprintf("Audit ceiling reached on %q after %d passes; continuing", job.TaskTitle, attempts))
		return fmt.Sprintf("FAIL (pass %d of %d, ceiling reached; continuing)", attempts, e.cfg.AuditPasses)
	}

	branchRoot, _ := e.graph.Get(node.ParentID)
	_ = e.graph.SetStatus(node.ParentID, plan.StatusNeedsChanges)
	for _, auditor := range e.graph.ChildrenWithRole(node.ParentID, plan.RoleAuditor) {
		_ = e.graph.SetStatus(auditor.ID, plan.StatusPending)
	}
	bs.auditCycle++
	bs.feedback = synthesizeFeedback(lines, exitCode)
	return fmt.Sprintf("FAIL (pass %d of %d), %s requeued", attempts, e.cfg.AuditPasses, branchRoot.Role)
}

// finishTestRun handles deterministic test-run completions for both
// owner kinds: a test writer's mandatory runner and an implementor's
// own existing-test runner.
func (e *Engine) finishTestRun(job Job, lines []string, success bool, exitCode int, msgs *[]string) string {
	node, ok := e.graph.Get(job.NodeID)
	if !ok {
		return fmt.Sprintf("node %q vanished from graph", job.NodeID)
	}
	owner, ok := e.graph.Get(node.ParentID)
	if !ok {
		return fmt.Sprintf("test runner %q has no parent", job.NodeID)
	}
	bs := e.branch(owner.ID)

	if success {
		_ = e.graph.SetStatus(node.ID, plan.StatusDone)
		return "tests passed"
	}

	attempts := bs.testPasses
	if attempts >= e.cfg.TestPasses {
		failure := WorkflowFailure{
			Kind:      FailureTest,
			TaskID:    job.TaskID,
			TaskTitle: job.TaskTitle,
			Attempts:  attempts,
			Reason:    lastReason(lines, exitCode),
		}
		if owner.Role == plan.RoleTestWriter {
			failure.Action = "queued a cleanup pass to remove the failing tests"
			bs.cleanupPending = true
			bs.feedback = synthesizeFeedback(lines, exitCode)
			_ = e.graph.SetStatus(node.ID, plan.StatusNeedsChanges)
			_ = e.graph.SetStatus(owner.ID, plan.StatusNeedsChanges)
			e.failures = append(e.failures, failure)
			*msgs = append(*msgs, fmt.Sprintf("Test ceiling reached on %q after %d passes; queueing cleanup pass", job.TaskTitle, attempts))
			return fmt.Sprintf("tests failed (pass %d of %d, ceiling reached; cleanup queued)", attempts, e.cfg.TestPasses)
		}
		failure.Action = "test runner and implementor forced done; continuing"
		_ = e.graph.SetStatus(node.ID, plan.StatusDone)
		_ = e.graph.SetStatus(owner.ID, plan.StatusDone)
		e.failures = append(e.failures, failure)
		*msgs = append(*msgs, fmt.Sprintf("Test ceiling reached on %q after %d passes; continuing", job.TaskTitle, attempts))
		return fmt.Sprintf("tests failed (pass %d of %d, ceiling reached; forced done)", attempts, e.cfg.TestPasses)
	}

	bs.testPasses++
	bs.feedback = synthesizeFeedback(lines, exitCode)
	_ = e.graph.SetStatus(node.ID, plan.StatusNeedsChanges)
	_ = e.graph.SetStatus(owner.ID, plan.StatusNeedsChanges)
	return fmt.Sprintf("tests failed (pass %d of %d), %s requeued", attempts, e.cfg.TestPasses, owner.Role)
}

// finishFinalAudit requires the explicit pass token on a successful
// exit; a heuristic-only pass leaves the node needing changes. On
// ceiling exhaustion the node stays unresolved and nothing further is
// queued: the run ends in a non-terminal state the caller must surface.
func (e *Engine) finishFinalAudit(job Job, lines []string, success bool, exitCode int, msgs *[]string) string {
	node, ok := e.graph.Get(job.NodeID)
	if !ok {
		return fmt.Sprintf("node %q vanished from graph", job.NodeID)
	}

	attempts := e.finalAttempts[node.ID] + 1
	e.finalAttempts[node.ID] = attempts

	if success && HasExplicitPass(lines) {
		_ = e.graph.SetStatus(node.ID, plan.StatusDone)
		return "PASS"
	}

	_ = e.graph.SetStatus(node.ID, plan.StatusNeedsChanges)

	if attempts >= e.cfg.FinalAuditPasses {
		e.halted = true
		e.failures = append(e.failures, WorkflowFailure{
			Kind:      FailureAudit,
			TaskID:    node.ID,
			TaskTitle: node.Title,
			Attempts:  attempts,
			Reason:    lastReason(lines, exitCode),
			Action:    "final audit left unresolved; no further jobs queued",
		})
		*msgs = append(*msgs, fmt.Sprintf("Final audit ceiling reached after %d passes; run halted without a clean gate", attempts))
		return fmt.Sprintf("FAIL (pass %d of %d, ceiling reached; run halted)", attempts, e.cfg.FinalAuditPasses)
	}

	e.finalFeedback[node.ID] = synthesizeFeedback(lines, exitCode)
	return fmt.Sprintf("no explicit pass (pass %d of %d), requeued", attempts, e.cfg.FinalAuditPasses)
}

// runComplete reports whether every top-level task and every final
// audit node is done.
func (e *Engine) runComplete() bool {
	for _, task := range e.graph.TopLevelTasks() {
		if task.Status != plan.StatusDone {
			return false
		}
	}
	for _, audit := range e.graph.FinalAudits() {
		if audit.Status != plan.StatusDone {
			return false
		}
	}
	return true
}
