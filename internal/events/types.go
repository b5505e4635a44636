package events

import (
	"time"

	"github.com/oakbuild/foreman/internal/engine"
)

// Event is the base interface for all events.
type Event interface {
	EventType() string
	NodeID() string
}

// Topic constants
const (
	TopicJob = "job"
	TopicRun = "run"
)

// Event type constants
const (
	EventTypeJobStarted      = "job.started"
	EventTypeJobOutput       = "job.output"
	EventTypeJobFinished     = "job.finished"
	EventTypeFailureRecorded = "run.failure_recorded"
	EventTypeRunCompleted    = "run.completed"
)

// JobStartedEvent is published when a job is handed to a worker.
type JobStartedEvent struct {
	ID        string // Node being executed
	TaskID    string
	TaskTitle string
	Role      string
	Timestamp time.Time
}

func (e JobStartedEvent) EventType() string { return EventTypeJobStarted }
func (e JobStartedEvent) NodeID() string    { return e.ID }

// JobOutputEvent is published for each transcript line a worker emits.
type JobOutputEvent struct {
	ID        string
	Line      string
	Timestamp time.Time
}

func (e JobOutputEvent) EventType() string { return EventTypeJobOutput }
func (e JobOutputEvent) NodeID() string    { return e.ID }

// JobFinishedEvent is published after the engine absorbs a worker report.
type JobFinishedEvent struct {
	ID        string
	Success   bool
	ExitCode  int
	Messages  []string // Human-readable status messages from the engine
	Duration  time.Duration
	Timestamp time.Time
}

func (e JobFinishedEvent) EventType() string { return EventTypeJobFinished }
func (e JobFinishedEvent) NodeID() string    { return e.ID }

// FailureRecordedEvent is published when a retry ceiling was exhausted
// and the engine recorded a workflow failure.
type FailureRecordedEvent struct {
	Failure   engine.WorkflowFailure
	Timestamp time.Time
}

func (e FailureRecordedEvent) EventType() string { return EventTypeFailureRecorded }
func (e FailureRecordedEvent) NodeID() string    { return e.Failure.TaskID }

// RunCompletedEvent is published when no further job is available.
type RunCompletedEvent struct {
	Clean     bool // True when every task and final audit finished done
	Timestamp time.Time
}

func (e RunCompletedEvent) EventType() string { return EventTypeRunCompleted }
func (e RunCompletedEvent) NodeID() string    { return "" }
