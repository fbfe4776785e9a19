package events

import (
	"time"
)

// Event is the base interface for engine lifecycle events. Kind is a
// dot-separated name whose first segment is the publish topic.
type Event interface {
	Kind() string
	TaskID() string // empty for group-, run-, and pool-level events
}

// Topic constants
const (
	TopicTask  = "task"
	TopicGroup = "group"
	TopicRun   = "run"
	TopicPool  = "pool"
)

// Event kind constants
const (
	KindTaskStarted   = "task.started"
	KindTaskRetrying  = "task.retrying"
	KindTaskCompleted = "task.completed"
	KindTaskFailed    = "task.failed"
	KindTaskBlocked   = "task.blocked"
	KindTaskCancelled = "task.cancelled"
	KindGroupStarted  = "group.started"
	KindGroupFinished = "group.finished"
	KindRunStarted    = "run.started"
	KindRunProgress   = "run.progress"
	KindRunFinished   = "run.finished"
	KindPoolStats     = "pool.stats"
)

// TaskStartedEvent is published when a task's first attempt begins.
type TaskStartedEvent struct {
	ID        string
	Name      string
	Resource  string
	Group     int
	Timestamp time.Time
}

func (e TaskStartedEvent) Kind() string   { return KindTaskStarted }
func (e TaskStartedEvent) TaskID() string { return e.ID }

// TaskRetryingEvent is published before each retry attempt, carrying the
// strategy the next attempt will run under.
type TaskRetryingEvent struct {
	ID        string
	Strategy  string
	Attempt   int
	Err       string
	Timestamp time.Time
}

func (e TaskRetryingEvent) Kind() string   { return KindTaskRetrying }
func (e TaskRetryingEvent) TaskID() string { return e.ID }

// TaskCompletedEvent is published when a task succeeds.
type TaskCompletedEvent struct {
	ID        string
	Strategy  string
	Attempts  int
	Output    string
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskCompletedEvent) Kind() string   { return KindTaskCompleted }
func (e TaskCompletedEvent) TaskID() string { return e.ID }

// TaskFailedEvent is published when a task fails for good, retries included.
type TaskFailedEvent struct {
	ID        string
	Err       error
	Attempts  int
	Duration  time.Duration
	Timestamp time.Time
}

func (e TaskFailedEvent) Kind() string   { return KindTaskFailed }
func (e TaskFailedEvent) TaskID() string { return e.ID }

// TaskBlockedEvent is published for tasks that never start because an
// upstream dependency failed or the run was cancelled.
type TaskBlockedEvent struct {
	ID        string
	Reason    string
	Timestamp time.Time
}

func (e TaskBlockedEvent) Kind() string   { return KindTaskBlocked }
func (e TaskBlockedEvent) TaskID() string { return e.ID }

// TaskCancelledEvent is published when a dispatched task is abandoned by
// run cancellation.
type TaskCancelledEvent struct {
	ID        string
	Timestamp time.Time
}

func (e TaskCancelledEvent) Kind() string   { return KindTaskCancelled }
func (e TaskCancelledEvent) TaskID() string { return e.ID }

// GroupStartedEvent is published when an execution group begins dispatch.
type GroupStartedEvent struct {
	Index     int
	Size      int
	Timestamp time.Time
}

func (e GroupStartedEvent) Kind() string   { return KindGroupStarted }
func (e GroupStartedEvent) TaskID() string { return "" }

// GroupFinishedEvent is published when every task in a group is terminal.
type GroupFinishedEvent struct {
	Index     int
	Failed    int
	Duration  time.Duration
	Timestamp time.Time
}

func (e GroupFinishedEvent) Kind() string   { return KindGroupFinished }
func (e GroupFinishedEvent) TaskID() string { return "" }

// RunStartedEvent is published once per run, before the first group.
type RunStartedEvent struct {
	RunID     string
	Total     int
	Groups    int
	Timestamp time.Time
}

func (e RunStartedEvent) Kind() string   { return KindRunStarted }
func (e RunStartedEvent) TaskID() string { return "" }

// RunProgressEvent is published whenever a task reaches a terminal state.
// Remaining counts tasks not yet settled, running ones included.
type RunProgressEvent struct {
	Total     int
	Completed int
	Failed    int
	Blocked   int
	Cancelled int
	Remaining int
	Timestamp time.Time
}

func (e RunProgressEvent) Kind() string   { return KindRunProgress }
func (e RunProgressEvent) TaskID() string { return "" }

// RunFinishedEvent is published once per run, after the last group.
type RunFinishedEvent struct {
	RunID     string
	Completed int
	Failed    int
	Blocked   int
	Cancelled int
	Duration  time.Duration
	Timestamp time.Time
}

func (e RunFinishedEvent) Kind() string   { return KindRunFinished }
func (e RunFinishedEvent) TaskID() string { return "" }

// PoolStatsEvent is a periodic snapshot of slot usage.
type PoolStatsEvent struct {
	Used      int
	Available int
	Total     int
	Timestamp time.Time
}

func (e PoolStatsEvent) Kind() string   { return KindPoolStats }
func (e PoolStatsEvent) TaskID() string { return "" }
