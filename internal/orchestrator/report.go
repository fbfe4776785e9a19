package orchestrator

import "time"

// TaskState is the final classification of one task within a run.
type TaskState string

const (
	StateSucceeded TaskState = "succeeded"
	StateFailed    TaskState = "failed"    // retries exhausted
	StateBlocked   TaskState = "blocked"   // an upstream dependency kept it from starting
	StateCancelled TaskState = "cancelled" // the run ended before it could settle
)

// TaskOutcome records how one task ended.
type TaskOutcome struct {
	TaskID   string
	Name     string
	Resource string
	Group    int // execution group index the task was scheduled into

	State    TaskState
	Strategy string // strategy in effect when the task settled
	Attempts int
	Output   string
	Err      error
	Reason   string // for blocked tasks, names the dependency at fault
	Duration time.Duration
}

// RunReport is the settled view of a whole run, one outcome per task.
type RunReport struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Groups    int
	Outcomes  map[string]TaskOutcome
}

// Counts tallies outcomes by state.
func (r *RunReport) Counts() (succeeded, failed, blocked, cancelled int) {
	for _, o := range r.Outcomes {
		switch o.State {
		case StateSucceeded:
			succeeded++
		case StateFailed:
			failed++
		case StateBlocked:
			blocked++
		case StateCancelled:
			cancelled++
		}
	}
	return succeeded, failed, blocked, cancelled
}
