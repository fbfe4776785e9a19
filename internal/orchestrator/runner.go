// Package orchestrator drives whole runs: it levels the dependency graph
// into execution groups, dispatches each group through the supervisor with
// bounded concurrency, throttles per-resource work through the slot pool,
// and retries failed tasks with progressively adjusted strategies.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hivegrid/hivegrid/internal/events"
	"github.com/hivegrid/hivegrid/internal/executor"
	"github.com/hivegrid/hivegrid/internal/pool"
	"github.com/hivegrid/hivegrid/internal/retry"
	"github.com/hivegrid/hivegrid/internal/scheduler"
	"github.com/hivegrid/hivegrid/internal/supervisor"
)

// DefaultMaxConcurrency bounds tasks in flight when the config leaves it
// unset.
const DefaultMaxConcurrency = 4

// Config configures a Runner. Executor is the only required field; every
// other collaborator is optional and its absence simply disables the
// corresponding behavior.
type Config struct {
	// MaxConcurrency caps tasks in flight across the whole run, on top of
	// any per-resource limits. Zero means DefaultMaxConcurrency.
	MaxConcurrency int

	// TaskTimeout bounds each individual attempt. Zero disables it.
	TaskTimeout time.Duration

	// Executor runs single attempts.
	Executor executor.Executor

	// Pool throttles tasks by their Resource. Nil disables throttling.
	Pool *pool.SlotPool

	// Retry escalates failed tasks through progressive strategies. Nil gets
	// a controller with default settings.
	Retry *retry.Controller

	// Supervisor tracks in-flight tasks. Nil gets a fresh one; pass a shared
	// instance to observe or cancel tasks from outside the run.
	Supervisor *supervisor.Supervisor

	// Breakers short-circuits resources that keep failing. Nil disables
	// circuit breaking.
	Breakers *BreakerRegistry

	// Bus receives lifecycle events. Nil disables publishing.
	Bus *events.Bus
}

// Runner executes dependency-ordered task runs. A Runner is reusable across
// sequential runs but must not execute two runs at once.
type Runner struct {
	cfg Config
	sup *supervisor.Supervisor

	mu       sync.Mutex
	outcomes map[string]TaskOutcome
	total    int
}

// New creates a runner.
func New(cfg Config) (*Runner, error) {
	if cfg.Executor == nil {
		return nil, fmt.Errorf("runner requires an executor")
	}
	if cfg.MaxConcurrency < 0 {
		return nil, fmt.Errorf("max concurrency must not be negative, got %d", cfg.MaxConcurrency)
	}
	if cfg.TaskTimeout < 0 {
		return nil, fmt.Errorf("task timeout must not be negative, got %v", cfg.TaskTimeout)
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}

	if cfg.Retry == nil {
		rc, err := retry.New(retry.Config{})
		if err != nil {
			return nil, err
		}
		cfg.Retry = rc
	}

	r := &Runner{cfg: cfg, sup: cfg.Supervisor}
	if r.sup == nil {
		r.sup = supervisor.New()
	}
	return r, nil
}

// Run executes nodes to completion and reports every task's outcome.
// Individual task failures are recorded in the report, never returned as an
// error: the error is non-nil only for an invalid graph or when ctx ends
// before the run does.
func (r *Runner) Run(ctx context.Context, nodes []scheduler.Node) (*RunReport, error) {
	groups, err := scheduler.BuildGroups(nodes)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*scheduler.Node, len(nodes))
	for _, group := range groups {
		for _, n := range group {
			byID[n.ID] = n
		}
	}

	// Reset per-run state so a Runner can be reused sequentially.
	r.mu.Lock()
	r.outcomes = make(map[string]TaskOutcome, len(nodes))
	r.total = len(nodes)
	r.mu.Unlock()
	r.sup.Clear()

	report := &RunReport{
		RunID:     uuid.New().String(),
		StartedAt: time.Now(),
		Groups:    len(groups),
	}

	r.publish(events.RunStartedEvent{
		RunID:     report.RunID,
		Total:     len(nodes),
		Groups:    len(groups),
		Timestamp: time.Now(),
	})

	// Run-wide concurrency tokens. Tasks take a resource slot first, then a
	// token; keeping the order identical everywhere rules out deadlock
	// between the two gates.
	tokens := make(chan struct{}, r.cfg.MaxConcurrency)

	for gi, group := range groups {
		if ctx.Err() != nil {
			r.cancelFrom(groups, gi)
			break
		}

		r.publish(events.GroupStartedEvent{Index: gi, Size: len(group), Timestamp: time.Now()})
		groupStart := time.Now()

		// Dispatch the group. Tasks whose upstream failures block them are
		// settled immediately and never launched.
		var handles []*supervisor.Handle
		for _, n := range group {
			if reason := r.blockedReason(byID, n); reason != "" {
				if r.record(TaskOutcome{
					TaskID:   n.ID,
					Name:     n.Name,
					Resource: n.Resource,
					Group:    gi,
					State:    StateBlocked,
					Reason:   reason,
				}) {
					r.publish(events.TaskBlockedEvent{ID: n.ID, Reason: reason, Timestamp: time.Now()})
				}
				continue
			}

			n := n
			gi := gi
			h := r.sup.Launch(ctx, func(opCtx context.Context) (any, error) {
				return r.runTask(opCtx, n, gi, tokens)
			}, supervisor.WithID(n.ID))
			handles = append(handles, h)
		}

		// Group barrier: the next group may not start until every task here
		// is settled (or the run is cancelled out from under them).
		for _, h := range handles {
			o := h.Wait(ctx)
			r.settleAbandoned(byID[h.ID()], gi, o)
		}

		failed := 0
		for _, n := range group {
			if o, ok := r.outcome(n.ID); ok && o.State == StateFailed {
				failed++
			}
		}
		r.publish(events.GroupFinishedEvent{
			Index:     gi,
			Failed:    failed,
			Duration:  time.Since(groupStart),
			Timestamp: time.Now(),
		})
	}

	report.Duration = time.Since(report.StartedAt)
	r.mu.Lock()
	report.Outcomes = make(map[string]TaskOutcome, len(r.outcomes))
	for id, o := range r.outcomes {
		report.Outcomes[id] = o
	}
	r.mu.Unlock()

	succeeded, failed, blocked, cancelled := report.Counts()
	r.publish(events.RunFinishedEvent{
		RunID:     report.RunID,
		Completed: succeeded,
		Failed:    failed,
		Blocked:   blocked,
		Cancelled: cancelled,
		Duration:  report.Duration,
		Timestamp: time.Now(),
	})

	return report, ctx.Err()
}

// runTask is the supervised operation for one task: acquire the gates, then
// drive the full retry cycle and settle the outcome.
func (r *Runner) runTask(ctx context.Context, n *scheduler.Node, group int, tokens chan struct{}) (any, error) {
	// Resource slot first.
	if r.cfg.Pool != nil && n.Resource != "" {
		if err := r.cfg.Pool.Acquire(ctx, n.Resource); err != nil {
			r.settleCancelled(n, group, err)
			return nil, err
		}
		defer r.cfg.Pool.Release(n.Resource)
	}

	// Run-wide token second.
	select {
	case tokens <- struct{}{}:
	case <-ctx.Done():
		r.settleCancelled(n, group, ctx.Err())
		return nil, ctx.Err()
	}
	defer func() { <-tokens }()

	r.publish(events.TaskStartedEvent{
		ID:        n.ID,
		Name:      n.Name,
		Resource:  n.Resource,
		Group:     group,
		Timestamp: time.Now(),
	})
	r.publishPoolStats()

	tc := retry.TaskContext{TaskID: n.ID, Description: n.Name, MaxRetries: n.MaxRetries}

	var lastErr string
	res := r.cfg.Retry.ExecuteWithRetry(ctx, tc, func(attemptCtx context.Context, s retry.Strategy) (any, error) {
		if s.Attempt > 0 {
			r.publish(events.TaskRetryingEvent{
				ID:        n.ID,
				Strategy:  s.Name,
				Attempt:   s.Attempt,
				Err:       lastErr,
				Timestamp: time.Now(),
			})
		}
		out, err := r.attempt(attemptCtx, n, s)
		if err != nil {
			lastErr = err.Error()
		}
		return out, err
	})

	out := TaskOutcome{
		TaskID:   n.ID,
		Name:     n.Name,
		Resource: n.Resource,
		Group:    group,
		Strategy: res.Strategy.Name,
		Attempts: res.Attempts,
		Duration: res.Duration,
	}

	if res.Success {
		out.State = StateSucceeded
		if s, ok := res.Output.(string); ok {
			out.Output = s
		}
		if r.record(out) {
			r.publish(events.TaskCompletedEvent{
				ID:        n.ID,
				Strategy:  res.Strategy.Name,
				Attempts:  res.Attempts,
				Output:    out.Output,
				Duration:  res.Duration,
				Timestamp: time.Now(),
			})
		}
		return res.Output, nil
	}

	if ctx.Err() != nil {
		// The run was cancelled out from under the task.
		out.State = StateCancelled
		out.Err = res.Err
		if r.record(out) {
			r.publish(events.TaskCancelledEvent{ID: n.ID, Timestamp: time.Now()})
		}
		return nil, ctx.Err()
	}

	out.State = StateFailed
	out.Err = res.Err
	if r.record(out) {
		log.Printf("WARNING: task %q failed after %d attempts: %v", n.ID, res.Attempts, res.Err)
		r.publish(events.TaskFailedEvent{
			ID:        n.ID,
			Err:       res.Err,
			Attempts:  res.Attempts,
			Duration:  res.Duration,
			Timestamp: time.Now(),
		})
	}
	return nil, res.Err
}

// attempt runs one strategy-guided attempt through the executor, behind the
// resource's circuit breaker when one is configured.
func (r *Runner) attempt(ctx context.Context, n *scheduler.Node, s retry.Strategy) (any, error) {
	if r.cfg.TaskTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.cfg.TaskTimeout)
		defer cancel()
	}

	step := executor.Step{TaskID: n.ID, Name: n.Name, Payload: n.Payload, Strategy: s}

	if r.cfg.Breakers != nil && n.Resource != "" {
		return r.cfg.Breakers.Get(n.Resource).Execute(func() (any, error) {
			return r.cfg.Executor.ExecuteStep(ctx, step)
		})
	}
	return r.cfg.Executor.ExecuteStep(ctx, step)
}

// blockedReason reports why n must not start, or "" when it may. A task is
// blocked when a dependency failed with the block policy, or was itself
// blocked.
func (r *Runner) blockedReason(byID map[string]*scheduler.Node, n *scheduler.Node) string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, dep := range n.DependsOn {
		o, ok := r.outcomes[dep]
		if !ok {
			continue
		}
		switch o.State {
		case StateFailed:
			if byID[dep].OnFailure == scheduler.FailBlock {
				return fmt.Sprintf("dependency %q failed", dep)
			}
		case StateBlocked:
			return fmt.Sprintf("dependency %q was blocked", dep)
		}
	}
	return ""
}

// settleAbandoned records an outcome for a handle whose operation never
// recorded one itself: a panic inside the executor, or a barrier cut short
// by run cancellation while the task was still executing.
func (r *Runner) settleAbandoned(n *scheduler.Node, group int, o supervisor.Outcome) {
	if _, ok := r.outcome(n.ID); ok {
		return
	}

	out := TaskOutcome{
		TaskID:   n.ID,
		Name:     n.Name,
		Resource: n.Resource,
		Group:    group,
		Duration: o.Duration,
	}
	if o.Status == supervisor.StatusFailed {
		out.State = StateFailed
		out.Err = o.Err
		if r.record(out) {
			log.Printf("WARNING: task %q failed: %v", n.ID, o.Err)
			r.publish(events.TaskFailedEvent{ID: n.ID, Err: o.Err, Duration: o.Duration, Timestamp: time.Now()})
		}
		return
	}

	out.State = StateCancelled
	if r.record(out) {
		// Mark the handle too so a late settlement from the still-running
		// operation is ignored.
		r.sup.Cancel(n.ID)
		r.publish(events.TaskCancelledEvent{ID: n.ID, Timestamp: time.Now()})
	}
}

// settleCancelled records a task that was cancelled before its first attempt.
func (r *Runner) settleCancelled(n *scheduler.Node, group int, err error) {
	if r.record(TaskOutcome{
		TaskID:   n.ID,
		Name:     n.Name,
		Resource: n.Resource,
		Group:    group,
		State:    StateCancelled,
		Err:      err,
	}) {
		r.publish(events.TaskCancelledEvent{ID: n.ID, Timestamp: time.Now()})
	}
}

// cancelFrom settles every task in groups[from:] that has no outcome yet.
func (r *Runner) cancelFrom(groups [][]*scheduler.Node, from int) {
	for i := from; i < len(groups); i++ {
		for _, n := range groups[i] {
			if _, ok := r.outcome(n.ID); ok {
				continue
			}
			r.settleCancelled(n, i, context.Canceled)
		}
	}
}

// record stores o unless the task already has an outcome. The first write
// wins; returns whether o was stored.
func (r *Runner) record(o TaskOutcome) bool {
	r.mu.Lock()
	if _, dup := r.outcomes[o.TaskID]; dup {
		r.mu.Unlock()
		return false
	}
	r.outcomes[o.TaskID] = o
	progress := r.progressLocked()
	r.mu.Unlock()

	r.publish(progress)
	r.publishPoolStats()
	return true
}

func (r *Runner) outcome(id string) (TaskOutcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	o, ok := r.outcomes[id]
	return o, ok
}

func (r *Runner) progressLocked() events.RunProgressEvent {
	p := events.RunProgressEvent{Total: r.total, Timestamp: time.Now()}
	for _, o := range r.outcomes {
		switch o.State {
		case StateSucceeded:
			p.Completed++
		case StateFailed:
			p.Failed++
		case StateBlocked:
			p.Blocked++
		case StateCancelled:
			p.Cancelled++
		}
	}
	p.Remaining = r.total - len(r.outcomes)
	return p
}

func (r *Runner) publish(e events.Event) {
	if r.cfg.Bus != nil {
		r.cfg.Bus.Publish(e)
	}
}

func (r *Runner) publishPoolStats() {
	if r.cfg.Bus == nil || r.cfg.Pool == nil {
		return
	}
	st := r.cfg.Pool.Stats()
	r.cfg.Bus.Publish(events.PoolStatsEvent{
		Used:      st.UsedSlots,
		Available: st.AvailableSlots,
		Total:     st.TotalSlots,
		Timestamp: time.Now(),
	})
}
