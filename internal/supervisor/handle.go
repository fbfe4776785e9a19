package supervisor

import (
	"context"
	"sync"
	"time"
)

// Status is the lifecycle state of a supervised operation. Transitions are
// one-way: running is the only non-terminal state, and a terminal handle
// never changes again.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s != StatusRunning
}

// Handle tracks one launched operation. All accessors are safe for
// concurrent use.
type Handle struct {
	id        string
	startedAt time.Time

	mu         sync.Mutex
	status     Status
	result     any
	err        error
	finishedAt time.Time

	terminal chan struct{}      // closed on the first transition out of running
	cancel   context.CancelFunc // cancels the operation's derived context
}

// Outcome is the settled view of a handle, returned by Wait and AwaitAll.
// For a handle that is still running (possible when a wait is cut short by
// its context), Status is StatusRunning and Duration is the time so far.
type Outcome struct {
	ID       string
	Status   Status
	Result   any
	Err      error
	Duration time.Duration
}

// ID returns the handle's identifier.
func (h *Handle) ID() string {
	return h.id
}

// Status returns the current lifecycle state.
func (h *Handle) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.status
}

// Result returns the operation's result. Meaningful only once completed.
func (h *Handle) Result() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.result
}

// Err returns the operation's error. Meaningful only once failed.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

// StartedAt returns when the operation was launched.
func (h *Handle) StartedAt() time.Time {
	return h.startedAt
}

// Done returns a channel closed when the handle reaches a terminal state.
// For a cancelled handle that is still executing underneath, the channel is
// already closed: cancellation is terminal regardless of the operation.
func (h *Handle) Done() <-chan struct{} {
	return h.terminal
}

// Wait blocks until the handle is terminal or ctx is done, and returns the
// outcome as of that moment.
func (h *Handle) Wait(ctx context.Context) Outcome {
	select {
	case <-h.terminal:
	case <-ctx.Done():
	}
	return h.outcome()
}

func (h *Handle) outcome() Outcome {
	h.mu.Lock()
	defer h.mu.Unlock()

	o := Outcome{
		ID:     h.id,
		Status: h.status,
		Result: h.result,
		Err:    h.err,
	}
	if h.status.Terminal() {
		o.Duration = h.finishedAt.Sub(h.startedAt)
	} else {
		o.Duration = time.Since(h.startedAt)
	}
	return o
}

// settle records the operation's return. A handle that is already terminal
// (cancelled while the operation kept going) ignores the late settlement.
func (h *Handle) settle(result any, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Terminal() {
		return
	}

	if err != nil {
		h.status = StatusFailed
		h.err = err
	} else {
		h.status = StatusCompleted
		h.result = result
	}
	h.finishedAt = time.Now()
	close(h.terminal)
}

// markCancelled flips a running handle to cancelled. Returns false if the
// handle was already terminal.
func (h *Handle) markCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.status.Terminal() {
		return false
	}

	h.status = StatusCancelled
	h.finishedAt = time.Now()
	close(h.terminal)
	return true
}
