// Package supervisor tracks fire-and-forget background operations. Every
// launch gets a handle; handles can be cancelled, queried, and awaited in
// bulk. Cancellation is bookkeeping plus a context signal: an operation that
// ignores its context simply runs on with nobody watching, and whatever it
// eventually returns is discarded.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Operation is a unit of background work. Implementations should watch ctx
// if they want cancellation to take effect before they finish on their own.
type Operation func(ctx context.Context) (any, error)

// Supervisor tracks launched operations by handle ID.
type Supervisor struct {
	mu      sync.Mutex
	handles map[string]*Handle
}

// New creates an empty supervisor.
func New() *Supervisor {
	return &Supervisor{
		handles: make(map[string]*Handle),
	}
}

// LaunchOption customizes a single launch.
type LaunchOption func(*launchOptions)

type launchOptions struct {
	id string
}

// WithID uses a caller-chosen handle ID instead of a generated one. Reusing
// a live ID replaces the tracked entry; the earlier operation keeps running
// untracked.
func WithID(id string) LaunchOption {
	return func(o *launchOptions) {
		o.id = id
	}
}

// Launch starts op on its own goroutine and returns its handle immediately.
// The handle settles to completed or failed when op returns; a panicking
// operation settles as failed rather than tearing the process down.
func (s *Supervisor) Launch(ctx context.Context, op Operation, opts ...LaunchOption) *Handle {
	var lo launchOptions
	for _, opt := range opts {
		opt(&lo)
	}
	if lo.id == "" {
		lo.id = uuid.New().String()
	}

	opCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		id:        lo.id,
		startedAt: time.Now(),
		status:    StatusRunning,
		terminal:  make(chan struct{}),
		cancel:    cancel,
	}

	s.mu.Lock()
	s.handles[h.id] = h
	s.mu.Unlock()

	go func() {
		defer cancel()
		defer func() {
			if r := recover(); r != nil {
				h.settle(nil, fmt.Errorf("operation panicked: %v", r))
			}
		}()

		result, err := op(opCtx)
		h.settle(result, err)
	}()

	return h
}

// Cancel marks the handle cancelled and signals the operation's context.
// Returns true iff the handle exists and was still running. The operation
// itself is never forcibly interrupted; if it keeps going, its eventual
// return is ignored.
func (s *Supervisor) Cancel(id string) bool {
	s.mu.Lock()
	h, ok := s.handles[id]
	s.mu.Unlock()

	if !ok {
		return false
	}
	if !h.markCancelled() {
		return false
	}
	h.cancel()
	return true
}

// Get returns the handle for id.
func (s *Supervisor) Get(id string) (*Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.handles[id]
	return h, ok
}

// Running returns all handles still in StatusRunning.
func (s *Supervisor) Running() []*Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	var running []*Handle
	for _, h := range s.handles {
		if h.Status() == StatusRunning {
			running = append(running, h)
		}
	}
	return running
}

// Count returns the number of tracked handles, terminal ones included.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	return len(s.handles)
}

// Clear forgets every tracked handle. Operations already in flight keep
// running; they just become unobservable.
func (s *Supervisor) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handles = make(map[string]*Handle)
}

// AwaitAll blocks until every tracked handle is terminal, then returns their
// outcomes by ID. Failed and cancelled operations are recorded, never
// raised: a batch with failures still returns normally. If ctx ends first,
// the outcomes of still-running handles report StatusRunning.
func (s *Supervisor) AwaitAll(ctx context.Context) map[string]Outcome {
	s.mu.Lock()
	snapshot := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		snapshot = append(snapshot, h)
	}
	s.mu.Unlock()

	outcomes := make(map[string]Outcome, len(snapshot))
	for _, h := range snapshot {
		outcomes[h.ID()] = h.Wait(ctx)
	}
	return outcomes
}
