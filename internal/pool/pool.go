// Package pool implements the concurrency slot pool: per-resource admission
// control with an optional global ceiling across all resources. Callers
// acquire a slot before talking to a rate-limited resource (an LLM provider
// connection, a build runner) and release it when done.
package pool

import (
	"context"
	"fmt"
	"sync"
)

// DefaultSlotsPerResource is used for resources first seen at Acquire time
// when the config does not name them.
const DefaultSlotsPerResource = 2

// Config controls pool capacity.
type Config struct {
	// DefaultSlots is the per-resource maximum applied to resources created
	// lazily. Zero means DefaultSlotsPerResource.
	DefaultSlots int

	// GlobalSlots caps concurrent holds across ALL resources. Zero disables
	// the global ceiling.
	GlobalSlots int

	// Resources overrides the maximum for specific resource names.
	Resources map[string]int
}

// SlotPool tracks slot usage per resource. A slot is granted only when both
// the per-resource maximum and the global ceiling (if configured) allow it;
// otherwise the acquirer queues behind earlier acquirers of the same
// resource.
type SlotPool struct {
	mu           sync.Mutex
	defaultSlots int
	globalSlots  int
	resources    map[string]*resourceState
	total        int // slots held across all resources
}

type resourceState struct {
	used    int
	max     int
	waiters []*waiter // FIFO: index 0 has waited longest
}

// waiter parks one blocked Acquire call. The slot is transferred under the
// pool mutex before ready is closed, so ownership never races.
type waiter struct {
	ready chan struct{}
}

// New creates a slot pool. Capacity values must be sane: the per-resource
// default and every override must be positive, and the global ceiling must
// not be negative.
func New(cfg Config) (*SlotPool, error) {
	if cfg.DefaultSlots < 0 {
		return nil, fmt.Errorf("default slots must not be negative, got %d", cfg.DefaultSlots)
	}
	if cfg.GlobalSlots < 0 {
		return nil, fmt.Errorf("global slots must not be negative, got %d", cfg.GlobalSlots)
	}

	defaultSlots := cfg.DefaultSlots
	if defaultSlots == 0 {
		defaultSlots = DefaultSlotsPerResource
	}

	p := &SlotPool{
		defaultSlots: defaultSlots,
		globalSlots:  cfg.GlobalSlots,
		resources:    make(map[string]*resourceState),
	}

	for name, max := range cfg.Resources {
		if max < 1 {
			return nil, fmt.Errorf("resource %q: slot limit must be positive, got %d", name, max)
		}
		p.resources[name] = &resourceState{max: max}
	}

	return p, nil
}

// Acquire blocks until a slot for resource is granted or ctx is done.
// Unknown resources are created on first use with the default limit.
// Waiters on the same resource are served strictly first-come first-served.
func (p *SlotPool) Acquire(ctx context.Context, resource string) error {
	p.mu.Lock()
	rs := p.resourceLocked(resource)

	// Fast path: capacity available and nobody queued ahead.
	if len(rs.waiters) == 0 && p.admissibleLocked(rs) {
		rs.used++
		p.total++
		p.mu.Unlock()
		return nil
	}

	w := &waiter{ready: make(chan struct{})}
	rs.waiters = append(rs.waiters, w)
	p.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		p.mu.Lock()
		select {
		case <-w.ready:
			// The grant raced the cancellation: the slot is already ours,
			// so hand it straight back.
			p.releaseLocked(resource)
		default:
			p.removeWaiterLocked(resource, w)
		}
		p.mu.Unlock()
		return ctx.Err()
	}
}

// Release returns a slot for resource. Synchronous: by the time it returns,
// the count is decremented and any admissible waiter has been granted.
// Releasing an unknown resource, or one with no slots held, is a no-op.
func (p *SlotPool) Release(resource string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.releaseLocked(resource)
}

func (p *SlotPool) releaseLocked(resource string) {
	rs, ok := p.resources[resource]
	if !ok || rs.used == 0 {
		return
	}

	rs.used--
	p.total--
	p.admitLocked(resource)
}

// admitLocked grants freed capacity, starting with the released resource's
// own queue. When a global ceiling is configured, a freed slot may have been
// the only thing blocking another resource's queue, so those heads are
// checked too. No ordering holds between different resources' queues.
func (p *SlotPool) admitLocked(released string) {
	p.admitResourceLocked(released)

	if p.globalSlots == 0 {
		// Without a global ceiling, other resources were never blocked by
		// this release.
		return
	}
	for name := range p.resources {
		if name == released {
			continue
		}
		p.admitResourceLocked(name)
	}
}

func (p *SlotPool) admitResourceLocked(name string) {
	rs, ok := p.resources[name]
	if !ok {
		return
	}
	for len(rs.waiters) > 0 && p.admissibleLocked(rs) {
		w := rs.waiters[0]
		rs.waiters = rs.waiters[1:]
		rs.used++
		p.total++
		close(w.ready)
	}
}

// admissibleLocked is the admission rule: a slot exists for the resource and
// the global ceiling (when configured) is not exhausted.
func (p *SlotPool) admissibleLocked(rs *resourceState) bool {
	if rs.used >= rs.max {
		return false
	}
	if p.globalSlots > 0 && p.total >= p.globalSlots {
		return false
	}
	return true
}

func (p *SlotPool) resourceLocked(name string) *resourceState {
	rs, ok := p.resources[name]
	if !ok {
		rs = &resourceState{max: p.defaultSlots}
		p.resources[name] = rs
	}
	return rs
}

func (p *SlotPool) removeWaiterLocked(resource string, w *waiter) {
	rs, ok := p.resources[resource]
	if !ok {
		return
	}
	for i, cand := range rs.waiters {
		if cand == w {
			rs.waiters = append(rs.waiters[:i], rs.waiters[i+1:]...)
			return
		}
	}
}
