package orchestrator

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerRegistry manages per-resource circuit breakers. A resource that
// keeps failing (a provider outage, a dead endpoint) trips its breaker and
// subsequent attempts fail fast instead of burning slots and retry budget.
type BreakerRegistry struct {
	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// NewBreakerRegistry creates an empty registry.
func NewBreakerRegistry() *BreakerRegistry {
	return &BreakerRegistry{
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
}

// Get returns the circuit breaker for the resource, creating it on first
// use.
func (r *BreakerRegistry) Get(resource string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cb, ok := r.breakers[resource]; ok {
		return cb
	}

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        resource,
		MaxRequests: 3,                // Allow 3 probe requests in half-open state
		Interval:    0,                // Keep counts until the breaker trips
		Timeout:     30 * time.Second, // Stay open for 30s before probing recovery
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			log.Printf("Circuit breaker %q: %s -> %s", name, from, to)
		},
		IsSuccessful: func(err error) bool {
			// Cancellations and timeouts come from the run, not the
			// resource, so they never count toward tripping.
			if err == nil {
				return true
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return true
			}
			return false
		},
	})

	r.breakers[resource] = cb
	return cb
}
