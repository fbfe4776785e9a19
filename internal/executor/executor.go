// Package executor runs the work behind scheduled tasks. The engine treats
// work opaquely; this package defines the step interface plus the stock
// implementation that runs shell commands in supervised process groups.
package executor

import (
	"context"

	"github.com/hivegrid/hivegrid/internal/retry"
)

// Step is one executable attempt of a task. Payload is whatever the plan
// attached to the task; Strategy tells the implementation how aggressive
// this attempt should be.
type Step struct {
	TaskID   string
	Name     string
	Payload  any
	Strategy retry.Strategy
}

// Executor performs steps. Implementations must honor ctx: the engine
// bounds attempts with deadlines and cancels abandoned work through it.
type Executor interface {
	ExecuteStep(ctx context.Context, step Step) (string, error)
}

// Func adapts a plain function to the Executor interface.
type Func func(ctx context.Context, step Step) (string, error)

// ExecuteStep calls f.
func (f Func) ExecuteStep(ctx context.Context, step Step) (string, error) {
	return f(ctx, step)
}
