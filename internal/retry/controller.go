// Package retry implements progressive retry: instead of replaying a failed
// task verbatim, each attempt escalates through a sequence of strategies
// (original, simplified, alternative, decomposed) until one succeeds or the
// attempt budget runs out.
package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// DefaultMaxRetries is the default attempt budget: total invocations, one
// per named strategy.
const DefaultMaxRetries = 4

// Config configures a Controller.
type Config struct {
	// MaxRetries is the total number of invocations allowed per task,
	// first attempt included. Zero means DefaultMaxRetries.
	MaxRetries int

	// Strategy overrides the built-in escalation table.
	Strategy StrategyFunc

	// Backoff spaces attempts out. The zero value runs attempts
	// back to back.
	Backoff BackoffConfig
}

// Controller decides which strategy each attempt uses and drives complete
// execute-with-retry cycles.
type Controller struct {
	maxRetries int
	strategy   StrategyFunc
	backoff    BackoffConfig
}

// New creates a retry controller. A negative budget is a configuration
// error.
func New(cfg Config) (*Controller, error) {
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries must not be negative, got %d", cfg.MaxRetries)
	}

	c := &Controller{
		maxRetries: cfg.MaxRetries,
		strategy:   cfg.Strategy,
		backoff:    cfg.Backoff,
	}
	if c.maxRetries == 0 {
		c.maxRetries = DefaultMaxRetries
	}
	if c.strategy == nil {
		c.strategy = defaultStrategy
	}
	return c, nil
}

// NextStrategy returns the strategy attempt number attempt should use, or
// nil once the attempt budget is spent. The budget is the task's own
// MaxRetries when set, otherwise the controller default; the task value
// always wins, larger or smaller.
func (c *Controller) NextStrategy(tc TaskContext, lastErr string, attempt int) *Strategy {
	max := c.effectiveMax(tc)
	if attempt >= max {
		return nil
	}

	s := c.strategy(tc, lastErr, attempt)
	if s == nil {
		return nil
	}
	s.Attempt = attempt
	s.MaxAttempts = max
	return s
}

func (c *Controller) effectiveMax(tc TaskContext) int {
	if tc.MaxRetries != nil {
		if *tc.MaxRetries < 0 {
			return 0
		}
		return *tc.MaxRetries
	}
	return c.maxRetries
}

// Operation is one attempt at a task. The strategy tells the implementation
// how aggressive this attempt should be.
type Operation func(ctx context.Context, s Strategy) (any, error)

// Result is the outcome of a full ExecuteWithRetry cycle. On success,
// Strategy is the one in effect for the winning attempt; on failure it is
// the exhausted pseudo-strategy and Err carries the last error raised.
type Result struct {
	Success  bool
	Output   any
	Err      error
	Strategy Strategy
	Attempts int
	Duration time.Duration
}

// ExecuteWithRetry runs op at attempt 0 under the original strategy and
// escalates on each failure until an attempt succeeds, the budget runs out,
// or ctx ends. The controller never aborts an attempt already in flight;
// ctx is checked between attempts (and ctx-aware operations will see it
// themselves).
func (c *Controller) ExecuteWithRetry(ctx context.Context, tc TaskContext, op Operation) Result {
	start := time.Now()
	max := c.effectiveMax(tc)

	strategy := c.NextStrategy(tc, "", 0)
	if strategy == nil {
		return Result{
			Err:      fmt.Errorf("retry budget of %d permits no attempts", max),
			Strategy: exhausted(0, max),
			Duration: time.Since(start),
		}
	}

	bo := c.backoff.policy()
	attempts := 0
	var lastErr error

	for {
		if err := ctx.Err(); err != nil {
			if lastErr == nil {
				lastErr = err
			}
			return Result{
				Err:      lastErr,
				Strategy: exhausted(attempts, max),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}

		output, err := op(ctx, *strategy)
		attempts++

		if err == nil {
			return Result{
				Success:  true,
				Output:   output,
				Strategy: *strategy,
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
		lastErr = err

		next := c.NextStrategy(tc, err.Error(), attempts)
		if next == nil {
			return Result{
				Err:      lastErr,
				Strategy: exhausted(attempts, max),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
		strategy = next

		if !waitBetween(ctx, bo) {
			return Result{
				Err:      lastErr,
				Strategy: exhausted(attempts, max),
				Attempts: attempts,
				Duration: time.Since(start),
			}
		}
	}
}

// waitBetween sleeps out the next backoff interval. Returns false when ctx
// ended during the wait.
func waitBetween(ctx context.Context, bo backoff.BackOff) bool {
	if bo == nil {
		return true
	}

	d := bo.NextBackOff()
	if d == backoff.Stop || d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}

func exhausted(attempts, max int) Strategy {
	return Strategy{
		Name:        StrategyExhausted,
		Reason:      "no retry strategies remain",
		Attempt:     attempts,
		MaxAttempts: max,
	}
}
