package config

import (
	"fmt"
	"time"
)

// RunConfig tunes the runner.
type RunConfig struct {
	MaxConcurrency int    `json:"max_concurrency"`        // Tasks in flight across the whole run
	TaskTimeout    string `json:"task_timeout,omitempty"` // Per-attempt deadline, Go duration string; empty disables
}

// PoolConfig tunes the concurrency slot pool.
type PoolConfig struct {
	DefaultSlots int            `json:"default_slots"`       // Limit for resources not named under Resources
	GlobalSlots  int            `json:"global_slots"`        // Ceiling across all resources; 0 disables
	Resources    map[string]int `json:"resources,omitempty"` // Per-resource slot limits
}

// BackoffSpec spaces retry attempts out. Durations are Go duration strings
// so config files stay readable ("100ms", "10s").
type BackoffSpec struct {
	InitialInterval     string  `json:"initial_interval"`
	MaxInterval         string  `json:"max_interval"`
	Multiplier          float64 `json:"multiplier"`
	RandomizationFactor float64 `json:"randomization_factor"`
}

// RetryConfig tunes the progressive retry controller.
type RetryConfig struct {
	MaxRetries int         `json:"max_retries"` // Total attempts per task, first one included
	Backoff    BackoffSpec `json:"backoff"`
}

// EngineConfig is the top-level configuration.
type EngineConfig struct {
	Run   RunConfig   `json:"run"`
	Pool  PoolConfig  `json:"pool"`
	Retry RetryConfig `json:"retry"`
}

// TaskTimeoutDuration parses the per-attempt deadline. Empty means disabled.
func (r RunConfig) TaskTimeoutDuration() (time.Duration, error) {
	if r.TaskTimeout == "" {
		return 0, nil
	}
	return time.ParseDuration(r.TaskTimeout)
}

// InitialIntervalDuration parses the first backoff interval.
func (b BackoffSpec) InitialIntervalDuration() (time.Duration, error) {
	if b.InitialInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(b.InitialInterval)
}

// MaxIntervalDuration parses the backoff interval cap.
func (b BackoffSpec) MaxIntervalDuration() (time.Duration, error) {
	if b.MaxInterval == "" {
		return 0, nil
	}
	return time.ParseDuration(b.MaxInterval)
}

// Validate checks ranges and duration syntax so wiring code can parse
// without re-checking. Configuration problems are fatal; the error names
// the offending field.
func (c *EngineConfig) Validate() error {
	if c.Run.MaxConcurrency < 0 {
		return fmt.Errorf("run.max_concurrency must not be negative, got %d", c.Run.MaxConcurrency)
	}
	if _, err := c.Run.TaskTimeoutDuration(); err != nil {
		return fmt.Errorf("run.task_timeout: %w", err)
	}

	if c.Pool.DefaultSlots < 0 {
		return fmt.Errorf("pool.default_slots must not be negative, got %d", c.Pool.DefaultSlots)
	}
	if c.Pool.GlobalSlots < 0 {
		return fmt.Errorf("pool.global_slots must not be negative, got %d", c.Pool.GlobalSlots)
	}
	for name, max := range c.Pool.Resources {
		if max < 1 {
			return fmt.Errorf("pool.resources[%q]: slot limit must be positive, got %d", name, max)
		}
	}

	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if _, err := c.Retry.Backoff.InitialIntervalDuration(); err != nil {
		return fmt.Errorf("retry.backoff.initial_interval: %w", err)
	}
	if _, err := c.Retry.Backoff.MaxIntervalDuration(); err != nil {
		return fmt.Errorf("retry.backoff.max_interval: %w", err)
	}
	if m := c.Retry.Backoff.Multiplier; m != 0 && m < 1 {
		return fmt.Errorf("retry.backoff.multiplier must be at least 1, got %g", m)
	}
	if f := c.Retry.Backoff.RandomizationFactor; f < 0 || f > 1 {
		return fmt.Errorf("retry.backoff.randomization_factor must be within [0, 1], got %g", f)
	}

	return nil
}
