package retry

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// BackoffConfig configures the optional delay between attempts. The zero
// value disables delays entirely. Delays never change how many attempts run,
// they only space the attempts out.
type BackoffConfig struct {
	InitialInterval     time.Duration // First delay (default 100ms)
	MaxInterval         time.Duration // Delay ceiling (default 10s)
	Multiplier          float64       // Growth factor (default 2.0)
	RandomizationFactor float64       // Jitter factor (default 0.5)
}

// DefaultBackoffConfig returns the delay settings used by the shipped
// engine configuration.
func DefaultBackoffConfig() BackoffConfig {
	return BackoffConfig{
		InitialInterval:     100 * time.Millisecond,
		MaxInterval:         10 * time.Second,
		Multiplier:          2.0,
		RandomizationFactor: 0.5,
	}
}

// policy builds the backoff source for one execution, or nil when delays
// are disabled.
func (b BackoffConfig) policy() backoff.BackOff {
	if b == (BackoffConfig{}) {
		return nil
	}

	p := backoff.NewExponentialBackOff()
	p.InitialInterval = b.InitialInterval
	p.MaxInterval = b.MaxInterval
	p.Multiplier = b.Multiplier
	p.RandomizationFactor = b.RandomizationFactor
	// The attempt budget decides when to stop, never the wall clock.
	p.MaxElapsedTime = 0
	return p
}
