package config

// DefaultConfig returns the built-in configuration: four tasks in flight,
// two slots per resource, no global ceiling, four attempts per task with a
// short exponential backoff between them.
func DefaultConfig() *EngineConfig {
	return &EngineConfig{
		Run: RunConfig{
			MaxConcurrency: 4,
			TaskTimeout:    "10m",
		},
		Pool: PoolConfig{
			DefaultSlots: 2,
			GlobalSlots:  0,
			Resources:    map[string]int{},
		},
		Retry: RetryConfig{
			MaxRetries: 4,
			Backoff: BackoffSpec{
				InitialInterval:     "100ms",
				MaxInterval:         "10s",
				Multiplier:          2.0,
				RandomizationFactor: 0.5,
			},
		},
	}
}
