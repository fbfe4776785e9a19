package retry

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"
)

func newTestController(t *testing.T, cfg Config) *Controller {
	t.Helper()
	c, err := New(cfg)
	if err != nil {
		t.Fatalf("failed to create controller: %v", err)
	}
	return c
}

func intPtr(n int) *int {
	return &n
}

func TestNewValidation(t *testing.T) {
	if _, err := New(Config{MaxRetries: -1}); err == nil {
		t.Error("expected error for negative budget")
	}

	c := newTestController(t, Config{})
	if c.maxRetries != DefaultMaxRetries {
		t.Errorf("default budget = %d, want %d", c.maxRetries, DefaultMaxRetries)
	}
}

func TestNextStrategyEscalation(t *testing.T) {
	c := newTestController(t, Config{})
	tc := TaskContext{TaskID: "t1"}

	wantNames := []string{
		StrategyOriginal,
		StrategySimplified,
		StrategyAlternative,
		StrategyDecomposed,
	}

	for attempt, want := range wantNames {
		s := c.NextStrategy(tc, "some error", attempt)
		if s == nil {
			t.Fatalf("attempt %d: got nil strategy", attempt)
		}
		if s.Name != want {
			t.Errorf("attempt %d: name = %q, want %q", attempt, s.Name, want)
		}
		if s.Attempt != attempt {
			t.Errorf("attempt %d: Attempt field = %d", attempt, s.Attempt)
		}
		if s.MaxAttempts != DefaultMaxRetries {
			t.Errorf("attempt %d: MaxAttempts = %d, want %d", attempt, s.MaxAttempts, DefaultMaxRetries)
		}
	}

	if s := c.NextStrategy(tc, "some error", DefaultMaxRetries); s != nil {
		t.Errorf("attempt %d: got %q, want nil (budget spent)", DefaultMaxRetries, s.Name)
	}
}

func TestNextStrategyBudgetOverride(t *testing.T) {
	c := newTestController(t, Config{})

	tests := []struct {
		name     string
		tc       TaskContext
		attempt  int
		wantName string
		wantNil  bool
	}{
		{
			name:    "smaller override stops early",
			tc:      TaskContext{MaxRetries: intPtr(2)},
			attempt: 2,
			wantNil: true,
		},
		{
			name:     "smaller override still allows earlier attempts",
			tc:       TaskContext{MaxRetries: intPtr(2)},
			attempt:  1,
			wantName: StrategySimplified,
		},
		{
			name:     "larger override extends past the default",
			tc:       TaskContext{MaxRetries: intPtr(6)},
			attempt:  5,
			wantName: StrategyDecomposed, // attempts past the table keep the last entry
		},
		{
			name:    "zero override forbids all attempts",
			tc:      TaskContext{MaxRetries: intPtr(0)},
			attempt: 0,
			wantNil: true,
		},
		{
			name:     "nil override uses the controller default",
			tc:       TaskContext{},
			attempt:  3,
			wantName: StrategyDecomposed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := c.NextStrategy(tt.tc, "err", tt.attempt)
			if tt.wantNil {
				if s != nil {
					t.Fatalf("got strategy %q, want nil", s.Name)
				}
				return
			}
			if s == nil {
				t.Fatal("got nil strategy")
			}
			if s.Name != tt.wantName {
				t.Errorf("name = %q, want %q", s.Name, tt.wantName)
			}
		})
	}
}

func TestExecuteWithRetryEventualSuccess(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	calls := 0
	var seenStrategies []string
	res := c.ExecuteWithRetry(ctx, TaskContext{TaskID: "flaky"}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		seenStrategies = append(seenStrategies, s.Name)
		if calls < 3 {
			return nil, fmt.Errorf("transient failure %d", calls)
		}
		return "finally", nil
	})

	if !res.Success {
		t.Fatalf("Success = false, err = %v", res.Err)
	}
	if calls != 3 {
		t.Errorf("operation invoked %d times, want exactly 3", calls)
	}
	if res.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", res.Attempts)
	}
	if res.Output != "finally" {
		t.Errorf("Output = %v, want %q", res.Output, "finally")
	}
	if res.Strategy.Name != StrategyAlternative {
		t.Errorf("winning strategy = %q, want %q", res.Strategy.Name, StrategyAlternative)
	}
	want := []string{StrategyOriginal, StrategySimplified, StrategyAlternative}
	if strings.Join(seenStrategies, ",") != strings.Join(want, ",") {
		t.Errorf("strategy sequence = %v, want %v", seenStrategies, want)
	}
}

func TestExecuteWithRetryExhaustion(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{TaskID: "doomed", MaxRetries: intPtr(2)}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		return nil, fmt.Errorf("failure %d", calls)
	})

	if res.Success {
		t.Fatal("Success = true for an always-failing operation")
	}
	if calls != 2 {
		t.Errorf("operation invoked %d times, want exactly 2 (the override)", calls)
	}
	if res.Strategy.Name != StrategyExhausted {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, StrategyExhausted)
	}
	if res.Err == nil || res.Err.Error() != "failure 2" {
		t.Errorf("Err = %v, want the last raised error", res.Err)
	}
	if res.Output != nil {
		t.Errorf("Output = %v, want nil on failure", res.Output)
	}
}

func TestExecuteWithRetryDefaultBudget(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		return nil, errors.New("nope")
	})

	if calls != DefaultMaxRetries {
		t.Errorf("operation invoked %d times, want %d (one per strategy)", calls, DefaultMaxRetries)
	}
	if res.Attempts != DefaultMaxRetries {
		t.Errorf("Attempts = %d, want %d", res.Attempts, DefaultMaxRetries)
	}
}

func TestExecuteWithRetryZeroBudget(t *testing.T) {
	c := newTestController(t, Config{})
	ctx := context.Background()

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{MaxRetries: intPtr(0)}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		return "never", nil
	})

	if calls != 0 {
		t.Errorf("operation invoked %d times, want 0", calls)
	}
	if res.Success {
		t.Error("Success = true with a zero budget")
	}
	if res.Strategy.Name != StrategyExhausted {
		t.Errorf("strategy = %q, want %q", res.Strategy.Name, StrategyExhausted)
	}
}

func TestExecuteWithRetryCustomStrategyFunc(t *testing.T) {
	var sawErrors []string
	custom := func(tc TaskContext, lastErr string, attempt int) *Strategy {
		sawErrors = append(sawErrors, lastErr)
		if attempt >= 2 {
			// Generator gives up before the budget does
			return nil
		}
		return &Strategy{Name: fmt.Sprintf("custom-%d", attempt), Reason: "test"}
	}

	c := newTestController(t, Config{MaxRetries: 10, Strategy: custom})
	ctx := context.Background()

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		if s.Name != fmt.Sprintf("custom-%d", calls-1) {
			t.Errorf("attempt %d ran under strategy %q", calls-1, s.Name)
		}
		return nil, errors.New("always fails")
	})

	if calls != 2 {
		t.Errorf("operation invoked %d times, want 2 (generator stopped)", calls)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
	// First consultation is for attempt 0 with no prior error
	if sawErrors[0] != "" {
		t.Errorf("attempt 0 saw error %q, want empty", sawErrors[0])
	}
	if sawErrors[1] != "always fails" {
		t.Errorf("attempt 1 saw error %q", sawErrors[1])
	}
}

func TestExecuteWithRetryContextCancelled(t *testing.T) {
	c := newTestController(t, Config{})
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		cancel()
		return nil, errors.New("failed, and the run is over")
	})

	if calls != 1 {
		t.Errorf("operation invoked %d times after cancellation, want 1", calls)
	}
	if res.Success {
		t.Error("Success = true, want false")
	}
}

func TestExecuteWithRetryBackoffDoesNotChangeCounts(t *testing.T) {
	c := newTestController(t, Config{
		MaxRetries: 3,
		Backoff: BackoffConfig{
			InitialInterval:     time.Millisecond,
			MaxInterval:         2 * time.Millisecond,
			Multiplier:          2.0,
			RandomizationFactor: 0,
		},
	})
	ctx := context.Background()

	calls := 0
	res := c.ExecuteWithRetry(ctx, TaskContext{}, func(ctx context.Context, s Strategy) (any, error) {
		calls++
		return nil, errors.New("still failing")
	})

	if calls != 3 {
		t.Errorf("operation invoked %d times, want 3 regardless of delays", calls)
	}
	if res.Duration <= 0 {
		t.Errorf("Duration = %v, want > 0", res.Duration)
	}
}
