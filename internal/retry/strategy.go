package retry

// Strategy names, in escalation order. Exhausted is a pseudo-strategy: it
// never drives an attempt, it only labels a failure result after the budget
// ran out.
const (
	StrategyOriginal    = "original"
	StrategySimplified  = "simplified"
	StrategyAlternative = "alternative"
	StrategyDecomposed  = "decomposed"
	StrategyExhausted   = "exhausted"
)

// Strategy describes how one attempt should approach its task. The engine
// passes it through to the executor, which decides what "simplified" or
// "decomposed" means for the work at hand.
type Strategy struct {
	Name        string
	Reason      string
	Changes     []string
	Attempt     int
	MaxAttempts int
}

// TaskContext identifies the task being executed and can override the
// controller-wide attempt budget.
type TaskContext struct {
	TaskID      string
	Description string

	// MaxRetries, when non-nil, replaces the controller's configured budget
	// for this task, whether larger or smaller. Zero forbids all attempts.
	MaxRetries *int
}

// StrategyFunc produces the strategy for the given attempt index, or nil to
// stop retrying early. lastErr is empty for attempt 0. Custom generators
// (an LLM proposing a rephrased task, say) plug in through Config.Strategy;
// the controller still enforces the attempt budget around them.
type StrategyFunc func(tc TaskContext, lastErr string, attempt int) *Strategy

// defaultStrategy is the fixed escalation table. Attempts past the table
// keep the last entry, which matters only when a task raises its own budget.
func defaultStrategy(tc TaskContext, lastErr string, attempt int) *Strategy {
	table := []Strategy{
		{
			Name:   StrategyOriginal,
			Reason: "initial attempt with the task as given",
		},
		{
			Name:    StrategySimplified,
			Reason:  "retry with a reduced version of the task",
			Changes: []string{"drop optional requirements", "narrow the output scope"},
		},
		{
			Name:    StrategyAlternative,
			Reason:  "same goal through a different approach",
			Changes: []string{"switch method or tooling", "avoid the path that just failed"},
		},
		{
			Name:    StrategyDecomposed,
			Reason:  "split the task into smaller pieces",
			Changes: []string{"execute subtasks independently", "combine partial results"},
		},
	}

	if attempt < 0 {
		return nil
	}
	idx := attempt
	if idx >= len(table) {
		idx = len(table) - 1
	}
	s := table[idx]
	return &s
}
