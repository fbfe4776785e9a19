package executor

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/hivegrid/hivegrid/internal/retry"
)

func TestCommandExecutorRunsStep(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx := context.Background()

	out, err := e.ExecuteStep(ctx, Step{
		TaskID:  "hello",
		Payload: CommandSpec{Command: "echo hello world"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "hello world") {
		t.Errorf("output = %q, want it to contain 'hello world'", out)
	}
}

func TestCommandExecutorPointerPayload(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx := context.Background()

	out, err := e.ExecuteStep(ctx, Step{
		TaskID:  "ptr",
		Payload: &CommandSpec{Command: "echo via-pointer"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, "via-pointer") {
		t.Errorf("output = %q", out)
	}
}

func TestCommandExecutorRejectsBadPayload(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx := context.Background()

	tests := []struct {
		name        string
		payload     any
		errContains string
	}{
		{"wrong type", 42, "payload is int"},
		{"nil payload", nil, "payload is <nil>"},
		{"empty command", CommandSpec{}, "empty command"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.ExecuteStep(ctx, Step{TaskID: "bad", Payload: tt.payload})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.errContains)
			}
		})
	}
}

func TestCommandExecutorFailureCarriesStderr(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx := context.Background()

	_, err := e.ExecuteStep(ctx, Step{
		TaskID:  "failing",
		Payload: CommandSpec{Command: "echo diagnostics here >&2; exit 3"},
	})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !strings.Contains(err.Error(), "diagnostics here") {
		t.Errorf("error %q does not carry stderr", err.Error())
	}
}

func TestCommandExecutorContextDeadline(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := e.ExecuteStep(ctx, Step{
		TaskID:  "slow",
		Payload: CommandSpec{Command: "sleep 10"},
	})
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected error for timed-out command")
	}
	if elapsed > 5*time.Second {
		t.Errorf("command ran %v past its 100ms deadline", elapsed)
	}
}

// A subprocess writing more than the pipe buffer must not deadlock against
// our reader.
func TestCommandExecutorLargeOutput(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	out, err := e.ExecuteStep(ctx, Step{
		TaskID:  "bulk",
		Payload: CommandSpec{Command: "seq 50000"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 50000 {
		t.Errorf("got %d lines, want 50000", len(lines))
	}
}

func TestCommandExecutorDirAndEnv(t *testing.T) {
	e := NewCommandExecutor(nil)
	ctx := context.Background()
	dir := t.TempDir()

	out, err := e.ExecuteStep(ctx, Step{
		TaskID: "where",
		Payload: CommandSpec{
			Command: "pwd; echo $HIVEGRID_TEST_MARK",
			Dir:     dir,
			Env:     []string{"HIVEGRID_TEST_MARK=present"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(out, dir) {
		t.Errorf("output %q does not report working dir %q", out, dir)
	}
	if !strings.Contains(out, "present") {
		t.Errorf("output %q does not carry injected env", out)
	}
}

func TestProcessManagerTracksSubprocesses(t *testing.T) {
	pm := NewProcessManager()
	ctx := context.Background()

	cmd := newCommand(ctx, "sleep", "5")
	if err := cmd.Start(); err != nil {
		t.Fatalf("failed to start: %v", err)
	}
	pm.Track(cmd)

	if got := pm.Count(); got != 1 {
		t.Errorf("Count() = %d, want 1", got)
	}

	if err := pm.KillAll(); err != nil {
		t.Errorf("KillAll: %v", err)
	}
	cmd.Wait()

	pm.Untrack(cmd)
	if got := pm.Count(); got != 0 {
		t.Errorf("Count() = %d after untrack, want 0", got)
	}
}

func TestExecutorIsUntrackedAfterRun(t *testing.T) {
	pm := NewProcessManager()
	e := NewCommandExecutor(pm)
	ctx := context.Background()

	_, err := e.ExecuteStep(ctx, Step{
		TaskID:  "tracked",
		Payload: CommandSpec{Command: "true"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := pm.Count(); got != 0 {
		t.Errorf("Count() = %d after run, want 0", got)
	}
}

func TestFuncAdapter(t *testing.T) {
	var sawStrategy string
	f := Func(func(ctx context.Context, step Step) (string, error) {
		sawStrategy = step.Strategy.Name
		return "adapted", nil
	})

	out, err := f.ExecuteStep(context.Background(), Step{
		TaskID:   "fn",
		Strategy: retry.Strategy{Name: retry.StrategySimplified},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "adapted" {
		t.Errorf("output = %q", out)
	}
	if sawStrategy != retry.StrategySimplified {
		t.Errorf("strategy seen = %q", sawStrategy)
	}
}
