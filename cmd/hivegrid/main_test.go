package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hivegrid/hivegrid/internal/config"
	"github.com/hivegrid/hivegrid/internal/events"
	"github.com/hivegrid/hivegrid/internal/executor"
	"github.com/hivegrid/hivegrid/internal/orchestrator"
	"github.com/hivegrid/hivegrid/internal/persistence"
)

func echoExecutor() executor.Executor {
	return executor.Func(func(ctx context.Context, step executor.Step) (string, error) {
		return "", nil
	})
}

func sampleReport(runID string) *orchestrator.RunReport {
	started := time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)
	return &orchestrator.RunReport{
		RunID:     runID,
		StartedAt: started,
		Duration:  90 * time.Second,
		Groups:    2,
		Outcomes: map[string]orchestrator.TaskOutcome{
			"fetch": {
				TaskID: "fetch", Name: "Fetch", Group: 0,
				State: orchestrator.StateSucceeded, Strategy: "original",
				Attempts: 1, Duration: 2 * time.Second,
			},
			"deploy": {
				TaskID: "deploy", Name: "Deploy", Group: 1,
				State: orchestrator.StateFailed, Attempts: 4,
				Err: errors.New("target unreachable"),
			},
			"announce": {
				TaskID: "announce", Name: "Announce", Group: 1,
				State: orchestrator.StateBlocked, Reason: `dependency "deploy" failed`,
			},
		},
	}
}

func TestBuildRunnerFromDefaults(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()

	runner, err := buildRunner(config.DefaultConfig(), echoExecutor(), bus)
	if err != nil {
		t.Fatalf("buildRunner() error = %v", err)
	}
	if runner == nil {
		t.Fatal("buildRunner() returned nil runner")
	}
}

func TestBuildRunnerRejectsBadConfig(t *testing.T) {
	tests := []struct {
		name        string
		mutate      func(cfg *config.EngineConfig)
		errContains string
	}{
		{
			name:        "negative global slots",
			mutate:      func(cfg *config.EngineConfig) { cfg.Pool.GlobalSlots = -1 },
			errContains: "slot pool",
		},
		{
			name:        "negative max retries",
			mutate:      func(cfg *config.EngineConfig) { cfg.Retry.MaxRetries = -1 },
			errContains: "retry controller",
		},
		{
			name:        "unparseable task timeout",
			mutate:      func(cfg *config.EngineConfig) { cfg.Run.TaskTimeout = "soon" },
			errContains: "task_timeout",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)

			_, err := buildRunner(cfg, echoExecutor(), nil)
			if err == nil {
				t.Fatal("buildRunner() expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %q, want substring %q", err, tt.errContains)
			}
		})
	}
}

func TestRunOutcomeError(t *testing.T) {
	clean := sampleReport("clean")
	for id, o := range clean.Outcomes {
		o.State = orchestrator.StateSucceeded
		o.Err = nil
		o.Reason = ""
		clean.Outcomes[id] = o
	}

	tests := []struct {
		name        string
		report      *orchestrator.RunReport
		runErr      error
		errContains string
	}{
		{name: "no report no error", report: nil, runErr: nil},
		{name: "clean run", report: clean, runErr: nil},
		{name: "cancelled", report: sampleReport("c"), runErr: context.Canceled, errContains: "run cancelled"},
		{name: "graph error passes through", report: nil, runErr: errors.New("cycle detected"), errContains: "cycle detected"},
		{name: "task failures", report: sampleReport("f"), runErr: nil, errContains: "2 of 3 tasks did not succeed"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runOutcomeError(tt.report, tt.runErr)
			if tt.errContains == "" {
				if err != nil {
					t.Fatalf("runOutcomeError() = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("runOutcomeError() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("error = %q, want substring %q", err, tt.errContains)
			}
		})
	}
}

func TestPrintSummaryOrdersAndCounts(t *testing.T) {
	var buf strings.Builder
	printSummary(&buf, "release", sampleReport("summary-run-1"))
	out := buf.String()

	if !strings.Contains(out, "3 tasks in 2 groups") {
		t.Errorf("summary missing header, got:\n%s", out)
	}
	if !strings.Contains(out, "1 succeeded, 1 failed, 1 blocked, 0 cancelled") {
		t.Errorf("summary missing totals, got:\n%s", out)
	}

	// Group order first, task ID order within a group
	iFetch := strings.Index(out, "  ok    fetch")
	iAnnounce := strings.Index(out, "  block announce")
	iDeploy := strings.Index(out, "  FAIL  deploy")
	if iFetch < 0 || iAnnounce < 0 || iDeploy < 0 {
		t.Fatalf("summary missing task lines, got:\n%s", out)
	}
	if !(iFetch < iAnnounce && iAnnounce < iDeploy) {
		t.Errorf("task lines out of order, got:\n%s", out)
	}
}

func TestFinishRunPersists(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	report := sampleReport("cmd-finish-run-1")
	finishRun(store, "release", report)

	run, err := store.GetRun(ctx, "cmd-finish-run-1")
	if err != nil {
		t.Fatalf("GetRun() error = %v", err)
	}
	if run.PlanName != "release" {
		t.Errorf("PlanName = %q, want %q", run.PlanName, "release")
	}
	if run.Total != 3 || run.Succeeded != 1 || run.Failed != 1 || run.Blocked != 1 {
		t.Errorf("counts = %d/%d/%d/%d, want 3/1/1/1",
			run.Total, run.Succeeded, run.Failed, run.Blocked)
	}

	// Persisting the same report twice must not fail or duplicate anything
	finishRun(store, "release", report)
	outcomes, err := store.ListOutcomes(ctx, "cmd-finish-run-1")
	if err != nil {
		t.Fatalf("ListOutcomes() error = %v", err)
	}
	if len(outcomes) != 3 {
		t.Errorf("len(outcomes) = %d, want 3", len(outcomes))
	}
}

func TestFinishRunWithoutStore(t *testing.T) {
	// Both nils must be tolerated; --no-history runs hit this path
	finishRun(nil, "release", sampleReport("x"))
	finishRun(nil, "release", nil)
}

func TestShortID(t *testing.T) {
	long := "0b1f8d2c-aaaa-bbbb-cccc-121212121212"
	if got := shortID(long); got != "0b1f8d2c" {
		t.Errorf("shortID(%q) = %q, want %q", long, got, "0b1f8d2c")
	}
	if got := shortID("tiny"); got != "tiny" {
		t.Errorf("shortID(%q) = %q, want %q", "tiny", got, "tiny")
	}
}

func TestFindRunResolvesPrefix(t *testing.T) {
	ctx := context.Background()
	store, err := persistence.NewMemoryStore(ctx)
	if err != nil {
		t.Fatalf("NewMemoryStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })

	for i := 0; i < 2; i++ {
		id := fmt.Sprintf("cmd-prefix-%d-run", i)
		if err := store.CreateRun(ctx, id, "p", time.Now(), 1, 1); err != nil {
			t.Fatalf("CreateRun(%s) error = %v", id, err)
		}
	}

	got, err := findRun(ctx, store, "cmd-prefix-0")
	if err != nil {
		t.Fatalf("findRun() error = %v", err)
	}
	if got.ID != "cmd-prefix-0-run" {
		t.Errorf("findRun() ID = %q, want %q", got.ID, "cmd-prefix-0-run")
	}

	if _, err := findRun(ctx, store, "cmd-prefix-"); err == nil {
		t.Error("findRun() with ambiguous prefix expected error, got nil")
	}
	if _, err := findRun(ctx, store, "no-such-run"); err == nil {
		t.Error("findRun() with unknown ID expected error, got nil")
	}
}
