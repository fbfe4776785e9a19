package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/hivegrid/hivegrid/internal/config"
	"github.com/hivegrid/hivegrid/internal/events"
	"github.com/hivegrid/hivegrid/internal/executor"
	"github.com/hivegrid/hivegrid/internal/monitor"
	"github.com/hivegrid/hivegrid/internal/orchestrator"
	"github.com/hivegrid/hivegrid/internal/persistence"
	"github.com/hivegrid/hivegrid/internal/plan"
	"github.com/hivegrid/hivegrid/internal/pool"
	"github.com/hivegrid/hivegrid/internal/retry"
	"github.com/hivegrid/hivegrid/internal/tui"
)

func runCmd() *cobra.Command {
	var (
		flagNoTUI        bool
		flagNoHistory    bool
		flagSnapshotFile string
	)

	cmd := &cobra.Command{
		Use:   "run <plan.json>",
		Short: "Execute a plan",
		Long: `Loads a plan file, levels its dependency graph into execution groups, and
runs every task. By default a dashboard shows live progress; --no-tui logs
events instead, for CI and cron jobs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			globalPath, projectPath, err := configPaths()
			if err != nil {
				return err
			}
			cfg, err := config.Load(globalPath, projectPath)
			if err != nil {
				return err
			}

			p, err := plan.Load(args[0])
			if err != nil {
				return err
			}
			nodes := p.Nodes()

			// Track subprocesses so an interrupted run leaves nothing behind
			pm := executor.NewProcessManager()
			defer func() {
				if err := pm.KillAll(); err != nil {
					log.Printf("WARNING: killing leftover subprocesses: %v", err)
				}
			}()

			bus := events.NewBus()
			defer bus.Close()

			runner, err := buildRunner(cfg, executor.NewCommandExecutor(pm), bus)
			if err != nil {
				return err
			}

			mon := monitor.New()
			go mon.Listen(bus.Subscribe(512))

			var store *persistence.SQLiteStore
			if !flagNoHistory {
				dbPath, err := historyPath()
				if err != nil {
					return err
				}
				store, err = persistence.NewSQLiteStore(ctx, dbPath)
				if err != nil {
					return fmt.Errorf("opening history store: %w", err)
				}
				defer store.Close()
			}

			if flagSnapshotFile != "" {
				go writeSnapshots(ctx, mon, flagSnapshotFile)
			}

			if flagNoTUI {
				go logEvents(bus.Subscribe(512))

				report, runErr := runner.Run(ctx, nodes)
				finishRun(store, p.Name, report)
				if report != nil {
					printSummary(os.Stdout, p.Name, report)
				}
				return runOutcomeError(report, runErr)
			}

			// Interactive mode: the run and the dashboard live and die
			// together.
			runCtx, cancelRun := context.WithCancel(ctx)
			defer cancelRun()

			prog := tea.NewProgram(tui.New(bus, cfg, globalPath, projectPath), tea.WithAltScreen())

			g, gctx := errgroup.WithContext(runCtx)

			var report *orchestrator.RunReport
			g.Go(func() error {
				var runErr error
				report, runErr = runner.Run(gctx, nodes)
				finishRun(store, p.Name, report)
				return runErr
			})
			g.Go(func() error {
				_, err := prog.Run()
				// Leaving the dashboard also ends the run
				cancelRun()
				return err
			})

			// A dying run context takes the dashboard down with it. Not part
			// of the group: it only unblocks once Wait returns.
			go func() {
				<-gctx.Done()
				prog.Quit()
			}()

			waitErr := g.Wait()

			if report != nil {
				printSummary(os.Stdout, p.Name, report)
			}
			return runOutcomeError(report, waitErr)
		},
	}

	cmd.Flags().BoolVar(&flagNoTUI, "no-tui", false, "Log events instead of showing the dashboard")
	cmd.Flags().BoolVar(&flagNoHistory, "no-history", false, "Skip recording the run in the history database")
	cmd.Flags().StringVar(&flagSnapshotFile, "snapshot-file", "", "Write a JSON monitor snapshot to this file every 2s")

	return cmd
}

// buildRunner assembles the engine from the merged configuration.
func buildRunner(cfg *config.EngineConfig, stepExec executor.Executor, bus *events.Bus) (*orchestrator.Runner, error) {
	taskTimeout, err := cfg.Run.TaskTimeoutDuration()
	if err != nil {
		return nil, fmt.Errorf("run.task_timeout: %w", err)
	}
	initialInterval, err := cfg.Retry.Backoff.InitialIntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("retry.backoff.initial_interval: %w", err)
	}
	maxInterval, err := cfg.Retry.Backoff.MaxIntervalDuration()
	if err != nil {
		return nil, fmt.Errorf("retry.backoff.max_interval: %w", err)
	}

	slots, err := pool.New(pool.Config{
		DefaultSlots: cfg.Pool.DefaultSlots,
		GlobalSlots:  cfg.Pool.GlobalSlots,
		Resources:    cfg.Pool.Resources,
	})
	if err != nil {
		return nil, fmt.Errorf("building slot pool: %w", err)
	}

	controller, err := retry.New(retry.Config{
		MaxRetries: cfg.Retry.MaxRetries,
		Backoff: retry.BackoffConfig{
			InitialInterval:     initialInterval,
			MaxInterval:         maxInterval,
			Multiplier:          cfg.Retry.Backoff.Multiplier,
			RandomizationFactor: cfg.Retry.Backoff.RandomizationFactor,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("building retry controller: %w", err)
	}

	return orchestrator.New(orchestrator.Config{
		MaxConcurrency: cfg.Run.MaxConcurrency,
		TaskTimeout:    taskTimeout,
		Executor:       stepExec,
		Pool:           slots,
		Retry:          controller,
		Breakers:       orchestrator.NewBreakerRegistry(),
		Bus:            bus,
	})
}

// finishRun persists the report when history is enabled. The run context may
// already be dead by now, so the write gets its own deadline.
func finishRun(store *persistence.SQLiteStore, planName string, report *orchestrator.RunReport) {
	if store == nil || report == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.CreateRun(ctx, report.RunID, planName, report.StartedAt, len(report.Outcomes), report.Groups); err != nil {
		log.Printf("WARNING: recording run header: %v", err)
	}
	if err := store.SaveReport(ctx, report); err != nil {
		log.Printf("WARNING: recording run report: %v", err)
	}
}

// runOutcomeError folds the run error and task failures into the exit status.
func runOutcomeError(report *orchestrator.RunReport, runErr error) error {
	if errors.Is(runErr, context.Canceled) {
		return fmt.Errorf("run cancelled")
	}
	if runErr != nil {
		return runErr
	}
	if report == nil {
		return nil
	}
	_, failed, blocked, _ := report.Counts()
	if failed+blocked > 0 {
		return fmt.Errorf("%d of %d tasks did not succeed", failed+blocked, len(report.Outcomes))
	}
	return nil
}

// printSummary writes one line per task plus the totals.
func printSummary(w io.Writer, planName string, report *orchestrator.RunReport) {
	succeeded, failed, blocked, cancelled := report.Counts()

	fmt.Fprintf(w, "\nRun %s (plan %q): %d tasks in %d groups, %v\n",
		shortID(report.RunID), planName, len(report.Outcomes), report.Groups,
		report.Duration.Round(time.Millisecond))

	for _, o := range sortedOutcomes(report) {
		switch o.State {
		case orchestrator.StateSucceeded:
			fmt.Fprintf(w, "  ok    %-20s %d attempt(s), strategy %s, %v\n",
				o.TaskID, o.Attempts, o.Strategy, o.Duration.Round(time.Millisecond))
		case orchestrator.StateFailed:
			fmt.Fprintf(w, "  FAIL  %-20s %d attempt(s): %v\n", o.TaskID, o.Attempts, o.Err)
		case orchestrator.StateBlocked:
			fmt.Fprintf(w, "  block %-20s %s\n", o.TaskID, o.Reason)
		case orchestrator.StateCancelled:
			fmt.Fprintf(w, "  stop  %-20s cancelled\n", o.TaskID)
		}
	}

	fmt.Fprintf(w, "Totals: %d succeeded, %d failed, %d blocked, %d cancelled\n",
		succeeded, failed, blocked, cancelled)
}

// sortedOutcomes orders a report's outcomes by group, then task ID.
func sortedOutcomes(report *orchestrator.RunReport) []orchestrator.TaskOutcome {
	out := make([]orchestrator.TaskOutcome, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Group != out[j].Group {
			return out[i].Group < out[j].Group
		}
		return out[i].TaskID < out[j].TaskID
	})
	return out
}

// logEvents mirrors engine events onto the log for headless runs.
func logEvents(ch <-chan events.Event) {
	for e := range ch {
		switch ev := e.(type) {
		case events.RunStartedEvent:
			log.Printf("run %s started: %d tasks in %d groups", shortID(ev.RunID), ev.Total, ev.Groups)
		case events.GroupStartedEvent:
			log.Printf("group %d started (%d tasks)", ev.Index+1, ev.Size)
		case events.TaskStartedEvent:
			log.Printf("task %q started", ev.ID)
		case events.TaskRetryingEvent:
			log.Printf("task %q attempt %d failed, retrying with strategy %s: %s",
				ev.ID, ev.Attempt, ev.Strategy, ev.Err)
		case events.TaskCompletedEvent:
			log.Printf("task %q completed in %v (%d attempt(s))",
				ev.ID, ev.Duration.Round(time.Millisecond), ev.Attempts)
		case events.TaskFailedEvent:
			log.Printf("task %q failed after %d attempt(s): %v", ev.ID, ev.Attempts, ev.Err)
		case events.TaskBlockedEvent:
			log.Printf("task %q blocked: %s", ev.ID, ev.Reason)
		case events.TaskCancelledEvent:
			log.Printf("task %q cancelled", ev.ID)
		case events.RunFinishedEvent:
			log.Printf("run %s finished in %v", shortID(ev.RunID), ev.Duration.Round(time.Millisecond))
		}
	}
}

// writeSnapshots periodically dumps the monitor state for external
// dashboards to poll.
func writeSnapshots(ctx context.Context, mon *monitor.Monitor, path string) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			data, err := json.Marshal(mon.Snapshot())
			if err != nil {
				continue
			}
			if err := os.WriteFile(path, data, 0644); err != nil {
				log.Printf("WARNING: writing snapshot file: %v", err)
			}
		}
	}
}
