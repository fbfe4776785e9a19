package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/hivegrid/hivegrid/internal/persistence"
)

func historyCmd() *cobra.Command {
	var flagLimit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "List past runs, or show one run's task outcomes",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			dbPath, err := historyPath()
			if err != nil {
				return err
			}
			store, err := persistence.NewSQLiteStore(ctx, dbPath)
			if err != nil {
				return fmt.Errorf("opening history store: %w", err)
			}
			defer store.Close()

			if len(args) == 1 {
				return printRunDetail(ctx, store, args[0])
			}

			runs, err := store.ListRuns(ctx, flagLimit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("No runs recorded yet.")
				return nil
			}

			fmt.Printf("%-10s %-16s %-20s %-10s %6s %4s %5s %6s %5s\n",
				"RUN", "PLAN", "STARTED", "DURATION", "TASKS", "OK", "FAIL", "BLOCK", "STOP")
			for _, r := range runs {
				dur := r.Duration.Round(time.Millisecond).String()
				if r.FinishedAt.IsZero() {
					dur = "-"
				}
				fmt.Printf("%-10s %-16s %-20s %-10s %6d %4d %5d %6d %5d\n",
					shortID(r.ID), r.PlanName, r.StartedAt.Format("2006-01-02 15:04:05"),
					dur, r.Total, r.Succeeded, r.Failed, r.Blocked, r.Cancelled)
			}

			return nil
		},
	}

	cmd.Flags().IntVar(&flagLimit, "limit", 20, "Max runs to list")

	return cmd
}

// printRunDetail shows one run's header and per-task outcomes.
func printRunDetail(ctx context.Context, store *persistence.SQLiteStore, idOrPrefix string) error {
	run, err := findRun(ctx, store, idOrPrefix)
	if err != nil {
		return err
	}

	fmt.Printf("Run %s (plan %q)\n", run.ID, run.PlanName)
	fmt.Printf("Started:  %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	if run.FinishedAt.IsZero() {
		fmt.Println("Duration: - (never finished)")
	} else {
		fmt.Printf("Duration: %v\n", run.Duration.Round(time.Millisecond))
	}
	fmt.Printf("Totals:   %d succeeded, %d failed, %d blocked, %d cancelled\n\n",
		run.Succeeded, run.Failed, run.Blocked, run.Cancelled)

	outcomes, err := store.ListOutcomes(ctx, run.ID)
	if err != nil {
		return err
	}

	for _, o := range outcomes {
		switch o.State {
		case "succeeded":
			fmt.Printf("  ok    %-20s group %d, %d attempt(s), strategy %s, %v\n",
				o.TaskID, o.Group+1, o.Attempts, o.Strategy, o.Duration.Round(time.Millisecond))
		case "failed":
			fmt.Printf("  FAIL  %-20s group %d, %d attempt(s): %s\n",
				o.TaskID, o.Group+1, o.Attempts, o.Error)
		case "blocked":
			fmt.Printf("  block %-20s group %d: %s\n", o.TaskID, o.Group+1, o.Reason)
		case "cancelled":
			fmt.Printf("  stop  %-20s group %d: cancelled\n", o.TaskID, o.Group+1)
		default:
			fmt.Printf("  ?     %-20s group %d: %s\n", o.TaskID, o.Group+1, o.State)
		}
	}

	return nil
}

// findRun resolves a full run ID or a unique prefix of one.
func findRun(ctx context.Context, store *persistence.SQLiteStore, idOrPrefix string) (*persistence.RunRecord, error) {
	if run, err := store.GetRun(ctx, idOrPrefix); err == nil {
		return run, nil
	}

	// Not an exact ID; look for a unique prefix among recent runs
	runs, err := store.ListRuns(ctx, 500)
	if err != nil {
		return nil, err
	}

	var match *persistence.RunRecord
	for _, r := range runs {
		if strings.HasPrefix(r.ID, idOrPrefix) {
			if match != nil {
				return nil, fmt.Errorf("run ID prefix %q is ambiguous", idOrPrefix)
			}
			match = r
		}
	}
	if match == nil {
		return nil, fmt.Errorf("run not found: %s", idOrPrefix)
	}
	return match, nil
}
