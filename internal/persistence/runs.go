package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hivegrid/hivegrid/internal/orchestrator"
)

// CreateRun inserts the header row for a run that just started.
func (s *SQLiteStore) CreateRun(ctx context.Context, id, planName string, startedAt time.Time, total, groups int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, plan_name, started_at, total, groups)
		VALUES (?, ?, ?, ?, ?)
	`, id, planName, startedAt, total, groups)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	return nil
}

// SaveReport records a finished run. The header is upserted so a report can
// be saved even when CreateRun never ran; outcome rows are upserted too,
// making the whole call idempotent.
func (s *SQLiteStore) SaveReport(ctx context.Context, report *orchestrator.RunReport) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	succeeded, failed, blocked, cancelled := report.Counts()
	finishedAt := report.StartedAt.Add(report.Duration)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, finished_at, duration_ms, total, groups, succeeded, failed, blocked, cancelled)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			finished_at = excluded.finished_at,
			duration_ms = excluded.duration_ms,
			total = excluded.total,
			groups = excluded.groups,
			succeeded = excluded.succeeded,
			failed = excluded.failed,
			blocked = excluded.blocked,
			cancelled = excluded.cancelled
	`, report.RunID, report.StartedAt, finishedAt, report.Duration.Milliseconds(),
		len(report.Outcomes), report.Groups, succeeded, failed, blocked, cancelled)
	if err != nil {
		return fmt.Errorf("failed to upsert run: %w", err)
	}

	for _, o := range report.Outcomes {
		errorStr := ""
		if o.Err != nil {
			errorStr = o.Err.Error()
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO task_outcomes (run_id, task_id, name, resource, group_idx, state, strategy, attempts, output, error, reason, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(run_id, task_id) DO UPDATE SET
				name = excluded.name,
				resource = excluded.resource,
				group_idx = excluded.group_idx,
				state = excluded.state,
				strategy = excluded.strategy,
				attempts = excluded.attempts,
				output = excluded.output,
				error = excluded.error,
				reason = excluded.reason,
				duration_ms = excluded.duration_ms
		`, report.RunID, o.TaskID, o.Name, o.Resource, o.Group, string(o.State),
			o.Strategy, o.Attempts, o.Output, errorStr, o.Reason, o.Duration.Milliseconds())
		if err != nil {
			return fmt.Errorf("failed to upsert outcome for task %s: %w", o.TaskID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// GetRun retrieves a run header by ID.
func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunRecord, error) {
	run := &RunRecord{}
	var finishedAt sql.NullTime
	var durationMs int64

	err := s.db.QueryRowContext(ctx, `
		SELECT id, plan_name, started_at, finished_at, duration_ms, total, groups, succeeded, failed, blocked, cancelled
		FROM runs
		WHERE id = ?
	`, runID).Scan(&run.ID, &run.PlanName, &run.StartedAt, &finishedAt, &durationMs,
		&run.Total, &run.Groups, &run.Succeeded, &run.Failed, &run.Blocked, &run.Cancelled)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", runID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	if finishedAt.Valid {
		run.FinishedAt = finishedAt.Time
	}
	run.Duration = time.Duration(durationMs) * time.Millisecond

	return run, nil
}

// ListRuns returns run headers newest first. limit <= 0 means at most 50.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, plan_name, started_at, finished_at, duration_ms, total, groups, succeeded, failed, blocked, cancelled
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		run := &RunRecord{}
		var finishedAt sql.NullTime
		var durationMs int64

		err := rows.Scan(&run.ID, &run.PlanName, &run.StartedAt, &finishedAt, &durationMs,
			&run.Total, &run.Groups, &run.Succeeded, &run.Failed, &run.Blocked, &run.Cancelled)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if finishedAt.Valid {
			run.FinishedAt = finishedAt.Time
		}
		run.Duration = time.Duration(durationMs) * time.Millisecond

		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

// ListOutcomes returns a run's task outcomes ordered by group, then task ID.
func (s *SQLiteStore) ListOutcomes(ctx context.Context, runID string) ([]*OutcomeRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, task_id, name, resource, group_idx, state, strategy, attempts, output, error, reason, duration_ms
		FROM task_outcomes
		WHERE run_id = ?
		ORDER BY group_idx, task_id
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outcomes: %w", err)
	}
	defer rows.Close()

	var outcomes []*OutcomeRecord
	for rows.Next() {
		o := &OutcomeRecord{}
		var durationMs int64

		err := rows.Scan(&o.RunID, &o.TaskID, &o.Name, &o.Resource, &o.Group, &o.State,
			&o.Strategy, &o.Attempts, &o.Output, &o.Error, &o.Reason, &durationMs)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Duration = time.Duration(durationMs) * time.Millisecond

		outcomes = append(outcomes, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outcomes: %w", err)
	}

	return outcomes, nil
}
