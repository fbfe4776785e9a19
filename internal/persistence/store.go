// Package persistence keeps run history in SQLite: one header row per run,
// one row per task outcome. The engine works fine without it; the store
// exists so `hivegrid history` can answer what happened last night.
package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/hivegrid/hivegrid/internal/orchestrator"
	_ "modernc.org/sqlite"
)

// RunRecord is a run's header row.
type RunRecord struct {
	ID         string
	PlanName   string
	StartedAt  time.Time
	FinishedAt time.Time // zero until the run finishes
	Duration   time.Duration
	Total      int
	Groups     int
	Succeeded  int
	Failed     int
	Blocked    int
	Cancelled  int
}

// OutcomeRecord is one task's final state within a run.
type OutcomeRecord struct {
	RunID    string
	TaskID   string
	Name     string
	Resource string
	Group    int
	State    string
	Strategy string
	Attempts int
	Output   string
	Error    string
	Reason   string
	Duration time.Duration
}

// Store defines the persistence interface for run history.
type Store interface {
	// CreateRun inserts the header row when a run starts.
	CreateRun(ctx context.Context, id, planName string, startedAt time.Time, total, groups int) error

	// SaveReport records a finished run: summary counts on the header plus
	// one outcome row per task, in a single transaction.
	SaveReport(ctx context.Context, report *orchestrator.RunReport) error

	// GetRun retrieves a run header by ID.
	GetRun(ctx context.Context, runID string) (*RunRecord, error)

	// ListRuns returns headers newest first, at most limit of them.
	ListRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// ListOutcomes returns a run's task outcomes ordered by group, then ID.
	ListOutcomes(ctx context.Context, runID string) ([]*OutcomeRecord, error)

	// Lifecycle
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite-backed store at the given path.
// Creates parent directories if needed. Enables WAL mode, foreign keys, and
// busy timeout.
func NewSQLiteStore(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create parent directories: %w", err)
	}

	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL", dbPath)
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// modernc.org/sqlite ignores _foreign_keys in the connection string, so
	// enable them with a PRAGMA
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewMemoryStore creates an in-memory SQLite store for testing.
// Uses a shared cache so multiple connections see the same database.
func NewMemoryStore(ctx context.Context) (*SQLiteStore, error) {
	connStr := "file::memory:?mode=memory&cache=shared"
	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	db.SetMaxOpenConns(2)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
