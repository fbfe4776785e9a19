// Package monitor folds engine events into a point-in-time status snapshot.
// The snapshot marshals with camelCase keys because its consumers are
// dashboards and desktop shells, not Go code.
package monitor

import (
	"sync"
	"time"

	"github.com/hivegrid/hivegrid/internal/events"
)

// System health values reported in snapshots.
const (
	HealthIdle     = "idle"     // no run in progress
	HealthHealthy  = "healthy"  // run in progress, nothing failed yet
	HealthDegraded = "degraded" // run in progress with failures or blocks
)

// Snapshot is the wire view of the monitor's state.
type Snapshot struct {
	SystemHealth string `json:"systemHealth"`
	UptimeSec    int64  `json:"uptimeSeconds"`

	CurrentRunID   string `json:"currentRunId,omitempty"`
	TasksTotal     int    `json:"tasksTotal"`
	TasksCompleted int    `json:"tasksCompleted"`
	TasksFailed    int    `json:"tasksFailed"`
	TasksBlocked   int    `json:"tasksBlocked"`
	TasksCancelled int    `json:"tasksCancelled"`
	TasksRunning   int    `json:"tasksRunning"`
	TasksRemaining int    `json:"tasksRemaining"`

	TotalRuns           int `json:"totalRuns"`
	TotalTasksCompleted int `json:"totalTasksCompleted"`
	TotalTasksFailed    int `json:"totalTasksFailed"`

	PoolUsedSlots      int `json:"poolUsedSlots"`
	PoolAvailableSlots int `json:"poolAvailableSlots"`
	PoolTotalSlots     int `json:"poolTotalSlots"`

	Timestamp time.Time `json:"timestamp"`
}

// Monitor aggregates events. All methods are safe for concurrent use.
type Monitor struct {
	mu        sync.Mutex
	startedAt time.Time

	runID     string
	total     int
	completed int
	failed    int
	blocked   int
	cancelled int
	remaining int
	running   map[string]bool // task IDs with a started event and no terminal one

	totalRuns           int
	totalTasksCompleted int
	totalTasksFailed    int

	poolUsed      int
	poolAvailable int
	poolTotal     int
}

// New creates a monitor; uptime counts from here.
func New() *Monitor {
	return &Monitor{
		startedAt: time.Now(),
		running:   make(map[string]bool),
	}
}

// Listen consumes events until ch closes. Run it on its own goroutine.
func (m *Monitor) Listen(ch <-chan events.Event) {
	for e := range ch {
		m.Handle(e)
	}
}

// Handle folds one event into the aggregate. The per-run counters trust
// RunProgressEvent, which carries authoritative counts, so a dropped task
// event skews the snapshot only until the next progress tick.
func (m *Monitor) Handle(e events.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch ev := e.(type) {
	case events.RunStartedEvent:
		m.runID = ev.RunID
		m.total = ev.Total
		m.completed, m.failed, m.blocked, m.cancelled = 0, 0, 0, 0
		m.remaining = ev.Total
		m.running = make(map[string]bool)
		m.totalRuns++

	case events.TaskStartedEvent:
		m.running[ev.ID] = true

	case events.TaskCompletedEvent:
		delete(m.running, ev.ID)
		m.totalTasksCompleted++

	case events.TaskFailedEvent:
		delete(m.running, ev.ID)
		m.totalTasksFailed++

	case events.TaskCancelledEvent:
		delete(m.running, ev.ID)

	case events.RunProgressEvent:
		m.total = ev.Total
		m.completed = ev.Completed
		m.failed = ev.Failed
		m.blocked = ev.Blocked
		m.cancelled = ev.Cancelled
		m.remaining = ev.Remaining

	case events.RunFinishedEvent:
		m.runID = ""
		m.remaining = 0
		m.running = make(map[string]bool)

	case events.PoolStatsEvent:
		m.poolUsed = ev.Used
		m.poolAvailable = ev.Available
		m.poolTotal = ev.Total
	}
}

// Snapshot returns the current aggregate state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	health := HealthIdle
	if m.runID != "" {
		if m.failed > 0 || m.blocked > 0 {
			health = HealthDegraded
		} else {
			health = HealthHealthy
		}
	}

	return Snapshot{
		SystemHealth:        health,
		UptimeSec:           int64(time.Since(m.startedAt).Seconds()),
		CurrentRunID:        m.runID,
		TasksTotal:          m.total,
		TasksCompleted:      m.completed,
		TasksFailed:         m.failed,
		TasksBlocked:        m.blocked,
		TasksCancelled:      m.cancelled,
		TasksRunning:        len(m.running),
		TasksRemaining:      m.remaining,
		TotalRuns:           m.totalRuns,
		TotalTasksCompleted: m.totalTasksCompleted,
		TotalTasksFailed:    m.totalTasksFailed,
		PoolUsedSlots:       m.poolUsed,
		PoolAvailableSlots:  m.poolAvailable,
		PoolTotalSlots:      m.poolTotal,
		Timestamp:           time.Now(),
	}
}
