package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hivegrid/hivegrid/internal/events"
)

// RunPaneModel shows run-level progress: group position, task counters,
// slot usage, one bar for the whole run.
type RunPaneModel struct {
	runID     string
	total     int
	completed int
	failed    int
	blocked   int
	cancelled int
	remaining int

	groups    int
	groupIdx  int // 1-based for display; 0 means no group yet
	groupSize int

	poolUsed  int
	poolAvail int
	poolTotal int

	finished bool
	duration time.Duration

	width   int
	height  int
	focused bool
}

// NewRunPaneModel creates a new run pane model.
func NewRunPaneModel() RunPaneModel {
	return RunPaneModel{}
}

// Update handles messages for the run pane.
func (m RunPaneModel) Update(msg tea.Msg) (RunPaneModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case events.RunStartedEvent:
		// Reset the counters but keep the layout
		w, h, f := m.width, m.height, m.focused
		m = NewRunPaneModel()
		m.width, m.height, m.focused = w, h, f
		m.runID = msg.RunID
		m.total = msg.Total
		m.remaining = msg.Total
		m.groups = msg.Groups

	case events.GroupStartedEvent:
		m.groupIdx = msg.Index + 1
		m.groupSize = msg.Size

	case events.RunProgressEvent:
		m.total = msg.Total
		m.completed = msg.Completed
		m.failed = msg.Failed
		m.blocked = msg.Blocked
		m.cancelled = msg.Cancelled
		m.remaining = msg.Remaining

	case events.RunFinishedEvent:
		m.finished = true
		m.duration = msg.Duration

	case events.PoolStatsEvent:
		m.poolUsed = msg.Used
		m.poolAvail = msg.Available
		m.poolTotal = msg.Total
	}

	return m, nil
}

// View renders the run pane.
func (m RunPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	var b strings.Builder

	// Title
	title := StyleTitle.Render("Run Progress")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", lipgloss.Width(title)))
	b.WriteString("\n\n")

	// Run line
	switch {
	case m.runID == "":
		b.WriteString(StyleStatusPending.Render("No run yet"))
		b.WriteString("\n")
	case m.finished:
		b.WriteString(fmt.Sprintf("Run %s finished in %v\n",
			shortID(m.runID), m.duration.Round(time.Millisecond)))
	default:
		b.WriteString(fmt.Sprintf("Run %s, group %d/%d (%d tasks)\n",
			shortID(m.runID), m.groupIdx, m.groups, m.groupSize))
	}

	if m.poolTotal > 0 {
		b.WriteString(fmt.Sprintf("Slots:     %d/%d in use\n", m.poolUsed, m.poolTotal))
	}
	b.WriteString("\n")

	// Counts
	b.WriteString(fmt.Sprintf("Total:     %d\n", m.total))
	b.WriteString(fmt.Sprintf("Completed: %s\n", StyleStatusComplete.Render(fmt.Sprintf("%d", m.completed))))
	b.WriteString(fmt.Sprintf("Failed:    %s\n", StyleStatusFailed.Render(fmt.Sprintf("%d", m.failed))))
	b.WriteString(fmt.Sprintf("Blocked:   %s\n", StyleStatusBlocked.Render(fmt.Sprintf("%d", m.blocked))))
	b.WriteString(fmt.Sprintf("Cancelled: %s\n", StyleStatusPending.Render(fmt.Sprintf("%d", m.cancelled))))
	b.WriteString(fmt.Sprintf("Remaining: %s\n", StyleStatusRunning.Render(fmt.Sprintf("%d", m.remaining))))

	b.WriteString("\n")

	// Progress bar
	if m.total > 0 {
		barWidth := min(m.width-4, 40)
		completedWidth := (m.completed * barWidth) / m.total
		failedWidth := (m.failed * barWidth) / m.total
		stoppedWidth := ((m.blocked + m.cancelled) * barWidth) / m.total
		remainingWidth := barWidth - completedWidth - failedWidth - stoppedWidth

		bar := StyleStatusComplete.Render(strings.Repeat("=", max(0, completedWidth)))
		bar += StyleStatusFailed.Render(strings.Repeat("!", max(0, failedWidth)))
		bar += StyleStatusBlocked.Render(strings.Repeat("-", max(0, stoppedWidth)))
		bar += StyleStatusPending.Render(strings.Repeat(".", max(0, remainingWidth)))

		b.WriteString(fmt.Sprintf("[%s]  %d/%d\n", bar, m.total-m.remaining, m.total))
	}

	content := b.String()

	// Apply border style
	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// shortID trims a run ID down to something that fits on one line.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

// SetSize updates the pane dimensions.
func (m *RunPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
}

// SetFocused updates the focus state.
func (m *RunPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
