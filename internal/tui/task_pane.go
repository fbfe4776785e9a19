package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hivegrid/hivegrid/internal/events"
)

// TaskEntry is what the pane knows about a single task.
type TaskEntry struct {
	ID       string
	Name     string
	Resource string
	Status   string // "running", "retrying", "completed", "failed", "blocked", "cancelled"
	Attempts int
	Log      []string
	Duration time.Duration
}

// TaskPaneModel renders the task list and the selected task's log viewport.
type TaskPaneModel struct {
	tasks       map[string]*TaskEntry
	taskOrder   []string // insertion order for display
	selectedIdx int
	viewport    viewport.Model
	width       int
	height      int
	focused     bool
}

// NewTaskPaneModel creates a new task pane model.
func NewTaskPaneModel() TaskPaneModel {
	return TaskPaneModel{
		tasks:    make(map[string]*TaskEntry),
		viewport: viewport.New(0, 0),
	}
}

// Update handles messages for the task pane.
func (m TaskPaneModel) Update(msg tea.Msg) (TaskPaneModel, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resizeViewport()

	case tea.KeyMsg:
		if !m.focused {
			break
		}

		switch msg.String() {
		case KeyJ, KeyDown:
			if m.selectedIdx < len(m.taskOrder)-1 {
				m.selectedIdx++
				m.updateViewportContent()
			}
		case KeyK, KeyUp:
			if m.selectedIdx > 0 {
				m.selectedIdx--
				m.updateViewportContent()
			}
		default:
			// Delegate other keys to the viewport for scrolling
			m.viewport, cmd = m.viewport.Update(msg)
		}

	case events.TaskStartedEvent:
		task := m.upsert(msg.ID, msg.Name)
		task.Resource = msg.Resource
		task.Status = "running"
		line := fmt.Sprintf("Started in group %d", msg.Group+1)
		if msg.Resource != "" {
			line += " on " + msg.Resource
		}
		m.appendLog(msg.ID, line)

	case events.TaskRetryingEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "retrying"
			m.appendLog(msg.ID,
				fmt.Sprintf("Attempt %d failed: %s", msg.Attempt, msg.Err),
				fmt.Sprintf("Retrying with strategy %q", msg.Strategy))
		}

	case events.TaskCompletedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "completed"
			task.Attempts = msg.Attempts
			task.Duration = msg.Duration
			if msg.Output != "" {
				m.appendLog(msg.ID, strings.TrimRight(msg.Output, "\n"))
			}
			m.appendLog(msg.ID, fmt.Sprintf("\n[Completed in %v, %d attempt(s), strategy %s]",
				msg.Duration.Round(time.Millisecond), msg.Attempts, msg.Strategy))
		}

	case events.TaskFailedEvent:
		if task, exists := m.tasks[msg.ID]; exists {
			task.Status = "failed"
			task.Attempts = msg.Attempts
			task.Duration = msg.Duration
			m.appendLog(msg.ID, fmt.Sprintf("\n[Failed after %d attempt(s): %v]", msg.Attempts, msg.Err))
		}

	case events.TaskBlockedEvent:
		// Blocked tasks never start, so this may be the first event seen
		// for the ID.
		task := m.upsert(msg.ID, msg.ID)
		task.Status = "blocked"
		m.appendLog(msg.ID, fmt.Sprintf("[Blocked: %s]", msg.Reason))

	case events.TaskCancelledEvent:
		// Same story: cancellation can land before the task ever ran.
		task := m.upsert(msg.ID, msg.ID)
		task.Status = "cancelled"
		m.appendLog(msg.ID, "[Cancelled]")
	}

	return m, cmd
}

// upsert returns the entry for id, creating and listing it if needed.
func (m *TaskPaneModel) upsert(id, name string) *TaskEntry {
	if task, exists := m.tasks[id]; exists {
		return task
	}
	task := &TaskEntry{ID: id, Name: name, Status: "pending"}
	m.tasks[id] = task
	m.taskOrder = append(m.taskOrder, id)
	// Auto-select the first task to arrive
	if len(m.taskOrder) == 1 {
		m.selectedIdx = 0
	}
	return task
}

// appendLog adds lines to a task's log and refreshes the viewport when that
// task is the selected one.
func (m *TaskPaneModel) appendLog(id string, lines ...string) {
	task, exists := m.tasks[id]
	if !exists {
		return
	}
	task.Log = append(task.Log, lines...)
	if m.selectedTaskID() == id {
		m.updateViewportContent()
	}
}

// View renders the task pane.
func (m TaskPaneModel) View() string {
	if m.width == 0 || m.height == 0 {
		return ""
	}

	// Two columns: task list on the left, log viewport on the right
	listWidth := 25
	viewportWidth := m.width - listWidth - 4 // account for borders and padding

	listContent := m.renderTaskList(listWidth)
	viewportContent := m.viewport.View()

	content := lipgloss.JoinHorizontal(
		lipgloss.Top,
		listContent,
		lipgloss.NewStyle().
			Width(viewportWidth).
			Height(m.height-2).
			Render(viewportContent),
	)

	style := StyleUnfocusedBorder
	if m.focused {
		style = StyleFocusedBorder
	}

	return style.
		Width(m.width - 2).
		Height(m.height - 2).
		Render(content)
}

// renderTaskList renders the task list column.
func (m TaskPaneModel) renderTaskList(width int) string {
	var b strings.Builder

	title := StyleTitle.Render("Tasks")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(strings.Repeat("=", min(width, lipgloss.Width(title))))
	b.WriteString("\n\n")

	if len(m.taskOrder) == 0 {
		b.WriteString(StyleStatusPending.Render("Waiting..."))
	} else {
		for i, id := range m.taskOrder {
			task := m.tasks[id]
			icon := m.StatusIcon(task.Status)
			name := task.Name
			if len(name) > width-6 {
				name = name[:width-9] + "..."
			}

			line := fmt.Sprintf("%s %s", icon, name)
			if i == m.selectedIdx {
				line = lipgloss.NewStyle().
					Background(lipgloss.Color("62")).
					Foreground(lipgloss.Color("0")).
					Render(line)
			}
			b.WriteString(line)
			b.WriteString("\n")
		}
	}

	return lipgloss.NewStyle().
		Width(width).
		Height(m.height - 2).
		Render(b.String())
}

// StatusIcon returns a styled status indicator.
func (m TaskPaneModel) StatusIcon(status string) string {
	switch status {
	case "running":
		return StyleStatusRunning.Render("●")
	case "retrying":
		return StyleStatusRunning.Render("↻")
	case "completed":
		return StyleStatusComplete.Render("✓")
	case "failed":
		return StyleStatusFailed.Render("✗")
	case "blocked":
		return StyleStatusBlocked.Render("⊘")
	case "cancelled":
		return StyleStatusPending.Render("⊗")
	default:
		return StyleStatusPending.Render("○")
	}
}

// selectedTaskID returns the ID of the currently selected task.
func (m TaskPaneModel) selectedTaskID() string {
	if m.selectedIdx >= 0 && m.selectedIdx < len(m.taskOrder) {
		return m.taskOrder[m.selectedIdx]
	}
	return ""
}

// updateViewportContent fills the viewport with the selected task's log.
func (m *TaskPaneModel) updateViewportContent() {
	id := m.selectedTaskID()
	if id == "" {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	task, exists := m.tasks[id]
	if !exists {
		m.viewport.SetContent("Waiting for tasks...")
		return
	}

	m.viewport.SetContent(strings.Join(task.Log, "\n"))
	// Auto-scroll to bottom
	m.viewport.GotoBottom()
}

// resizeViewport resizes the viewport based on pane dimensions.
func (m *TaskPaneModel) resizeViewport() {
	listWidth := 25
	viewportWidth := m.width - listWidth - 4
	viewportHeight := m.height - 4 // account for borders

	if viewportWidth < 10 {
		viewportWidth = 10
	}
	if viewportHeight < 5 {
		viewportHeight = 5
	}

	m.viewport.Width = viewportWidth
	m.viewport.Height = viewportHeight
}

// SetSize updates the pane dimensions.
func (m *TaskPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	m.resizeViewport()
}

// SetFocused updates the focus state.
func (m *TaskPaneModel) SetFocused(focused bool) {
	m.focused = focused
}
