package tui

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/hivegrid/hivegrid/internal/config"
	"github.com/hivegrid/hivegrid/internal/events"
)

// PaneID identifies which pane is focused.
type PaneID int

const (
	PaneTasks PaneID = iota
	PaneRun
)

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	taskPane          TaskPaneModel
	runPane           RunPaneModel
	settingsPane      SettingsPaneModel
	focusedPane       PaneID
	eventSub          <-chan events.Event
	width             int
	height            int
	quitting          bool
	showSettings      bool
	config            *config.EngineConfig
	globalConfigPath  string
	projectConfigPath string
}

// New creates a new TUI model subscribed to every topic on the bus.
func New(bus *events.Bus, cfg *config.EngineConfig, globalPath, projectPath string) Model {
	return Model{
		taskPane:          NewTaskPaneModel(),
		runPane:           NewRunPaneModel(),
		settingsPane:      NewSettingsPaneModel(cfg, globalPath, projectPath),
		focusedPane:       PaneTasks,
		eventSub:          bus.Subscribe(256),
		showSettings:      false,
		config:            cfg,
		globalConfigPath:  globalPath,
		projectConfigPath: projectPath,
	}
}

// Init initializes the model and returns the initial command.
func (m Model) Init() tea.Cmd {
	return waitForEvent(m.eventSub)
}

// waitForEvent returns a command that waits for the next event from the bus.
func waitForEvent(sub <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-sub
		if !ok {
			return nil // bus closed
		}
		return event
	}
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		// If the settings panel is open, route all keys to it (modal behavior)
		if m.showSettings {
			switch msg.String() {
			case KeySettings, "esc":
				// Toggle settings off
				m.showSettings = false
				m.settingsPane.SetVisible(false)
			default:
				// Route to settings pane
				var cmd tea.Cmd
				m.settingsPane, cmd = m.settingsPane.Update(msg)
				cmds = append(cmds, cmd)

				// Check if the settings pane closed itself (after save)
				if !m.settingsPane.IsVisible() {
					m.showSettings = false
				}
			}
			return m, tea.Batch(cmds...)
		}

		// Normal mode (settings not open)
		switch msg.String() {
		case KeyQuit, KeyCtrlC:
			m.quitting = true
			return m, tea.Quit

		case KeySettings:
			// Toggle settings on
			m.showSettings = true
			m.settingsPane.SetVisible(true)
			cmds = append(cmds, m.settingsPane.Init())

		case KeyTab:
			// Cycle forward
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyShiftTab:
			// Cycle backward; +1 is equivalent to -1 mod 2
			m.focusedPane = (m.focusedPane + 1) % 2
			m.updateFocusStates()

		case KeyPane1:
			m.focusedPane = PaneTasks
			m.updateFocusStates()

		case KeyPane2:
			m.focusedPane = PaneRun
			m.updateFocusStates()

		default:
			// Delegate to the focused pane
			switch m.focusedPane {
			case PaneTasks:
				var cmd tea.Cmd
				m.taskPane, cmd = m.taskPane.Update(msg)
				cmds = append(cmds, cmd)
			case PaneRun:
				var cmd tea.Cmd
				m.runPane, cmd = m.runPane.Update(msg)
				cmds = append(cmds, cmd)
			}
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.computeLayout()
		m.settingsPane.SetSize(msg.Width, msg.Height)

	case events.TaskStartedEvent, events.TaskRetryingEvent, events.TaskCompletedEvent,
		events.TaskFailedEvent, events.TaskBlockedEvent, events.TaskCancelledEvent:
		// Forward task events to the task pane
		var cmd tea.Cmd
		m.taskPane, cmd = m.taskPane.Update(msg)
		cmds = append(cmds, cmd)
		// Also wait for the next event
		cmds = append(cmds, waitForEvent(m.eventSub))

	case events.RunStartedEvent, events.RunProgressEvent, events.RunFinishedEvent,
		events.GroupStartedEvent, events.GroupFinishedEvent, events.PoolStatsEvent:
		// Forward run-level events to the run pane
		var cmd tea.Cmd
		m.runPane, cmd = m.runPane.Update(msg)
		cmds = append(cmds, cmd)
		// Also wait for the next event
		cmds = append(cmds, waitForEvent(m.eventSub))
	}

	return m, tea.Batch(cmds...)
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if m.width == 0 || m.height == 0 {
		return "Initializing..."
	}

	// If the settings panel is visible, render it full screen
	if m.showSettings {
		return m.settingsPane.View()
	}

	leftPane := m.taskPane.View()
	rightPane := m.runPane.View()

	mainContent := lipgloss.JoinHorizontal(lipgloss.Top, leftPane, rightPane)

	// Add help bar at the bottom
	helpBar := HelpView()

	return lipgloss.JoinVertical(lipgloss.Left, mainContent, helpBar)
}

// computeLayout calculates pane dimensions and updates all child models.
func (m *Model) computeLayout() {
	// Tasks take the wide left column, the run summary the narrow right one
	leftWidth := (m.width * 65) / 100
	rightWidth := m.width - leftWidth
	availableHeight := m.height - 1 // reserve 1 line for the help bar

	m.taskPane.SetSize(leftWidth, availableHeight)
	m.runPane.SetSize(rightWidth, availableHeight)

	m.updateFocusStates()
}

// updateFocusStates updates the focus state of all panes.
func (m *Model) updateFocusStates() {
	m.taskPane.SetFocused(m.focusedPane == PaneTasks)
	m.runPane.SetFocused(m.focusedPane == PaneRun)
}
