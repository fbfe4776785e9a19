package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/hivegrid/hivegrid/internal/config"
)

// SettingsPaneModel manages the settings form overlay.
type SettingsPaneModel struct {
	form        *huh.Form
	config      *config.EngineConfig
	globalPath  string
	projectPath string
	width       int
	height      int
	visible     bool
	saved       bool
	err         error

	// Form field bindings (strings for Huh)
	saveTarget      string
	maxConcurrency  string
	taskTimeout     string
	defaultSlots    string
	globalSlots     string
	maxRetries      string
	initialInterval string
	maxInterval     string
}

// NewSettingsPaneModel creates a new settings pane.
func NewSettingsPaneModel(cfg *config.EngineConfig, globalPath, projectPath string) SettingsPaneModel {
	m := SettingsPaneModel{
		config:      cfg,
		globalPath:  globalPath,
		projectPath: projectPath,
		visible:     false,
		saved:       false,

		// Initialize form field values from config
		saveTarget:      "global",
		maxConcurrency:  strconv.Itoa(cfg.Run.MaxConcurrency),
		taskTimeout:     cfg.Run.TaskTimeout,
		defaultSlots:    strconv.Itoa(cfg.Pool.DefaultSlots),
		globalSlots:     strconv.Itoa(cfg.Pool.GlobalSlots),
		maxRetries:      strconv.Itoa(cfg.Retry.MaxRetries),
		initialInterval: cfg.Retry.Backoff.InitialInterval,
		maxInterval:     cfg.Retry.Backoff.MaxInterval,
	}

	m.buildForm()
	return m
}

// buildForm constructs the Huh form with all settings fields.
func (m *SettingsPaneModel) buildForm() {
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Key("saveTarget").
				Title("Save To").
				Options(
					huh.NewOption("Global (~/.hivegrid/config.json)", "global"),
					huh.NewOption("Project (.hivegrid/config.json)", "project"),
				).
				Value(&m.saveTarget),
		).Title("Save Target"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxConcurrency").
				Title("Max Concurrency").
				Value(&m.maxConcurrency).
				Placeholder("4").
				Validate(validateInt(0)),

			huh.NewInput().
				Key("taskTimeout").
				Title("Task Timeout").
				Value(&m.taskTimeout).
				Placeholder("10m").
				Validate(validateDuration),
		).Title("Run Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("defaultSlots").
				Title("Default Slots per Resource").
				Value(&m.defaultSlots).
				Placeholder("2").
				Validate(validateInt(0)),

			huh.NewInput().
				Key("globalSlots").
				Title("Global Slot Ceiling (0 = off)").
				Value(&m.globalSlots).
				Placeholder("0").
				Validate(validateInt(0)),
		).Title("Slot Pool Settings"),

		huh.NewGroup(
			huh.NewInput().
				Key("maxRetries").
				Title("Max Attempts per Task").
				Value(&m.maxRetries).
				Placeholder("4").
				Validate(validateInt(0)),

			huh.NewInput().
				Key("initialInterval").
				Title("Initial Backoff").
				Value(&m.initialInterval).
				Placeholder("100ms").
				Validate(validateDuration),

			huh.NewInput().
				Key("maxInterval").
				Title("Max Backoff").
				Value(&m.maxInterval).
				Placeholder("10s").
				Validate(validateDuration),
		).Title("Retry Settings"),
	)
}

// validateInt accepts whole numbers no smaller than floor.
func validateInt(floor int) func(string) error {
	return func(s string) error {
		n, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return fmt.Errorf("enter a whole number")
		}
		if n < floor {
			return fmt.Errorf("must be at least %d", floor)
		}
		return nil
	}
}

// validateDuration accepts Go duration strings; empty disables the setting.
func validateDuration(s string) error {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	if _, err := time.ParseDuration(strings.TrimSpace(s)); err != nil {
		return fmt.Errorf("use a Go duration like 90s or 10m")
	}
	return nil
}

// Init initializes the settings pane.
func (m SettingsPaneModel) Init() tea.Cmd {
	return m.form.Init()
}

// Update handles messages for the settings pane.
func (m SettingsPaneModel) Update(msg tea.Msg) (SettingsPaneModel, tea.Cmd) {
	if !m.visible {
		return m, nil
	}

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "esc":
			// Cancel without saving
			m.visible = false
			m.saved = false
			return m, nil
		}
	}

	// Delegate to form
	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}

	// Check if form is completed
	if m.form.State == huh.StateCompleted {
		// Copy form values back to config
		m.applyFormToConfig()

		// Determine save path
		targetPath := m.globalPath
		if m.saveTarget == "project" {
			targetPath = m.projectPath
		}

		// Save config
		if err := config.Save(m.config, targetPath); err != nil {
			m.err = err
			m.saved = false
		} else {
			m.saved = true
			m.err = nil
		}

		// Hide form after successful save
		if m.saved {
			m.visible = false
		}
	}

	return m, cmd
}

// applyFormToConfig copies form field values back to the config struct.
// The form validators already vetted every value, so parse errors are
// ignored here.
func (m *SettingsPaneModel) applyFormToConfig() {
	if n, err := strconv.Atoi(strings.TrimSpace(m.maxConcurrency)); err == nil {
		m.config.Run.MaxConcurrency = n
	}
	m.config.Run.TaskTimeout = strings.TrimSpace(m.taskTimeout)

	if n, err := strconv.Atoi(strings.TrimSpace(m.defaultSlots)); err == nil {
		m.config.Pool.DefaultSlots = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(m.globalSlots)); err == nil {
		m.config.Pool.GlobalSlots = n
	}

	if n, err := strconv.Atoi(strings.TrimSpace(m.maxRetries)); err == nil {
		m.config.Retry.MaxRetries = n
	}
	m.config.Retry.Backoff.InitialInterval = strings.TrimSpace(m.initialInterval)
	m.config.Retry.Backoff.MaxInterval = strings.TrimSpace(m.maxInterval)
}

// View renders the settings pane.
func (m SettingsPaneModel) View() string {
	if !m.visible {
		return ""
	}

	var content string

	// Show saved message if just saved
	if m.saved && m.form.State == huh.StateCompleted {
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("10")).
			Bold(true).
			Render("✓ Settings saved successfully!")
	} else if m.err != nil {
		// Show error if save failed
		content = lipgloss.NewStyle().
			Foreground(lipgloss.Color("9")).
			Bold(true).
			Render(fmt.Sprintf("✗ Error saving: %v", m.err))
	} else {
		// Render form
		content = m.form.View()
	}

	// Wrap in styled border
	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("62")).
		Padding(1, 2).
		Width(m.width - 4).
		Height(m.height - 4)

	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("62")).
		Render("⚙ Settings")

	body := style.Render(content)

	return lipgloss.JoinVertical(lipgloss.Left, title, body)
}

// SetSize updates the dimensions of the settings pane.
func (m *SettingsPaneModel) SetSize(w, h int) {
	m.width = w
	m.height = h
	if m.form != nil {
		m.form.WithWidth(w - 8).WithHeight(h - 8)
	}
}

// SetVisible shows or hides the settings pane.
func (m *SettingsPaneModel) SetVisible(v bool) {
	m.visible = v
	m.saved = false
	m.err = nil

	// Reset form state when showing
	if v && m.form != nil {
		// Rebuild form to reset state
		m.buildForm()
	}
}

// IsVisible returns whether the settings pane is currently visible.
func (m SettingsPaneModel) IsVisible() bool {
	return m.visible
}
