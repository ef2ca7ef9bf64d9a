package help

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/keys"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/theme"
	"github.com/nhle/dragonmail/internal/ui/command"
)

// Model is the help overlay. It lists every key binding, the palette
// commands and the active settings against their bounds.
type Model struct {
	keys     *keys.KeyMap
	help     help.Model
	settings model.Settings
	width    int
	height   int
}

// New creates a new help view model.
func New(keys *keys.KeyMap, width, height int) Model {
	h := help.New()
	h.Width = width
	return Model{
		keys:     keys,
		help:     h,
		settings: model.DefaultSettings(),
		width:    width,
		height:   height,
	}
}

// SetSettings records the settings shown in the overlay.
func (m *Model) SetSettings(s model.Settings) {
	m.settings = s
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the help view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	return m, nil
}

// View renders the help overlay.
func (m Model) View() string {
	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1)

	title := titleStyle.Render("Keyboard Shortcuts")

	m.help.Width = m.width - 4
	m.help.ShowAll = true
	helpText := m.help.View(m.keys)

	palette := theme.HelpStyle.Render(": " + strings.Join(command.Commands, ", "))

	notes := theme.HelpStyle.Render(fmt.Sprintf(
		"New emails live %d min (%d-%d); the inbox refreshes every %ds (%d-%d).\n"+
			"Deleting an account removes it from the provider; forgetting only clears it here.",
		m.settings.ExpirationMinutes, model.MinExpirationMinutes, model.MaxExpirationMinutes,
		m.settings.PollingIntervalSeconds, model.MinPollingIntervalSeconds, model.MaxPollingIntervalSeconds,
	))

	content := lipgloss.JoinVertical(lipgloss.Left, title, helpText, "", palette, "", notes)

	return theme.PanelStyle.
		Width(m.width - 4).
		Height(m.height - 4).
		Render(content)
}

// SetSize updates the help view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.help.Width = width - 4
}
