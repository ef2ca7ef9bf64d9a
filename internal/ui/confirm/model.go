// Package confirm is a yes/no prompt guarding destructive actions.
package confirm

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
)

// Action names what the prompt guards.
type Action string

const (
	ActionDeleteAccount Action = "delete-account"
	ActionForget        Action = "forget"
	ActionDeleteSaved   Action = "delete-saved"
	ActionRegenerate    Action = "regenerate"
)

// ResultMsg reports the user's answer.
type ResultMsg struct {
	Action    Action
	Target    string
	Confirmed bool
}

// Model wraps a huh confirm form.
type Model struct {
	action    Action
	target    string
	form      *huh.Form
	confirmed *bool
	width     int
	height    int
}

// New creates an idle prompt.
func New(width, height int) Model {
	return Model{width: width, height: height}
}

// Ask starts a prompt for action on target.
func (m *Model) Ask(action Action, target, title, description string) tea.Cmd {
	m.action = action
	m.target = target
	m.confirmed = new(bool)
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(title).
				Description(description).
				Affirmative("Yes").
				Negative("Cancel").
				Value(m.confirmed),
		),
	).WithWidth(m.formWidth()).WithShowHelp(false)
	return m.form.Init()
}

// Update forwards input to the form and emits ResultMsg once answered.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if m.form == nil {
		return m, nil
	}

	mdl, cmd := m.form.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.form = f
	}

	switch m.form.State {
	case huh.StateCompleted:
		return m.finish(*m.confirmed)
	case huh.StateAborted:
		return m.finish(false)
	}
	return m, cmd
}

func (m Model) finish(confirmed bool) (Model, tea.Cmd) {
	res := ResultMsg{Action: m.action, Target: m.target, Confirmed: confirmed}
	m.form = nil
	return m, func() tea.Msg { return res }
}

// View renders the prompt.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}
	return lipgloss.NewStyle().Padding(1, 2).Render(m.form.View())
}

// SetSize updates dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
}

func (m Model) formWidth() int {
	w := m.width - 4
	if w < 40 {
		w = 40
	}
	if w > 80 {
		w = 80
	}
	return w
}
