package command

import (
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/theme"
)

// CommandMsg carries a resolved palette command, or the raw input when
// nothing matched.
type CommandMsg string

// Commands lists the palette vocabulary in display order.
var Commands = []string{
	"generate", "refresh", "delete", "forget", "site",
	"save", "saved", "settings", "limits", "quit",
}

var aliases = map[string]string{
	"new":    "generate",
	"sync":   "refresh",
	"clear":  "forget",
	"config": "settings",
	"quota":  "limits",
	"q":      "quit",
}

// Resolve maps input to a command name. Aliases and unique prefixes
// resolve; anything else is returned unchanged.
func Resolve(input string) string {
	in := strings.ToLower(strings.TrimSpace(input))
	if name, ok := aliases[in]; ok {
		return name
	}
	matches := Complete(in)
	for _, c := range matches {
		if c == in {
			return c
		}
	}
	if len(matches) == 1 {
		return matches[0]
	}
	return in
}

// Complete returns the commands starting with prefix, sorted.
func Complete(prefix string) []string {
	if prefix == "" {
		return nil
	}
	var out []string
	for _, c := range Commands {
		if strings.HasPrefix(c, prefix) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out
}

// Model is the command palette view.
type Model struct {
	input   textinput.Model
	matches []string
	width   int
	height  int
}

// New creates a new command palette model.
func New(width, height int) Model {
	ti := textinput.New()
	ti.Placeholder = "generate, refresh, settings..."
	ti.Prompt = ": "
	ti.Width = width - 6

	return Model{input: ti, width: width, height: height}
}

// Init returns the initial command.
func (m Model) Init() tea.Cmd {
	return textinput.Blink
}

// Update handles messages for the command palette. Tab completes the
// longest shared prefix of the matching commands.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "enter":
			name := Resolve(m.input.Value())
			m.input.Reset()
			m.matches = nil
			if name == "" {
				return m, nil
			}
			return m, func() tea.Msg { return CommandMsg(name) }

		case "tab":
			if p := commonPrefix(Complete(strings.ToLower(m.input.Value()))); p != "" {
				m.input.SetValue(p)
				m.input.CursorEnd()
			}
			m.matches = Complete(strings.ToLower(m.input.Value()))
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	m.matches = Complete(strings.ToLower(strings.TrimSpace(m.input.Value())))
	return m, cmd
}

func commonPrefix(words []string) string {
	if len(words) == 0 {
		return ""
	}
	p := words[0]
	for _, w := range words[1:] {
		for !strings.HasPrefix(w, p) {
			p = p[:len(p)-1]
		}
	}
	return p
}

// View renders the command palette.
func (m Model) View() string {
	title := lipgloss.NewStyle().
		Bold(true).
		Foreground(theme.ColorWhite).
		MarginBottom(1).
		Render("Command Palette")

	vocabulary := Commands
	if len(m.matches) > 0 {
		vocabulary = m.matches
	}
	hint := theme.HelpStyle.Render(strings.Join(vocabulary, " · ") + "   (tab completes)")

	return theme.PanelStyle.
		Width(m.width - 4).
		Render(lipgloss.JoinVertical(lipgloss.Left, title, m.input.View(), "", hint))
}

// SetSize updates the command palette dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.input.Width = width - 6
}

// Focus clears previous input and gives the palette keyboard focus.
func (m *Model) Focus() tea.Cmd {
	m.input.Reset()
	m.matches = nil
	return m.input.Focus()
}
