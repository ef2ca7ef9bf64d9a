package inbox

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/keys"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
	"github.com/nhle/dragonmail/internal/theme"
)

// SelectedMessageMsg is sent when the user opens a message.
type SelectedMessageMsg struct {
	ID string
}

// cardHeight is the number of lines the account card occupies.
const cardHeight = 7

// Model is the main view: the account card above the message list.
type Model struct {
	list    list.Model
	spinner spinner.Model
	keys    *keys.KeyMap
	state   session.State
	width   int
	height  int
}

// New creates a new inbox model.
func New(k *keys.KeyMap, width, height int) Model {
	l := list.New([]list.Item{}, ItemDelegate{}, width, listHeight(height))
	l.Title = "Inbox"
	l.SetShowStatusBar(true)
	l.SetShowHelp(false)
	l.SetFilteringEnabled(false)
	l.Styles.Title = theme.HeaderStyle

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(theme.ColorYellow)

	return Model{
		list:    l,
		spinner: sp,
		keys:    k,
		width:   width,
		height:  height,
	}
}

func listHeight(height int) int {
	h := height - cardHeight - 1
	if h < 3 {
		return 3
	}
	return h
}

// Init starts the spinner.
func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// SetState replaces the rendered snapshot.
func (m *Model) SetState(st session.State) tea.Cmd {
	m.state = st

	items := make([]list.Item, len(st.Messages))
	for i, msg := range st.Messages {
		items[i] = MessageItem{Message: msg}
	}
	return m.list.SetItems(items)
}

// Selected returns the highlighted message, if any.
func (m Model) Selected() (model.Message, bool) {
	item, ok := m.list.SelectedItem().(MessageItem)
	if !ok {
		return model.Message{}, false
	}
	return item.Message, true
}

// Update handles messages for the inbox view.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Select) {
			selected, ok := m.Selected()
			if !ok {
				return m, nil
			}
			return m, func() tea.Msg {
				return SelectedMessageMsg{ID: selected.ID}
			}
		}
	}

	// Delegate to list model for navigation keys (up/down/pgup/pgdn)
	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

// View renders the account card and the message list.
func (m Model) View() string {
	card := m.renderCard()
	if m.state.Account == nil {
		return card
	}

	if len(m.list.Items()) == 0 {
		empty := lipgloss.NewStyle().
			Width(m.width).
			Height(listHeight(m.height)).
			Align(lipgloss.Center, lipgloss.Center).
			Foreground(theme.ColorGray).
			Render(m.emptyText())
		return lipgloss.JoinVertical(lipgloss.Left, card, empty)
	}

	return lipgloss.JoinVertical(lipgloss.Left, card, m.list.View())
}

func (m Model) emptyText() string {
	if m.state.IsLoading {
		return m.spinner.View() + " checking for mail..."
	}
	return fmt.Sprintf(
		"No messages yet.\nThe inbox refreshes every %ds, press r to check now.",
		m.state.Settings.PollingIntervalSeconds,
	)
}

// renderCard draws the active account, or the call to action when there
// is none.
func (m Model) renderCard() string {
	width := m.width - 4
	if width < 20 {
		width = 20
	}
	card := theme.PanelStyle.Width(width)

	switch m.state.Phase {
	case session.PhaseCreating:
		return card.Render(m.spinner.View() + " Creating a new address...")
	case session.PhaseAuthenticating:
		return card.Render(m.spinner.View() + " Signing in...")
	case session.PhaseExpiring:
		return card.Render(m.spinner.View() + " Time is up, removing the address...")
	}

	acc := m.state.Account
	if acc == nil {
		return card.Height(m.height - 4).Render(
			lipgloss.JoinVertical(lipgloss.Left,
				lipgloss.NewStyle().Bold(true).Render("No active email"),
				"",
				theme.MutedStyle.Render(fmt.Sprintf(
					"Press g to generate a disposable address. It lives for %d minutes.",
					m.state.Settings.ExpirationMinutes,
				)),
				theme.MutedStyle.Render("Press S to browse saved emails, c for settings."),
			),
		)
	}

	remaining := m.state.TimeRemaining
	countdown := theme.CountdownStyle(remaining).Render(FormatCountdown(remaining))

	site := acc.SiteUsedFor
	if site == "" {
		site = theme.MutedStyle.Render("(press w to note where you used it)")
	}

	limits := theme.MutedStyle.Render(fmt.Sprintf(
		"quota %d/%d", m.state.Limits.Remaining, m.state.Limits.Total,
	))

	lines := []string{
		theme.AddressStyle.Render(acc.Address) + "   " + countdown + " left",
		"password: " + acc.Password,
		"used for: " + site,
		limits,
	}
	return card.Render(strings.Join(lines, "\n"))
}

// SetSize updates the view dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.list.SetSize(width, listHeight(height))
}
