package saved

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/keys"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/theme"
)

// Service is the saved-email collection the view manages.
type Service interface {
	SavedEmails(ctx context.Context) ([]model.SavedEmail, error)
	DeleteSavedEmail(ctx context.Context, id string) error
}

// CloseMsg signals the parent to close the saved view.
type CloseMsg struct{}

type savedMode int

const (
	modeList savedMode = iota
	modeConfirmDelete
)

type emailsLoadedMsg struct {
	emails []model.SavedEmail
	err    error
}

type emailDeletedMsg struct{ err error }

// Model lists saved emails with their credentials.
type Model struct {
	mode        savedMode
	svc         Service
	keys        *keys.KeyMap
	emails      []model.SavedEmail
	selectedIdx int
	reveal      bool
	confirmForm *huh.Form
	confirm     *bool
	statusMsg   string
	width       int
	height      int
}

// New creates a new saved-email view.
func New(svc Service, k *keys.KeyMap, width, height int) Model {
	return Model{
		mode:    modeList,
		svc:     svc,
		keys:    k,
		confirm: new(bool),
		width:   width, height: height,
	}
}

// Init loads the saved emails.
func (m Model) Init() tea.Cmd {
	return m.load()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	switch msg := msg.(type) {
	case emailsLoadedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		}
		m.emails = msg.emails
		if m.selectedIdx >= len(m.emails) {
			m.selectedIdx = max(len(m.emails)-1, 0)
		}
		return m, nil

	case emailDeletedMsg:
		if msg.err != nil {
			m.statusMsg = fmt.Sprintf("Error: %v", msg.err)
		} else {
			m.statusMsg = "Saved email removed"
		}
		m.mode = modeList
		return m, m.load()

	case tea.KeyMsg:
		if m.mode == modeConfirmDelete {
			return m.updateConfirm(msg)
		}
		return m.handleListKey(msg)
	}

	if m.mode == modeConfirmDelete {
		return m.updateConfirm(msg)
	}
	return m, nil
}

func (m Model) handleListKey(msg tea.KeyMsg) (Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Back):
		m.reveal = false
		return m, func() tea.Msg { return CloseMsg{} }

	case key.Matches(msg, m.keys.Down):
		if len(m.emails) > 0 {
			m.selectedIdx = (m.selectedIdx + 1) % len(m.emails)
		}
		return m, nil

	case key.Matches(msg, m.keys.Up):
		if len(m.emails) > 0 {
			m.selectedIdx--
			if m.selectedIdx < 0 {
				m.selectedIdx = len(m.emails) - 1
			}
		}
		return m, nil

	case msg.String() == "p":
		m.reveal = !m.reveal
		return m, nil

	case msg.String() == "d":
		if len(m.emails) == 0 {
			return m, nil
		}
		*m.confirm = false
		m.confirmForm = m.buildConfirmForm()
		m.mode = modeConfirmDelete
		return m, m.confirmForm.Init()
	}
	return m, nil
}

func (m Model) buildConfirmForm() *huh.Form {
	address := ""
	if m.selectedIdx < len(m.emails) {
		address = m.emails[m.selectedIdx].Address
	}
	return huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title(fmt.Sprintf("Remove %s from saved emails?", address)).
				Description("The stored password is discarded. The mailbox itself is not affected.").
				Affirmative("Yes, remove").
				Negative("Cancel").
				Value(m.confirm),
		),
	).WithWidth(m.formWidth()).WithHeight(m.formHeight())
}

func (m Model) updateConfirm(msg tea.Msg) (Model, tea.Cmd) {
	if m.confirmForm == nil {
		return m, nil
	}
	mdl, cmd := m.confirmForm.Update(msg)
	if f, ok := mdl.(*huh.Form); ok {
		m.confirmForm = f
	}
	if m.confirmForm.State == huh.StateCompleted {
		if *m.confirm && m.selectedIdx < len(m.emails) {
			return m, m.delete(m.emails[m.selectedIdx].ID)
		}
		m.mode = modeList
		return m, nil
	}
	if m.confirmForm.State == huh.StateAborted {
		m.mode = modeList
		return m, nil
	}
	return m, cmd
}

// View renders the saved-email list.
func (m Model) View() string {
	if m.mode == modeConfirmDelete && m.confirmForm != nil {
		return lipgloss.NewStyle().Padding(1, 2).Render(m.confirmForm.View())
	}

	var b strings.Builder

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite).MarginBottom(1)
	b.WriteString(titleStyle.Render(fmt.Sprintf("Saved emails (%d)", len(m.emails))))
	b.WriteString("\n\n")

	if len(m.emails) == 0 {
		emptyStyle := lipgloss.NewStyle().Foreground(theme.ColorGray).Italic(true)
		b.WriteString(emptyStyle.Render("Nothing saved yet. Press 's' on an active email to keep its credentials."))
	} else {
		for i, e := range m.emails {
			label := e.Address
			if e.SiteUsedFor != "" {
				label += theme.MutedStyle.Render("  " + e.SiteUsedFor)
			}
			label += theme.MutedStyle.Render("  " + time.UnixMilli(e.CreatedAt).Format("2006-01-02 15:04"))

			if i == m.selectedIdx {
				b.WriteString(theme.SelectedItemStyle.Render(label))
				if m.reveal {
					b.WriteString("\n")
					b.WriteString(theme.ListItemStyle.Render("    password: " + e.Password))
				}
			} else {
				b.WriteString(theme.ListItemStyle.Render(label))
			}
			b.WriteString("\n")
		}
	}

	if m.statusMsg != "" {
		b.WriteString("\n")
		b.WriteString(lipgloss.NewStyle().Foreground(theme.ColorYellow).Italic(true).Render(m.statusMsg))
	}

	return lipgloss.NewStyle().Padding(1, 2).Width(m.width).Height(m.height).Render(b.String())
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
	if w > 100 {
		w = 100
	}
	return w
}

func (m Model) formHeight() int {
	h := m.height - 4
	if h < 10 {
		h = 10
	}
	return h
}

func (m Model) load() tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		emails, err := svc.SavedEmails(context.Background())
		return emailsLoadedMsg{emails: emails, err: err}
	}
}

func (m Model) delete(id string) tea.Cmd {
	svc := m.svc
	return func() tea.Msg {
		return emailDeletedMsg{err: svc.DeleteSavedEmail(context.Background(), id)}
	}
}
