package viewer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/keys"
	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/render"
	"github.com/nhle/dragonmail/internal/theme"
)

// BackMsg signals the parent to navigate back to the inbox.
type BackMsg struct{}

// AttachmentsRequestMsg asks the parent to list the attachments of the
// shown message.
type AttachmentsRequestMsg struct {
	ID string
}

// Model is the message viewer.
type Model struct {
	msg      *model.Message
	err      error
	viewport viewport.Model
	keys     *keys.KeyMap
	width    int
	height   int
	loading  bool
}

// New creates a new viewer model.
func New(keys *keys.KeyMap, width, height int) Model {
	vp := viewport.New(width, height-2)
	vp.Style = lipgloss.NewStyle()

	return Model{
		viewport: vp,
		keys:     keys,
		width:    width,
		height:   height,
	}
}

// Init returns the initial command for the viewer.
func (m Model) Init() tea.Cmd {
	return nil
}

// Update handles messages for the viewer.
func (m Model) Update(msg tea.Msg) (Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(msg, m.keys.Back):
			return m, func() tea.Msg {
				return BackMsg{}
			}

		case key.Matches(msg, m.keys.Attachments):
			if m.msg != nil && m.msg.HasAttachments {
				id := m.msg.ID
				return m, func() tea.Msg {
					return AttachmentsRequestMsg{ID: id}
				}
			}
			return m, nil
		}
	}

	// Delegate to viewport for scrolling (j/k, up/down, pgup/pgdn)
	var cmd tea.Cmd
	m.viewport, cmd = m.viewport.Update(msg)
	return m, cmd
}

// View renders the viewer.
func (m Model) View() string {
	placeholder := lipgloss.NewStyle().
		Width(m.width).
		Height(m.height).
		Align(lipgloss.Center, lipgloss.Center).
		Foreground(theme.ColorGray)

	switch {
	case m.loading:
		return placeholder.Render("Loading message...")
	case m.err != nil:
		return placeholder.Foreground(theme.ColorRed).Render(
			"Could not load this message.\n" + mailtm.UserMessage(m.err) + "\n\nesc to go back",
		)
	case m.msg == nil:
		return placeholder.Render("No message selected")
	}

	return m.viewport.View()
}

// renderContent builds the message text for the viewport.
func (m Model) renderContent() string {
	if m.msg == nil {
		return ""
	}

	msg := m.msg
	var sections []string

	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
	sections = append(sections, titleStyle.Render(render.Subject(*msg)))
	sections = append(sections, "")

	metaStyle := lipgloss.NewStyle().Foreground(theme.ColorGray)
	valStyle := lipgloss.NewStyle().Foreground(theme.ColorWhite)

	sections = append(sections, fmt.Sprintf(
		"%s  %s", metaStyle.Render("From:"), valStyle.Render(render.Sender(*msg)),
	))
	if len(msg.To) > 0 {
		to := make([]string, len(msg.To))
		for i, a := range msg.To {
			to[i] = a.String()
		}
		sections = append(sections, fmt.Sprintf(
			"%s    %s", metaStyle.Render("To:"), valStyle.Render(strings.Join(to, ", ")),
		))
	}
	if !msg.CreatedAt.IsZero() {
		sections = append(sections, fmt.Sprintf(
			"%s  %s", metaStyle.Render("Date:"), valStyle.Render(msg.CreatedAt.Local().Format("2006-01-02 15:04")),
		))
	}
	if msg.Size > 0 {
		sections = append(sections, fmt.Sprintf(
			"%s  %s", metaStyle.Render("Size:"), valStyle.Render(render.FormatSize(msg.Size)),
		))
	}

	sepStyle := lipgloss.NewStyle().Foreground(theme.ColorSubtle)
	separator := sepStyle.Render(strings.Repeat("─", max(min(m.width-4, 80), 1)))
	sections = append(sections, "", separator, "")

	body := render.Body(*msg)
	if body == "" {
		body = lipgloss.NewStyle().
			Foreground(theme.ColorGray).
			Italic(true).
			Render("(empty message)")
	}
	sections = append(sections, lipgloss.NewStyle().Width(max(m.width-2, 20)).Render(body))

	if msg.HasAttachments {
		sections = append(sections, "", separator, "")
		header := lipgloss.NewStyle().Bold(true).Foreground(theme.ColorWhite)
		if len(msg.Attachments) == 0 {
			sections = append(sections, header.Render("Attachments"),
				theme.HelpStyle.Render("press a to list them"))
		} else {
			sections = append(sections, header.Render(fmt.Sprintf("Attachments (%d)", len(msg.Attachments))))
			for _, a := range msg.Attachments {
				sections = append(sections, fmt.Sprintf(
					"  %s  %s  %s",
					a.Filename,
					metaStyle.Render(a.ContentType),
					metaStyle.Render(render.FormatSize(a.Size)),
				))
			}
		}
	}

	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

// SetMessage updates the shown message and re-renders the content.
func (m *Model) SetMessage(msg *model.Message) {
	m.msg = msg
	m.err = nil
	m.loading = false
	m.viewport.SetContent(m.renderContent())
	m.viewport.GotoTop()
}

// SetAttachments fills in the attachments of the shown message.
func (m *Model) SetAttachments(id string, atts []model.Attachment) {
	if m.msg == nil || m.msg.ID != id {
		return
	}
	m.msg.Attachments = atts
	offset := m.viewport.YOffset
	m.viewport.SetContent(m.renderContent())
	m.viewport.SetYOffset(offset)
}

// SetError shows a per-message failure.
func (m *Model) SetError(err error) {
	m.err = err
	m.loading = false
}

// SetLoading sets the loading state.
func (m *Model) SetLoading(loading bool) {
	m.loading = loading
	if loading {
		m.err = nil
	}
}

// SetSize updates the viewer dimensions.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height - 2
	m.viewport.SetContent(m.renderContent())
}
