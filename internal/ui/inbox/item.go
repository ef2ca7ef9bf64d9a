package inbox

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/render"
	"github.com/nhle/dragonmail/internal/theme"
)

// MessageItem wraps a model.Message so it can be used in a bubbles/list.
type MessageItem struct {
	Message model.Message
}

// FilterValue returns the string used for fuzzy filtering.
func (i MessageItem) FilterValue() string { return i.Message.Subject }

// Title returns the subject for the list.
func (i MessageItem) Title() string { return render.Subject(i.Message) }

// Description returns the sender and intro.
func (i MessageItem) Description() string {
	return render.Sender(i.Message) + " | " + i.Message.Intro
}

// ItemDelegate implements list.ItemDelegate for one-line message rows.
type ItemDelegate struct {
	now func() time.Time
}

// Height returns the number of lines each item takes.
func (d ItemDelegate) Height() int { return 1 }

// Spacing returns the number of blank lines between items.
func (d ItemDelegate) Spacing() int { return 0 }

// Update handles per-item messages (unused).
func (d ItemDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd {
	return nil
}

// Render draws a single message row.
func (d ItemDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	mi, ok := item.(MessageItem)
	if !ok {
		return
	}
	msg := mi.Message

	marker := " "
	if !msg.Seen {
		marker = "●"
	}
	clip := ""
	if msg.HasAttachments {
		clip = " 📎"
	}

	subject := render.Subject(msg)
	if !msg.Seen {
		subject = theme.UnreadStyle.Render(subject)
	}

	now := time.Now
	if d.now != nil {
		now = d.now
	}
	when := theme.MutedStyle.Render(relativeTime(now(), msg.CreatedAt))
	from := lipgloss.NewStyle().Foreground(theme.ColorBlue).Render(senderLabel(msg))

	line := fmt.Sprintf("%s %s  %s%s  %s", marker, from, subject, clip, when)

	if index == m.Index() {
		line = theme.SelectedItemStyle.Render(line)
	} else {
		line = theme.ListItemStyle.Render(line)
	}

	fmt.Fprint(w, line)
}

// senderLabel prefers the display name over the address.
func senderLabel(msg model.Message) string {
	if msg.From.Name != "" {
		return msg.From.Name
	}
	if msg.From.Address != "" {
		return msg.From.Address
	}
	return "(unknown)"
}

// relativeTime returns a human-friendly relative time string.
func relativeTime(now, t time.Time) string {
	if t.IsZero() {
		return ""
	}

	d := now.Sub(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return t.Format("Jan 02 15:04")
	}
}

// FormatCountdown renders a remaining duration as m:ss.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int(d.Round(time.Second) / time.Second)
	return fmt.Sprintf("%d:%02d", total/60, total%60)
}
