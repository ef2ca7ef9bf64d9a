package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
)

// opTimeout bounds one user-triggered operation. The client's own retries
// fit well inside it.
const opTimeout = 90 * time.Second

// stateMsg carries a snapshot published by the session manager.
type stateMsg struct {
	state session.State
}

// generatedMsg is sent after a generate attempt.
type generatedMsg struct {
	account *model.Account
	err     error
}

// opDoneMsg is sent after a fire-and-report operation.
type opDoneMsg struct {
	op  string
	err error
}

// messageLoadedMsg carries a detail fetch result.
type messageLoadedMsg struct {
	msg *model.Message
	err error
}

// attachmentsLoadedMsg carries parsed attachments of a message.
type attachmentsLoadedMsg struct {
	id   string
	atts []model.Attachment
	err  error
}

// waitForState returns a tea.Cmd that blocks until the manager publishes
// the next snapshot. It is re-issued after each stateMsg.
func waitForState(ch <-chan session.State) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return nil
		}
		return stateMsg{state: st}
	}
}

func opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), opTimeout)
}

// generate creates a new email, replacing the active one.
func (m *Model) generate() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		acc, err := c.GenerateEmail(ctx)
		return generatedMsg{account: acc, err: err}
	}
}

// refresh fetches the inbox now.
func (m *Model) refresh() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return opDoneMsg{op: "refresh", err: c.RefreshMessages(ctx)}
	}
}

// deleteAccount removes the active email on the provider and locally.
func (m *Model) deleteAccount() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return opDoneMsg{op: "delete", err: c.DeleteActiveAccount(ctx)}
	}
}

// forget clears the session locally.
func (m *Model) forget() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		c.ClearSession(ctx)
		return opDoneMsg{op: "forget"}
	}
}

// saveActive snapshots the active email into the saved list.
func (m *Model) saveActive() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		_, err := c.SaveActiveAccount(ctx)
		return opDoneMsg{op: "save", err: err}
	}
}

// updateSite persists the site note.
func (m *Model) updateSite(site string) tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return opDoneMsg{op: "site", err: c.UpdateSiteUsedFor(ctx, site)}
	}
}

// updateSettings persists settings and re-times the active email.
func (m *Model) updateSettings(s model.Settings) tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		return opDoneMsg{op: "settings", err: c.UpdateSettings(ctx, s)}
	}
}

// refreshLimits reloads the provider quota.
func (m *Model) refreshLimits() tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		c.APILimits(ctx)
		return opDoneMsg{op: "limits"}
	}
}

// loadMessage fetches one message with its bodies.
func (m *Model) loadMessage(id string) tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		msg, err := c.ViewMessage(ctx, id)
		return messageLoadedMsg{msg: msg, err: err}
	}
}

// loadAttachments parses the raw source of a message for attachments.
func (m *Model) loadAttachments(id string) tea.Cmd {
	c := m.ctl
	return func() tea.Msg {
		ctx, cancel := opContext()
		defer cancel()
		atts, err := c.Attachments(ctx, id)
		return attachmentsLoadedMsg{id: id, atts: atts, err: err}
	}
}
