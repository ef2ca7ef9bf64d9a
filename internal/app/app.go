package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhle/dragonmail/internal/keys"
	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
	bgsync "github.com/nhle/dragonmail/internal/sync"
	"github.com/nhle/dragonmail/internal/ui"
	"github.com/nhle/dragonmail/internal/ui/command"
	"github.com/nhle/dragonmail/internal/ui/confirm"
	helpview "github.com/nhle/dragonmail/internal/ui/help"
	"github.com/nhle/dragonmail/internal/ui/inbox"
	"github.com/nhle/dragonmail/internal/ui/saved"
	"github.com/nhle/dragonmail/internal/ui/settings"
	"github.com/nhle/dragonmail/internal/ui/viewer"
)

// Controller is the session manager as seen by the terminal UI.
type Controller interface {
	saved.Service

	State() session.State
	Subscribe() (<-chan session.State, func())
	GenerateEmail(ctx context.Context) (*model.Account, error)
	DeleteActiveAccount(ctx context.Context) error
	ClearSession(ctx context.Context)
	UpdateSiteUsedFor(ctx context.Context, site string) error
	RefreshMessages(ctx context.Context) error
	ViewMessage(ctx context.Context, id string) (*model.Message, error)
	CloseMessage()
	Attachments(ctx context.Context, id string) ([]model.Attachment, error)
	Settings() model.Settings
	UpdateSettings(ctx context.Context, settings model.Settings) error
	APILimits(ctx context.Context) model.APILimits
	SaveActiveAccount(ctx context.Context) (model.SavedEmail, error)
}

var _ Controller = (*session.Manager)(nil)

// ViewState represents the current active view in the application.
type ViewState int

const (
	ViewInbox ViewState = iota
	ViewMessage
	ViewSettings
	ViewSaved
	ViewConfirm
	ViewHelp
	ViewCommand
)

// Model is the root Bubble Tea model that routes views and relays
// commands to the session manager.
type Model struct {
	currentView  ViewState
	previousView ViewState
	layout       ui.Layout
	ctl          Controller
	keys         *keys.KeyMap
	updates      <-chan session.State
	unsubscribe  func()
	state        session.State
	inbox        inbox.Model
	viewer       viewer.Model
	settingsView settings.Model
	savedView    saved.Model
	confirmView  confirm.Model
	helpView     helpview.Model
	commandView  command.Model
	ready        bool
	flash        string
	flashErr     bool
}

// New creates the root model around ctl.
func New(ctl Controller) Model {
	k := keys.DefaultKeyMap()
	updates, unsubscribe := ctl.Subscribe()

	m := Model{
		currentView:  ViewInbox,
		ctl:          ctl,
		keys:         k,
		updates:      updates,
		unsubscribe:  unsubscribe,
		state:        ctl.State(),
		inbox:        inbox.New(k, 80, 24),
		viewer:       viewer.New(k, 80, 24),
		settingsView: settings.New(80, 24),
		savedView:    saved.New(ctl, k, 80, 24),
		confirmView:  confirm.New(80, 24),
		helpView:     helpview.New(k, 80, 24),
		commandView:  command.New(80, 24),
	}
	m.inbox.SetState(m.state)
	return m
}

// Init starts listening for state snapshots.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.inbox.Init(),
		waitForState(m.updates),
		m.refreshLimits(),
	)
}

// Update handles messages and dispatches to the active view.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.layout = ui.NewLayout(msg.Width, msg.Height)
		m.ready = true
		w, h := m.layout.ContentWidth(), m.layout.ContentHeight()
		m.inbox.SetSize(w, h)
		m.viewer.SetSize(w, h)
		m.settingsView.SetSize(w, h)
		m.savedView.SetSize(w, h)
		m.confirmView.SetSize(w, h)
		m.helpView.SetSize(w, h)
		m.commandView.SetSize(w, h)
		// Forward to active view so huh forms can calculate their layout.
		return m.updateActiveView(msg)

	case stateMsg:
		m.state = msg.state
		cmd := m.inbox.SetState(msg.state)
		if m.currentView == ViewMessage && msg.state.Account == nil {
			m.currentView = ViewInbox
		}
		return m, tea.Batch(cmd, waitForState(m.updates))

	case spinner.TickMsg:
		// The card spinner keeps ticking while other views are open.
		var cmd tea.Cmd
		m.inbox, cmd = m.inbox.Update(msg)
		return m, cmd

	case generatedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.setFlash("New email " + msg.account.Address)
		return m, nil

	case opDoneMsg:
		return m.handleOpDone(msg)

	case inbox.SelectedMessageMsg:
		m.previousView = m.currentView
		m.currentView = ViewMessage
		m.viewer.SetLoading(true)
		return m, m.loadMessage(msg.ID)

	case messageLoadedMsg:
		if msg.err != nil {
			if errors.Is(msg.err, session.ErrStale) {
				return m, nil
			}
			m.viewer.SetError(msg.err)
			return m, nil
		}
		m.viewer.SetMessage(msg.msg)
		return m, nil

	case viewer.AttachmentsRequestMsg:
		return m, m.loadAttachments(msg.ID)

	case attachmentsLoadedMsg:
		if msg.err != nil {
			m.setError(msg.err)
			return m, nil
		}
		m.viewer.SetAttachments(msg.id, msg.atts)
		return m, nil

	case viewer.BackMsg:
		m.ctl.CloseMessage()
		m.currentView = ViewInbox
		return m, nil

	case settings.SettingsSubmittedMsg:
		m.currentView = ViewInbox
		return m, m.updateSettings(msg.Settings)

	case settings.SiteSubmittedMsg:
		m.currentView = ViewInbox
		return m, m.updateSite(msg.Site)

	case settings.CancelMsg:
		m.currentView = ViewInbox
		return m, nil

	case saved.CloseMsg:
		m.currentView = ViewInbox
		return m, nil

	case confirm.ResultMsg:
		m.currentView = m.previousView
		if !msg.Confirmed {
			return m, nil
		}
		return m, m.runConfirmed(msg.Action)

	case command.CommandMsg:
		m.currentView = m.previousView
		return m, m.executeCommand(string(msg))

	case tea.KeyMsg:
		if next, cmd, handled := m.handleGlobalKey(msg); handled {
			return next, cmd
		}
	}

	// Delegate to active sub-view
	return m.updateActiveView(msg)
}

// handleGlobalKey processes keys that are not owned by a form.
func (m Model) handleGlobalKey(msg tea.KeyMsg) (tea.Model, tea.Cmd, bool) {
	if msg.String() == "ctrl+c" {
		return m, m.quit(), true
	}

	// Forms and the palette own every other key.
	switch m.currentView {
	case ViewSettings, ViewConfirm, ViewCommand:
		if msg.String() == "esc" && m.currentView == ViewCommand {
			m.currentView = m.previousView
			return m, nil, true
		}
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		if m.currentView == ViewHelp {
			m.currentView = m.previousView
			return m, nil, true
		}
		m.helpView.SetSettings(m.ctl.Settings())
		m.previousView = m.currentView
		m.currentView = ViewHelp
		return m, nil, true

	case key.Matches(msg, m.keys.Command):
		m.previousView = m.currentView
		m.currentView = ViewCommand
		return m, m.commandView.Focus(), true

	case m.currentView == ViewHelp && key.Matches(msg, m.keys.Back):
		m.currentView = m.previousView
		return m, nil, true
	}

	if m.currentView != ViewInbox {
		return m, nil, false
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, m.quit(), true

	case key.Matches(msg, m.keys.Generate):
		next, cmd := m.startGenerate()
		return next, cmd, true

	case key.Matches(msg, m.keys.Refresh):
		if m.state.Account == nil {
			return m, nil, true
		}
		return m, m.refresh(), true

	case key.Matches(msg, m.keys.Delete):
		next, cmd := m.ask(confirm.ActionDeleteAccount)
		return next, cmd, true

	case key.Matches(msg, m.keys.Clear):
		next, cmd := m.ask(confirm.ActionForget)
		return next, cmd, true

	case key.Matches(msg, m.keys.Site):
		if m.state.Account == nil {
			return m, nil, true
		}
		m.previousView = m.currentView
		m.currentView = ViewSettings
		return m, m.settingsView.EditSite(m.state.Account.SiteUsedFor), true

	case key.Matches(msg, m.keys.Settings):
		m.previousView = m.currentView
		m.currentView = ViewSettings
		return m, m.settingsView.EditSettings(m.ctl.Settings()), true

	case key.Matches(msg, m.keys.Save):
		if m.state.Account == nil {
			return m, nil, true
		}
		return m, m.saveActive(), true

	case key.Matches(msg, m.keys.SavedList):
		m.previousView = m.currentView
		m.currentView = ViewSaved
		return m, m.savedView.Init(), true
	}
	return m, nil, false
}

// startGenerate asks before replacing an active email.
func (m Model) startGenerate() (Model, tea.Cmd) {
	if m.state.Phase == session.PhaseCreating || m.state.Phase == session.PhaseAuthenticating {
		return m, nil
	}
	if m.state.Account != nil {
		return m.ask(confirm.ActionRegenerate)
	}
	m.flash = ""
	return m, m.generate()
}

// ask opens the confirmation prompt for a destructive action.
func (m Model) ask(action confirm.Action) (Model, tea.Cmd) {
	acc := m.state.Account
	if acc == nil {
		return m, nil
	}

	var title, desc string
	switch action {
	case confirm.ActionDeleteAccount:
		title = fmt.Sprintf("Delete %s?", acc.Address)
		desc = "The mailbox and its messages are removed from the provider."
	case confirm.ActionForget:
		title = fmt.Sprintf("Forget %s?", acc.Address)
		desc = "The session is cleared here; the mailbox expires on its own."
	case confirm.ActionRegenerate:
		title = "Replace the current email?"
		desc = fmt.Sprintf("%s will be forgotten.", acc.Address)
	default:
		return m, nil
	}

	m.previousView = m.currentView
	m.currentView = ViewConfirm
	return m, m.confirmView.Ask(action, acc.Address, title, desc)
}

func (m Model) runConfirmed(action confirm.Action) tea.Cmd {
	switch action {
	case confirm.ActionDeleteAccount:
		return m.deleteAccount()
	case confirm.ActionForget:
		return m.forget()
	case confirm.ActionRegenerate:
		return m.generate()
	default:
		return nil
	}
}

func (m Model) handleOpDone(msg opDoneMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		if errors.Is(msg.err, session.ErrStale) {
			return m, nil
		}
		m.setError(msg.err)
		return m, nil
	}

	switch msg.op {
	case "delete":
		m.setFlash("Email deleted")
	case "forget":
		m.setFlash("Session cleared")
	case "save":
		m.setFlash("Saved")
	case "site":
		m.setFlash("Site noted")
	case "settings":
		m.setFlash("Settings saved")
	case "refresh":
		m.flash = ""
	}
	return m, nil
}

func (m *Model) setFlash(text string) {
	m.flash = text
	m.flashErr = false
}

func (m *Model) setError(err error) {
	switch {
	case errors.Is(err, session.ErrBusy),
		errors.Is(err, session.ErrNoAccount),
		errors.Is(err, session.ErrInvalidSettings):
		m.flash = err.Error()
	default:
		m.flash = mailtm.UserMessage(err)
	}
	m.flashErr = true
}

func (m Model) quit() tea.Cmd {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
	return tea.Quit
}

// updateActiveView dispatches the message to the currently active view.
func (m Model) updateActiveView(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch m.currentView {
	case ViewInbox:
		m.inbox, cmd = m.inbox.Update(msg)
	case ViewMessage:
		m.viewer, cmd = m.viewer.Update(msg)
	case ViewSettings:
		m.settingsView, cmd = m.settingsView.Update(msg)
	case ViewSaved:
		m.savedView, cmd = m.savedView.Update(msg)
	case ViewConfirm:
		m.confirmView, cmd = m.confirmView.Update(msg)
	case ViewHelp:
		m.helpView, cmd = m.helpView.Update(msg)
	case ViewCommand:
		m.commandView, cmd = m.commandView.Update(msg)
	}

	return m, cmd
}

// View renders the full terminal UI using the layout manager.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}

	header := m.layout.RenderHeader("dragonmail", m.headerStatus())
	content := m.renderContent()

	var bottom string
	switch {
	case m.flash != "" && m.flashErr:
		bottom = m.layout.RenderErrorBar(m.flash)
	case m.flash != "":
		bottom = m.layout.RenderStatusBar(m.flash + " | " + m.keyHints())
	case m.state.Err != nil && m.currentView == ViewInbox:
		bottom = m.layout.RenderErrorBar(mailtm.UserMessage(m.state.Err))
	default:
		bottom = m.layout.RenderStatusBar(m.keyHints())
	}

	return m.layout.RenderWithFrame(header, content, bottom)
}

// renderContent returns the rendered string for the current active view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewInbox:
		return m.inbox.View()
	case ViewMessage:
		return m.viewer.View()
	case ViewSettings:
		return m.settingsView.View()
	case ViewSaved:
		return m.savedView.View()
	case ViewConfirm:
		return m.confirmView.View()
	case ViewHelp:
		return m.helpView.View()
	case ViewCommand:
		return m.commandView.View()
	default:
		return ""
	}
}

// headerStatus summarizes the session for the header.
func (m Model) headerStatus() string {
	st := m.state
	if st.Account == nil {
		return st.Phase.String()
	}

	sync := "idle"
	switch st.Sync.State {
	case bgsync.SyncRunning:
		sync = "syncing"
	case bgsync.SyncError:
		sync = "⚠ sync failed"
	}
	return fmt.Sprintf("%s | %d msgs | %s left | %s",
		st.Phase, len(st.Messages), inbox.FormatCountdown(st.TimeRemaining), sync)
}

// keyHints returns keyboard shortcut hints for the status bar.
func (m Model) keyHints() string {
	switch m.currentView {
	case ViewHelp:
		return "? close help | esc back"
	case ViewCommand:
		return "enter execute | esc back"
	case ViewMessage:
		return "esc back | a attachments | j/k scroll"
	case ViewSettings, ViewConfirm:
		return "enter confirm | esc cancel"
	case ViewSaved:
		return "p show password | d remove | esc back"
	default:
		if m.state.Account == nil {
			return "g generate | S saved | c settings | ? help | q quit"
		}
		return "enter open | r refresh | w site | s save | D delete | x forget | g new | ? help"
	}
}

// executeCommand handles a command string from the command palette.
func (m *Model) executeCommand(cmd string) tea.Cmd {
	switch cmd {
	case "generate":
		next, c := m.startGenerate()
		*m = next
		return c
	case "refresh":
		if m.state.Account == nil {
			return nil
		}
		return m.refresh()
	case "delete":
		next, c := m.ask(confirm.ActionDeleteAccount)
		*m = next
		return c
	case "forget":
		next, c := m.ask(confirm.ActionForget)
		*m = next
		return c
	case "site":
		if m.state.Account == nil {
			return nil
		}
		m.previousView = ViewInbox
		m.currentView = ViewSettings
		return m.settingsView.EditSite(m.state.Account.SiteUsedFor)
	case "save":
		if m.state.Account == nil {
			return nil
		}
		return m.saveActive()
	case "saved":
		m.previousView = ViewInbox
		m.currentView = ViewSaved
		return m.savedView.Init()
	case "settings":
		m.previousView = ViewInbox
		m.currentView = ViewSettings
		return m.settingsView.EditSettings(m.ctl.Settings())
	case "limits":
		return m.refreshLimits()
	case "quit":
		return m.quit()
	default:
		m.flash = fmt.Sprintf("unknown command %q", cmd)
		m.flashErr = true
		return nil
	}
}
