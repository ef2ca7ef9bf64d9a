package settings

import (
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/dragonmail/internal/model"
)

// Mode selects which form is shown.
type Mode int

const (
	ModeIdle     Mode = iota
	ModeSettings      // Expiration and polling
	ModeSite          // "Used for" note on the active email
)

// SettingsSubmittedMsg carries validated settings.
type SettingsSubmittedMsg struct {
	Settings model.Settings
}

// SiteSubmittedMsg carries the new site note.
type SiteSubmittedMsg struct {
	Site string
}

// CancelMsg signals the form was dismissed.
type CancelMsg struct{}

// bindings hold the values huh writes to. They live behind a pointer so
// copies of Model share them.
type bindings struct {
	expiration string
	polling    string
	site       string
}

// Model hosts the settings and site forms.
type Model struct {
	mode   Mode
	form   *huh.Form
	fb     *bindings
	width  int
	height int
}

// New creates an idle settings view.
func New(width, height int) Model {
	return Model{fb: &bindings{}, width: width, height: height}
}

// Mode returns the active form.
func (m Model) Mode() Mode {
	return m.mode
}

// EditSettings opens the settings form prefilled with current.
func (m *Model) EditSettings(current model.Settings) tea.Cmd {
	m.fb.expiration = strconv.Itoa(current.ExpirationMinutes)
	m.fb.polling = strconv.Itoa(current.PollingIntervalSeconds)
	m.mode = ModeSettings
	m.form = m.buildSettingsForm()
	return m.form.Init()
}

// EditSite opens the site form prefilled with current.
func (m *Model) EditSite(current string) tea.Cmd {
	m.fb.site = current
	m.mode = ModeSite
	m.form = m.buildSiteForm()
	return m.form.Init()
}

func (m Model) buildSettingsForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Email lifetime").
				Description("New addresses are removed after this long. Applies to the active one when still possible.").
				Options(rangeOptions(model.MinExpirationMinutes, model.MaxExpirationMinutes, 1, "minute")...).
				Value(&m.fb.expiration),
			huh.NewSelect[string]().
				Title("Inbox refresh").
				Description("How often new mail is fetched in the background.").
				Options(rangeOptions(model.MinPollingIntervalSeconds, model.MaxPollingIntervalSeconds, 5, "second")...).
				Value(&m.fb.polling),
		),
	).WithWidth(m.formWidth())
}

func (m Model) buildSiteForm() *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Used for").
				Description("Where did you use this address? Saved along with it.").
				Placeholder("github.com").
				CharLimit(120).
				Value(&m.fb.site),
		),
	).WithWidth(m.formWidth())
}

// rangeOptions builds select options from lo to hi in step increments.
func rangeOptions(lo, hi, step int, unit string) []huh.Option[string] {
	var opts []huh.Option[string]
	for v := lo; v <= hi; v += step {
		label := fmt.Sprintf("%d %s", v, unit)
		if v != 1 {
			label += "s"
		}
		opts = append(opts, huh.NewOption(label, strconv.Itoa(v)))
	}
	return opts
}

// Update forwards input to the active form.
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
		return m.submit()
	case huh.StateAborted:
		m.reset()
		return m, func() tea.Msg { return CancelMsg{} }
	}
	return m, cmd
}

func (m Model) submit() (Model, tea.Cmd) {
	mode := m.mode
	m.reset()

	switch mode {
	case ModeSettings:
		s, err := parseSettings(m.fb.expiration, m.fb.polling)
		if err != nil {
			return m, func() tea.Msg { return CancelMsg{} }
		}
		return m, func() tea.Msg { return SettingsSubmittedMsg{Settings: s} }
	case ModeSite:
		site := strings.TrimSpace(m.fb.site)
		return m, func() tea.Msg { return SiteSubmittedMsg{Site: site} }
	}
	return m, nil
}

func (m *Model) reset() {
	m.mode = ModeIdle
	m.form = nil
}

func parseSettings(expiration, polling string) (model.Settings, error) {
	exp, err := strconv.Atoi(expiration)
	if err != nil {
		return model.Settings{}, fmt.Errorf("parsing expiration %q: %w", expiration, err)
	}
	poll, err := strconv.Atoi(polling)
	if err != nil {
		return model.Settings{}, fmt.Errorf("parsing polling interval %q: %w", polling, err)
	}
	s := model.Settings{ExpirationMinutes: exp, PollingIntervalSeconds: poll}
	return s, s.Validate()
}

// View renders the active form.
func (m Model) View() string {
	if m.form == nil {
		return ""
	}

	title := "Settings"
	if m.mode == ModeSite {
		title = "Site note"
	}
	header := lipgloss.NewStyle().Bold(true).MarginBottom(1).Render(title)
	return lipgloss.NewStyle().Padding(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, header, m.form.View()),
	)
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
