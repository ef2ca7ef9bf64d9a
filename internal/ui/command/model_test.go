package command

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	cases := map[string]string{
		"generate": "generate",
		"  NEW ":   "generate",
		"ref":      "refresh",
		"q":        "quit",
		"sa":       "sa", // save, saved
		"save":     "save",
		"set":      "settings",
		"bogus":    "bogus",
		"":         "",
	}
	for in, want := range cases {
		assert.Equal(t, want, Resolve(in), "input %q", in)
	}
}

func TestComplete(t *testing.T) {
	assert.Equal(t, []string{"save", "saved"}, Complete("sav"))
	assert.Equal(t, []string{"delete"}, Complete("d"))
	assert.Nil(t, Complete(""))
	assert.Equal(t, "save", commonPrefix([]string{"save", "saved"}))
	assert.Equal(t, "s", commonPrefix([]string{"save", "site", "settings"}))
}

func TestEnterEmitsResolvedCommand(t *testing.T) {
	m := New(80, 24)
	m.Focus()
	for _, r := range "ref" {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	assert.Equal(t, []string{"refresh"}, m.matches)

	m, cmd := m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	require.NotNil(t, cmd)
	assert.Equal(t, CommandMsg("refresh"), cmd())
	assert.Empty(t, m.input.Value())
}

func TestTabCompletesSharedPrefix(t *testing.T) {
	m := New(80, 24)
	m.Focus()
	m.input.SetValue("sav")

	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyTab})
	assert.Equal(t, "save", m.input.Value())
	assert.Equal(t, []string{"save", "saved"}, m.matches)
}
