package session

import (
	"errors"
	"time"

	"github.com/nhle/dragonmail/internal/model"
	bgsync "github.com/nhle/dragonmail/internal/sync"
)

// Phase is the lifecycle phase of the session.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseCreating
	PhaseAuthenticating
	PhaseActive
	PhaseExpiring
)

// String returns the phase name.
func (p Phase) String() string {
	switch p {
	case PhaseCreating:
		return "creating"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseActive:
		return "active"
	case PhaseExpiring:
		return "expiring"
	default:
		return "idle"
	}
}

var (
	// ErrBusy is returned by GenerateEmail while another generation runs.
	ErrBusy = errors.New("an email is already being generated")

	// ErrNoAccount is returned by operations that need an active account.
	ErrNoAccount = errors.New("no active email, generate one first")

	// ErrStale is returned when the session changed while a request was
	// in flight; its result was discarded.
	ErrStale = errors.New("session changed while the request was in flight")

	// ErrInvalidSettings wraps settings that are out of bounds.
	ErrInvalidSettings = errors.New("invalid settings")
)

// State is a snapshot of everything an adapter renders.
type State struct {
	Account         *model.Account
	Messages        []model.Message
	Settings        model.Settings
	Phase           Phase
	IsLoading       bool
	IsViewing       bool
	SelectedMessage *model.Message
	TimeRemaining   time.Duration
	Limits          model.APILimits
	Sync            bgsync.SyncStatus

	// Err is the last list-level or lifecycle failure.
	Err error

	// ViewErr is the last message-detail failure. It never affects the
	// message list.
	ViewErr error
}

// Active reports whether an account is live.
func (s State) Active() bool {
	return s.Account != nil && s.Phase == PhaseActive
}

// clone deep-copies the parts of s that the manager mutates in place.
func (s State) clone() State {
	if s.Account != nil {
		acc := *s.Account
		s.Account = &acc
	}
	if s.SelectedMessage != nil {
		msg := *s.SelectedMessage
		s.SelectedMessage = &msg
	}
	msgs := make([]model.Message, len(s.Messages))
	copy(msgs, s.Messages)
	s.Messages = msgs
	return s
}
