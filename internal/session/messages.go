package session

import (
	"context"

	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
)

// FetchMessages loads the inbox of the active account. A gone account
// tears the session down instead of reporting an error. Results that
// arrive after the session changed are discarded with ErrStale.
func (m *Manager) FetchMessages(ctx context.Context) ([]model.Message, error) {
	m.mu.Lock()
	if m.state.Account == nil || !m.state.Account.Authenticated() {
		m.mu.Unlock()
		return nil, ErrNoAccount
	}
	epoch := m.epoch
	m.state.IsLoading = true
	m.mu.Unlock()
	m.publish()

	msgs, err := m.provider.Messages(ctx)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, ErrStale
	}
	m.state.IsLoading = false
	if err != nil {
		if mailtm.IsAccountGone(err) {
			m.mu.Unlock()
			m.dropGone(epoch)
			return nil, nil
		}
		m.state.Err = err
		m.mu.Unlock()
		m.publish()
		return nil, err
	}
	m.state.Messages = msgs
	m.state.Err = nil
	m.mu.Unlock()
	m.publish()

	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// RefreshMessages is FetchMessages guarded against re-entry: a call made
// while one is in flight is dropped.
func (m *Manager) RefreshMessages(ctx context.Context) error {
	if !m.refreshing.CompareAndSwap(false, true) {
		return nil
	}
	defer m.refreshing.Store(false)

	_, err := m.FetchMessages(ctx)
	if err == ErrStale {
		return nil
	}
	return err
}

// pollMessages is the poller's fetch.
func (m *Manager) pollMessages(ctx context.Context) error {
	err := m.RefreshMessages(ctx)
	if err == ErrNoAccount {
		return nil
	}
	return err
}

// ViewMessage fetches one message with its bodies. It has its own loading
// flag and never touches the message list; failures are reported in
// State.ViewErr.
func (m *Manager) ViewMessage(ctx context.Context, id string) (*model.Message, error) {
	m.mu.Lock()
	if m.state.Account == nil {
		m.mu.Unlock()
		return nil, ErrNoAccount
	}
	epoch := m.epoch
	m.state.IsViewing = true
	m.state.ViewErr = nil
	m.mu.Unlock()
	m.publish()

	msg, err := m.provider.Message(ctx, id)

	m.mu.Lock()
	if m.epoch != epoch {
		m.mu.Unlock()
		return nil, ErrStale
	}
	m.state.IsViewing = false
	if err != nil {
		if mailtm.IsAccountGone(err) {
			m.mu.Unlock()
			m.dropGone(epoch)
			return nil, err
		}
		m.state.ViewErr = err
		m.mu.Unlock()
		m.publish()
		return nil, err
	}
	m.state.SelectedMessage = msg
	m.mu.Unlock()
	m.publish()

	out := *msg
	return &out, nil
}

// CloseMessage clears the selected message.
func (m *Manager) CloseMessage() {
	m.update(func(s *State) {
		s.SelectedMessage = nil
		s.ViewErr = nil
	})
}

// Attachments lists the attachments of a message by parsing its raw
// source.
func (m *Manager) Attachments(ctx context.Context, id string) ([]model.Attachment, error) {
	acc, epoch := m.current()
	if acc == nil {
		return nil, ErrNoAccount
	}

	raw, err := m.provider.Source(ctx, id)
	if err != nil {
		if mailtm.IsAccountGone(err) {
			m.dropGone(epoch)
		}
		return nil, err
	}
	parsed := mailtm.ParseSource(raw)

	m.mu.Lock()
	if m.epoch == epoch && m.state.SelectedMessage != nil && m.state.SelectedMessage.ID == id {
		m.state.SelectedMessage.Attachments = parsed.Attachments
	}
	m.mu.Unlock()
	m.publish()

	return parsed.Attachments, nil
}

// dropGone tears down the session of epoch after the provider reported
// the account gone.
func (m *Manager) dropGone(epoch uint64) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	m.mu.Lock()
	stale := m.epoch != epoch
	m.mu.Unlock()
	if stale {
		return
	}

	m.log.Info().Msg("account no longer exists, clearing session")
	m.teardown(context.Background())
}
