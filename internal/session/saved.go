package session

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/nhle/dragonmail/internal/model"
)

// SaveActiveAccount snapshots the active account into the saved list.
// Saving the same account twice keeps both entries.
func (m *Manager) SaveActiveAccount(ctx context.Context) (model.SavedEmail, error) {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	acc, _ := m.current()
	if acc == nil {
		return model.SavedEmail{}, ErrNoAccount
	}

	saved := acc.Snapshot()
	saved.ID = uuid.New().String()
	if err := m.store.SaveEmail(ctx, saved); err != nil {
		return model.SavedEmail{}, fmt.Errorf("saving %s: %w", acc.Address, err)
	}

	m.log.Info().Str("address", saved.Address).Msg("email saved")
	return saved, nil
}

// SavedEmails lists the saved emails, newest first.
func (m *Manager) SavedEmails(ctx context.Context) ([]model.SavedEmail, error) {
	return m.store.ListEmails(ctx)
}

// DeleteSavedEmail removes a saved email by id.
func (m *Manager) DeleteSavedEmail(ctx context.Context, id string) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if err := m.store.DeleteEmail(ctx, id); err != nil {
		return fmt.Errorf("deleting saved email %s: %w", id, err)
	}
	return nil
}
