package store

import (
	"context"
	"errors"

	"github.com/nhle/dragonmail/internal/model"
)

// Keys of the persisted records.
const (
	KeyAccount     = "dragonmail_account"
	KeySettings    = "dragonmail_settings"
	KeySavedEmails = "@dragonmail_emails"
)

// ErrNotFound is returned by KV.Get for missing keys.
var ErrNotFound = errors.New("key not found")

// KV is an opaque key-value backend.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Close() error
}

// Store defines the persistence interface for the active account, the
// user settings and the saved-email collection. It holds no business
// logic: a malformed record reads as absent, never as an error.
type Store interface {
	// === Active account ===

	SaveAccount(ctx context.Context, account model.Account) error
	GetAccount(ctx context.Context) (*model.Account, error)
	ClearAccount(ctx context.Context) error

	// === Settings ===

	SaveSettings(ctx context.Context, settings model.Settings) error
	GetSettings(ctx context.Context) model.Settings

	// === Saved emails ===

	SaveEmail(ctx context.Context, email model.SavedEmail) error
	ListEmails(ctx context.Context) ([]model.SavedEmail, error)
	DeleteEmail(ctx context.Context, id string) error

	Close() error
}
