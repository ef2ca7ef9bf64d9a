package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nhle/dragonmail/internal/model"
)

// RecordStore implements Store by JSON-encoding each record under its key
// in a KV backend. The saved-email collection is read, modified and
// written back as a whole; callers serialize concurrent writers.
type RecordStore struct {
	kv       KV
	defaults model.Settings
	log      zerolog.Logger
}

// RecordOption configures a RecordStore.
type RecordOption func(*RecordStore)

// WithDefaultSettings sets the settings returned when none are stored.
func WithDefaultSettings(s model.Settings) RecordOption {
	return func(r *RecordStore) { r.defaults = s.Normalize(model.DefaultSettings()) }
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) RecordOption {
	return func(r *RecordStore) { r.log = log }
}

// NewRecordStore wraps kv.
func NewRecordStore(kv KV, opts ...RecordOption) *RecordStore {
	r := &RecordStore{
		kv:       kv,
		defaults: model.DefaultSettings(),
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Close closes the backend.
func (r *RecordStore) Close() error {
	return r.kv.Close()
}

func (r *RecordStore) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	if err := r.kv.Set(ctx, key, data); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

// load decodes key into v. It reports false when the key is missing or
// its value does not decode.
func (r *RecordStore) load(ctx context.Context, key string, v interface{}) (bool, error) {
	data, err := r.kv.Get(ctx, key)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("discarding malformed record")
		return false, nil
	}
	return true, nil
}

// SaveAccount persists the active account.
func (r *RecordStore) SaveAccount(ctx context.Context, account model.Account) error {
	return r.put(ctx, KeyAccount, account)
}

// GetAccount returns the stored account, or nil when none is stored or
// the record is malformed.
func (r *RecordStore) GetAccount(ctx context.Context) (*model.Account, error) {
	var account model.Account
	ok, err := r.load(ctx, KeyAccount, &account)
	if err != nil || !ok {
		return nil, err
	}
	if account.Address == "" {
		return nil, nil
	}
	return &account, nil
}

// ClearAccount removes the stored account.
func (r *RecordStore) ClearAccount(ctx context.Context) error {
	if err := r.kv.Delete(ctx, KeyAccount); err != nil {
		return fmt.Errorf("clearing account: %w", err)
	}
	return nil
}

// SaveSettings persists settings.
func (r *RecordStore) SaveSettings(ctx context.Context, settings model.Settings) error {
	return r.put(ctx, KeySettings, settings)
}

// GetSettings returns the stored settings. Missing, malformed or out of
// range values fall back to the defaults; it never fails.
func (r *RecordStore) GetSettings(ctx context.Context) model.Settings {
	var settings model.Settings
	ok, err := r.load(ctx, KeySettings, &settings)
	if err != nil {
		r.log.Warn().Err(err).Msg("reading settings, using defaults")
		return r.defaults
	}
	if !ok {
		return r.defaults
	}
	return settings.Normalize(r.defaults)
}

// SaveEmail prepends email to the saved collection. An empty ID is
// replaced by a fresh UUID.
func (r *RecordStore) SaveEmail(ctx context.Context, email model.SavedEmail) error {
	if email.ID == "" {
		email.ID = uuid.New().String()
	}

	emails, err := r.ListEmails(ctx)
	if err != nil {
		return err
	}

	updated := make([]model.SavedEmail, 0, len(emails)+1)
	updated = append(updated, email)
	updated = append(updated, emails...)

	return r.put(ctx, KeySavedEmails, updated)
}

// ListEmails returns the saved collection, newest first.
func (r *RecordStore) ListEmails(ctx context.Context) ([]model.SavedEmail, error) {
	var emails []model.SavedEmail
	if _, err := r.load(ctx, KeySavedEmails, &emails); err != nil {
		return nil, err
	}
	if emails == nil {
		emails = []model.SavedEmail{}
	}
	return emails, nil
}

// DeleteEmail removes every saved email with the given id, keeping the
// order of the rest.
func (r *RecordStore) DeleteEmail(ctx context.Context, id string) error {
	emails, err := r.ListEmails(ctx)
	if err != nil {
		return err
	}

	kept := emails[:0]
	for _, e := range emails {
		if e.ID != id {
			kept = append(kept, e)
		}
	}

	return r.put(ctx, KeySavedEmails, kept)
}
