package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nhle/dragonmail/internal/model"
)

// Vault stores secrets outside the database file. *credential.Vault
// satisfies it.
type Vault interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
}

// accountSecret is the part of an account kept in the vault.
type accountSecret struct {
	Password string `json:"password"`
	Token    string `json:"token"`
}

// SecureStore decorates a Store so the active account's password and
// token live in a Vault. Everything else passes through.
type SecureStore struct {
	Store
	vault Vault
}

// NewSecureStore wraps inner.
func NewSecureStore(inner Store, vault Vault) *SecureStore {
	return &SecureStore{Store: inner, vault: vault}
}

// SaveAccount stores the secrets in the vault and the rest in the inner
// store.
func (s *SecureStore) SaveAccount(ctx context.Context, account model.Account) error {
	data, err := json.Marshal(accountSecret{Password: account.Password, Token: account.Token})
	if err != nil {
		return fmt.Errorf("marshaling account secret: %w", err)
	}
	if err := s.vault.Set(KeyAccount, string(data)); err != nil {
		return err
	}

	account.Password = ""
	account.Token = ""
	return s.Store.SaveAccount(ctx, account)
}

// GetAccount reassembles the account. An account whose secret is missing
// or unreadable is treated as absent.
func (s *SecureStore) GetAccount(ctx context.Context) (*model.Account, error) {
	account, err := s.Store.GetAccount(ctx)
	if err != nil || account == nil {
		return nil, err
	}

	data, err := s.vault.Get(KeyAccount)
	if err != nil {
		return nil, nil
	}
	var secret accountSecret
	if err := json.Unmarshal([]byte(data), &secret); err != nil {
		return nil, nil
	}

	account.Password = secret.Password
	account.Token = secret.Token
	return account, nil
}

// ClearAccount removes both halves of the account.
func (s *SecureStore) ClearAccount(ctx context.Context) error {
	err := s.Store.ClearAccount(ctx)
	if vErr := s.vault.Delete(KeyAccount); vErr != nil && err == nil {
		err = vErr
	}
	return err
}
