package model

import (
	"strings"
	"time"
)

// Account is a provisioned, time-boxed mailbox on the mail provider.
// CreatedAt and ExpiresAt are epoch milliseconds.
type Account struct {
	// ID is the provider-assigned account identifier.
	ID string `json:"id"`

	// Address is the full email address (local part and domain).
	Address string `json:"address"`

	// Password is the provider password chosen at creation time.
	Password string `json:"password"`

	// Username is the local part of Address.
	Username string `json:"username"`

	// Token is the current bearer credential. Empty until the account
	// has authenticated.
	Token string `json:"token"`

	// SiteUsedFor is a free-text note the user attaches to the mailbox.
	SiteUsedFor string `json:"siteUsedFor"`

	// CreatedAt is when the session was established.
	CreatedAt int64 `json:"createdAt"`

	// ExpiresAt is the sole authority for expiry.
	ExpiresAt int64 `json:"expiresAt"`
}

// UsernameOf returns the local part of an email address.
func UsernameOf(address string) string {
	local, _, found := strings.Cut(address, "@")
	if !found {
		return address
	}
	return local
}

// ExpiresAtFor computes the expiry of an account created at createdAt
// (epoch millis) living for the given number of minutes.
func ExpiresAtFor(createdAt int64, minutes int) int64 {
	return createdAt + int64(minutes)*60000
}

// Remaining returns how long the account has left at now, never negative.
func (a Account) Remaining(now time.Time) time.Duration {
	left := a.ExpiresAt - now.UnixMilli()
	if left <= 0 {
		return 0
	}
	return time.Duration(left) * time.Millisecond
}

// Expired reports whether the account is past its expiry at now.
func (a Account) Expired(now time.Time) bool {
	return a.Remaining(now) == 0
}

// Authenticated reports whether the account currently holds a token.
func (a Account) Authenticated() bool {
	return a.Token != ""
}

// Snapshot returns the SavedEmail view of the account's credentials.
func (a Account) Snapshot() SavedEmail {
	username := a.Username
	if username == "" {
		username = UsernameOf(a.Address)
	}
	return SavedEmail{
		ID:          a.ID,
		Address:     a.Address,
		Username:    username,
		Password:    a.Password,
		CreatedAt:   a.CreatedAt,
		SiteUsedFor: a.SiteUsedFor,
	}
}
