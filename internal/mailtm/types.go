package mailtm

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// Credentials identify a registered provider account.
type Credentials struct {
	ID       string
	Address  string
	Password string
}

// Domain is a mail domain offered by the provider.
type Domain struct {
	ID        string `json:"id"`
	Domain    string `json:"domain"`
	IsActive  bool   `json:"isActive"`
	IsPrivate bool   `json:"isPrivate"`
}

// collection is the hydra envelope the provider wraps lists in.
type collection[T any] struct {
	Members    []T `json:"hydra:member"`
	TotalItems int `json:"hydra:totalItems"`
}

// decodeCollection accepts either a hydra envelope or a plain JSON array.
func decodeCollection[T any](data []byte) ([]T, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, nil
	}
	if trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, fmt.Errorf("decoding list: %w", err)
		}
		return items, nil
	}
	var env collection[T]
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("decoding collection: %w", err)
	}
	return env.Members, nil
}

type accountRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	Quota    int    `json:"quota"`
}

type accountResponse struct {
	ID      string `json:"id"`
	Address string `json:"address"`
}

type tokenRequest struct {
	Address  string `json:"address"`
	Password string `json:"password"`
}

type tokenResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
}

// meResponse is the account identity returned by GET /me. Quota is kept
// raw because deployments report it either as a byte count or as an
// object.
type meResponse struct {
	ID      string          `json:"id"`
	Address string          `json:"address"`
	Quota   json.RawMessage `json:"quota"`
	Used    int64           `json:"used"`
}

// quotaObject is the object form of the /me quota.
type quotaObject struct {
	Remaining int   `json:"remaining"`
	Total     int   `json:"total"`
	ResetTime int64 `json:"resetTime"`
}

type errorResponse struct {
	Message          string `json:"message"`
	Detail           string `json:"detail"`
	HydraTitle       string `json:"hydra:title"`
	HydraDescription string `json:"hydra:description"`
}

// quota extracts the call quota from a /me response. Missing or zero
// fields fall back to the permissive defaults.
func (m meResponse) quota(now time.Time) (remaining, total int, reset time.Time) {
	remaining, total, reset = 100, 100, now.Add(24*time.Hour)

	raw := bytes.TrimSpace(m.Quota)
	if len(raw) == 0 || raw[0] != '{' {
		return remaining, total, reset
	}
	var q quotaObject
	if err := json.Unmarshal(raw, &q); err != nil {
		return remaining, total, reset
	}
	if q.Remaining > 0 {
		remaining = q.Remaining
	}
	if q.Total > 0 {
		total = q.Total
	}
	if q.ResetTime > 0 {
		reset = time.UnixMilli(q.ResetTime)
	}
	return remaining, total, reset
}
