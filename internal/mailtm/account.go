package mailtm

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	mrand "math/rand/v2"
	"net/http"
)

const (
	alphabet       = "abcdefghijklmnopqrstuvwxyz0123456789"
	usernameLength = 10
	passwordLength = 12
)

// Domains lists the provider's domains.
func (c *Client) Domains(ctx context.Context) ([]Domain, error) {
	var domains []Domain
	err := run(ctx, c.policies.Domains, func(ctx context.Context, _ int) error {
		data, err := c.do(ctx, request{method: http.MethodGet, path: "/domains"})
		if err != nil {
			return err
		}
		domains, err = decodeCollection[Domain](data)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("listing domains: %w", err)
	}
	return domains, nil
}

// RandomDomain picks a random active domain, queried fresh on every call.
// It falls back to the configured default when the list is empty, has no
// active entries, or cannot be fetched.
func (c *Client) RandomDomain(ctx context.Context) string {
	domains, err := c.Domains(ctx)
	if err != nil {
		c.log.Warn().Err(err).Str("fallback", c.fallbackDomain).Msg("domain lookup failed")
		return c.fallbackDomain
	}

	active := make([]string, 0, len(domains))
	for _, d := range domains {
		if d.IsActive && d.Domain != "" {
			active = append(active, d.Domain)
		}
	}
	if len(active) == 0 {
		c.log.Warn().Str("fallback", c.fallbackDomain).Msg("no active domains available")
		return c.fallbackDomain
	}
	return active[mrand.IntN(len(active))]
}

// CreateAccount registers a fresh random address on a random active domain.
// Each attempt draws a new username and password. Validation rejections
// are not retried. Any final failure is an *AccountCreationError.
func (c *Client) CreateAccount(ctx context.Context) (Credentials, error) {
	var creds Credentials
	err := run(ctx, c.policies.Create, func(ctx context.Context, attempt int) error {
		username, err := randomString(usernameLength)
		if err != nil {
			return err
		}
		password, err := randomString(passwordLength)
		if err != nil {
			return err
		}
		address := username + "@" + c.RandomDomain(ctx)

		var resp accountResponse
		err = c.postJSON(ctx, "/accounts", "", accountRequest{
			Address:  address,
			Password: password,
			Quota:    accountQuota,
		}, &resp)
		if err != nil {
			c.log.Warn().Err(err).Int("attempt", attempt).Msg("account creation attempt failed")
			return err
		}

		creds = Credentials{ID: resp.ID, Address: address, Password: password}
		return nil
	})
	if err != nil {
		return Credentials{}, &AccountCreationError{Err: err}
	}

	c.log.Info().Str("address", creds.Address).Msg("account created")
	return creds, nil
}

// token exchanges credentials for a bearer token.
func (c *Client) token(ctx context.Context, address, password string) (tokenResponse, error) {
	var tok tokenResponse
	err := run(ctx, c.policies.Auth, func(ctx context.Context, _ int) error {
		return c.postJSON(ctx, "/token", "", tokenRequest{
			Address:  address,
			Password: password,
		}, &tok)
	})
	if err != nil {
		var authErr *AuthError
		if errors.As(err, &authErr) {
			authErr.Address = address
		}
		return tokenResponse{}, err
	}
	if tok.Token == "" {
		return tokenResponse{}, &AuthError{Address: address, Message: "provider returned an empty token"}
	}
	return tok, nil
}

// me fetches the identity of the account the token belongs to.
func (c *Client) me(ctx context.Context, token string) (meResponse, error) {
	var me meResponse
	err := c.getJSON(ctx, "/me", token, &me)
	return me, err
}

// randomString returns n characters drawn uniformly from alphabet.
func randomString(n int) (string, error) {
	max := big.NewInt(int64(len(alphabet)))
	buf := make([]byte, n)
	for i := range buf {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generating random string: %w", err)
		}
		buf[i] = alphabet[idx.Int64()]
	}
	return string(buf), nil
}
