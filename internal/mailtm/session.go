package mailtm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/retry"
)

// tokenRefreshWindow is how close to its expiry a token is refreshed
// before use.
const tokenRefreshWindow = 30 * time.Second

// errSessionChanged is returned when the session was cleared or handed
// new credentials while a re-authentication was in flight.
var errSessionChanged = fmt.Errorf("session changed during re-authentication: %w", ErrNoCredentials)

// Session is the single credential and token slot of one active mailbox.
// All authenticated calls go through a Session; the Client itself holds
// no credentials. A Session is safe for concurrent use.
type Session struct {
	client *Client
	group  singleflight.Group

	mu       sync.Mutex
	address  string
	password string
	token    string
	tokenExp time.Time
	gen      uint64
}

// NewSession returns an empty session bound to c.
func (c *Client) NewSession() *Session {
	return &Session{client: c}
}

// Client returns the underlying HTTP client.
func (s *Session) Client() *Client {
	return s.client
}

// CreateAccount registers a new random account. It does not touch the
// session slot; call Authenticate with the returned credentials.
func (s *Session) CreateAccount(ctx context.Context) (Credentials, error) {
	return s.client.CreateAccount(ctx)
}

// SetCredentials makes address/password the current credential pair
// without contacting the provider. Any held token is dropped unless the
// credentials are unchanged.
func (s *Session) SetCredentials(address, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.address == address && s.password == password {
		return
	}
	s.address = address
	s.password = password
	s.token = ""
	s.tokenExp = time.Time{}
	s.gen++
}

// Authenticate exchanges the credentials for a bearer token and, on
// success, makes them the current pair. A gone account clears the session.
func (s *Session) Authenticate(ctx context.Context, address, password string) (string, error) {
	tok, err := s.client.token(ctx, address, password)
	if err != nil {
		if IsAccountGone(err) {
			s.Clear()
		}
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.address = address
	s.password = password
	s.token = tok.Token
	s.tokenExp = tokenExpiry(tok.Token)
	s.gen++

	return tok.Token, nil
}

// Token returns the current bearer token, or "" when unauthenticated.
func (s *Session) Token() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.token
}

// Address returns the address of the current credential pair.
func (s *Session) Address() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.address
}

// Clear drops the token and credential pair atomically.
func (s *Session) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.address = ""
	s.password = ""
	s.token = ""
	s.tokenExp = time.Time{}
	s.gen++
}

// dropToken forgets token if it is still the current one.
func (s *Session) dropToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.token == token {
		s.token = ""
		s.tokenExp = time.Time{}
	}
}

func (s *Session) expiringSoon(exp time.Time) bool {
	if exp.IsZero() {
		return false
	}
	return !s.client.now().Add(tokenRefreshWindow).Before(exp)
}

// ensureToken returns a usable token, authenticating from the stored
// credentials when none is held or the held one is about to expire.
func (s *Session) ensureToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	token, exp, hasCreds := s.token, s.tokenExp, s.address != ""
	s.mu.Unlock()

	if token != "" && !s.expiringSoon(exp) {
		return token, nil
	}
	if !hasCreds {
		return "", ErrNoCredentials
	}
	return s.reauthenticate(ctx, token)
}

// reauthenticate obtains a new token for the current credentials.
// Concurrent callers share a single POST /token.
func (s *Session) reauthenticate(ctx context.Context, stale string) (string, error) {
	v, err, _ := s.group.Do("token", func() (interface{}, error) {
		s.mu.Lock()
		if s.token != "" && s.token != stale && !s.expiringSoon(s.tokenExp) {
			token := s.token
			s.mu.Unlock()
			return token, nil
		}
		address, password, gen := s.address, s.password, s.gen
		s.mu.Unlock()

		if address == "" {
			return "", ErrNoCredentials
		}

		s.client.log.Debug().Str("address", address).Msg("re-authenticating")
		tok, err := s.client.token(ctx, address, password)

		s.mu.Lock()
		defer s.mu.Unlock()
		if s.gen != gen {
			return "", errSessionChanged
		}
		if err != nil {
			if IsAccountGone(err) {
				s.clearLocked()
			}
			return "", err
		}
		s.token = tok.Token
		s.tokenExp = tokenExpiry(tok.Token)
		return tok.Token, nil
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

// withAuth runs fn with a valid token. A 401 triggers exactly one
// re-authentication and one more call, outside any retry policy.
func (s *Session) withAuth(ctx context.Context, fn func(ctx context.Context, token string) error) error {
	token, err := s.ensureToken(ctx)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if err == nil || !IsAuthError(err) {
		return err
	}
	if IsAccountGone(err) {
		s.Clear()
		return err
	}

	s.dropToken(token)
	token, err = s.reauthenticate(ctx, token)
	if err != nil {
		return err
	}

	err = fn(ctx, token)
	if IsAccountGone(err) {
		s.Clear()
	}
	return err
}

// Messages lists the inbox of the current account.
func (s *Session) Messages(ctx context.Context) ([]model.Message, error) {
	var msgs []model.Message
	err := s.withAuth(ctx, func(ctx context.Context, token string) error {
		return run(ctx, s.client.policies.Read, func(ctx context.Context, _ int) error {
			data, err := s.client.do(ctx, request{method: http.MethodGet, path: "/messages", token: token})
			if err != nil {
				return err
			}
			msgs, err = decodeCollection[model.Message](data)
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetching messages: %w", err)
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return msgs, nil
}

// Message fetches one message with its bodies.
func (s *Session) Message(ctx context.Context, id string) (*model.Message, error) {
	var msg model.Message
	path := "/messages/" + url.PathEscape(id)
	err := s.withAuth(ctx, func(ctx context.Context, token string) error {
		return run(ctx, s.client.policies.Read, func(ctx context.Context, _ int) error {
			return s.client.getJSON(ctx, path, token, &msg)
		})
	})
	if err != nil {
		return nil, fmt.Errorf("fetching message %s: %w", id, err)
	}
	return &msg, nil
}

// Source downloads the raw RFC 822 source of a message.
func (s *Session) Source(ctx context.Context, id string) ([]byte, error) {
	var raw []byte
	path := "/messages/" + url.PathEscape(id) + "/download"
	err := s.withAuth(ctx, func(ctx context.Context, token string) error {
		return run(ctx, s.client.policies.Read, func(ctx context.Context, _ int) error {
			data, err := s.client.do(ctx, request{
				method: http.MethodGet,
				path:   path,
				token:  token,
				accept: "message/rfc822",
			})
			raw = data
			return err
		})
	})
	if err != nil {
		return nil, fmt.Errorf("downloading message %s: %w", id, err)
	}
	return raw, nil
}

// Limits reports the provider quota. It never fails: when the session is
// unauthenticated or the call fails, a permissive default is returned.
func (s *Session) Limits(ctx context.Context) model.APILimits {
	now := s.client.now()

	s.mu.Lock()
	usable := s.token != "" || s.address != ""
	s.mu.Unlock()
	if !usable {
		return model.DefaultAPILimits(now)
	}

	var me meResponse
	err := s.withAuth(ctx, func(ctx context.Context, token string) error {
		var err error
		me, err = s.client.me(ctx, token)
		return err
	})
	if err != nil {
		s.client.log.Debug().Err(err).Msg("quota lookup failed, using defaults")
		return model.DefaultAPILimits(now)
	}

	remaining, total, reset := me.quota(now)
	return model.APILimits{Remaining: remaining, Total: total, ResetTime: reset}
}

// DeleteAccount removes the current account from the provider. The id is
// resolved through GET /me. A 404 or an already-gone account counts as
// success. A 401 drops the token so the next attempt re-authenticates.
func (s *Session) DeleteAccount(ctx context.Context, address string) error {
	current := s.Address()
	if current == "" {
		return ErrNoCredentials
	}
	if address != "" && !strings.EqualFold(address, current) {
		return fmt.Errorf("session holds %s, cannot delete %s", current, address)
	}

	err := run(ctx, s.client.policies.Delete, func(ctx context.Context, attempt int) error {
		token, err := s.ensureToken(ctx)
		if err != nil {
			return err
		}

		me, err := s.client.me(ctx, token)
		if err != nil {
			s.onDeleteError(token, attempt, err)
			return err
		}
		if me.ID == "" {
			return retry.Stop(errors.New("provider did not report an account id"))
		}

		_, err = s.client.do(ctx, request{
			method: http.MethodDelete,
			path:   "/accounts/" + url.PathEscape(me.ID),
			token:  token,
		})
		if err != nil {
			s.onDeleteError(token, attempt, err)
		}
		return err
	})

	switch {
	case err == nil:
		s.client.log.Info().Str("address", current).Msg("account deleted")
		return nil
	case IsNotFound(err), IsAccountGone(err):
		s.client.log.Info().Str("address", current).Msg("account already deleted")
		return nil
	default:
		return fmt.Errorf("deleting account %s: %w", current, err)
	}
}

func (s *Session) onDeleteError(token string, attempt int, err error) {
	if IsAuthError(err) && !IsAccountGone(err) {
		s.dropToken(token)
	}
	s.client.log.Warn().Err(err).Int("attempt", attempt).Msg("account deletion attempt failed")
}

// tokenExpiry reads the exp claim of a JWT without verifying it. Tokens
// that do not parse have no known expiry.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
