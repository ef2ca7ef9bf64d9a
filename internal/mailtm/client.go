package mailtm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/nhle/dragonmail/internal/retry"
)

const (
	// DefaultBaseURL is the public mail.tm API.
	DefaultBaseURL = "https://api.mail.tm"

	// DefaultFallbackDomain is used when no active domain can be listed.
	DefaultFallbackDomain = "mail.tm"

	defaultRateLimitDelay = 2 * time.Second
	defaultTimeout        = 30 * time.Second
	defaultRPS            = 8
	accountQuota          = 100
)

// Policies holds the retry policy of every provider operation. Account
// deletion backs off linearly; everything else waits a fixed delay.
type Policies struct {
	Create  retry.Policy
	Domains retry.Policy
	Auth    retry.Policy
	Read    retry.Policy
	Delete  retry.Policy
}

// DefaultPolicies returns the production retry policies.
func DefaultPolicies() Policies {
	return Policies{
		Create: retry.Fixed(3, 2*time.Second).WithRetryable(func(err error) bool {
			return !IsValidation(err)
		}),
		Domains: retry.Fixed(3, 2*time.Second),
		Auth:    retry.Fixed(3, 2*time.Second).WithRetryable(IsRetryable),
		Read:    retry.Fixed(3, 2*time.Second).WithRetryable(IsRetryable),
		Delete: retry.Linear(3, time.Second).WithRetryable(func(err error) bool {
			if IsNotFound(err) || IsAccountGone(err) {
				return false
			}
			return IsRetryable(err) || IsAuthError(err)
		}),
	}
}

// Client is a thin HTTP client for the mail.tm REST API. It handles
// JSON marshaling, Bearer authentication, client-side pacing and a single
// delayed retry on HTTP 429. Client holds no credentials; see Session.
type Client struct {
	baseURL        string
	httpClient     *http.Client
	limiter        *rate.Limiter
	rateLimitDelay time.Duration
	policies       Policies
	fallbackDomain string
	log            zerolog.Logger
	now            func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout sets the per-request timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(log zerolog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// WithPolicies overrides the retry policies.
func WithPolicies(p Policies) Option {
	return func(c *Client) { c.policies = p }
}

// WithRateLimit paces outgoing requests to rps per second. A value <= 0
// disables pacing.
func WithRateLimit(rps float64) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithRateLimitDelay sets how long to wait before retrying a 429.
func WithRateLimitDelay(d time.Duration) Option {
	return func(c *Client) { c.rateLimitDelay = d }
}

// WithFallbackDomain sets the domain used when none can be listed.
func WithFallbackDomain(domain string) Option {
	return func(c *Client) {
		if domain != "" {
			c.fallbackDomain = domain
		}
	}
}

// WithClock injects the time source used for token expiry and quota
// fallbacks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// NewClient creates a mail.tm client rooted at baseURL.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
		limiter:        rate.NewLimiter(rate.Limit(defaultRPS), 1),
		rateLimitDelay: defaultRateLimitDelay,
		policies:       DefaultPolicies(),
		fallbackDomain: DefaultFallbackDomain,
		log:            zerolog.Nop(),
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the API root the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// request describes one API call.
type request struct {
	method string
	path   string
	token  string
	body   interface{}
	accept string
}

// getJSON performs an HTTP GET request and unmarshals the JSON response.
func (c *Client) getJSON(ctx context.Context, path, token string, result interface{}) error {
	data, err := c.do(ctx, request{method: http.MethodGet, path: path, token: token})
	if err != nil {
		return err
	}
	return decode(data, result)
}

// postJSON performs an HTTP POST request with a JSON body and unmarshals
// the JSON response.
func (c *Client) postJSON(ctx context.Context, path, token string, body, result interface{}) error {
	data, err := c.do(ctx, request{method: http.MethodPost, path: path, token: token, body: body})
	if err != nil {
		return err
	}
	return decode(data, result)
}

func decode(data []byte, result interface{}) error {
	if result == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

// do is the core HTTP method that builds the request, paces it, handles
// auth and rate limiting, and maps failures onto the error taxonomy.
func (c *Client) do(ctx context.Context, r request) ([]byte, error) {
	url := c.baseURL + r.path

	var payload []byte
	if r.body != nil {
		data, err := json.Marshal(r.body)
		if err != nil {
			return nil, fmt.Errorf("marshaling request body: %w", err)
		}
		payload = data
	}

	accept := r.accept
	if accept == "" {
		accept = "application/json"
	}

	retriedRateLimit := false
	for {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		var bodyReader io.Reader
		if payload != nil {
			bodyReader = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, r.method, url, bodyReader)
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}

		req.Header.Set("Accept", accept)
		req.Header.Set("Content-Type", "application/json")
		if r.token != "" {
			req.Header.Set("Authorization", "Bearer "+r.token)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, &TransientError{Method: r.method, Path: r.path, Err: err}
		}

		respBody, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return nil, &TransientError{
				Method: r.method, Path: r.path, Status: resp.StatusCode,
				Err: fmt.Errorf("reading response body: %w", readErr),
			}
		}

		if resp.StatusCode == http.StatusTooManyRequests && !retriedRateLimit {
			retriedRateLimit = true
			c.log.Debug().
				Str("method", r.method).
				Str("path", r.path).
				Dur("delay", c.rateLimitDelay).
				Msg("rate limited, retrying once")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.rateLimitDelay):
				continue
			}
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			err := classify(r.method, r.path, resp.StatusCode, errorMessage(respBody))
			c.log.Debug().
				Err(err).
				Str("method", r.method).
				Str("path", r.path).
				Int("status", resp.StatusCode).
				Msg("provider request failed")
			return nil, err
		}

		return respBody, nil
	}
}

// errorMessage pulls the human-readable message out of an error body,
// falling back to the raw text.
func errorMessage(body []byte) string {
	var e errorResponse
	if json.Unmarshal(body, &e) == nil {
		for _, msg := range []string{e.Message, e.Detail, e.HydraDescription, e.HydraTitle} {
			if msg != "" {
				return msg
			}
		}
	}
	text := strings.TrimSpace(string(body))
	if text == "" {
		return "empty response"
	}
	return text
}

// run executes fn under policy p and strips the retry wrapper from the
// final error so callers can keep matching on the provider error kinds.
func run(ctx context.Context, p retry.Policy, fn func(ctx context.Context, attempt int) error) error {
	err := retry.Do(ctx, p, fn)
	var exhausted *retry.ExhaustedError
	if errors.As(err, &exhausted) {
		return exhausted.Err
	}
	return err
}
