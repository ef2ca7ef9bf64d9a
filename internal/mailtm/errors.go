package mailtm

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrAccountGone is reported when the provider says the account no
	// longer exists. Callers purge local state instead of retrying.
	ErrAccountGone = errors.New("account no longer exists")

	// ErrNotFound is reported for 404 responses.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is reported when a request is still throttled after
	// its single rate-limit retry.
	ErrRateLimited = errors.New("rate limited")

	// ErrNoCredentials is reported when an authenticated call is made on
	// a session that holds no credentials.
	ErrNoCredentials = errors.New("no account available, create an account first")
)

// AuthError indicates that authentication has failed or expired.
// It is returned when the provider answers 401.
type AuthError struct {
	Address string
	Message string

	// Gone is set when the provider reports the account no longer exists.
	Gone bool
}

func (e *AuthError) Error() string {
	if e.Address == "" {
		return fmt.Sprintf("authentication failed: %s", e.Message)
	}
	return fmt.Sprintf("authentication failed for %s: %s", e.Address, e.Message)
}

// Is makes errors.Is(err, ErrAccountGone) hold for gone accounts.
func (e *AuthError) Is(target error) bool {
	return e.Gone && target == ErrAccountGone
}

// ValidationError is a provider rejection of the request payload. It is
// surfaced to the user verbatim and never retried.
type ValidationError struct {
	Status int
	Reason string
	Detail string
}

func (e *ValidationError) Error() string {
	if e.Detail == "" || e.Detail == e.Reason {
		return e.Reason
	}
	return e.Reason + ": " + e.Detail
}

// TransientError wraps a failure that may succeed on retry: network
// errors, 5xx responses and exhausted rate-limit retries.
type TransientError struct {
	Method string
	Path   string
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	return fmt.Sprintf("%s %s: status %d: %v", e.Method, e.Path, e.Status, e.Err)
}

func (e *TransientError) Unwrap() error { return e.Err }

// APIError is any other non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf(
		"unexpected status %d on %s %s: %s",
		e.Status, e.Method, e.Path, e.Message,
	)
}

// Is maps 404 responses onto ErrNotFound.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

// AccountCreationError is returned by CreateAccount once every attempt
// has failed.
type AccountCreationError struct {
	Err error
}

func (e *AccountCreationError) Error() string {
	return fmt.Sprintf("failed to create temporary email account: %v", e.Err)
}

func (e *AccountCreationError) Unwrap() error { return e.Err }

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var authErr *AuthError
	return errors.As(err, &authErr)
}

// IsAccountGone reports whether err signals a deleted or expired account.
func IsAccountGone(err error) bool {
	return errors.Is(err, ErrAccountGone)
}

// IsNotFound reports whether err is a 404 from the provider.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation reports whether err is a payload rejection.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsRetryable reports whether err is worth another attempt.
func IsRetryable(err error) bool {
	var t *TransientError
	return errors.As(err, &t) || errors.Is(err, ErrRateLimited)
}

// UserMessage renders err for display. Validation errors are returned
// verbatim; everything else suggests retrying.
func UserMessage(err error) string {
	var v *ValidationError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &v):
		return v.Error()
	case IsAccountGone(err):
		return "This email has expired. Generate a new one."
	case errors.Is(err, ErrNoCredentials):
		return "No active email. Generate one first."
	default:
		return "Something went wrong talking to the mail provider. Please try again."
	}
}

// classify turns a non-2xx response into the matching error kind.
func classify(method, path string, status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{
			Message: msg,
			Gone:    strings.Contains(strings.ToLower(msg), "no longer exists"),
		}
	case status == http.StatusBadRequest,
		status == http.StatusConflict,
		status == http.StatusUnprocessableEntity:
		return &ValidationError{Status: status, Reason: validationReason(method, path, status), Detail: msg}
	case status == http.StatusTooManyRequests:
		return &TransientError{Method: method, Path: path, Status: status, Err: ErrRateLimited}
	case status >= 500:
		return &TransientError{Method: method, Path: path, Status: status, Err: errors.New(msg)}
	default:
		return &APIError{Method: method, Path: path, Status: status, Message: msg}
	}
}

// validationReason maps account registration rejections to the reasons
// shown to the user.
func validationReason(method, path string, status int) string {
	if method != http.MethodPost || path != "/accounts" {
		return "Invalid request"
	}
	switch status {
	case http.StatusBadRequest:
		return "Invalid email address or password format"
	case http.StatusConflict:
		return "Email address already exists"
	default:
		return "Invalid request data"
	}
}
