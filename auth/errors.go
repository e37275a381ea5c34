package auth

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotLoggedIn indicates that no credentials are stored.
	ErrNotLoggedIn = errors.New("not logged in")

	// ErrNotConfigured indicates that no OAuth client ID has been set up.
	ErrNotConfigured = errors.New("no OAuth client ID configured")

	// ErrSessionExpired indicates that the refresh token was rejected and the
	// user has to log in again.
	ErrSessionExpired = errors.New("session expired")

	// ErrAuthTimeout indicates that no callback arrived before the login deadline.
	ErrAuthTimeout = errors.New("authentication timed out")

	// ErrStateMismatch indicates that the callback state differs from the one
	// sent with the authorization request.
	ErrStateMismatch = errors.New("state mismatch - possible CSRF attack")
)

// DeniedError is returned when the authorization server redirects back with
// an error parameter instead of a code.
type DeniedError struct {
	Reason string
}

func (e *DeniedError) Error() string {
	return "authorization denied: " + e.Reason
}

// BindError is returned when the loopback callback listener cannot bind its port.
type BindError struct {
	Port int
	Err  error
}

func (e *BindError) Error() string {
	return fmt.Sprintf("cannot listen for OAuth callback on port %d: %v", e.Port, e.Err)
}

func (e *BindError) Unwrap() error {
	return e.Err
}

// ExchangeError is returned by the token, refresh and userinfo endpoints on
// any non-2xx response or malformed token payload.
type ExchangeError struct {
	Op         string // "exchange", "refresh" or "userinfo"
	StatusCode int
	Body       string
	Err        error
}

func (e *ExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s failed with status %d: %s", e.Op, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// Unauthorized reports whether the server answered 401.
func (e *ExchangeError) Unauthorized() bool {
	return e.StatusCode == http.StatusUnauthorized
}

// NeedsLogin reports whether err can only be resolved by running the login
// flow again.
func NeedsLogin(err error) bool {
	var denied *DeniedError
	return errors.Is(err, ErrNotLoggedIn) ||
		errors.Is(err, ErrNotConfigured) ||
		errors.Is(err, ErrSessionExpired) ||
		errors.Is(err, ErrAuthTimeout) ||
		errors.Is(err, ErrStateMismatch) ||
		errors.As(err, &denied)
}
