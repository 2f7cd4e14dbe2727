package service

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidState marks an unknown, expired, or already-consumed
	// authorization state. Always terminal: the user restarts the flow.
	ErrInvalidState = errors.New("invalid_state")

	// ErrNotAuthenticated marks a session with no stored connection.
	ErrNotAuthenticated = errors.New("not_authenticated")

	// ErrAuthenticationExpired marks a credential that could not be
	// refreshed. The stored connection is already gone when this surfaces;
	// the caller must not proceed to the downstream operation.
	ErrAuthenticationExpired = errors.New("authentication_expired")
)

// TokenExchangeError reports a rejected authorization-code exchange,
// carrying the upstream status and body for diagnosis.
type TokenExchangeError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenExchangeError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token exchange failed: upstream status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token exchange failed: %v", e.Err)
}

func (e *TokenExchangeError) Unwrap() error { return e.Err }

// TokenRefreshError reports a rejected refresh grant.
type TokenRefreshError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *TokenRefreshError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("token refresh failed: upstream status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("token refresh failed: %v", e.Err)
}

func (e *TokenRefreshError) Unwrap() error { return e.Err }

// ConnectionError reports a failed connection establishment or health check.
// Retryable errors (network faults, 5xx, throttling) are safe to retry
// immediately; non-retryable ones indicate bad credentials and should force
// re-authorization.
type ConnectionError struct {
	Retryable bool
	Err       error
}

func (e *ConnectionError) Error() string {
	kind := "non-retryable"
	if e.Retryable {
		kind = "retryable"
	}
	return fmt.Sprintf("connection failed (%s): %v", kind, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }
