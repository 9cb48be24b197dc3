package oauth

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrAuthorizationFlow means the CSRF state was missing or did not
	// match; the flow is aborted and the code is never exchanged.
	ErrAuthorizationFlow = errors.New("oauth: authorization failed")
	// ErrTokenExchange means the provider rejected a code or refresh
	// exchange; the session stays (or becomes) unauthenticated.
	ErrTokenExchange = errors.New("oauth: token exchange rejected")
	// ErrNoRefreshToken means a refresh was required but the session has
	// no refresh token to use.
	ErrNoRefreshToken = errors.New("oauth: no refresh token available")
	// ErrDiscovery means the provider's discovery document could not be
	// fetched. Not retried inline; the next call refetches.
	ErrDiscovery = errors.New("oauth: failed to fetch configuration")
)

// UserInfoError reports a userinfo fetch failure with the provider status
// that caused it. Status 0 means a transport-level failure.
type UserInfoError struct {
	Status int
	Err    error

	// retryAfter is the provider-requested wait parsed from a 429
	// Retry-After header; zero when absent.
	retryAfter time.Duration
}

func (e *UserInfoError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("oauth: userinfo request failed with status %d", e.Status)
	}
	return fmt.Sprintf("oauth: userinfo request failed: %v", e.Err)
}

func (e *UserInfoError) Unwrap() error {
	return e.Err
}

// retryable classifies userinfo failures: transport errors, 5xx, and 429
// are retried; 401 and every other status are terminal.
func (e *UserInfoError) retryable() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
