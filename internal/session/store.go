package session

import (
	"context"
	"errors"
	"time"
)

// Auth is the token-bearing part of a session. IsAuthenticated true
// implies AccessToken and ExpiresAt are set.
type Auth struct {
	IsAuthenticated bool           `json:"isAuthenticated"`
	AccessToken     string         `json:"accessToken,omitempty"`
	IDToken         string         `json:"idToken,omitempty"`
	RefreshToken    string         `json:"refreshToken,omitempty"`
	ExpiresAt       int64          `json:"expiresAt,omitempty"` // epoch milliseconds
	UserInfo        map[string]any `json:"userInfo,omitempty"`
}

// Data is the persisted session payload. It is treated as a value:
// updates apply a pure transform and persist the result instead of
// mutating shared state in place.
type Data struct {
	Auth Auth           `json:"auth"`
	User map[string]any `json:"user,omitempty"`

	// Transient CSRF fields for the login/callback round trip. Consumed
	// and cleared by the callback before any code exchange.
	State       string `json:"state,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
}

// Expired reports whether the access token is already past its expiry.
func (a Auth) Expired(now time.Time) bool {
	return a.ExpiresAt != 0 && now.UnixMilli() >= a.ExpiresAt
}

// NearExpiry reports whether the access token expires within margin.
func (a Auth) NearExpiry(now time.Time, margin time.Duration) bool {
	return a.ExpiresAt != 0 && now.Add(margin).UnixMilli() >= a.ExpiresAt
}

// Record pairs a stored session with its identifier, for listings.
type Record struct {
	ID   string
	Data Data
}

var (
	// ErrSessionHandling wraps store I/O failures. Callers translate it to
	// an HTTP 500; it is not retried at this layer.
	ErrSessionHandling = errors.New("session: session handling failed")
	// ErrListUnsupported is returned by stores that keep the whole session
	// client-side and therefore cannot enumerate active sessions.
	ErrListUnsupported = errors.New("session: listing not supported by this store")
)

// Store is the durable backing for sessions. Implementations must be safe
// for concurrent use.
type Store interface {
	// Get returns the session data for id. The bool reports presence;
	// a missing session is not an error.
	Get(ctx context.Context, id string) (Data, bool, error)
	Set(ctx context.Context, id string, d Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
	// List returns all live sessions, or ErrListUnsupported.
	List(ctx context.Context) ([]Record, error)
}
