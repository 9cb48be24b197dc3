package session

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"time"
)

// CookieStore keeps the entire session client-side: the "id" handed to
// Get is the url-encoded JSON payload carried in the cookie itself. The
// server persists nothing, so Set and Delete are no-ops and List is
// unsupported. The manager re-issues the cookie with a freshly encoded
// payload after every update.
type CookieStore struct{}

func NewCookieStore() *CookieStore {
	return &CookieStore{}
}

// Encode serializes session data into a cookie-safe value.
func (c *CookieStore) Encode(d Data) (string, error) {
	raw, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("session: failed to encode payload: %w", err)
	}
	return url.QueryEscape(string(raw)), nil
}

func (c *CookieStore) Get(_ context.Context, id string) (Data, bool, error) {
	raw, err := url.QueryUnescape(id)
	if err != nil {
		return Data{}, false, nil
	}

	var d Data
	if err := json.Unmarshal([]byte(raw), &d); err != nil {
		// A payload we cannot parse is indistinguishable from no session.
		return Data{}, false, nil
	}
	return d, true, nil
}

func (c *CookieStore) Set(_ context.Context, _ string, _ Data, _ time.Duration) error {
	return nil
}

func (c *CookieStore) Delete(_ context.Context, _ string) error {
	return nil
}

func (c *CookieStore) List(_ context.Context) ([]Record, error) {
	return nil, ErrListUnsupported
}
