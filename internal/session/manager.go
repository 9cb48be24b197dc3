package session

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"bff-auth/internal/logger"
)

// Session is a request-scoped handle on stored session data. The ID is
// what the signed cookie carries; for the client-encoded store it is the
// serialized payload itself.
type Session struct {
	ID   string
	Data Data
}

// Manager implements the session core on top of a pluggable Store and the
// signed-cookie codec. It is safe for concurrent use; each request works
// on its own Session value.
type Manager struct {
	store   Store
	secrets []string
	ttl     time.Duration
	cookie  CookieOptions
}

func NewManager(store Store, secrets []string, ttl time.Duration, cookie CookieOptions) *Manager {
	return &Manager{
		store:   store,
		secrets: secrets,
		ttl:     ttl,
		cookie:  cookie,
	}
}

// Store exposes the backing store for callers that operate on sessions
// outside a request, such as the batch refresh job.
func (m *Manager) Store() Store {
	return m.store
}

// TTL returns the configured session lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// ClientEncoded reports whether the whole session lives in the cookie.
// Server-initiated updates (background refresh, batch refresh) are
// impossible in that mode because there is no server-side handle.
func (m *Manager) ClientEncoded() bool {
	_, ok := m.store.(*CookieStore)
	return ok
}

// Read returns the session referenced by the request cookie, or nil when
// there is none, the signature does not verify, or the store has no entry.
func (m *Manager) Read(r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return nil, nil
	}

	id, err := Unsign(cookie.Value, m.secrets)
	if err != nil {
		logger.Warn("session cookie rejected", map[string]any{
			"reason": err.Error(),
		})
		return nil, nil
	}

	data, ok, err := m.store.Get(r.Context(), id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSessionHandling, err)
	}
	if !ok {
		return nil, nil
	}

	return &Session{ID: id, Data: data}, nil
}

// Init is idempotent: it returns the existing session if the request has
// a valid one, and otherwise creates a default unauthenticated session
// and issues its cookie.
func (m *Manager) Init(w http.ResponseWriter, r *http.Request) (*Session, error) {
	sess, err := m.Read(r)
	if err != nil {
		return nil, err
	}
	if sess != nil {
		return sess, nil
	}

	data := Data{Auth: Auth{IsAuthenticated: false}}

	var id string
	if cs, ok := m.store.(*CookieStore); ok {
		if id, err = cs.Encode(data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionHandling, err)
		}
	} else {
		if id, err = GenerateID(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionHandling, err)
		}
		if err = m.store.Set(r.Context(), id, data, m.ttl); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrSessionHandling, err)
		}
	}

	SetCookie(w, Sign(id, m.newestSecret()), time.Now().Add(m.ttl), m.cookie)

	return &Session{ID: id, Data: data}, nil
}

// Update applies a pure transform to the session data and persists the
// result. Keys the transform does not touch are preserved because the
// transform receives and returns the whole value.
func (m *Manager) Update(
	ctx context.Context,
	w http.ResponseWriter,
	sess *Session,
	fn func(Data) Data,
) error {
	next := fn(sess.Data)

	if cs, ok := m.store.(*CookieStore); ok {
		id, err := cs.Encode(next)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrSessionHandling, err)
		}
		sess.ID = id
		sess.Data = next
		SetCookie(w, Sign(id, m.newestSecret()), time.Now().Add(m.ttl), m.cookie)
		return nil
	}

	if err := m.store.Set(ctx, sess.ID, next, m.ttl); err != nil {
		return fmt.Errorf("%w: %v", ErrSessionHandling, err)
	}
	sess.Data = next
	return nil
}

// Destroy removes the session from the store and clears the cookie.
func (m *Manager) Destroy(ctx context.Context, w http.ResponseWriter, sess *Session) error {
	if sess != nil {
		if err := m.store.Delete(ctx, sess.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrSessionHandling, err)
		}
		sess.Data = Data{}
	}
	ClearCookie(w, m.cookie)
	return nil
}

func (m *Manager) newestSecret() string {
	// Secrets are configured newest first; new signatures always use the
	// newest one while Unsign still accepts the older ones.
	return m.secrets[0]
}
