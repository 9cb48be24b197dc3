package oauth

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"bff-auth/internal/auth"
	"bff-auth/internal/logger"
	"bff-auth/internal/session"
)

// IDTokenVerifier validates a raw ID token. The production wiring uses
// go-oidc against the issuer's JWKS; tests inject a stub.
type IDTokenVerifier interface {
	Verify(ctx context.Context, rawIDToken string) error
}

// EngineConfig carries engine tunables.
type EngineConfig struct {
	// Margin is the safety window before expiry within which a token is
	// treated as needing refresh.
	Margin time.Duration
	// LogoutRedirectURL is passed to the provider's end-session endpoint
	// as the post-logout destination.
	LogoutRedirectURL string
}

// Engine drives the OAuth authentication state machine over session
// state: code exchange on callback, lazy blocking refresh on expiry,
// proactive background refresh near expiry, and logout with revocation.
type Engine struct {
	sessions *session.Manager
	client   *Client
	users    auth.UserHandler // optional
	verifier IDTokenVerifier  // optional
	cfg      EngineConfig

	// refreshGroup collapses concurrent background refreshes for the
	// same session into one provider call.
	refreshGroup singleflight.Group
}

func NewEngine(
	sessions *session.Manager,
	client *Client,
	users auth.UserHandler,
	verifier IDTokenVerifier,
	cfg EngineConfig,
) *Engine {
	if cfg.Margin <= 0 {
		cfg.Margin = 5 * time.Minute
	}
	return &Engine{
		sessions: sessions,
		client:   client,
		users:    users,
		verifier: verifier,
		cfg:      cfg,
	}
}

// Sessions exposes the session manager for route handlers.
func (e *Engine) Sessions() *session.Manager {
	return e.sessions
}

// IsAuthenticated answers the per-request authentication decision. An
// expired access token is refreshed synchronously; a token nearing expiry
// schedules a detached refresh and answers true without waiting for it.
func (e *Engine) IsAuthenticated(w http.ResponseWriter, r *http.Request) (bool, error) {
	sess, err := e.sessions.Init(w, r)
	if err != nil {
		return false, err
	}

	a := sess.Data.Auth
	if !a.IsAuthenticated {
		return false, nil
	}

	ctx := r.Context()
	now := time.Now()

	if a.Expired(now) {
		if a.RefreshToken == "" {
			// Nothing to refresh with; drop straight to unauthenticated.
			if err := e.markUnauthenticated(ctx, w, sess); err != nil {
				return false, err
			}
			return false, nil
		}

		set, err := e.client.Refresh(ctx, a.RefreshToken)
		if err != nil {
			logger.Warn("blocking token refresh failed", map[string]any{
				"error": err.Error(),
			})
			if err := e.markUnauthenticated(ctx, w, sess); err != nil {
				return false, err
			}
			return false, nil
		}

		if err := e.sessions.Update(ctx, w, sess, applyTokenSet(set)); err != nil {
			return false, err
		}
		return true, nil
	}

	if a.NearExpiry(now, e.cfg.Margin) && !e.sessions.ClientEncoded() {
		// Fire-and-forget; the response is never blocked by proactive
		// refresh. Client-encoded sessions are skipped because there is
		// no server-side handle to write the result back to.
		e.scheduleBackgroundRefresh(sess.ID)
	}

	return true, nil
}

// BeginLogin stores the CSRF state and the post-login redirect in the
// session and returns the provider authorization URL.
func (e *Engine) BeginLogin(w http.ResponseWriter, r *http.Request, state, redirectURL string) (string, error) {
	sess, err := e.sessions.Init(w, r)
	if err != nil {
		return "", err
	}

	err = e.sessions.Update(r.Context(), w, sess, func(d session.Data) session.Data {
		d.State = state
		d.RedirectURL = redirectURL
		return d
	})
	if err != nil {
		return "", err
	}

	return e.client.AuthCodeURL(r.Context(), state)
}

// Callback completes the authorization-code flow: it binds the query
// state to the session state, exchanges the code, fetches userinfo, runs
// the optional user handler, and persists the authenticated session in a
// single merge. Returns the post-login redirect target.
func (e *Engine) Callback(w http.ResponseWriter, r *http.Request, code, state string) (string, error) {
	sess, err := e.sessions.Init(w, r)
	if err != nil {
		return "", err
	}

	stored := sess.Data.State
	if state == "" || stored == "" || state != stored {
		return "", fmt.Errorf("%w: state mismatch", ErrAuthorizationFlow)
	}

	redirect := sess.Data.RedirectURL
	if redirect == "" {
		redirect = "/"
	}

	ctx := r.Context()

	// Consume the transient CSRF fields before the exchange so a replayed
	// callback cannot reuse them.
	err = e.sessions.Update(ctx, w, sess, func(d session.Data) session.Data {
		d.State = ""
		d.RedirectURL = ""
		return d
	})
	if err != nil {
		return "", err
	}

	set, err := e.client.Exchange(ctx, code)
	if err != nil {
		return "", err
	}

	if set.IDToken != "" && e.verifier != nil {
		if err := e.verifier.Verify(ctx, set.IDToken); err != nil {
			return "", fmt.Errorf("%w: id token rejected: %v", ErrTokenExchange, err)
		}
	}

	claims, err := e.client.UserInfo(ctx, set.AccessToken)
	if err != nil {
		return "", err
	}

	user := claims
	if e.users != nil {
		if err := e.users.CreateOrUpdateUser(ctx, claims); err != nil {
			return "", err
		}
		if user, err = e.users.MapUserToLocal(ctx, claims); err != nil {
			return "", err
		}
	}

	err = e.sessions.Update(ctx, w, sess, func(d session.Data) session.Data {
		d.User = user
		d.Auth = session.Auth{
			IsAuthenticated: true,
			AccessToken:     set.AccessToken,
			IDToken:         set.IDToken,
			RefreshToken:    set.RefreshToken,
			ExpiresAt:       set.ExpiresAt,
			UserInfo:        claims,
		}
		return d
	})
	if err != nil {
		return "", err
	}

	logger.Info("login completed", map[string]any{
		"session": sess.ID[:min(8, len(sess.ID))],
	})

	return redirect, nil
}

// Logout revokes the session's tokens (best effort), clears the session,
// and returns the provider end-session URL for the caller to redirect to.
// Revocation failures never fail the logout.
func (e *Engine) Logout(w http.ResponseWriter, r *http.Request) (string, error) {
	ctx := r.Context()

	sess, err := e.sessions.Read(r)
	if err != nil {
		return "", err
	}

	if sess != nil {
		a := sess.Data.Auth
		for _, token := range []string{a.AccessToken, a.RefreshToken} {
			if token == "" {
				continue
			}
			if err := e.client.Revoke(ctx, token); err != nil {
				logger.Warn("token revocation failed", map[string]any{
					"error": err.Error(),
				})
			}
		}

		err = e.sessions.Update(ctx, w, sess, func(session.Data) session.Data {
			return session.Data{Auth: session.Auth{IsAuthenticated: false}}
		})
		if err != nil {
			return "", err
		}
	}

	return e.client.EndSessionURL(ctx, e.cfg.LogoutRedirectURL)
}

// User returns the mapped user for an authenticated session, or false.
func (e *Engine) User(r *http.Request) (map[string]any, bool, error) {
	sess, err := e.sessions.Read(r)
	if err != nil {
		return nil, false, err
	}
	if sess == nil || !sess.Data.Auth.IsAuthenticated {
		return nil, false, nil
	}

	user := sess.Data.User
	if user == nil {
		user = sess.Data.Auth.UserInfo
	}
	return user, true, nil
}

func (e *Engine) markUnauthenticated(ctx context.Context, w http.ResponseWriter, sess *session.Session) error {
	return e.sessions.Update(ctx, w, sess, func(d session.Data) session.Data {
		d.Auth = session.Auth{IsAuthenticated: false}
		return d
	})
}

// applyTokenSet merges a refresh result into session data, leaving user
// state untouched.
func applyTokenSet(set *TokenSet) func(session.Data) session.Data {
	return func(d session.Data) session.Data {
		d.Auth.IsAuthenticated = true
		d.Auth.AccessToken = set.AccessToken
		d.Auth.RefreshToken = set.RefreshToken
		d.Auth.ExpiresAt = set.ExpiresAt
		if set.IDToken != "" {
			d.Auth.IDToken = set.IDToken
		}
		return d
	}
}

// scheduleBackgroundRefresh spawns a detached refresh for the session.
// The goroutine re-reads the session before persisting so it cannot
// clobber a refresh that happened through the blocking path, and it
// silently drops its result if the session went unauthenticated meanwhile.
func (e *Engine) scheduleBackgroundRefresh(id string) {
	go func() {
		e.refreshGroup.Do(id, func() (any, error) {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()

			store := e.sessions.Store()

			d, ok, err := store.Get(ctx, id)
			if err != nil || !ok {
				return nil, nil
			}
			if !d.Auth.IsAuthenticated || d.Auth.RefreshToken == "" {
				return nil, nil
			}

			set, err := e.client.Refresh(ctx, d.Auth.RefreshToken)
			if err != nil {
				// Best effort only; the blocking path handles real expiry.
				logger.Warn("background token refresh failed", map[string]any{
					"error": err.Error(),
				})
				return nil, nil
			}

			current, ok, err := store.Get(ctx, id)
			if err != nil || !ok || !current.Auth.IsAuthenticated {
				return nil, nil
			}

			next := applyTokenSet(set)(current)
			if err := store.Set(ctx, id, next, e.sessions.TTL()); err != nil {
				logger.Warn("background refresh persist failed", map[string]any{
					"error": err.Error(),
				})
			}
			return nil, nil
		})
	}()
}
