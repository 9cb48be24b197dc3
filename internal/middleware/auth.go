package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"bff-auth/internal/logger"
	"bff-auth/internal/oauth"
)

// AuthMiddleware guards the request pipeline with the session-backed
// authentication decision. Unprotected routes pass through untouched.
type AuthMiddleware struct {
	Engine    *oauth.Engine
	Policy    *Policy
	LoginPath string
}

func NewAuthMiddleware(engine *oauth.Engine, policy *Policy, loginPath string) *AuthMiddleware {
	if loginPath == "" {
		loginPath = "/auth/login"
	}
	return &AuthMiddleware{
		Engine:    engine,
		Policy:    policy,
		LoginPath: loginPath,
	}
}

func (a *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if a.Policy != nil && a.Policy.IsUnprotected(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		ok, err := a.Engine.IsAuthenticated(w, r)
		if err != nil {
			logger.Error("authentication check failed", map[string]any{
				"error": err.Error(),
				"path":  r.URL.Path,
			})
			http.Error(w, "session handling failed", http.StatusInternalServerError)
			return
		}

		if !ok {
			if isAPIRequest(r) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			target := a.LoginPath + "?redirect=" + url.QueryEscape(r.URL.RequestURI())
			http.Redirect(w, r, target, http.StatusFound)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// isAPIRequest distinguishes fetch/XHR callers (who want a structured
// 401) from browser navigations (who want the login redirect).
func isAPIRequest(r *http.Request) bool {
	if r.Header.Get("X-Requested-With") == "XMLHttpRequest" {
		return true
	}
	accept := r.Header.Get("Accept")
	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
