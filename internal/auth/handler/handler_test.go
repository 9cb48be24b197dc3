package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bff-auth/internal/oauth"
	"bff-auth/internal/session"
)

const (
	testSecret = "handler-test-secret"
	testAPIKey = "batch-api-key"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// newProviderStub serves just enough of an identity provider for the
// route handlers: discovery plus static token/userinfo/logout endpoints.
func newProviderStub(t *testing.T) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"issuer":                 srv.URL,
			"authorization_endpoint": srv.URL + "/authorize",
			"token_endpoint":         srv.URL + "/token",
			"userinfo_endpoint":      srv.URL + "/userinfo",
			"end_session_endpoint":   srv.URL + "/logout",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "access-fresh",
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-fresh",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"sub": "user-1", "name": "Test User"})
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {})

	srv = httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestRouter(t *testing.T) (*gin.Engine, *session.MemoryStore) {
	t.Helper()

	idp := newProviderStub(t)

	store := session.NewMemoryStore()
	t.Cleanup(store.Close)

	sessions := session.NewManager(store, []string{testSecret}, time.Hour, session.CookieOptions{})
	discovery := oauth.NewDiscovery(idp.URL, idp.Client())
	client := oauth.NewClient(oauth.ClientConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		CallbackURL:  "http://app.local/auth/callback",
		Scope:        "openid",
	}, discovery, idp.Client())
	engine := oauth.NewEngine(sessions, client, nil, nil, oauth.EngineConfig{})

	router := gin.New()
	NewHandler(engine, testAPIKey).RegisterRoutes(router)
	return router, store
}

func sessionCookie(t *testing.T, store session.Store, data session.Data) *http.Cookie {
	t.Helper()

	id, err := session.GenerateID()
	require.NoError(t, err)
	require.NoError(t, store.Set(context.Background(), id, data, time.Hour))

	return &http.Cookie{Name: session.CookieName, Value: session.Sign(id, testSecret)}
}

func TestLogin_RedirectsToProvider(t *testing.T) {
	router, store := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/login?redirect=/dashboard", nil))

	require.Equal(t, http.StatusFound, w.Code)

	loc, err := url.Parse(w.Header().Get("Location"))
	require.NoError(t, err)
	assert.Equal(t, "/authorize", loc.Path)

	state := loc.Query().Get("state")
	assert.NotEmpty(t, state)

	// The state and redirect were bound to the new session.
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	id, err := session.Unsign(cookies[0].Value, []string{testSecret})
	require.NoError(t, err)

	d, ok, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, state, d.State)
	assert.Equal(t, "/dashboard", d.RedirectURL)
}

func TestCallback_CompletesLogin(t *testing.T) {
	router, store := newTestRouter(t)

	cookie := sessionCookie(t, store, session.Data{State: "state-xyz", RedirectURL: "/dashboard"})

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=state-xyz", nil)
	r.AddCookie(cookie)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/dashboard", w.Header().Get("Location"))
}

func TestCallback_ProviderErrorRestartsLogin(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback?error=access_denied", nil))

	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/auth/login", w.Header().Get("Location"))
}

func TestCallback_MissingCode(t *testing.T) {
	router, _ := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/callback", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCallback_StateMismatch(t *testing.T) {
	router, store := newTestRouter(t)

	cookie := sessionCookie(t, store, session.Data{State: "state-good"})

	r := httptest.NewRequest(http.MethodGet, "/auth/callback?code=auth-code&state=state-evil", nil)
	r.AddCookie(cookie)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"authorization failed"}`, w.Body.String())
}

func TestAuthenticated_ReportsSessionState(t *testing.T) {
	router, store := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/authenticated", nil))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":false}`, w.Body.String())

	cookie := sessionCookie(t, store, session.Data{Auth: session.Auth{
		IsAuthenticated: true,
		AccessToken:     "tok",
		ExpiresAt:       time.Now().Add(time.Hour).UnixMilli(),
	}})

	r := httptest.NewRequest(http.MethodGet, "/auth/authenticated", nil)
	r.AddCookie(cookie)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"authenticated":true}`, w.Body.String())
}

func TestUser_RequiresAuthentication(t *testing.T) {
	router, store := newTestRouter(t)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/auth/user", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	cookie := sessionCookie(t, store, session.Data{
		Auth: session.Auth{
			IsAuthenticated: true,
			AccessToken:     "tok",
			ExpiresAt:       time.Now().Add(time.Hour).UnixMilli(),
		},
		User: map[string]any{"id": "u-1", "name": "Test User"},
	})

	r := httptest.NewRequest(http.MethodGet, "/auth/user", nil)
	r.AddCookie(cookie)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"id":"u-1","name":"Test User"}`, w.Body.String())
}

func TestLogout_RedirectsToEndSession(t *testing.T) {
	router, store := newTestRouter(t)

	cookie := sessionCookie(t, store, session.Data{Auth: session.Auth{
		IsAuthenticated: true,
		AccessToken:     "tok",
		ExpiresAt:       time.Now().Add(time.Hour).UnixMilli(),
	}})

	r := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	r.AddCookie(cookie)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusFound, w.Code)
	assert.Contains(t, w.Header().Get("Location"), "/logout")
}

func TestRefreshTokens_Authorization(t *testing.T) {
	router, _ := newTestRouter(t)

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"wrong key", "Bearer wrong-key", http.StatusUnauthorized},
		{"malformed", testAPIKey, http.StatusUnauthorized},
		{"valid key", "Bearer " + testAPIKey, http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodPost, "/auth/refresh-tokens", nil)
			if tc.header != "" {
				r.Header.Set("Authorization", tc.header)
			}

			w := httptest.NewRecorder()
			router.ServeHTTP(w, r)
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestRefreshTokens_ReportsCounts(t *testing.T) {
	router, store := newTestRouter(t)

	// One session near expiry with a refresh token, one without.
	require.NoError(t, store.Set(context.Background(), "near", session.Data{Auth: session.Auth{
		IsAuthenticated: true,
		AccessToken:     "tok",
		RefreshToken:    "rt",
		ExpiresAt:       time.Now().Add(time.Minute).UnixMilli(),
	}}, time.Hour))
	require.NoError(t, store.Set(context.Background(), "fresh", session.Data{Auth: session.Auth{
		IsAuthenticated: true,
		AccessToken:     "tok",
		RefreshToken:    "rt",
		ExpiresAt:       time.Now().Add(2 * time.Hour).UnixMilli(),
	}}, time.Hour))

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh-tokens", nil)
	r.Header.Set("Authorization", "Bearer "+testAPIKey)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"success":true,"refreshed":1,"failed":0,"total":1}`, w.Body.String())
}

func TestRefreshTokens_DisabledWithoutKey(t *testing.T) {
	idp := newProviderStub(t)

	store := session.NewMemoryStore()
	t.Cleanup(store.Close)

	sessions := session.NewManager(store, []string{testSecret}, time.Hour, session.CookieOptions{})
	discovery := oauth.NewDiscovery(idp.URL, idp.Client())
	client := oauth.NewClient(oauth.ClientConfig{ClientID: "test-client"}, discovery, idp.Client())
	engine := oauth.NewEngine(sessions, client, nil, nil, oauth.EngineConfig{})

	router := gin.New()
	NewHandler(engine, "").RegisterRoutes(router)

	r := httptest.NewRequest(http.MethodPost, "/auth/refresh-tokens", nil)
	r.Header.Set("Authorization", "Bearer anything")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, r)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
