package oauth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeIdP is an in-process identity provider serving discovery, token,
// userinfo, and revocation endpoints. Handlers can be overridden per test;
// overrides return true when they fully handled the request.
type fakeIdP struct {
	srv *httptest.Server

	mu     sync.Mutex
	counts map[string]int

	onToken    func(w http.ResponseWriter, r *http.Request) bool
	onUserinfo func(w http.ResponseWriter, r *http.Request) bool
	onRevoke   func(w http.ResponseWriter, r *http.Request) bool
}

func newFakeIdP(t *testing.T) *fakeIdP {
	t.Helper()

	f := &fakeIdP{counts: make(map[string]int)}

	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		f.count("discovery")
		writeJSON(w, map[string]any{
			"issuer":                 f.srv.URL,
			"authorization_endpoint": f.srv.URL + "/authorize",
			"token_endpoint":         f.srv.URL + "/token",
			"userinfo_endpoint":      f.srv.URL + "/userinfo",
			"end_session_endpoint":   f.srv.URL + "/logout",
			"revocation_endpoint":    f.srv.URL + "/revoke",
		})
	})
	mux.HandleFunc("/token", func(w http.ResponseWriter, r *http.Request) {
		n := f.count("token")
		if h := f.tokenOverride(); h != nil && h(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"access_token":  fmt.Sprintf("access-%d", n),
			"token_type":    "Bearer",
			"expires_in":    3600,
			"refresh_token": "refresh-new",
			"id_token":      "raw-id-token",
		})
	})
	mux.HandleFunc("/userinfo", func(w http.ResponseWriter, r *http.Request) {
		f.count("userinfo")
		if h := f.userinfoOverride(); h != nil && h(w, r) {
			return
		}
		writeJSON(w, map[string]any{
			"sub":            "user-1",
			"email":          "user@example.com",
			"email_verified": true,
			"name":           "Test User",
		})
	})
	mux.HandleFunc("/revoke", func(w http.ResponseWriter, r *http.Request) {
		f.count("revoke")
		if h := f.revokeOverride(); h != nil && h(w, r) {
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)

	return f
}

func (f *fakeIdP) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[name]++
	return f.counts[name]
}

func (f *fakeIdP) calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counts[name]
}

func (f *fakeIdP) setTokenHandler(h func(w http.ResponseWriter, r *http.Request) bool) {
	f.mu.Lock()
	f.onToken = h
	f.mu.Unlock()
}

func (f *fakeIdP) setUserinfoHandler(h func(w http.ResponseWriter, r *http.Request) bool) {
	f.mu.Lock()
	f.onUserinfo = h
	f.mu.Unlock()
}

func (f *fakeIdP) setRevokeHandler(h func(w http.ResponseWriter, r *http.Request) bool) {
	f.mu.Lock()
	f.onRevoke = h
	f.mu.Unlock()
}

func (f *fakeIdP) tokenOverride() func(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onToken
}

func (f *fakeIdP) userinfoOverride() func(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onUserinfo
}

func (f *fakeIdP) revokeOverride() func(w http.ResponseWriter, r *http.Request) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onRevoke
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func newTestClient(f *fakeIdP) *Client {
	discovery := NewDiscovery(f.srv.URL, f.srv.Client())
	c := NewClient(ClientConfig{
		ClientID:     "test-client",
		ClientSecret: "test-secret",
		CallbackURL:  "http://app.local/auth/callback",
		Scope:        "openid profile email",
	}, discovery, f.srv.Client())

	// Fast retries so the retry-path tests finish quickly.
	c.backoffBase = 5 * time.Millisecond
	c.retryAfterDefault = 10 * time.Millisecond

	return c
}
