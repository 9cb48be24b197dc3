package middleware

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_ExactRoutes(t *testing.T) {
	p := NewPolicy([]string{"/health", "/about/"}, nil)

	assert.True(t, p.IsUnprotected("/health"))
	assert.True(t, p.IsUnprotected("/health/"))
	assert.True(t, p.IsUnprotected("/about"))
	assert.True(t, p.IsUnprotected("/about/"))
	assert.False(t, p.IsUnprotected("/healthcheck"))
	assert.False(t, p.IsUnprotected("/health/live"))
}

func TestPolicy_RootRoute(t *testing.T) {
	p := NewPolicy([]string{"/"}, nil)

	assert.True(t, p.IsUnprotected("/"))
	assert.False(t, p.IsUnprotected("/anything"))
}

func TestPolicy_WildcardRoutes(t *testing.T) {
	p := NewPolicy([]string{"/api/public/*"}, nil)

	assert.True(t, p.IsUnprotected("/api/public/x"))
	assert.True(t, p.IsUnprotected("/api/public/deeply/nested"))

	// The wildcard requires a non-empty remainder.
	assert.False(t, p.IsUnprotected("/api/public"))
	assert.False(t, p.IsUnprotected("/api/public/"))
	assert.False(t, p.IsUnprotected("/api/private/x"))
}

func TestPolicy_ExtensionWhitelist(t *testing.T) {
	p := NewPolicy(nil, []string{"css", ".js", " PNG "})

	assert.True(t, p.IsUnprotected("/assets/app.css"))
	assert.True(t, p.IsUnprotected("/bundle.js"))
	assert.True(t, p.IsUnprotected("/logo.PNG"))
	assert.False(t, p.IsUnprotected("/api/data.json"))
	assert.False(t, p.IsUnprotected("/no-extension"))
}

func TestPolicy_ExtensionBeatsRouteScan(t *testing.T) {
	// A whitelisted asset under a protected prefix is still exempt.
	p := NewPolicy([]string{"/login"}, []string{"ico"})

	assert.True(t, p.IsUnprotected("/protected/favicon.ico"))
	assert.False(t, p.IsUnprotected("/protected/page"))
}

func TestPolicy_Empty(t *testing.T) {
	p := NewPolicy(nil, nil)

	assert.False(t, p.IsUnprotected("/"))
	assert.False(t, p.IsUnprotected("/anything"))
}
