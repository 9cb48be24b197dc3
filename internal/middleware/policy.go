package middleware

import (
	"path"
	"strings"
)

// wildcardMarker ends a route entry that matches any non-empty remainder
// under its prefix.
const wildcardMarker = "*"

// Policy decides which request paths are exempt from the authentication
// check. It is immutable after construction and safe for concurrent use.
type Policy struct {
	routes     []string
	extensions map[string]struct{}
}

// NewPolicy builds a policy from configured route entries and file
// extensions. Extensions are normalized to lower case with a leading dot,
// so "CSS", ".css", and "css" all configure the same whitelist entry.
func NewPolicy(unprotectedRoutes, whitelistFileTypes []string) *Policy {
	extensions := make(map[string]struct{}, len(whitelistFileTypes))
	for _, ext := range whitelistFileTypes {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		extensions[ext] = struct{}{}
	}

	return &Policy{
		routes:     unprotectedRoutes,
		extensions: extensions,
	}
}

// IsUnprotected reports whether the path is exempt from authentication.
// The extension whitelist is checked first: static assets are the common
// case and the set lookup is cheaper than the route scan.
func (p *Policy) IsUnprotected(requestPath string) bool {
	if ext := strings.ToLower(path.Ext(requestPath)); ext != "" {
		if _, ok := p.extensions[ext]; ok {
			return true
		}
	}

	for _, route := range p.routes {
		if strings.HasSuffix(route, wildcardMarker) {
			prefix := strings.TrimSuffix(route, wildcardMarker)
			// A wildcard matches only when something non-empty follows
			// the prefix: /api/public/* matches /api/public/x but not
			// /api/public or /api/public/.
			if strings.HasPrefix(requestPath, prefix) && len(requestPath) > len(prefix) {
				return true
			}
			continue
		}

		if normalizePath(requestPath) == normalizePath(route) {
			return true
		}
	}

	return false
}

func normalizePath(p string) string {
	if p == "/" {
		return p
	}
	return strings.TrimSuffix(p, "/")
}
