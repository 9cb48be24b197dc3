package auth

// Identity represents a normalized external authentication identity
// derived from provider claims. It contains facts only, no decisions.
type Identity struct {
	Issuer         string // provider issuer URL
	ProviderUserID string // provider-scoped unique user identifier (sub)
	Email          string // email returned by the provider
	EmailVerified  bool   // whether the provider asserts email ownership
	Name           string // display name, when present
}

// IdentityFromClaims extracts the well-known fields out of a raw claims
// map. Missing claims stay zero-valued; the caller decides what is
// mandatory.
func IdentityFromClaims(issuer string, claims map[string]any) Identity {
	id := Identity{Issuer: issuer}

	if sub, ok := claims["sub"].(string); ok {
		id.ProviderUserID = sub
	}
	if email, ok := claims["email"].(string); ok {
		id.Email = email
	}
	if verified, ok := claims["email_verified"].(bool); ok {
		id.EmailVerified = verified
	}
	if name, ok := claims["name"].(string); ok {
		id.Name = name
	}

	return id
}
