package oauth

// TokenSet is the provider's response to a code or refresh exchange.
// It is never persisted outside a session.
type TokenSet struct {
	AccessToken  string
	IDToken      string
	RefreshToken string
	ExpiresAt    int64 // epoch milliseconds
}

// ProviderMetadata is the subset of the OpenID Connect discovery document
// this service needs.
type ProviderMetadata struct {
	Issuer                string `json:"issuer"`
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	UserinfoEndpoint      string `json:"userinfo_endpoint"`
	EndSessionEndpoint    string `json:"end_session_endpoint,omitempty"`
	RevocationEndpoint    string `json:"revocation_endpoint,omitempty"`
}

// BatchResult aggregates the outcome of a bulk refresh run.
type BatchResult struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
	Total     int `json:"total"`
}
