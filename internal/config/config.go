package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Storage backend selectors for session persistence.
const (
	StorageMemory = "memory"
	StorageRedis  = "redis"
	StorageCookie = "cookie"
)

type Config struct {
	AppPort string
	Env     string

	Issuer       string
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scope        string
	Audience     string

	SessionSecrets []string
	SessionStorage string
	SessionTTL     time.Duration

	UnprotectedRoutes  []string
	WhitelistFileTypes []string

	LogoutRedirectURL  string
	TokenRefreshAPIKey string
	RefreshMargin      time.Duration

	RedisAddr     string
	RedisPassword string

	DatabaseDSN string
}

func Load() Config {

	cfg := Config{

		AppPort: getenv("APP_PORT", "8080"),
		Env:     os.Getenv("ENV"),

		Issuer:       os.Getenv("OIDC_ISSUER"),
		ClientID:     os.Getenv("OIDC_CLIENT_ID"),
		ClientSecret: os.Getenv("OIDC_CLIENT_SECRET"),
		CallbackURL:  os.Getenv("OIDC_CALLBACK_URL"),
		Scope:        getenv("OIDC_SCOPE", "openid profile email"),
		Audience:     os.Getenv("OIDC_AUDIENCE"),

		SessionSecrets: splitList(os.Getenv("SESSION_SECRETS")),
		SessionStorage: getenv("SESSION_STORAGE", StorageMemory),
		SessionTTL:     getduration("SESSION_TTL", 24*time.Hour),

		UnprotectedRoutes:  splitList(os.Getenv("UNPROTECTED_ROUTES")),
		WhitelistFileTypes: splitList(os.Getenv("WHITELIST_FILE_TYPES")),

		LogoutRedirectURL:  os.Getenv("LOGOUT_REDIRECT_URL"),
		TokenRefreshAPIKey: os.Getenv("TOKEN_REFRESH_API_KEY"),
		RefreshMargin:      getduration("REFRESH_SAFETY_MARGIN", 5*time.Minute),

		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),

		DatabaseDSN: os.Getenv("DATABASE_DSN"),
	}

	return cfg
}

// Validate reports every missing or inconsistent mandatory setting at once
// so an operator can fix the environment in a single pass. A non-nil error
// is fatal at startup, before any request is served.
func (c Config) Validate() error {
	var missing []string

	if c.Issuer == "" {
		missing = append(missing, "OIDC_ISSUER")
	}
	if c.ClientID == "" {
		missing = append(missing, "OIDC_CLIENT_ID")
	}
	if c.ClientSecret == "" {
		missing = append(missing, "OIDC_CLIENT_SECRET")
	}
	if c.CallbackURL == "" {
		missing = append(missing, "OIDC_CALLBACK_URL")
	}
	if len(c.SessionSecrets) == 0 {
		missing = append(missing, "SESSION_SECRETS")
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}

	switch c.SessionStorage {
	case StorageMemory, StorageCookie:
	case StorageRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("config: SESSION_STORAGE=redis requires REDIS_ADDR")
		}
	default:
		return fmt.Errorf("config: unknown SESSION_STORAGE %q", c.SessionStorage)
	}

	return nil
}

// Production reports whether hardened cookie attributes should be used.
func (c Config) Production() bool {
	return strings.EqualFold(c.Env, "production")
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getduration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
