package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"bff-auth/internal/logger"
)

const (
	defaultUserInfoAttempts = 3
	defaultBackoffBase      = 500 * time.Millisecond
	defaultRetryAfter       = 5 * time.Second
)

// ClientConfig carries the relying-party credentials and flow settings.
type ClientConfig struct {
	ClientID     string
	ClientSecret string
	CallbackURL  string
	Scope        string
	Audience     string
}

// Client talks to the identity provider's token, userinfo, and revocation
// endpoints. Endpoint locations come from the discovery cache on every
// call, so a provider that rotates endpoints is picked up within the
// cache TTL.
type Client struct {
	cfg        ClientConfig
	discovery  *Discovery
	httpClient *http.Client

	// Retry tuning for userinfo; overridable in tests.
	userInfoAttempts  int
	backoffBase       time.Duration
	retryAfterDefault time.Duration
}

func NewClient(cfg ClientConfig, discovery *Discovery, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{
		cfg:               cfg,
		discovery:         discovery,
		httpClient:        httpClient,
		userInfoAttempts:  defaultUserInfoAttempts,
		backoffBase:       defaultBackoffBase,
		retryAfterDefault: defaultRetryAfter,
	}
}

// oauth2Config assembles the x/oauth2 configuration against the cached
// discovery endpoints.
func (c *Client) oauth2Config(ctx context.Context) (*oauth2.Config, error) {
	meta, err := c.discovery.Configuration(ctx)
	if err != nil {
		return nil, err
	}

	return &oauth2.Config{
		ClientID:     c.cfg.ClientID,
		ClientSecret: c.cfg.ClientSecret,
		RedirectURL:  c.cfg.CallbackURL,
		Endpoint: oauth2.Endpoint{
			AuthURL:  meta.AuthorizationEndpoint,
			TokenURL: meta.TokenEndpoint,
		},
		Scopes: strings.Fields(c.cfg.Scope),
	}, nil
}

// boundCtx makes x/oauth2 use our bounded HTTP client for token calls.
func (c *Client) boundCtx(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

// AuthCodeURL builds the authorization URL for the code flow. The state
// is caller-supplied and round-tripped through the session for CSRF
// binding.
func (c *Client) AuthCodeURL(ctx context.Context, state string) (string, error) {
	conf, err := c.oauth2Config(ctx)
	if err != nil {
		return "", err
	}

	var opts []oauth2.AuthCodeOption
	if c.cfg.Audience != "" {
		opts = append(opts, oauth2.SetAuthURLParam("audience", c.cfg.Audience))
	}

	return conf.AuthCodeURL(state, opts...), nil
}

// Exchange trades an authorization code for tokens.
func (c *Client) Exchange(ctx context.Context, code string) (*TokenSet, error) {
	conf, err := c.oauth2Config(ctx)
	if err != nil {
		return nil, err
	}

	tok, err := conf.Exchange(c.boundCtx(ctx), code)
	if err != nil {
		logger.Error("authorization code exchange failed", map[string]any{
			"error": err.Error(),
		})
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	return tokenSetFrom(tok), nil
}

// Refresh trades a refresh token for a new token set. When the provider
// does not return a new refresh token the previous one is carried over.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenSet, error) {
	if refreshToken == "" {
		return nil, ErrNoRefreshToken
	}

	conf, err := c.oauth2Config(ctx)
	if err != nil {
		return nil, err
	}

	src := conf.TokenSource(c.boundCtx(ctx), &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenExchange, err)
	}

	set := tokenSetFrom(tok)
	if set.RefreshToken == "" {
		set.RefreshToken = refreshToken
	}
	return set, nil
}

func tokenSetFrom(tok *oauth2.Token) *TokenSet {
	set := &TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
	}
	if raw, ok := tok.Extra("id_token").(string); ok {
		set.IDToken = raw
	}
	if !tok.Expiry.IsZero() {
		set.ExpiresAt = tok.Expiry.UnixMilli()
	}
	return set
}

// UserInfo fetches the userinfo document with a bounded retry loop:
// transport errors and 5xx back off exponentially, 429 honors Retry-After,
// 401 and any other status fail immediately.
func (c *Client) UserInfo(ctx context.Context, accessToken string) (map[string]any, error) {
	meta, err := c.discovery.Configuration(ctx)
	if err != nil {
		return nil, err
	}

	var lastErr *UserInfoError
	for attempt := 0; attempt < c.userInfoAttempts; attempt++ {
		claims, uiErr := c.fetchUserInfo(ctx, meta.UserinfoEndpoint, accessToken)
		if uiErr == nil {
			return claims, nil
		}
		if !uiErr.retryable() {
			return nil, uiErr
		}

		lastErr = uiErr
		if attempt == c.userInfoAttempts-1 {
			break
		}

		wait := c.backoffBase << attempt
		if uiErr.Status == http.StatusTooManyRequests {
			wait = uiErr.retryAfter
			if wait <= 0 {
				wait = c.retryAfterDefault
			}
		}

		logger.Warn("userinfo request failed, retrying", map[string]any{
			"attempt": attempt + 1,
			"status":  uiErr.Status,
			"wait":    wait.String(),
		})

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("oauth: userinfo retries exhausted: %w", lastErr)
}

func (c *Client) fetchUserInfo(ctx context.Context, endpoint, accessToken string) (map[string]any, *UserInfoError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, &UserInfoError{Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &UserInfoError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		uiErr := &UserInfoError{Status: resp.StatusCode}
		if resp.StatusCode == http.StatusTooManyRequests {
			if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
				uiErr.retryAfter = time.Duration(secs) * time.Second
			}
		}
		return nil, uiErr
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return nil, &UserInfoError{Err: err}
	}

	if sub, _ := claims["sub"].(string); sub == "" {
		return nil, &UserInfoError{Status: resp.StatusCode, Err: errors.New("userinfo response missing sub claim")}
	}

	return claims, nil
}

// Revoke invalidates a token at the provider. Callers on the logout path
// log and swallow failures; logout must not depend on provider health.
func (c *Client) Revoke(ctx context.Context, token string) error {
	meta, err := c.discovery.Configuration(ctx)
	if err != nil {
		return err
	}
	if meta.RevocationEndpoint == "" || token == "" {
		return nil
	}

	form := url.Values{}
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("token", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, meta.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("oauth: revocation failed with status %d", resp.StatusCode)
	}
	return nil
}

// EndSessionURL builds the provider logout URL, appending the configured
// post-logout redirect when present. Falls back to returnTo (or "/") when
// the provider does not advertise an end-session endpoint.
func (c *Client) EndSessionURL(ctx context.Context, returnTo string) (string, error) {
	meta, err := c.discovery.Configuration(ctx)
	if err != nil {
		return "", err
	}

	if meta.EndSessionEndpoint == "" {
		if returnTo != "" {
			return returnTo, nil
		}
		return "/", nil
	}

	endSession, err := url.Parse(meta.EndSessionEndpoint)
	if err != nil {
		return "", err
	}
	if returnTo != "" {
		q := endSession.Query()
		q.Set("post_logout_redirect_uri", returnTo)
		q.Set("client_id", c.cfg.ClientID)
		endSession.RawQuery = q.Encode()
	}

	return endSession.String(), nil
}
