package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"bff-auth/internal/logger"
)

// discoveryTTL is how long a fetched discovery document is served from
// memory before being refetched.
const discoveryTTL = time.Hour

// Discovery caches the provider's OpenID configuration document. Reads
// are lock-cheap and concurrent refetches are deduplicated, so it can be
// shared process-wide.
type Discovery struct {
	issuer     string
	httpClient *http.Client
	ttl        time.Duration

	mu        sync.RWMutex
	metadata  *ProviderMetadata
	fetchedAt time.Time

	group singleflight.Group
}

func NewDiscovery(issuer string, httpClient *http.Client) *Discovery {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Discovery{
		issuer:     issuer,
		httpClient: httpClient,
		ttl:        discoveryTTL,
	}
}

// Configuration returns the provider metadata, fetching the well-known
// document on first use or after the cache TTL has passed.
func (d *Discovery) Configuration(ctx context.Context) (*ProviderMetadata, error) {
	d.mu.RLock()
	if d.metadata != nil && time.Since(d.fetchedAt) < d.ttl {
		meta := d.metadata
		d.mu.RUnlock()
		return meta, nil
	}
	d.mu.RUnlock()

	result, err, _ := d.group.Do(d.issuer, func() (any, error) {
		// Double-check after winning the flight; a concurrent caller may
		// have refreshed the cache already.
		d.mu.RLock()
		if d.metadata != nil && time.Since(d.fetchedAt) < d.ttl {
			meta := d.metadata
			d.mu.RUnlock()
			return meta, nil
		}
		d.mu.RUnlock()

		return d.fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	return result.(*ProviderMetadata), nil
}

func (d *Discovery) fetch(ctx context.Context) (*ProviderMetadata, error) {
	wellKnown := strings.TrimSuffix(d.issuer, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, wellKnown, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrDiscovery, resp.StatusCode)
	}

	var meta ProviderMetadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDiscovery, err)
	}

	d.mu.Lock()
	d.metadata = &meta
	d.fetchedAt = time.Now()
	d.mu.Unlock()

	logger.Info("fetched openid configuration", map[string]any{
		"issuer":         d.issuer,
		"token_endpoint": meta.TokenEndpoint,
	})

	return &meta, nil
}
