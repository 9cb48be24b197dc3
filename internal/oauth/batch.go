package oauth

import (
	"context"
	"sync"
	"time"

	"bff-auth/internal/logger"
	"bff-auth/internal/session"
)

// RefreshExpiring refreshes every stored session whose access token is
// within the safety margin of expiry (or already past it). Sessions are
// processed concurrently and in isolation: one failure marks that session
// unauthenticated but never aborts the others.
func (e *Engine) RefreshExpiring(ctx context.Context) (BatchResult, error) {
	records, err := e.sessions.Store().List(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	now := time.Now()
	eligible := records[:0]
	for _, rec := range records {
		a := rec.Data.Auth
		if a.IsAuthenticated && a.RefreshToken != "" && a.ExpiresAt != 0 && a.NearExpiry(now, e.cfg.Margin) {
			eligible = append(eligible, rec)
		}
	}

	result := BatchResult{Total: len(eligible)}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, rec := range eligible {
		wg.Add(1)
		go func(rec session.Record) {
			defer wg.Done()

			err := e.refreshStored(ctx, rec)

			mu.Lock()
			if err != nil {
				result.Failed++
			} else {
				result.Refreshed++
			}
			mu.Unlock()
		}(rec)
	}
	wg.Wait()

	logger.Info("bulk token refresh finished", map[string]any{
		"refreshed": result.Refreshed,
		"failed":    result.Failed,
		"total":     result.Total,
	})

	return result, nil
}

// refreshStored refreshes one stored session outside a request. A
// provider rejection demotes the session to unauthenticated.
func (e *Engine) refreshStored(ctx context.Context, rec session.Record) error {
	store := e.sessions.Store()
	ttl := e.sessions.TTL()

	set, err := e.client.Refresh(ctx, rec.Data.Auth.RefreshToken)
	if err != nil {
		logger.Warn("bulk refresh failed for session", map[string]any{
			"error": err.Error(),
		})

		demoted := rec.Data
		demoted.Auth = session.Auth{IsAuthenticated: false}
		if setErr := store.Set(ctx, rec.ID, demoted, ttl); setErr != nil {
			logger.Error("failed to persist demoted session", map[string]any{
				"error": setErr.Error(),
			})
		}
		return err
	}

	return store.Set(ctx, rec.ID, applyTokenSet(set)(rec.Data), ttl)
}
