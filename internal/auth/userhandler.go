package auth

import "context"

// UserHandler maps provider claims onto an application-local user
// representation. It is optional: without one, the raw claims stand in
// for the user.
type UserHandler interface {
	// MapUserToLocal returns the application's user representation for
	// the given claims.
	MapUserToLocal(ctx context.Context, claims map[string]any) (map[string]any, error)

	// CreateOrUpdateUser persists (or refreshes) the local user backing
	// the claims. Called once per completed login.
	CreateOrUpdateUser(ctx context.Context, claims map[string]any) error
}
