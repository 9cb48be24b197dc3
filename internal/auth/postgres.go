package auth

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"bff-auth/internal/db"
)

// PostgresUserHandler is the canonical UserHandler: it links provider
// identities to local user rows, creating users on first login and
// linking additional providers to an existing user by email.
type PostgresUserHandler struct {
	issuer string
	db     *db.DB
}

func NewPostgresUserHandler(issuer string, db *db.DB) *PostgresUserHandler {
	return &PostgresUserHandler{issuer: issuer, db: db}
}

func (h *PostgresUserHandler) CreateOrUpdateUser(ctx context.Context, claims map[string]any) error {
	identity := IdentityFromClaims(h.issuer, claims)
	if identity.ProviderUserID == "" {
		return errors.New("auth: claims missing sub")
	}

	_, err := h.resolve(ctx, identity)
	return err
}

func (h *PostgresUserHandler) MapUserToLocal(ctx context.Context, claims map[string]any) (map[string]any, error) {
	identity := IdentityFromClaims(h.issuer, claims)
	if identity.ProviderUserID == "" {
		return nil, errors.New("auth: claims missing sub")
	}

	userID, err := h.resolve(ctx, identity)
	if err != nil {
		return nil, err
	}

	var (
		email         string
		emailVerified bool
		displayName   string
	)
	err = h.db.QueryRowContext(ctx, `
		SELECT email, email_verified, display_name
		FROM users
		WHERE id = $1
	`, userID).Scan(&email, &emailVerified, &displayName)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"id":            userID.String(),
		"email":         email,
		"emailVerified": emailVerified,
		"name":          displayName,
	}, nil
}

// resolve returns the local user for an identity, linking or creating
// rows as needed.
func (h *PostgresUserHandler) resolve(ctx context.Context, identity Identity) (uuid.UUID, error) {

	// 1. Try identity lookup (issuer + provider_user_id)
	var userID uuid.UUID
	err := h.db.QueryRowContext(ctx, `
		SELECT user_id
		FROM identities
		WHERE issuer = $1
		  AND provider_user_id = $2
	`,
		identity.Issuer,
		identity.ProviderUserID,
	).Scan(&userID)

	if err == nil {
		return userID, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, err
	}

	// 2. Try email-based linking (existing user, new provider)
	if identity.Email != "" {
		err = h.db.QueryRowContext(ctx, `
			SELECT id
			FROM users
			WHERE LOWER(email) = LOWER($1)
		`,
			identity.Email,
		).Scan(&userID)

		if err == nil {
			_, err = h.db.ExecContext(ctx, `
				INSERT INTO identities (user_id, issuer, provider_user_id)
				VALUES ($1, $2, $3)
			`,
				userID,
				identity.Issuer,
				identity.ProviderUserID,
			)
			if err != nil {
				return uuid.Nil, err
			}
			return userID, nil
		}

		if !errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, err
		}
	}

	// 3. Create new user
	err = h.db.QueryRowContext(ctx, `
		INSERT INTO users (email, email_verified, display_name)
		VALUES ($1, $2, $3)
		RETURNING id
	`,
		identity.Email,
		identity.EmailVerified,
		identity.Name,
	).Scan(&userID)

	if err != nil {
		return uuid.Nil, err
	}

	// 4. Create identity mapping
	_, err = h.db.ExecContext(ctx, `
		INSERT INTO identities (user_id, issuer, provider_user_id)
		VALUES ($1, $2, $3)
	`,
		userID,
		identity.Issuer,
		identity.ProviderUserID,
	)

	if err != nil {
		return uuid.Nil, err
	}

	return userID, nil
}
