package handler

import (
	"bff-auth/internal/utils"
)

// generateState returns the CSRF token bound to one login round trip.
// It lives in the session (not a separate cookie) and is deleted by the
// callback before the code is exchanged.
func generateState() string {
	return utils.RandomString(32)
}
