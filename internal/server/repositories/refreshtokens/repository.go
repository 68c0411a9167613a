// Package refreshtokens declares the server-side repository contract for
// rotated refresh tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/mvailland/latchkey/internal/server/models"
)

// Repository defines operations for issuing, retrieving, and revoking
// refresh tokens. Tokens belong to a rotation family; revoking a family
// invalidates every token ever issued in it.
type Repository interface {
	// Create stores a new refresh token in the given family with an expiry
	// of now+validity.
	Create(ctx context.Context, userID, token, family string, validity time.Duration) error

	// Find looks up a refresh token by its opaque token string and returns
	// its metadata, or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Revoke marks a single token revoked.
	Revoke(ctx context.Context, token string) error

	// RevokeFamily marks every token of a family revoked.
	RevokeFamily(ctx context.Context, family string) error

	// RevokeAllForUser marks every token belonging to a user revoked.
	RevokeAllForUser(ctx context.Context, userID string) error
}
