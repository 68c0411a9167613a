// Package users declares the server-side repository contract for identity
// accounts.
package users

import (
	"context"
	"time"

	"github.com/mvailland/latchkey/internal/server/models"
)

// Repository defines persistence operations for accounts.
type Repository interface {
	// Create inserts a new account. A duplicate email yields
	// common.ErrorAlreadyExists.
	Create(ctx context.Context, user *models.User) (*models.User, error)

	// GetByEmail returns the account with the given email, or
	// common.ErrorNotFound.
	GetByEmail(ctx context.Context, email string) (*models.User, error)

	// GetByID returns the account with the given id, or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// ConfirmByToken marks the account holding the confirmation token as
	// confirmed and clears the token. Unknown tokens yield
	// common.ErrorNotFound.
	ConfirmByToken(ctx context.Context, token string) (*models.User, error)

	// UpdateConfirmationToken replaces the account's pending confirmation
	// token and records when it was sent.
	UpdateConfirmationToken(ctx context.Context, userID, token string, sentAt time.Time) error

	// UpsertFederated creates a confirmed account for email if none exists,
	// or returns the existing one marked confirmed. Federated providers
	// verify email ownership themselves.
	UpsertFederated(ctx context.Context, email string) (*models.User, error)
}
