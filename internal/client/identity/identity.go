// Package identity defines the client-side contract with the identity
// service: session types, the sentinel errors the orchestrator branches on,
// and an HTTP implementation of the wire protocol.
package identity

import (
	"context"
	"errors"
	"time"
)

// Sentinel errors the orchestrator matches with errors.Is. Transport
// implementations must map every wire-level failure onto one of these (or
// wrap one); no raw transport error reaches the orchestrator's callers.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUnconfirmedEmail   = errors.New("email not confirmed")
	ErrEmailInUse         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password does not meet policy")
	ErrTokenExpired       = errors.New("refresh token expired")
	ErrTokenRevoked       = errors.New("refresh token revoked")
	ErrFederatedAuth      = errors.New("federated sign-in failed")
	ErrThrottled          = errors.New("too many requests")
	ErrUnavailable        = errors.New("identity service unavailable")
)

// User is the subset of account data the client cares about.
type User struct {
	ID        string
	Email     string
	Confirmed bool
}

// Session is the result of any successful authentication path. RefreshToken
// is opaque to the client; it is either handed to the credential vault or
// discarded, never inspected.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         User
}

// FederatedAssertion carries the proof obtained from a third-party identity
// provider (an OIDC id_token) to exchange for a first-party session.
type FederatedAssertion struct {
	Provider string
	IDToken  string
	Nonce    string
}

// Client is the identity collaborator consumed by the session orchestrator.
// All calls honor ctx cancellation and return sentinel errors from this
// package.
type Client interface {
	SignIn(ctx context.Context, email, password string) (*Session, error)
	SignUp(ctx context.Context, email, password string) error
	SignInWithFederated(ctx context.Context, assertion FederatedAssertion) (*Session, error)

	// RestoreSession exchanges a refresh token for a fresh session. The
	// token is rotated server-side: the returned Session carries a new
	// refresh token and the presented one is dead either way.
	RestoreSession(ctx context.Context, refreshToken string) (*Session, error)

	ResetPassword(ctx context.Context, email string) error
	ResendConfirmation(ctx context.Context, email string) error
	SignOut(ctx context.Context, accessToken string) error

	Close() error
}
