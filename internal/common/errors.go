// Package common defines shared constants and sentinel errors used across
// client and server layers of Latchkey. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Account lifecycle errors.
	ErrEmailNotConfirmed = errors.New("email not confirmed")
	ErrWeakPassword      = errors.New("password does not meet policy")
	ErrThrottled         = errors.New("too many requests")

	// Token lifecycle errors.
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenRevoked = errors.New("token revoked")
)
