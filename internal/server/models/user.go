// Package models defines the server-side persistence types.
package models

import "time"

// User is an identity account. PasswordHash is an argon2id PHC string and
// is empty for accounts created through a federated provider only.
type User struct {
	ID                 string
	Email              string
	PasswordHash       string
	Confirmed          bool
	ConfirmationToken  string
	ConfirmationSentAt time.Time
	CreatedAt          time.Time
}
