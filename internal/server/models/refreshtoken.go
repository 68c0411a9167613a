package models

import "time"

// RefreshToken is one link of a rotation family. Refreshing revokes the
// presented token and inserts a successor with the same Family; presenting
// an already-revoked token burns the whole family.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Family    string
	Revoked   bool
	Expires   time.Time
	CreatedAt time.Time
}
