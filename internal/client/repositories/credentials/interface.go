// Package credentials stores the quick-unlock vault rows: the sealed
// credential payload, the unlock-factor verifier, and the opt-in flag.
// Values are opaque bytes; sealing and key handling live in the gateway.
package credentials

import (
	"context"
)

// Repository is a small key-value store over the client's local database.
// Get returns (nil, nil) for an absent key.
type Repository interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	Clear(ctx context.Context) error
}
