// Package biometric coordinates the quick-unlock flow: a local
// authentication factor (platform biometric or the terminal passphrase
// factor) gates release of a refresh token sealed into the local vault.
// The package owns no cleartext key material at rest; the sealing key lives
// in an owner-only key file and the payload is AES-GCM encrypted.
package biometric

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/mvailland/latchkey/internal/client/repositories/credentials"
	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/cryptox"
	"github.com/mvailland/latchkey/internal/filex"
	"github.com/mvailland/latchkey/internal/logging"
)

// vault keys owned by the gateway.
const (
	keyCredential = "credential"
	keyNonce      = "credential_nonce"
	keyEnabled    = "enabled"
)

// ErrVaultCorrupt is returned when the stored credential cannot be opened
// with the install's sealing key. The gateway clears the vault before
// returning it, so the next attempt starts from a clean state.
var ErrVaultCorrupt = errors.New("stored credential unreadable")

// StoredCredential is the payload sealed into the vault when the user opts
// in to quick unlock.
type StoredCredential struct {
	Email        string `json:"email"`
	RefreshToken string `json:"refresh_token"`
}

// Prompter is the local authentication factor. Implementations wrap a
// platform biometric API or, in the terminal client, a passphrase check.
type Prompter interface {
	// Kind names the factor for UI copy, e.g. "passphrase" or "faceid".
	Kind() string

	// Available reports whether the factor can be used on this device.
	Available() bool

	// Enroll captures the factor for this install. Called once, on opt-in.
	Enroll(ctx context.Context) error

	// Authenticate challenges the user. (false, nil) means the user
	// cancelled; an error means the factor failed hard.
	Authenticate(ctx context.Context) (bool, error)
}

// Gateway implements the quick-unlock credential store. It never returns
// the refresh token without a successful local authentication.
type Gateway struct {
	repo     credentials.Repository
	prompter Prompter
	keyPath  string
	log      logging.Logger
}

// NewGateway builds a Gateway over the given vault repository and factor.
// keyPath is where the install's sealing key lives (created on first use).
func NewGateway(repo credentials.Repository, prompter Prompter, keyPath string, log logging.Logger) *Gateway {
	if log == nil {
		log = logging.NewNoopLogger()
	}
	return &Gateway{repo: repo, prompter: prompter, keyPath: keyPath, log: log}
}

// IsCapable reports whether the local factor is usable on this device.
func (g *Gateway) IsCapable() bool {
	return g.prompter.Available()
}

// FactorKind names the local factor for UI copy.
func (g *Gateway) FactorKind() string {
	return g.prompter.Kind()
}

// IsUserEnabled reports whether the user has opted in to quick unlock.
func (g *Gateway) IsUserEnabled(ctx context.Context) (bool, error) {
	v, err := g.repo.Get(ctx, keyEnabled)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// HasStoredCredential reports whether a sealed credential exists.
func (g *Gateway) HasStoredCredential(ctx context.Context) (bool, error) {
	v, err := g.repo.Get(ctx, keyCredential)
	if err != nil {
		return false, err
	}
	return v != nil, nil
}

// AuthenticateAndFetch challenges the local factor and, on success, unseals
// and returns the stored credential. It returns (nil, nil) both when no
// credential is stored (no prompt is shown) and when the user cancels the
// prompt. An unreadable vault is cleared and reported as ErrVaultCorrupt.
func (g *Gateway) AuthenticateAndFetch(ctx context.Context) (*StoredCredential, error) {
	stored, err := g.repo.Get(ctx, keyCredential)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, nil
	}

	ok, err := g.prompter.Authenticate(ctx)
	if err != nil {
		return nil, fmt.Errorf("local authentication: %w", err)
	}
	if !ok {
		return nil, nil
	}

	nonce, err := g.repo.Get(ctx, keyNonce)
	if err != nil {
		return nil, err
	}

	key, err := g.sealingKey()
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(key)

	var cred StoredCredential
	if err := cryptox.OpenValue(stored, nonce, key, &cred); err != nil {
		g.log.Warn(ctx, "clearing unreadable vault credential", "err", err)
		if clearErr := g.Clear(ctx); clearErr != nil {
			return nil, clearErr
		}
		return nil, ErrVaultCorrupt
	}
	return &cred, nil
}

// Persist enrolls the local factor if needed and seals the credential into
// the vault, overwriting any previous one and marking quick unlock enabled.
// Enrollment happens only on first opt-in; refreshing the credential of an
// already-enabled vault must not prompt again.
func (g *Gateway) Persist(ctx context.Context, email, refreshToken string) error {
	enabled, err := g.IsUserEnabled(ctx)
	if err != nil {
		return err
	}
	if !enabled {
		if err := g.prompter.Enroll(ctx); err != nil {
			return fmt.Errorf("enrolling factor: %w", err)
		}
	}

	key, err := g.sealingKey()
	if err != nil {
		return err
	}
	defer common.WipeByteArray(key)

	ciphertext, nonce, err := cryptox.SealValue(StoredCredential{
		Email:        email,
		RefreshToken: refreshToken,
	}, key)
	if err != nil {
		return fmt.Errorf("sealing credential: %w", err)
	}

	if err := g.repo.Set(ctx, keyCredential, ciphertext); err != nil {
		return err
	}
	if err := g.repo.Set(ctx, keyNonce, nonce); err != nil {
		return err
	}
	return g.repo.Set(ctx, keyEnabled, []byte{1})
}

// Clear deletes the stored credential and the opt-in flag. Called when the
// user disables quick unlock and whenever the identity service rejects the
// stored refresh token, so a stale credential is never retried.
func (g *Gateway) Clear(ctx context.Context) error {
	for _, key := range []string{keyCredential, keyNonce, keyEnabled} {
		if err := g.repo.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

// sealingKey loads the install's vault key, creating it on first use.
func (g *Gateway) sealingKey() ([]byte, error) {
	data, err := os.ReadFile(g.keyPath)
	if err == nil {
		if len(data) != 32 {
			return nil, fmt.Errorf("vault key %s: unexpected length %d", g.keyPath, len(data))
		}
		return data, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading vault key: %w", err)
	}

	key := common.GenerateRandByteArray(32)
	if err := filex.WriteOwnerOnly(g.keyPath, key); err != nil {
		return nil, fmt.Errorf("writing vault key: %w", err)
	}
	return key, nil
}
