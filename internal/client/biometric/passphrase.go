package biometric

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/mvailland/latchkey/internal/client/repositories/credentials"
	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/cryptox"
)

// vault keys owned by the passphrase factor.
const (
	keyFactorSalt     = "factor_salt"
	keyFactorVerifier = "factor_verifier"
)

// ErrUnlockFailed is returned when the entered passphrase does not match
// the enrolled one. Distinct from cancellation, which is not an error.
var ErrUnlockFailed = errors.New("wrong unlock passphrase")

// readSecret is a test seam for term.ReadPassword.
var readSecret = term.ReadPassword

// PassphrasePrompter is the terminal client's local authentication factor:
// an argon2id verifier of an unlock passphrase, enrolled once and checked
// in constant time on every unlock. It stands in for a platform biometric
// on headless installs.
type PassphrasePrompter struct {
	repo credentials.Repository
	out  io.Writer

	// promptSecret reads one secret line without echo. Overridable in tests.
	promptSecret func(prompt string) ([]byte, error)
}

// NewPassphrasePrompter builds a prompter storing its verifier in repo and
// writing prompts to out.
func NewPassphrasePrompter(repo credentials.Repository, out io.Writer) *PassphrasePrompter {
	p := &PassphrasePrompter{repo: repo, out: out}
	p.promptSecret = p.readFromTerminal
	return p
}

func (p *PassphrasePrompter) Kind() string { return "passphrase" }

// Available is true whenever stdin is connected to a terminal; the factor
// needs no hardware.
func (p *PassphrasePrompter) Available() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Enroll asks for a new unlock passphrase (twice) and stores its argon2id
// verifier. Re-enrolling replaces the previous verifier.
func (p *PassphrasePrompter) Enroll(ctx context.Context) error {
	first, err := p.promptSecret("Choose an unlock passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(first)
	if len(first) == 0 {
		return errors.New("unlock passphrase must not be empty")
	}

	second, err := p.promptSecret("Repeat the unlock passphrase: ")
	if err != nil {
		return err
	}
	defer common.WipeByteArray(second)

	if subtle.ConstantTimeCompare(first, second) != 1 {
		return errors.New("passphrases do not match")
	}

	salt := common.GenerateRandByteArray(16)
	key := cryptox.DeriveUnlockKey(first, salt)
	defer common.WipeByteArray(key)

	if err := p.repo.Set(ctx, keyFactorSalt, salt); err != nil {
		return err
	}
	return p.repo.Set(ctx, keyFactorVerifier, cryptox.MakeVerifier(key))
}

// Authenticate asks for the unlock passphrase and checks it against the
// enrolled verifier. An empty entry means the user declined: (false, nil).
func (p *PassphrasePrompter) Authenticate(ctx context.Context) (bool, error) {
	salt, err := p.repo.Get(ctx, keyFactorSalt)
	if err != nil {
		return false, err
	}
	verifier, err := p.repo.Get(ctx, keyFactorVerifier)
	if err != nil {
		return false, err
	}
	if salt == nil || verifier == nil {
		return false, errors.New("unlock factor not enrolled")
	}

	entered, err := p.promptSecret("Unlock passphrase (empty to cancel): ")
	if err != nil {
		return false, err
	}
	defer common.WipeByteArray(entered)
	if len(entered) == 0 {
		return false, nil
	}

	key := cryptox.DeriveUnlockKey(entered, salt)
	defer common.WipeByteArray(key)

	if subtle.ConstantTimeCompare(cryptox.MakeVerifier(key), verifier) != 1 {
		return false, ErrUnlockFailed
	}
	return true, nil
}

func (p *PassphrasePrompter) readFromTerminal(prompt string) ([]byte, error) {
	if _, err := fmt.Fprint(p.out, prompt); err != nil {
		return nil, err
	}
	secret, err := readSecret(int(os.Stdin.Fd()))
	fmt.Fprintln(p.out)
	if err != nil {
		return nil, err
	}
	return secret, nil
}
