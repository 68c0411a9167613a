package biometric

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSecrets replaces the terminal read with a queue of answers.
func scriptedSecrets(p *PassphrasePrompter, answers ...string) {
	i := 0
	p.promptSecret = func(prompt string) ([]byte, error) {
		if i >= len(answers) {
			return nil, nil
		}
		a := answers[i]
		i++
		return []byte(a), nil
	}
}

func newPassphrasePrompter(t *testing.T) *PassphrasePrompter {
	t.Helper()
	return NewPassphrasePrompter(setupRepo(t), &bytes.Buffer{})
}

func TestPassphrasePrompter_EnrollThenAuthenticate(t *testing.T) {
	p := newPassphrasePrompter(t)
	ctx := context.Background()

	scriptedSecrets(p, "open sesame", "open sesame")
	require.NoError(t, p.Enroll(ctx))

	scriptedSecrets(p, "open sesame")
	ok, err := p.Authenticate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPassphrasePrompter_WrongPassphraseFails(t *testing.T) {
	p := newPassphrasePrompter(t)
	ctx := context.Background()

	scriptedSecrets(p, "open sesame", "open sesame")
	require.NoError(t, p.Enroll(ctx))

	scriptedSecrets(p, "not sesame")
	ok, err := p.Authenticate(ctx)
	require.ErrorIs(t, err, ErrUnlockFailed)
	assert.False(t, ok)
}

func TestPassphrasePrompter_EmptyEntryIsCancel(t *testing.T) {
	p := newPassphrasePrompter(t)
	ctx := context.Background()

	scriptedSecrets(p, "open sesame", "open sesame")
	require.NoError(t, p.Enroll(ctx))

	scriptedSecrets(p, "")
	ok, err := p.Authenticate(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPassphrasePrompter_EnrollMismatchRejected(t *testing.T) {
	p := newPassphrasePrompter(t)

	scriptedSecrets(p, "one", "two")
	require.Error(t, p.Enroll(context.Background()))
}

func TestPassphrasePrompter_EnrollEmptyRejected(t *testing.T) {
	p := newPassphrasePrompter(t)

	scriptedSecrets(p, "")
	require.Error(t, p.Enroll(context.Background()))
}

func TestPassphrasePrompter_AuthenticateWithoutEnrollmentErrors(t *testing.T) {
	p := newPassphrasePrompter(t)

	scriptedSecrets(p, "anything")
	_, err := p.Authenticate(context.Background())
	require.Error(t, err)
}

func TestPassphrasePrompter_ReEnrollReplacesVerifier(t *testing.T) {
	p := newPassphrasePrompter(t)
	ctx := context.Background()

	scriptedSecrets(p, "old", "old")
	require.NoError(t, p.Enroll(ctx))

	scriptedSecrets(p, "new", "new")
	require.NoError(t, p.Enroll(ctx))

	scriptedSecrets(p, "old")
	_, err := p.Authenticate(ctx)
	require.ErrorIs(t, err, ErrUnlockFailed)

	scriptedSecrets(p, "new")
	ok, err := p.Authenticate(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}
