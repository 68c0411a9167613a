package cli

import (
	"context"
	"fmt"

	"github.com/mvailland/latchkey/internal/client/session"
	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/validation"
)

// Register prompts for the sign-up fields, shows the strength meter, and
// submits the registration.
func (a *App) Register(ctx context.Context) error {
	snap := a.orch.Snapshot()
	if snap.Mode != validation.ModeSignUp {
		a.orch.ToggleMode()
	}

	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}
	a.orch.SetEmail(email)

	password, err := GetPassword("Choose a password: ", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)
	a.orch.SetPassword(string(password))

	fmt.Fprintf(a.out, "Password strength: %s\n", a.orch.Snapshot().Strength)

	confirm, err := GetPassword("Repeat the password: ", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(confirm)
	a.orch.SetConfirm(string(confirm))

	if err := a.orch.Submit(ctx); err != nil {
		return err
	}

	snap = a.orch.Snapshot()
	if snap.Phase == session.PhaseAwaitingEmailConfirmation {
		fmt.Fprintf(a.out, "Waiting for confirmation of %s.\n", snap.PendingEmail)
		fmt.Fprintln(a.out, "Use 'resend' if the email doesn't arrive, or 'newemail' to start over.")
	}
	a.render()
	return nil
}
