package cli

import (
	"context"
	"fmt"

	"github.com/mvailland/latchkey/internal/client/session"
)

func (a *App) isAuthenticated() bool {
	return a.orch.Snapshot().Phase == session.PhaseAuthenticated
}

// Resend asks for another confirmation email. While the resend cooldown is
// active the orchestrator ignores the request; we surface the wait instead.
func (a *App) Resend(ctx context.Context) error {
	snap := a.orch.Snapshot()
	if snap.Phase != session.PhaseAwaitingEmailConfirmation {
		fmt.Fprintln(a.out, "Nothing to resend; register first.")
		return nil
	}
	if snap.CooldownSeconds > 0 {
		fmt.Fprintf(a.out, "Please wait %d seconds before resending.\n", snap.CooldownSeconds)
		return nil
	}

	if err := a.orch.ResendConfirmation(ctx); err != nil {
		return err
	}
	a.render()
	return nil
}

// NewEmail abandons the pending confirmation and returns to the sign-up form.
func (a *App) NewEmail(ctx context.Context) error {
	a.orch.UseDifferentEmail()
	fmt.Fprintln(a.out, "Okay, register again with a different email.")
	return nil
}

// Reset requests a password recovery email for an address.
func (a *App) Reset(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter your account email", a.out)
	if err != nil {
		return err
	}
	a.orch.SetEmail(email)

	if err := a.orch.ResetPassword(ctx); err != nil {
		return err
	}
	a.render()
	return nil
}

// SignOut ends the session. The vault credential is not touched locally,
// but the server revokes the user's refresh tokens, so the next quick
// unlock falls back to password sign-in.
func (a *App) SignOut(ctx context.Context) error {
	if err := a.orch.SignOut(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Signed out.")
	return nil
}

// DisableUnlock clears the stored quick-unlock credential.
func (a *App) DisableUnlock(ctx context.Context) error {
	if err := a.orch.DisableBiometrics(ctx); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "Quick unlock disabled.")
	return nil
}

// Status prints the current session state.
func (a *App) Status(ctx context.Context) error {
	snap := a.orch.Snapshot()
	fmt.Fprintf(a.out, "phase: %s\n", snap.Phase)
	fmt.Fprintf(a.out, "mode: %s\n", snap.Mode)
	if snap.UserEmail != "" {
		fmt.Fprintf(a.out, "account: %s\n", snap.UserEmail)
	}
	if snap.PendingEmail != "" {
		fmt.Fprintf(a.out, "awaiting confirmation: %s\n", snap.PendingEmail)
	}
	if snap.CooldownSeconds > 0 {
		fmt.Fprintf(a.out, "resend available in: %ds\n", snap.CooldownSeconds)
	}
	fmt.Fprintf(a.out, "quick unlock: %v (%s)\n", snap.QuickUnlockOffered, snap.FactorKind)
	return nil
}
