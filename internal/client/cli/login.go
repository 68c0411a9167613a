package cli

import (
	"context"
	"fmt"

	"github.com/mvailland/latchkey/internal/client/session"
	"github.com/mvailland/latchkey/internal/common"
)

// Login prompts for email and password and runs the password sign-in flow,
// including the quick-unlock opt-in sheet when the orchestrator offers it.
func (a *App) Login(ctx context.Context) error {
	email, err := GetSimpleText(a.reader, "Enter email", a.out)
	if err != nil {
		return err
	}

	password, err := GetPassword("Enter password: ", a.out)
	if err != nil {
		return err
	}
	defer common.WipeByteArray(password)

	a.orch.SetEmail(email)
	a.orch.SetPassword(string(password))

	if err := a.orch.Submit(ctx); err != nil {
		return err
	}
	return a.resolveOptIn(ctx)
}

// resolveOptIn answers the quick-unlock opt-in question when sign-in parked
// there, then renders the final state.
func (a *App) resolveOptIn(ctx context.Context) error {
	snap := a.orch.Snapshot()
	if snap.Phase == session.PhaseAwaitingBiometricOptIn {
		enable, err := GetYesNo(a.reader, fmt.Sprintf("Enable quick unlock (%s)?", snap.FactorKind), a.out)
		if err != nil {
			return err
		}
		if enable {
			if err := a.orch.EnableBiometrics(ctx); err != nil {
				return err
			}
		} else {
			a.orch.SkipBiometricOptIn()
		}
	}
	a.render()
	return nil
}

// render prints the orchestrator's messages and, when relevant, the phase.
func (a *App) render() {
	snap := a.orch.Snapshot()
	if snap.ErrorMessage != "" {
		fmt.Fprintln(a.out, snap.ErrorMessage)
	}
	if snap.SuccessMessage != "" {
		fmt.Fprintln(a.out, snap.SuccessMessage)
	}
	if snap.Phase == session.PhaseAuthenticated {
		fmt.Fprintf(a.out, "Signed in as %s\n", snap.UserEmail)
	}
}
