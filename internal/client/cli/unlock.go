package cli

import (
	"context"
	"fmt"
)

// Unlock runs the quick-unlock path: the enrolled local factor releases the
// stored refresh token and the session is restored without a password.
func (a *App) Unlock(ctx context.Context) error {
	snap := a.orch.Snapshot()
	if !snap.QuickUnlockOffered {
		fmt.Fprintln(a.out, "Quick unlock isn't set up. Sign in with 'login' first.")
		return nil
	}

	if err := a.orch.SignInWithBiometrics(ctx); err != nil {
		return err
	}
	a.render()
	return nil
}
