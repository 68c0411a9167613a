package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvailland/latchkey/internal/client/biometric"
	"github.com/mvailland/latchkey/internal/client/identity"
)

// --- fakes ---

type fakeIdentity struct {
	mu sync.Mutex

	signInSession *identity.Session
	signInErr     error
	signInCalls   int
	signInBlock   chan struct{} // when set, SignIn waits on it

	signUpErr   error
	signUpCalls int

	restoreSession   *identity.Session
	restoreErr       error
	restoreCalls     int
	lastRestoreToken string

	federatedSession *identity.Session
	federatedErr     error

	resendErr   error
	resendCalls int

	resetErr   error
	resetCalls int

	signOutCalls int
}

func (f *fakeIdentity) SignIn(ctx context.Context, email, password string) (*identity.Session, error) {
	f.mu.Lock()
	f.signInCalls++
	block := f.signInBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return f.signInSession, f.signInErr
}

func (f *fakeIdentity) SignUp(ctx context.Context, email, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signUpCalls++
	return f.signUpErr
}

func (f *fakeIdentity) SignInWithFederated(ctx context.Context, a identity.FederatedAssertion) (*identity.Session, error) {
	return f.federatedSession, f.federatedErr
}

func (f *fakeIdentity) RestoreSession(ctx context.Context, refreshToken string) (*identity.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restoreCalls++
	f.lastRestoreToken = refreshToken
	return f.restoreSession, f.restoreErr
}

func (f *fakeIdentity) ResetPassword(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resetCalls++
	return f.resetErr
}

func (f *fakeIdentity) ResendConfirmation(ctx context.Context, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resendCalls++
	return f.resendErr
}

func (f *fakeIdentity) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOutCalls++
	return nil
}

func (f *fakeIdentity) Close() error { return nil }

type fakeGateway struct {
	mu sync.Mutex

	capable bool
	enabled bool
	stored  *biometric.StoredCredential

	fetchErr   error
	authCancel bool

	persistErr       error
	persistCalls     int
	lastPersistEmail string
	lastPersistToken string

	clearCalls int
}

func (g *fakeGateway) IsCapable() bool    { return g.capable }
func (g *fakeGateway) FactorKind() string { return "fake" }

func (g *fakeGateway) IsUserEnabled(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.enabled, nil
}

func (g *fakeGateway) HasStoredCredential(ctx context.Context) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.stored != nil, nil
}

func (g *fakeGateway) AuthenticateAndFetch(ctx context.Context) (*biometric.StoredCredential, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	if g.authCancel || g.stored == nil {
		return nil, nil
	}
	return g.stored, nil
}

func (g *fakeGateway) Persist(ctx context.Context, email, refreshToken string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.persistCalls++
	g.lastPersistEmail = email
	g.lastPersistToken = refreshToken
	if g.persistErr != nil {
		return g.persistErr
	}
	g.enabled = true
	g.stored = &biometric.StoredCredential{Email: email, RefreshToken: refreshToken}
	return nil
}

func (g *fakeGateway) Clear(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.clearCalls++
	g.stored = nil
	g.enabled = false
	return nil
}

type fakeAuthorizer struct {
	assertion *identity.FederatedAssertion
	err       error
}

func (f *fakeAuthorizer) Authorize(ctx context.Context) (*identity.FederatedAssertion, error) {
	return f.assertion, f.err
}

// --- helpers ---

func testSession() *identity.Session {
	return &identity.Session{
		AccessToken:  "access-1",
		RefreshToken: "refresh-1",
		ExpiresAt:    time.Now().Add(time.Hour),
		User:         identity.User{ID: "u-1", Email: "a@b.com", Confirmed: true},
	}
}

func newOrchestrator(t *testing.T, idc identity.Client, gw CredentialGateway, opts ...Option) *Orchestrator {
	t.Helper()
	o := NewOrchestrator(idc, gw, nil, opts...)
	t.Cleanup(o.Close)
	return o
}

func fillSignIn(o *Orchestrator, email, password string) {
	o.SetEmail(email)
	o.SetPassword(password)
}

// --- tests ---

func TestSubmit_InvalidEmail_NoNetworkCall(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{})

	fillSignIn(o, "not-an-email", "password")
	require.NoError(t, o.Submit(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Equal(t, msgInvalidEmail, snap.ErrorMessage)
	assert.Zero(t, idc.signInCalls, "gate failure must not reach the network")
}

func TestSubmit_SignInSuccess_OffersQuickUnlockOptIn(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	gw := &fakeGateway{capable: true}
	o := newOrchestrator(t, idc, gw)

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseAwaitingBiometricOptIn, snap.Phase)
	assert.Equal(t, "a@b.com", snap.UserEmail)

	// Credentials are wiped on success.
	assert.Empty(t, snap.Email)
	assert.Empty(t, snap.Password)
	assert.Empty(t, snap.Confirm)
}

func TestEnableBiometrics_PersistsAndAdvances(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	gw := &fakeGateway{capable: true}
	o := newOrchestrator(t, idc, gw)

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))
	require.NoError(t, o.EnableBiometrics(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseAuthenticated, snap.Phase)
	assert.Equal(t, 1, gw.persistCalls)
	assert.Equal(t, "a@b.com", gw.lastPersistEmail)
	assert.Equal(t, "refresh-1", gw.lastPersistToken)
	assert.True(t, snap.QuickUnlockOffered)
}

func TestSkipBiometricOptIn_DiscardsTokenAndAdvances(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	gw := &fakeGateway{capable: true}
	o := newOrchestrator(t, idc, gw)

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))
	o.SkipBiometricOptIn()

	snap := o.Snapshot()
	assert.Equal(t, PhaseAuthenticated, snap.Phase)
	assert.Zero(t, gw.persistCalls, "skip must not persist")
}

func TestSubmit_SignInSuccess_NoFactor_GoesStraightToAuthenticated(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	o := newOrchestrator(t, idc, &fakeGateway{capable: false})

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))

	assert.Equal(t, PhaseAuthenticated, o.Snapshot().Phase)
}

func TestSubmit_SignInSuccess_AlreadyEnabled_RefreshesStoredToken(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "stale"}}
	o := newOrchestrator(t, idc, gw)

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseAuthenticated, snap.Phase, "no opt-in sheet when already enabled")
	assert.Equal(t, 1, gw.persistCalls)
	assert.Equal(t, "refresh-1", gw.lastPersistToken, "rotated token must replace the stored one")
}

func TestSubmit_SignInFailure_PreservesFieldsForCorrection(t *testing.T) {
	idc := &fakeIdentity{signInErr: identity.ErrInvalidCredentials}
	o := newOrchestrator(t, idc, &fakeGateway{})

	fillSignIn(o, "a@b.com", "wrong-pass")
	require.NoError(t, o.Submit(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Equal(t, msgInvalidCredentials, snap.ErrorMessage)
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Equal(t, "wrong-pass", snap.Password, "password survives a failed attempt")
}

func TestSubmit_WhileSubmitting_IsNoOp(t *testing.T) {
	block := make(chan struct{})
	idc := &fakeIdentity{signInSession: testSession(), signInBlock: block}
	o := newOrchestrator(t, idc, &fakeGateway{})

	fillSignIn(o, "a@b.com", "hunter21")

	done := make(chan struct{})
	go func() {
		_ = o.Submit(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == PhaseSubmitting
	}, time.Second, time.Millisecond)

	// Second submit while in flight: dropped before any identity call.
	require.NoError(t, o.Submit(context.Background()))

	close(block)
	<-done
	assert.Equal(t, 1, idc.signInCalls)
}

func TestClose_DropsLateCompletion(t *testing.T) {
	block := make(chan struct{})
	idc := &fakeIdentity{signInSession: testSession(), signInBlock: block}
	o := NewOrchestrator(idc, &fakeGateway{}, nil)

	fillSignIn(o, "a@b.com", "hunter21")

	done := make(chan struct{})
	go func() {
		_ = o.Submit(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == PhaseSubmitting
	}, time.Second, time.Millisecond)

	o.Close()
	close(block)
	<-done

	// The completion landed after disposal and must not have been applied.
	assert.Equal(t, PhaseSubmitting, o.Snapshot().Phase)
}

func TestClose_DropsLateCompletionWithoutTouchingVault(t *testing.T) {
	block := make(chan struct{})
	idc := &fakeIdentity{signInSession: testSession(), signInBlock: block}
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := NewOrchestrator(idc, gw, nil)

	fillSignIn(o, "a@b.com", "hunter21")

	done := make(chan struct{})
	go func() {
		_ = o.Submit(context.Background())
		close(done)
	}()

	require.Eventually(t, func() bool {
		return o.Snapshot().Phase == PhaseSubmitting
	}, time.Second, time.Millisecond)

	o.Close()
	close(block)
	<-done

	// A dropped completion must not refresh the stored credential either.
	assert.Zero(t, gw.persistCalls)
	assert.Equal(t, "refresh-1", gw.stored.RefreshToken)
}

func TestSubmit_SignUpSuccess_StartsCooldown(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithCooldown(time.Minute, time.Second))

	o.ToggleMode()
	o.SetEmail("new@b.com")
	o.SetPassword("Abcdef12!")
	o.SetConfirm("Abcdef12!")
	require.NoError(t, o.Submit(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseAwaitingEmailConfirmation, snap.Phase)
	assert.Equal(t, "new@b.com", snap.PendingEmail)
	assert.Equal(t, msgConfirmationSent, snap.SuccessMessage)
	assert.Equal(t, 60, snap.CooldownSeconds)
	assert.Empty(t, snap.Password)
}

func TestResendConfirmation_NoOpWhileCooldownActive(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithCooldown(time.Minute, time.Second))

	o.ToggleMode()
	o.SetEmail("new@b.com")
	o.SetPassword("Abcdef12!")
	o.SetConfirm("Abcdef12!")
	require.NoError(t, o.Submit(context.Background()))

	before := o.Snapshot()
	require.NoError(t, o.ResendConfirmation(context.Background()))
	after := o.Snapshot()

	assert.Zero(t, idc.resendCalls, "resend during cooldown must not reach the network")
	assert.Equal(t, before.Phase, after.Phase)
	assert.Empty(t, after.ErrorMessage)
}

func TestResendConfirmation_AfterCooldown_CallsAndRestarts(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithCooldown(10*time.Millisecond, time.Millisecond))

	o.ToggleMode()
	o.SetEmail("new@b.com")
	o.SetPassword("Abcdef12!")
	o.SetConfirm("Abcdef12!")
	require.NoError(t, o.Submit(context.Background()))

	require.Eventually(t, func() bool {
		return o.Snapshot().CooldownSeconds == 0
	}, 2*time.Second, time.Millisecond)

	require.NoError(t, o.ResendConfirmation(context.Background()))
	assert.Equal(t, 1, idc.resendCalls)
	assert.Equal(t, msgConfirmationResent, o.Snapshot().SuccessMessage)
}

func TestUseDifferentEmail_ReturnsToSignUpAndCancelsCooldown(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithCooldown(time.Minute, time.Second))

	o.ToggleMode()
	o.SetEmail("new@b.com")
	o.SetPassword("Abcdef12!")
	o.SetConfirm("Abcdef12!")
	require.NoError(t, o.Submit(context.Background()))

	o.UseDifferentEmail()

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Equal(t, "sign-up", snap.Mode.String())
	assert.Empty(t, snap.PendingEmail)
	assert.Zero(t, snap.CooldownSeconds)
}

func TestToggleMode_ClearsPasswordsKeepsEmail(t *testing.T) {
	o := newOrchestrator(t, &fakeIdentity{}, &fakeGateway{})

	o.SetEmail("a@b.com")
	o.SetPassword("secret")
	o.SetConfirm("secret")
	o.ToggleMode()

	snap := o.Snapshot()
	assert.Equal(t, "a@b.com", snap.Email)
	assert.Empty(t, snap.Password)
	assert.Empty(t, snap.Confirm)
	assert.Empty(t, snap.ErrorMessage)
}

func TestSignInWithBiometrics_Success_RotatesStoredToken(t *testing.T) {
	restored := testSession()
	restored.RefreshToken = "refresh-2"
	idc := &fakeIdentity{restoreSession: restored}
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := newOrchestrator(t, idc, gw)

	require.NoError(t, o.SignInWithBiometrics(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseAuthenticated, snap.Phase)
	assert.Equal(t, "refresh-1", idc.lastRestoreToken)
	assert.Equal(t, "refresh-2", gw.lastPersistToken, "vault must hold the rotated token")
}

func TestSignInWithBiometrics_Cancel_IsNeutralNoOp(t *testing.T) {
	idc := &fakeIdentity{}
	gw := &fakeGateway{capable: true, enabled: true, authCancel: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := newOrchestrator(t, idc, gw)

	require.NoError(t, o.SignInWithBiometrics(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Empty(t, snap.ErrorMessage, "cancellation must not surface an error")
	assert.Zero(t, idc.restoreCalls)
}

func TestSignInWithBiometrics_ExpiredToken_ClearsAndPrefills(t *testing.T) {
	idc := &fakeIdentity{restoreErr: identity.ErrTokenExpired}
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := newOrchestrator(t, idc, gw)

	require.NoError(t, o.SignInWithBiometrics(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Equal(t, "sign-in", snap.Mode.String())
	assert.Equal(t, "a@b.com", snap.Email, "email prefilled for manual sign-in")
	assert.Equal(t, msgSessionExpired, snap.ErrorMessage)
	assert.Equal(t, 1, gw.clearCalls, "rejected credential must be cleared")
	assert.False(t, snap.QuickUnlockOffered)
}

func TestSignInWithApple_Success(t *testing.T) {
	idc := &fakeIdentity{federatedSession: testSession()}
	auth := &fakeAuthorizer{assertion: &identity.FederatedAssertion{Provider: "apple", IDToken: "tok"}}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithFederatedAuthorizer(auth))

	require.NoError(t, o.SignInWithApple(context.Background()))
	assert.Equal(t, PhaseAuthenticated, o.Snapshot().Phase)
}

func TestSignInWithApple_Cancelled_IsNeutralNoOp(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{}, WithFederatedAuthorizer(&fakeAuthorizer{}))

	require.NoError(t, o.SignInWithApple(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Empty(t, snap.ErrorMessage)
}

func TestResetPassword_RequiresValidEmail(t *testing.T) {
	idc := &fakeIdentity{}
	o := newOrchestrator(t, idc, &fakeGateway{})

	o.SetEmail("nope")
	require.NoError(t, o.ResetPassword(context.Background()))
	assert.Zero(t, idc.resetCalls)
	assert.Equal(t, msgInvalidEmail, o.Snapshot().ErrorMessage)

	o.SetEmail("a@b.com")
	require.NoError(t, o.ResetPassword(context.Background()))
	assert.Equal(t, 1, idc.resetCalls)
	assert.Equal(t, msgResetRequested, o.Snapshot().SuccessMessage)
}

func TestSignOut_ClearsSessionKeepsVault(t *testing.T) {
	idc := &fakeIdentity{signInSession: testSession()}
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := newOrchestrator(t, idc, gw)

	fillSignIn(o, "a@b.com", "hunter21")
	require.NoError(t, o.Submit(context.Background()))
	require.Equal(t, PhaseAuthenticated, o.Snapshot().Phase)

	require.NoError(t, o.SignOut(context.Background()))

	snap := o.Snapshot()
	assert.Equal(t, PhaseSignedOut, snap.Phase)
	assert.Empty(t, snap.UserEmail)
	assert.Empty(t, snap.Email)
	assert.Equal(t, 1, idc.signOutCalls)
	assert.Zero(t, gw.clearCalls, "sign-out must not drop the vault credential")
	assert.True(t, snap.QuickUnlockOffered)
}

func TestDisableBiometrics_ClearsVault(t *testing.T) {
	gw := &fakeGateway{capable: true, enabled: true,
		stored: &biometric.StoredCredential{Email: "a@b.com", RefreshToken: "refresh-1"}}
	o := newOrchestrator(t, &fakeIdentity{}, gw)

	require.NoError(t, o.DisableBiometrics(context.Background()))
	assert.Equal(t, 1, gw.clearCalls)
	assert.False(t, o.Snapshot().QuickUnlockOffered)
}

func TestWatch_DeliversTransitions(t *testing.T) {
	idc := &fakeIdentity{signInErr: identity.ErrInvalidCredentials}
	o := newOrchestrator(t, idc, &fakeGateway{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch := o.Watch(ctx)

	first := <-ch
	assert.Equal(t, PhaseSignedOut, first.Phase)

	fillSignIn(o, "a@b.com", "wrong")
	require.NoError(t, o.Submit(context.Background()))

	require.Eventually(t, func() bool {
		select {
		case snap, ok := <-ch:
			return ok && snap.ErrorMessage == msgInvalidCredentials
		default:
			return false
		}
	}, time.Second, time.Millisecond)
}

func TestWatch_ClosedOnOrchestratorClose(t *testing.T) {
	o := NewOrchestrator(&fakeIdentity{}, &fakeGateway{}, nil)

	ch := o.Watch(context.Background())
	<-ch // initial snapshot
	o.Close()

	_, ok := <-ch
	assert.False(t, ok, "watch channel must close with the orchestrator")
}

func TestSnapshot_StrengthTracksPasswordField(t *testing.T) {
	o := newOrchestrator(t, &fakeIdentity{}, &fakeGateway{})

	o.ToggleMode()
	o.SetPassword("Abcdef12!xyz")
	assert.Equal(t, "very strong", o.Snapshot().Strength.String())

	o.SetPassword("")
	assert.Equal(t, "blank", o.Snapshot().Strength.String())
}
