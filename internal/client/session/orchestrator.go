package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/mvailland/latchkey/internal/client/biometric"
	"github.com/mvailland/latchkey/internal/client/identity"
	"github.com/mvailland/latchkey/internal/logging"
	"github.com/mvailland/latchkey/internal/validation"
)

// Phase is the orchestrator's finite state. Exactly one phase is live at a
// time; all writes happen under the orchestrator's mutex.
type Phase int

const (
	PhaseSignedOut Phase = iota
	PhaseSubmitting
	PhaseAwaitingEmailConfirmation
	PhaseAwaitingBiometricOptIn
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseSignedOut:
		return "signed-out"
	case PhaseSubmitting:
		return "submitting"
	case PhaseAwaitingEmailConfirmation:
		return "awaiting-email-confirmation"
	case PhaseAwaitingBiometricOptIn:
		return "awaiting-biometric-opt-in"
	case PhaseAuthenticated:
		return "authenticated"
	default:
		return "unknown"
	}
}

// Snapshot is the immutable view of orchestrator state handed to the UI.
// Everything the UI renders comes from here; it never reaches into the
// orchestrator's fields.
type Snapshot struct {
	Phase Phase
	Mode  validation.Mode

	Email    string
	Password string
	Confirm  string

	// PendingEmail is the address awaiting confirmation after sign-up.
	PendingEmail string

	// UserEmail is the authenticated account's address.
	UserEmail string

	ErrorMessage   string
	SuccessMessage string

	Strength  validation.Strength
	CanSubmit bool

	// CooldownSeconds is the remaining resend cooldown; zero when inactive.
	CooldownSeconds int

	// QuickUnlockOffered is true when the device has a usable local factor
	// and a stored credential exists to release.
	QuickUnlockOffered bool

	FactorKind string
}

// CredentialGateway is the quick-unlock collaborator. *biometric.Gateway is
// the production implementation; tests substitute a fake.
type CredentialGateway interface {
	IsCapable() bool
	FactorKind() string
	IsUserEnabled(ctx context.Context) (bool, error)
	HasStoredCredential(ctx context.Context) (bool, error)
	AuthenticateAndFetch(ctx context.Context) (*biometric.StoredCredential, error)
	Persist(ctx context.Context, email, refreshToken string) error
	Clear(ctx context.Context) error
}

// FederatedAuthorizer obtains a third-party identity assertion, typically by
// driving a provider-specific native flow. (nil, nil) means the user backed
// out, which is not an error.
type FederatedAuthorizer interface {
	Authorize(ctx context.Context) (*identity.FederatedAssertion, error)
}

// Option tweaks orchestrator construction.
type Option func(*Orchestrator)

// WithCooldown overrides the resend cooldown duration and tick resolution.
func WithCooldown(duration, tick time.Duration) Option {
	return func(o *Orchestrator) {
		o.cooldownDuration = duration
		o.cooldownTick = tick
	}
}

// WithFederatedAuthorizer wires the federated sign-in provider.
func WithFederatedAuthorizer(f FederatedAuthorizer) Option {
	return func(o *Orchestrator) { o.federated = f }
}

const defaultCooldownDuration = 60 * time.Second

// Orchestrator drives the authentication lifecycle. One instance serves one
// logical session; it is safe for concurrent use but issues at most one
// identity call per action at a time (a submit while submitting is a no-op).
type Orchestrator struct {
	identity  identity.Client
	gateway   CredentialGateway
	federated FederatedAuthorizer
	log       logging.Logger

	cooldown         *Cooldown
	cooldownDuration time.Duration
	cooldownTick     time.Duration

	mu     sync.Mutex
	closed bool
	gen    uint64 // bumped per submit; stale completions are dropped

	phase         Phase
	mode          validation.Mode
	email         string
	password      string
	confirm       string
	pendingEmail  string
	user          identity.User
	accessToken   string
	pendingToken  string // refresh token parked between sign-in and opt-in
	errMsg, okMsg string

	// cached gateway facts so Snapshot stays non-blocking
	quickUnlockReady bool

	watchers    map[uint64]chan Snapshot
	nextWatcher uint64
}

// NewOrchestrator wires an orchestrator to its collaborators. log may be nil.
func NewOrchestrator(idc identity.Client, gw CredentialGateway, log logging.Logger, opts ...Option) *Orchestrator {
	if log == nil {
		log = logging.NewNoopLogger()
	}
	o := &Orchestrator{
		identity:         idc,
		gateway:          gw,
		log:              log,
		cooldownDuration: defaultCooldownDuration,
		cooldownTick:     time.Second,
		phase:            PhaseSignedOut,
		mode:             validation.ModeSignIn,
		watchers:         make(map[uint64]chan Snapshot),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.cooldown = NewCooldown(o.cooldownDuration, o.cooldownTick, o.cooldownChanged)
	o.refreshQuickUnlock(context.Background())
	return o
}

// Close tears the orchestrator down: the cooldown stops and any identity
// call completing afterwards is discarded instead of mutating state.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	for id, ch := range o.watchers {
		close(ch)
		delete(o.watchers, id)
	}
	o.mu.Unlock()

	o.cooldown.Stop()
}

// Snapshot returns the current state view.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

// Watch returns a channel of state snapshots. The current snapshot is
// delivered immediately; afterwards the channel always carries the latest
// state, dropping intermediates if the consumer lags. The subscription ends
// when ctx is done or the orchestrator closes.
func (o *Orchestrator) Watch(ctx context.Context) <-chan Snapshot {
	ch := make(chan Snapshot, 1)

	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		close(ch)
		return ch
	}
	id := o.nextWatcher
	o.nextWatcher++
	o.watchers[id] = ch
	ch <- o.snapshotLocked()
	o.mu.Unlock()

	go func() {
		<-ctx.Done()
		o.mu.Lock()
		if existing, ok := o.watchers[id]; ok {
			delete(o.watchers, id)
			close(existing)
		}
		o.mu.Unlock()
	}()

	return ch
}

// SetEmail updates the email field. Any displayed error clears on edit.
func (o *Orchestrator) SetEmail(v string) { o.setField(&o.email, v) }

// SetPassword updates the password field.
func (o *Orchestrator) SetPassword(v string) { o.setField(&o.password, v) }

// SetConfirm updates the confirm-password field.
func (o *Orchestrator) SetConfirm(v string) { o.setField(&o.confirm, v) }

// ToggleMode switches between sign-in and sign-up. Legal only while signed
// out; it clears both password fields (not the email) and any error.
func (o *Orchestrator) ToggleMode() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.phase != PhaseSignedOut {
		return
	}
	if o.mode == validation.ModeSignIn {
		o.mode = validation.ModeSignUp
	} else {
		o.mode = validation.ModeSignIn
	}
	o.password = ""
	o.confirm = ""
	o.errMsg = ""
	o.okMsg = ""
	o.publishLocked()
}

// Submit runs the current mode's authentication flow. While a submit is in
// flight further submits are no-ops; the phase, not the UI, is the guard.
func (o *Orchestrator) Submit(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseSignedOut {
		o.mu.Unlock()
		return nil
	}
	mode, email, password := o.mode, o.email, o.password
	if !validation.CanSubmit(mode, email, password, o.confirm) {
		o.errMsg = localValidationMessage(mode, email, password, o.confirm)
		o.publishLocked()
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseSubmitting
	o.errMsg = ""
	o.okMsg = ""
	o.gen++
	gen := o.gen
	o.publishLocked()
	o.mu.Unlock()

	if mode == validation.ModeSignUp {
		err := o.identity.SignUp(ctx, email, password)
		o.completeSignUp(gen, email, err)
		return nil
	}

	session, err := o.identity.SignIn(ctx, email, password)
	o.completeAuthentication(ctx, gen, session, err)
	return nil
}

// SignInWithBiometrics runs the quick-unlock path: local factor, then
// session restoration with the released refresh token. Cancelling the
// prompt quietly returns to the signed-out form.
func (o *Orchestrator) SignInWithBiometrics(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseSignedOut {
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseSubmitting
	o.errMsg = ""
	o.okMsg = ""
	o.gen++
	gen := o.gen
	o.publishLocked()
	o.mu.Unlock()

	cred, err := o.gateway.AuthenticateAndFetch(ctx)
	if err != nil || cred == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.gen != gen {
			return nil
		}
		o.phase = PhaseSignedOut
		if errors.Is(err, biometric.ErrVaultCorrupt) {
			o.errMsg = msgSessionExpired
		} else if err != nil && !errors.Is(err, context.Canceled) {
			o.errMsg = messageFor(err)
		}
		o.refreshQuickUnlockLocked(ctx)
		o.publishLocked()
		return nil
	}

	session, err := o.identity.RestoreSession(ctx, cred.RefreshToken)
	if err != nil && (errors.Is(err, identity.ErrTokenExpired) || errors.Is(err, identity.ErrTokenRevoked)) {
		o.mu.Lock()
		stale := o.closed || o.gen != gen
		o.mu.Unlock()
		if stale {
			return nil
		}
		// The stored credential is dead. Clear it so it is never retried,
		// and route back to password sign-in with the email prefilled.
		if clearErr := o.gateway.Clear(ctx); clearErr != nil {
			o.log.Error(ctx, "clearing rejected quick-unlock credential", "err", clearErr)
		}
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.gen != gen {
			return nil
		}
		o.phase = PhaseSignedOut
		o.mode = validation.ModeSignIn
		o.email = cred.Email
		o.errMsg = msgSessionExpired
		o.refreshQuickUnlockLocked(ctx)
		o.publishLocked()
		return nil
	}

	o.completeAuthentication(ctx, gen, session, err)
	return nil
}

// SignInWithApple drives the federated flow via the configured authorizer.
// A user-dismissed provider sheet is a neutral no-op.
func (o *Orchestrator) SignInWithApple(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseSignedOut {
		o.mu.Unlock()
		return nil
	}
	if o.federated == nil {
		o.errMsg = msgFederatedUnavailable
		o.publishLocked()
		o.mu.Unlock()
		return nil
	}
	o.phase = PhaseSubmitting
	o.errMsg = ""
	o.okMsg = ""
	o.gen++
	gen := o.gen
	o.publishLocked()
	o.mu.Unlock()

	assertion, err := o.federated.Authorize(ctx)
	if err != nil || assertion == nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.gen != gen {
			return nil
		}
		o.phase = PhaseSignedOut
		if err != nil && !errors.Is(err, context.Canceled) {
			o.errMsg = msgFederatedFailed
		}
		o.publishLocked()
		return nil
	}

	session, err := o.identity.SignInWithFederated(ctx, *assertion)
	o.completeAuthentication(ctx, gen, session, err)
	return nil
}

// EnableBiometrics resolves the opt-in sheet affirmatively: the parked
// refresh token is sealed into the vault and wiped from orchestrator memory.
// Either resolution of the sheet advances to the authenticated phase.
func (o *Orchestrator) EnableBiometrics(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseAwaitingBiometricOptIn {
		o.mu.Unlock()
		return nil
	}
	email := o.user.Email
	token := o.pendingToken
	o.mu.Unlock()

	err := o.gateway.Persist(ctx, email, token)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.phase != PhaseAwaitingBiometricOptIn {
		return nil
	}
	o.pendingToken = ""
	o.phase = PhaseAuthenticated
	if err != nil {
		o.log.Error(ctx, "persisting quick-unlock credential", "err", err)
		o.errMsg = msgQuickUnlockSetupFailed
	} else {
		o.okMsg = msgQuickUnlockEnabled
	}
	o.refreshQuickUnlockLocked(ctx)
	o.publishLocked()
	return nil
}

// SkipBiometricOptIn resolves the opt-in sheet negatively: the parked token
// is discarded without being persisted.
func (o *Orchestrator) SkipBiometricOptIn() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.phase != PhaseAwaitingBiometricOptIn {
		return
	}
	o.pendingToken = ""
	o.phase = PhaseAuthenticated
	o.publishLocked()
}

// ResendConfirmation asks the identity service to resend the confirmation
// email. While the cooldown is active this is a complete no-op: no call is
// made and no error is raised.
func (o *Orchestrator) ResendConfirmation(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseAwaitingEmailConfirmation || o.cooldown.Active() {
		o.mu.Unlock()
		return nil
	}
	email := o.pendingEmail
	o.mu.Unlock()

	err := o.identity.ResendConfirmation(ctx, email)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.phase != PhaseAwaitingEmailConfirmation {
		return nil
	}
	if err != nil {
		o.errMsg = messageFor(err)
	} else {
		o.okMsg = msgConfirmationResent
		o.cooldown.Start()
	}
	o.publishLocked()
	return nil
}

// UseDifferentEmail abandons the pending confirmation and returns to the
// sign-up form; the cooldown is cancelled with it.
func (o *Orchestrator) UseDifferentEmail() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.phase != PhaseAwaitingEmailConfirmation {
		return
	}
	o.pendingEmail = ""
	o.phase = PhaseSignedOut
	o.mode = validation.ModeSignUp
	o.errMsg = ""
	o.okMsg = ""
	o.cooldown.Stop()
	o.publishLocked()
}

// ResetPassword requests a recovery email for the entered address.
func (o *Orchestrator) ResetPassword(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseSignedOut {
		o.mu.Unlock()
		return nil
	}
	email := o.email
	if !validation.IsEmailValid(email) {
		o.errMsg = msgInvalidEmail
		o.publishLocked()
		o.mu.Unlock()
		return nil
	}
	o.mu.Unlock()

	err := o.identity.ResetPassword(ctx, email)

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	if err != nil {
		o.errMsg = messageFor(err)
	} else {
		o.okMsg = msgResetRequested
	}
	o.publishLocked()
	return nil
}

// SignOut ends the session. The identity call is best effort; local state
// is cleared regardless. The vault credential is left in place, but the
// identity service revokes every refresh token for the user, so the next
// quick unlock is rejected and clears it, landing on password sign-in with
// the email prefilled.
func (o *Orchestrator) SignOut(ctx context.Context) error {
	o.mu.Lock()
	if o.closed || o.phase != PhaseAuthenticated {
		o.mu.Unlock()
		return nil
	}
	token := o.accessToken
	o.mu.Unlock()

	if err := o.identity.SignOut(ctx, token); err != nil {
		o.log.Warn(ctx, "sign-out call failed", "err", err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.user = identity.User{}
	o.accessToken = ""
	o.pendingToken = ""
	o.email = ""
	o.password = ""
	o.confirm = ""
	o.errMsg = ""
	o.okMsg = ""
	o.phase = PhaseSignedOut
	o.mode = validation.ModeSignIn
	o.refreshQuickUnlockLocked(ctx)
	o.publishLocked()
	return nil
}

// DisableBiometrics clears the vault credential and opt-in flag.
func (o *Orchestrator) DisableBiometrics(ctx context.Context) error {
	if err := o.gateway.Clear(ctx); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.refreshQuickUnlockLocked(ctx)
	o.publishLocked()
	return nil
}

// --- internals ---

// completeSignUp applies the sign-up result. Stale completions (a newer
// submit started, or the orchestrator closed) are dropped.
func (o *Orchestrator) completeSignUp(gen uint64, email string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.gen != gen {
		return
	}
	if err != nil {
		// Back to the form, entered values intact, so a typo can be fixed
		// without retyping everything.
		o.phase = PhaseSignedOut
		if !errors.Is(err, context.Canceled) {
			o.errMsg = messageFor(err)
		}
		o.publishLocked()
		return
	}
	o.phase = PhaseAwaitingEmailConfirmation
	o.pendingEmail = email
	o.email = ""
	o.password = ""
	o.confirm = ""
	o.okMsg = msgConfirmationSent
	o.cooldown.Start()
	o.publishLocked()
}

// completeAuthentication applies the outcome of any token-yielding path
// (password, federated, quick unlock). On success it decides whether to
// offer the quick-unlock opt-in, keep an already-enabled vault credential
// fresh with the rotated token, or just discard the token.
func (o *Orchestrator) completeAuthentication(ctx context.Context, gen uint64, session *identity.Session, err error) {
	if err != nil {
		o.mu.Lock()
		defer o.mu.Unlock()
		if o.closed || o.gen != gen {
			return
		}
		o.phase = PhaseSignedOut
		if !errors.Is(err, context.Canceled) && !errors.Is(err, identity.ErrFederatedAuth) {
			o.errMsg = messageFor(err)
		} else if errors.Is(err, identity.ErrFederatedAuth) {
			o.errMsg = msgFederatedFailed
		}
		o.publishLocked()
		return
	}

	// A stale completion (newer submit started, or the orchestrator closed)
	// must not touch the vault, so check before the gateway side effects.
	o.mu.Lock()
	stale := o.closed || o.gen != gen
	o.mu.Unlock()
	if stale {
		return
	}

	// Gateway checks happen before taking the lock; they hit local storage.
	enabled, enabledErr := o.gateway.IsUserEnabled(ctx)
	if enabledErr != nil {
		o.log.Warn(ctx, "reading quick-unlock state", "err", enabledErr)
	}
	offerOptIn := o.gateway.IsCapable() && !enabled && enabledErr == nil

	var persistErr error
	if enabled {
		// Rotation: the stored credential must track the newest token or
		// the next quick unlock would present a consumed one.
		persistErr = o.gateway.Persist(ctx, session.User.Email, session.RefreshToken)
		if persistErr != nil {
			o.log.Error(ctx, "refreshing quick-unlock credential", "err", persistErr)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || o.gen != gen {
		return
	}
	o.user = session.User
	o.accessToken = session.AccessToken
	o.email = ""
	o.password = ""
	o.confirm = ""
	o.errMsg = ""

	if offerOptIn {
		o.pendingToken = session.RefreshToken
		o.phase = PhaseAwaitingBiometricOptIn
	} else {
		o.pendingToken = ""
		o.phase = PhaseAuthenticated
	}
	o.refreshQuickUnlockLocked(ctx)
	o.publishLocked()
}

func (o *Orchestrator) setField(field *string, v string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed || *field == v {
		return
	}
	*field = v
	o.errMsg = ""
	o.publishLocked()
}

func (o *Orchestrator) cooldownChanged(remaining int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.publishLocked()
}

// refreshQuickUnlock re-reads the cached gateway facts used by Snapshot.
func (o *Orchestrator) refreshQuickUnlock(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshQuickUnlockLocked(ctx)
}

func (o *Orchestrator) refreshQuickUnlockLocked(ctx context.Context) {
	if o.gateway == nil {
		o.quickUnlockReady = false
		return
	}
	stored, err := o.gateway.HasStoredCredential(ctx)
	if err != nil {
		o.log.Warn(ctx, "reading stored-credential state", "err", err)
		stored = false
	}
	o.quickUnlockReady = o.gateway.IsCapable() && stored
}

func (o *Orchestrator) snapshotLocked() Snapshot {
	factor := ""
	if o.gateway != nil {
		factor = o.gateway.FactorKind()
	}
	return Snapshot{
		Phase:              o.phase,
		Mode:               o.mode,
		Email:              o.email,
		Password:           o.password,
		Confirm:            o.confirm,
		PendingEmail:       o.pendingEmail,
		UserEmail:          o.user.Email,
		ErrorMessage:       o.errMsg,
		SuccessMessage:     o.okMsg,
		Strength:           validation.PasswordStrength(o.password),
		CanSubmit:          validation.CanSubmit(o.mode, o.email, o.password, o.confirm),
		CooldownSeconds:    o.cooldownRemaining(),
		QuickUnlockOffered: o.quickUnlockReady,
		FactorKind:         factor,
	}
}

func (o *Orchestrator) cooldownRemaining() int {
	if o.cooldown == nil {
		return 0
	}
	return o.cooldown.Remaining()
}

// publishLocked fans the current snapshot out to watchers, latest-wins: a
// slow consumer loses intermediate snapshots instead of blocking the core.
func (o *Orchestrator) publishLocked() {
	if len(o.watchers) == 0 {
		return
	}
	snap := o.snapshotLocked()
	for _, ch := range o.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
