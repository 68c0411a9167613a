// Package services contains server-side business logic. This file implements
// UserService, which handles registration with email confirmation, login,
// federated sign-in, and issuing/rotating refresh-token families.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/dbx"
	"github.com/mvailland/latchkey/internal/logging"
	"github.com/mvailland/latchkey/internal/server/auth"
	"github.com/mvailland/latchkey/internal/server/config"
	"github.com/mvailland/latchkey/internal/server/models"
	"github.com/mvailland/latchkey/internal/server/repositories/repomanager"
	"github.com/mvailland/latchkey/internal/validation"
)

// TokenPair bundles a short-lived access token and a long-lived refresh token.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// UserService provides account and authentication operations:
//   - Register: create unconfirmed accounts and issue confirmation tokens
//   - Login: verify credentials on confirmed accounts and mint tokens
//   - Refresh: rotate refresh tokens within their family
//   - Federated: accept verified provider id_tokens
type UserService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	federated   *auth.FederatedVerifier
	log         logging.Logger

	jwtSecret                    []byte
	accessTokenValidityDuration  time.Duration
	refreshTokenValidityDuration time.Duration

	resendCooldown time.Duration
	resendMu       sync.Mutex
	resendLast     map[string]time.Time
	now            func() time.Time
}

// NewUserService constructs a UserService using repositories and server config.
func NewUserService(db *sql.DB, m repomanager.RepositoryManager, fv *auth.FederatedVerifier, cfg *config.Config, log logging.Logger) *UserService {
	return &UserService{
		db:                           db,
		repomanager:                  m,
		federated:                    fv,
		log:                          log,
		jwtSecret:                    []byte(cfg.SecretKey),
		accessTokenValidityDuration:  cfg.AccessTokenValidityDuration,
		refreshTokenValidityDuration: cfg.RefreshTokenValidityDuration,
		resendCooldown:               cfg.ResendCooldown,
		resendLast:                   make(map[string]time.Time),
		now:                          time.Now,
	}
}

// Register creates a new unconfirmed account and issues a confirmation
// token. The confirmation link is logged instead of mailed; deployments
// hook a real outbox onto the log stream.
func (s *UserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	if !validation.IsEmailValid(email) {
		return nil, common.ErrorUnauthorized
	}
	if !validation.IsPasswordValid(password) {
		return nil, common.ErrWeakPassword
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		Email:              email,
		PasswordHash:       hash,
		ConfirmationToken:  uuid.NewString(),
		ConfirmationSentAt: s.now(),
	}

	repo := s.repomanager.Users(s.db)
	u, err := repo.Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrorAlreadyExists) {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.resendMu.Lock()
	s.resendLast[email] = s.now()
	s.resendMu.Unlock()

	s.log.Info(ctx, "confirmation mail queued", "email", u.Email, "link", s.confirmationLink(u.ConfirmationToken))

	return u, nil
}

// Login verifies the password on a confirmed account and returns a fresh
// token pair in a new rotation family.
func (s *UserService) Login(ctx context.Context, email, password string) (*TokenPair, *models.User, error) {
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorUnauthorized
		}
		return nil, nil, common.ErrorInternal
	}

	if user.PasswordHash == "" {
		return nil, nil, common.ErrorUnauthorized
	}
	ok, err := auth.VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}
	if !ok {
		return nil, nil, common.ErrorUnauthorized
	}

	if !user.Confirmed {
		return nil, nil, common.ErrEmailNotConfirmed
	}

	pair, err := s.generateTokenPair(ctx, user, uuid.NewString(), s.db)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Refresh validates a refresh token and rotates it transactionally within
// its family. A revoked token is treated as theft evidence: the whole
// family is revoked and the caller gets ErrTokenRevoked.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, *models.User, error) {
	repo := s.repomanager.RefreshTokens(s.db)

	token, err := repo.Find(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrTokenRevoked
		}
		return nil, nil, common.ErrorInternal
	}

	if token.Revoked {
		if err := repo.RevokeFamily(ctx, token.Family); err != nil {
			s.log.Error(ctx, "revoking token family", "family", token.Family, "error", err)
		}
		return nil, nil, common.ErrTokenRevoked
	}
	if token.Expires.Before(s.now()) {
		return nil, nil, common.ErrTokenExpired
	}

	user, err := s.repomanager.Users(s.db).GetByID(ctx, token.UserID)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	var pair *TokenPair
	if err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.repomanager.RefreshTokens(tx).Revoke(ctx, refreshToken); err != nil {
			return fmt.Errorf("error revoking refresh token: %w", err)
		}
		var genErr error
		pair, genErr = s.generateTokenPair(ctx, user, token.Family, tx)
		return genErr
	}); err != nil {
		return nil, nil, err
	}

	return pair, user, nil
}

// Federated verifies a provider id_token and signs the asserted user in,
// creating a confirmed account on first contact.
func (s *UserService) Federated(ctx context.Context, provider, idToken, nonce string) (*TokenPair, *models.User, error) {
	identity, err := s.federated.Verify(provider, idToken, nonce)
	if err != nil {
		return nil, nil, err
	}

	user, err := s.repomanager.Users(s.db).UpsertFederated(ctx, identity.Email)
	if err != nil {
		return nil, nil, common.ErrorInternal
	}

	pair, err := s.generateTokenPair(ctx, user, uuid.NewString(), s.db)
	if err != nil {
		return nil, nil, err
	}
	return pair, user, nil
}

// Confirm marks the account holding the confirmation token as confirmed.
func (s *UserService) Confirm(ctx context.Context, token string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).ConfirmByToken(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, common.ErrorInternal
	}
	return user, nil
}

// ResendConfirmation issues a fresh confirmation token for an unconfirmed
// account, throttled per address. Unknown and already-confirmed addresses
// are silently accepted so existence does not leak.
func (s *UserService) ResendConfirmation(ctx context.Context, email string) error {
	s.resendMu.Lock()
	if last, ok := s.resendLast[email]; ok && s.now().Sub(last) < s.resendCooldown {
		s.resendMu.Unlock()
		return common.ErrThrottled
	}
	s.resendLast[email] = s.now()
	s.resendMu.Unlock()

	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil
		}
		return common.ErrorInternal
	}
	if user.Confirmed {
		return nil
	}

	token := uuid.NewString()
	if err := repo.UpdateConfirmationToken(ctx, user.ID, token, s.now()); err != nil {
		return common.ErrorInternal
	}

	s.log.Info(ctx, "confirmation mail queued", "email", email, "link", s.confirmationLink(token))

	return nil
}

// Recover accepts any address and logs a reset link when the account
// exists. Always succeeds so existence does not leak.
func (s *UserService) Recover(ctx context.Context, email string) error {
	user, err := s.repomanager.Users(s.db).GetByEmail(ctx, email)
	if err != nil {
		return nil
	}

	s.log.Info(ctx, "recovery mail queued", "email", user.Email, "user_id", user.ID)

	return nil
}

// SignOut revokes every refresh token belonging to the user.
func (s *UserService) SignOut(ctx context.Context, userID string) error {
	if err := s.repomanager.RefreshTokens(s.db).RevokeAllForUser(ctx, userID); err != nil {
		return common.ErrorInternal
	}
	return nil
}

// --- helpers below ---

func (s *UserService) confirmationLink(token string) string {
	return fmt.Sprintf("/v1/verify?token=%s", token)
}

func (s *UserService) generateRefreshToken() (string, error) {
	return common.MakeRandHexString(32)
}

func (s *UserService) generateTokenPair(ctx context.Context, user *models.User, family string, tx dbx.DBTX) (*TokenPair, error) {
	expiresAt := s.now().Add(s.accessTokenValidityDuration)

	access, err := auth.GenerateToken(user.ID, user.Email, s.jwtSecret, s.accessTokenValidityDuration)
	if err != nil {
		return nil, common.ErrorInternal
	}
	refresh, err := s.generateRefreshToken()
	if err != nil {
		return nil, common.ErrorInternal
	}

	if err := s.repomanager.RefreshTokens(tx).Create(ctx, user.ID, refresh, family, s.refreshTokenValidityDuration); err != nil {
		return nil, common.ErrorInternal
	}

	return &TokenPair{AccessToken: access, RefreshToken: refresh, ExpiresAt: expiresAt}, nil
}
