package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/logging"
	"github.com/mvailland/latchkey/internal/server/auth"
	"github.com/mvailland/latchkey/internal/server/models"
	"github.com/mvailland/latchkey/internal/server/services"
)

type fakeUserService struct {
	registerOut *models.User
	registerErr error

	pair    *services.TokenPair
	user    *models.User
	flowErr error

	confirmOut *models.User
	confirmErr error

	resendErr error

	signedOutUser string
	signOutErr    error
}

func (f *fakeUserService) Register(ctx context.Context, email, password string) (*models.User, error) {
	if f.registerErr != nil {
		return nil, f.registerErr
	}
	return f.registerOut, nil
}

func (f *fakeUserService) Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error) {
	return f.pair, f.user, f.flowErr
}

func (f *fakeUserService) Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, *models.User, error) {
	return f.pair, f.user, f.flowErr
}

func (f *fakeUserService) Federated(ctx context.Context, provider, idToken, nonce string) (*services.TokenPair, *models.User, error) {
	return f.pair, f.user, f.flowErr
}

func (f *fakeUserService) Confirm(ctx context.Context, token string) (*models.User, error) {
	if f.confirmErr != nil {
		return nil, f.confirmErr
	}
	return f.confirmOut, nil
}

func (f *fakeUserService) ResendConfirmation(ctx context.Context, email string) error {
	return f.resendErr
}

func (f *fakeUserService) Recover(ctx context.Context, email string) error { return nil }

func (f *fakeUserService) SignOut(ctx context.Context, userID string) error {
	f.signedOutUser = userID
	return f.signOutErr
}

const testSecret = "test-secret"

func newTestServer(t *testing.T, svc *fakeUserService) *httptest.Server {
	t.Helper()
	s := NewServer(":0", svc, []byte(testSecret), logging.NewNoopLogger())
	ts := httptest.NewServer(s.buildRouter())
	t.Cleanup(ts.Close)
	return ts
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeWireError(t *testing.T, resp *http.Response) wireError {
	t.Helper()
	var we wireError
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&we))
	return we
}

func okSession() (*services.TokenPair, *models.User) {
	pair := &services.TokenPair{
		AccessToken:  "access-jwt",
		RefreshToken: "refresh-opaque",
		ExpiresAt:    time.Now().Add(time.Hour),
	}
	user := &models.User{ID: "u-1", Email: "ann@example.com", Confirmed: true}
	return pair, user
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, &fakeUserService{})

	resp, err := http.Get(ts.URL + "/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignup_Success(t *testing.T) {
	svc := &fakeUserService{registerOut: &models.User{ID: "u-1", Email: "ann@example.com"}}
	ts := newTestServer(t, svc)

	resp := postJSON(t, ts.URL+"/v1/signup", map[string]string{"email": "ann@example.com", "password": "Abcdef12!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var ur userResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&ur))
	assert.Equal(t, "u-1", ur.ID)
	assert.False(t, ur.Confirmed)
}

func TestSignup_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"weak password", common.ErrWeakPassword, http.StatusUnprocessableEntity, "weak_password"},
		{"email in use", common.ErrorAlreadyExists, http.StatusUnprocessableEntity, "email_in_use"},
		{"internal", common.ErrorInternal, http.StatusInternalServerError, "internal_error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeUserService{registerErr: tt.err})

			resp := postJSON(t, ts.URL+"/v1/signup", map[string]string{"email": "a@b.co", "password": "x"})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeWireError(t, resp).Code)
		})
	}
}

func TestToken_PasswordGrant(t *testing.T) {
	pair, user := okSession()
	ts := newTestServer(t, &fakeUserService{pair: pair, user: user})

	resp := postJSON(t, ts.URL+"/v1/token?grant_type=password", map[string]string{"email": "ann@example.com", "password": "Abcdef12!"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var sr sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&sr))
	assert.Equal(t, "access-jwt", sr.AccessToken)
	assert.Equal(t, "bearer", sr.TokenType)
	assert.Equal(t, "refresh-opaque", sr.RefreshToken)
	assert.Greater(t, sr.ExpiresIn, int64(0))
	assert.Equal(t, "ann@example.com", sr.User.Email)
}

func TestToken_GrantErrors(t *testing.T) {
	tests := []struct {
		name       string
		grant      string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"wrong password", "password", common.ErrorUnauthorized, http.StatusUnauthorized, "invalid_credentials"},
		{"unconfirmed email", "password", common.ErrEmailNotConfirmed, http.StatusForbidden, "email_not_confirmed"},
		{"expired refresh", "refresh_token", common.ErrTokenExpired, http.StatusUnauthorized, "token_expired"},
		{"revoked refresh", "refresh_token", common.ErrTokenRevoked, http.StatusUnauthorized, "token_revoked"},
		{"bad id_token", "id_token", auth.ErrFederatedToken, http.StatusUnauthorized, "federated_auth_failed"},
		{"unknown provider", "id_token", auth.ErrUnknownProvider, http.StatusUnauthorized, "federated_auth_failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, &fakeUserService{flowErr: tt.err})

			resp := postJSON(t, ts.URL+"/v1/token?grant_type="+tt.grant, map[string]string{})
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			assert.Equal(t, tt.wantCode, decodeWireError(t, resp).Code)
		})
	}
}

func TestToken_UnsupportedGrant(t *testing.T) {
	ts := newTestServer(t, &fakeUserService{})

	resp := postJSON(t, ts.URL+"/v1/token?grant_type=implicit", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decodeWireError(t, resp).Code)
}

func TestResend_Throttled(t *testing.T) {
	ts := newTestServer(t, &fakeUserService{resendErr: common.ErrThrottled})

	resp := postJSON(t, ts.URL+"/v1/resend", map[string]string{"email": "ann@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "over_request_rate_limit", decodeWireError(t, resp).Code)
}

func TestRecover_AlwaysOK(t *testing.T) {
	ts := newTestServer(t, &fakeUserService{})

	resp := postJSON(t, ts.URL+"/v1/recover", map[string]string{"email": "nobody@example.com"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestVerify(t *testing.T) {
	t.Run("confirms and renders text", func(t *testing.T) {
		svc := &fakeUserService{confirmOut: &models.User{ID: "u-1", Email: "ann@example.com", Confirmed: true}}
		ts := newTestServer(t, svc)

		resp, err := http.Get(ts.URL + "/v1/verify?token=tok-1")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(body), "ann@example.com")
	})

	t.Run("unknown token", func(t *testing.T) {
		ts := newTestServer(t, &fakeUserService{confirmErr: common.ErrorNotFound})

		resp, err := http.Get(ts.URL + "/v1/verify?token=bad")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})

	t.Run("missing token", func(t *testing.T) {
		ts := newTestServer(t, &fakeUserService{})

		resp, err := http.Get(ts.URL + "/v1/verify")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogout(t *testing.T) {
	t.Run("revokes tokens for the bearer", func(t *testing.T) {
		svc := &fakeUserService{}
		ts := newTestServer(t, svc)

		token, err := auth.GenerateToken("u-1", "ann@example.com", []byte(testSecret), time.Minute)
		require.NoError(t, err)

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/logout", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusNoContent, resp.StatusCode)
		assert.Equal(t, "u-1", svc.signedOutUser)
	})

	t.Run("missing bearer", func(t *testing.T) {
		ts := newTestServer(t, &fakeUserService{})

		resp, err := http.Post(ts.URL+"/v1/logout", "application/json", nil)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("garbage bearer", func(t *testing.T) {
		ts := newTestServer(t, &fakeUserService{})

		req, err := http.NewRequest(http.MethodPost, ts.URL+"/v1/logout", nil)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer nonsense")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})
}

func TestMalformedBody(t *testing.T) {
	ts := newTestServer(t, &fakeUserService{})

	resp, err := http.Post(ts.URL+"/v1/signup", "application/json", bytes.NewReader([]byte("{nope")))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "invalid_request", decodeWireError(t, resp).Code)
}
