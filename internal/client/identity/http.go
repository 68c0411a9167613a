package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// wire error codes returned by the identity service in the "error" field.
const (
	codeInvalidCredentials = "invalid_credentials"
	codeUnconfirmedEmail   = "email_not_confirmed"
	codeEmailInUse         = "email_in_use"
	codeWeakPassword       = "weak_password"
	codeTokenExpired       = "token_expired"
	codeTokenRevoked       = "token_revoked"
	codeFederatedAuth      = "federated_auth_failed"
	codeThrottled          = "over_request_rate_limit"
)

// HTTPClient implements Client over the identity service's JSON API.
type HTTPClient struct {
	baseURL string
	http    *http.Client
}

// NewHTTPClient builds a client for the identity service at baseURL
// (e.g. "http://127.0.0.1:8080"). timeout bounds every request.
func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	User         *struct {
		ID        string `json:"id"`
		Email     string `json:"email"`
		Confirmed bool   `json:"confirmed"`
	} `json:"user"`
}

type errorResponse struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func (c *HTTPClient) SignIn(ctx context.Context, email, password string) (*Session, error) {
	body := map[string]string{"email": email, "password": password}
	return c.tokenRequest(ctx, "password", body)
}

func (c *HTTPClient) SignUp(ctx context.Context, email, password string) error {
	body := map[string]string{"email": email, "password": password}
	return c.do(ctx, http.MethodPost, "/v1/signup", body, "", nil)
}

func (c *HTTPClient) SignInWithFederated(ctx context.Context, assertion FederatedAssertion) (*Session, error) {
	body := map[string]string{
		"provider": assertion.Provider,
		"id_token": assertion.IDToken,
		"nonce":    assertion.Nonce,
	}
	return c.tokenRequest(ctx, "id_token", body)
}

func (c *HTTPClient) RestoreSession(ctx context.Context, refreshToken string) (*Session, error) {
	body := map[string]string{"refresh_token": refreshToken}
	return c.tokenRequest(ctx, "refresh_token", body)
}

func (c *HTTPClient) ResetPassword(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/recover", map[string]string{"email": email}, "", nil)
}

func (c *HTTPClient) ResendConfirmation(ctx context.Context, email string) error {
	return c.do(ctx, http.MethodPost, "/v1/resend", map[string]string{"email": email}, "", nil)
}

func (c *HTTPClient) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/v1/logout", nil, accessToken, nil)
}

func (c *HTTPClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *HTTPClient) tokenRequest(ctx context.Context, grantType string, body any) (*Session, error) {
	var resp sessionResponse
	path := "/v1/token?grant_type=" + url.QueryEscape(grantType)
	if err := c.do(ctx, http.MethodPost, path, body, "", &resp); err != nil {
		return nil, err
	}

	session := &Session{
		AccessToken:  resp.AccessToken,
		RefreshToken: resp.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}
	if resp.User != nil {
		session.User = User{ID: resp.User.ID, Email: resp.User.Email, Confirmed: resp.User.Confirmed}
	} else {
		// Older service versions omit the user object; recover identity
		// from the access token's claims. The signature is the server's
		// concern, not ours, so an unverified parse is fine here.
		session.User = userFromClaims(resp.AccessToken)
	}
	return session, nil
}

func userFromClaims(accessToken string) User {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(accessToken, claims); err != nil {
		return User{}
	}
	u := User{Confirmed: true}
	if sub, err := claims.GetSubject(); err == nil {
		u.ID = sub
	}
	if email, ok := claims["email"].(string); ok {
		u.Email = email
	}
	return u
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, bearer string, out any) error {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return c.mapError(resp)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("%w: decoding response: %v", ErrUnavailable, err)
		}
	}
	return nil
}

// mapError converts a wire error payload into one of the package sentinels.
// Unknown codes and unparseable bodies degrade to ErrUnavailable so callers
// always get something they can match on.
func (c *HTTPClient) mapError(resp *http.Response) error {
	var wire errorResponse
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = json.Unmarshal(data, &wire)

	var sentinel error
	switch wire.Code {
	case codeInvalidCredentials:
		sentinel = ErrInvalidCredentials
	case codeUnconfirmedEmail:
		sentinel = ErrUnconfirmedEmail
	case codeEmailInUse:
		sentinel = ErrEmailInUse
	case codeWeakPassword:
		sentinel = ErrWeakPassword
	case codeTokenExpired:
		sentinel = ErrTokenExpired
	case codeTokenRevoked:
		sentinel = ErrTokenRevoked
	case codeFederatedAuth:
		sentinel = ErrFederatedAuth
	case codeThrottled:
		sentinel = ErrThrottled
	default:
		if resp.StatusCode == http.StatusTooManyRequests {
			sentinel = ErrThrottled
		} else {
			sentinel = ErrUnavailable
		}
	}

	if wire.Description != "" {
		return fmt.Errorf("%w: %s", sentinel, wire.Description)
	}
	return fmt.Errorf("%w: http %d", sentinel, resp.StatusCode)
}
