package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrUnknownProvider = errors.New("unknown federated provider")
	ErrFederatedToken  = errors.New("federated token rejected")
)

// FederatedIdentity is what a verified provider id_token asserts about the
// user.
type FederatedIdentity struct {
	Subject string
	Email   string
}

type federatedClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email,omitempty"`
	Nonce string `json:"nonce,omitempty"`
}

// FederatedVerifier validates third-party OIDC id_tokens against statically
// configured provider public keys (PEM, RSA or EC).
type FederatedVerifier struct {
	keys     map[string]any
	audience string
}

// NewFederatedVerifier builds a verifier. audience, when non-empty, must
// match the id_token's aud claim.
func NewFederatedVerifier(audience string) *FederatedVerifier {
	return &FederatedVerifier{keys: make(map[string]any), audience: audience}
}

// AddProviderKeyPEM registers a provider's signing public key. RSA and EC
// keys are accepted.
func (v *FederatedVerifier) AddProviderKeyPEM(provider string, pemBytes []byte) error {
	if rsaKey, err := jwt.ParseRSAPublicKeyFromPEM(pemBytes); err == nil {
		v.keys[provider] = rsaKey
		return nil
	}
	ecKey, err := jwt.ParseECPublicKeyFromPEM(pemBytes)
	if err != nil {
		return fmt.Errorf("provider %s: key is neither RSA nor EC PEM: %w", provider, err)
	}
	v.keys[provider] = ecKey
	return nil
}

// Providers lists the configured provider names.
func (v *FederatedVerifier) Providers() []string {
	out := make([]string, 0, len(v.keys))
	for p := range v.keys {
		out = append(out, p)
	}
	return out
}

// Verify checks signature, expiry, audience, and nonce of a provider
// id_token and returns the asserted identity.
func (v *FederatedVerifier) Verify(provider, idToken, nonce string) (*FederatedIdentity, error) {
	key, ok := v.keys[provider]
	if !ok {
		return nil, ErrUnknownProvider
	}

	claims := &federatedClaims{}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(idToken, claims, func(t *jwt.Token) (interface{}, error) {
		return key, nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrFederatedToken
	}

	if nonce != "" && claims.Nonce != nonce {
		return nil, ErrFederatedToken
	}
	if claims.Subject == "" || claims.Email == "" {
		return nil, ErrFederatedToken
	}

	return &FederatedIdentity{Subject: claims.Subject, Email: claims.Email}, nil
}
