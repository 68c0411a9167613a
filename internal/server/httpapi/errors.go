package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/server/auth"
)

// wireError is the error payload shape clients parse.
type wireError struct {
	Code        string `json:"error"`
	Description string `json:"error_description"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeWireError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, wireError{Code: code, Description: description})
}

// writeServiceError maps service-layer sentinels onto the wire codes and
// HTTP statuses clients expect.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, common.ErrorUnauthorized):
		writeWireError(w, http.StatusUnauthorized, "invalid_credentials", "Invalid login credentials")
	case errors.Is(err, common.ErrEmailNotConfirmed):
		writeWireError(w, http.StatusForbidden, "email_not_confirmed", "Email not confirmed")
	case errors.Is(err, common.ErrorAlreadyExists):
		writeWireError(w, http.StatusUnprocessableEntity, "email_in_use", "A user with this email address has already been registered")
	case errors.Is(err, common.ErrWeakPassword):
		writeWireError(w, http.StatusUnprocessableEntity, "weak_password", "Password does not meet requirements")
	case errors.Is(err, common.ErrTokenExpired):
		writeWireError(w, http.StatusUnauthorized, "token_expired", "Refresh token expired")
	case errors.Is(err, common.ErrTokenRevoked):
		writeWireError(w, http.StatusUnauthorized, "token_revoked", "Refresh token revoked")
	case errors.Is(err, auth.ErrFederatedToken), errors.Is(err, auth.ErrUnknownProvider):
		writeWireError(w, http.StatusUnauthorized, "federated_auth_failed", "Identity token rejected")
	case errors.Is(err, common.ErrThrottled):
		writeWireError(w, http.StatusTooManyRequests, "over_request_rate_limit", "Too many requests, try again later")
	default:
		writeWireError(w, http.StatusInternalServerError, "internal_error", "Internal server error")
	}
}
