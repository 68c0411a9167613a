package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/mvailland/latchkey/internal/server/models"
	"github.com/mvailland/latchkey/internal/server/services"
)

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type federatedRequest struct {
	Provider string `json:"provider"`
	IDToken  string `json:"id_token"`
	Nonce    string `json:"nonce"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type userResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Confirmed bool   `json:"confirmed"`
}

type sessionResponse struct {
	AccessToken  string       `json:"access_token"`
	TokenType    string       `json:"token_type"`
	RefreshToken string       `json:"refresh_token"`
	ExpiresIn    int64        `json:"expires_in"`
	User         userResponse `json:"user"`
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeWireError(w, http.StatusBadRequest, "invalid_request", "Malformed JSON body")
		return false
	}
	return true
}

func sessionFor(pair *services.TokenPair, user *models.User) sessionResponse {
	return sessionResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "bearer",
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    int64(time.Until(pair.ExpiresAt).Seconds()),
		User:         userResponse{ID: user.ID, Email: user.Email, Confirmed: user.Confirmed},
	}
}

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decode(w, r, &req) {
		return
	}

	user, err := s.users.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, userResponse{ID: user.ID, Email: user.Email, Confirmed: user.Confirmed})
}

// handleToken is the session mint endpoint, switched on grant_type:
// password, refresh_token, or id_token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	var (
		pair *services.TokenPair
		user *models.User
		err  error
	)

	switch grant := r.URL.Query().Get("grant_type"); grant {
	case "password":
		var req credentialsRequest
		if !decode(w, r, &req) {
			return
		}
		pair, user, err = s.users.Login(r.Context(), req.Email, req.Password)

	case "refresh_token":
		var req refreshRequest
		if !decode(w, r, &req) {
			return
		}
		pair, user, err = s.users.Refresh(r.Context(), req.RefreshToken)

	case "id_token":
		var req federatedRequest
		if !decode(w, r, &req) {
			return
		}
		pair, user, err = s.users.Federated(r.Context(), req.Provider, req.IDToken, req.Nonce)

	default:
		writeWireError(w, http.StatusBadRequest, "invalid_request", "Unsupported grant_type")
		return
	}

	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, sessionFor(pair, user))
}

func (s *Server) handleRecover(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.users.Recover(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	var req emailRequest
	if !decode(w, r, &req) {
		return
	}

	if err := s.users.ResendConfirmation(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{})
}

// handleVerify serves the confirmation links mailed to users, so it renders
// plain text for a browser rather than JSON.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		http.Error(w, "missing confirmation token", http.StatusBadRequest)
		return
	}

	user, err := s.users.Confirm(r.Context(), token)
	if err != nil {
		http.Error(w, "confirmation link is invalid or already used", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Email " + user.Email + " confirmed. You can now sign in.\n"))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.users.SignOut(r.Context(), userIDFromContext(r.Context())); err != nil {
		writeServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
