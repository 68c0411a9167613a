// Package httpapi exposes the identity service over HTTP/JSON. The surface
// is GoTrue-flavored: a signup endpoint, a token endpoint switched on
// grant_type, recovery/resend endpoints, and a confirmation link handler.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mvailland/latchkey/internal/logging"
	"github.com/mvailland/latchkey/internal/server/models"
	"github.com/mvailland/latchkey/internal/server/services"
)

// userService is the slice of services.UserService the handlers use.
type userService interface {
	Register(ctx context.Context, email, password string) (*models.User, error)
	Login(ctx context.Context, email, password string) (*services.TokenPair, *models.User, error)
	Refresh(ctx context.Context, refreshToken string) (*services.TokenPair, *models.User, error)
	Federated(ctx context.Context, provider, idToken, nonce string) (*services.TokenPair, *models.User, error)
	Confirm(ctx context.Context, token string) (*models.User, error)
	ResendConfirmation(ctx context.Context, email string) error
	Recover(ctx context.Context, email string) error
	SignOut(ctx context.Context, userID string) error
}

// Server wires the user service into an http.Server.
type Server struct {
	users     userService
	jwtSecret []byte
	logger    logging.Logger
	httpSrv   *http.Server
}

// NewServer builds a Server listening on addr.
func NewServer(addr string, users userService, jwtSecret []byte, logger logging.Logger) *Server {
	s := &Server{
		users:     users,
		jwtSecret: jwtSecret,
		logger:    logger,
	}
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(bodySizeLimitMiddleware)

	r.Route("/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Post("/signup", s.handleSignup)
		r.Post("/token", s.handleToken)
		r.Post("/recover", s.handleRecover)
		r.Post("/resend", s.handleResend)
		r.Get("/verify", s.handleVerify)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)
			r.Post("/logout", s.handleLogout)
		})
	})

	return r
}

// ListenAndServe blocks serving requests until Shutdown or a fatal error.
func (s *Server) ListenAndServe() error {
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}
