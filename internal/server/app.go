// Package server initializes and runs the identity server: database setup
// with migrations, federated key loading, service wiring, the HTTP API, and
// graceful shutdown on OS signals.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mvailland/latchkey/internal/logging"
	"github.com/mvailland/latchkey/internal/server/auth"
	"github.com/mvailland/latchkey/internal/server/config"
	"github.com/mvailland/latchkey/internal/server/httpapi"
	"github.com/mvailland/latchkey/internal/server/repositories/repomanager"
	"github.com/mvailland/latchkey/internal/server/services"
)

const shutdownTimeout = 10 * time.Second

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	userService *services.UserService
}

func NewApp(cfg *config.Config) (*App, error) {

	sl := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	logger := logging.NewSlogLogger(sl)

	db, err := sql.Open("pgx", cfg.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(context.Background(), db); err != nil {
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	fv, err := loadFederatedVerifier(cfg)
	if err != nil {
		return nil, err
	}

	us := services.NewUserService(db, rm, fv, cfg, logger)

	return &App{config: cfg, logger: logger, db: db, userService: us}, nil
}

// loadFederatedVerifier reads the configured provider public keys from disk.
func loadFederatedVerifier(cfg *config.Config) (*auth.FederatedVerifier, error) {
	fv := auth.NewFederatedVerifier(cfg.FederatedAudience)
	for provider, path := range cfg.FederatedKeyFiles {
		pemBytes, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading federated key for %s: %w", provider, err)
		}
		if err := fv.AddProviderKeyPEM(provider, pemBytes); err != nil {
			return nil, err
		}
	}
	return fv, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := httpapi.NewServer(app.config.EndpointAddr, app.userService, []byte(app.config.SecretKey), app.logger)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			app.logger.Error(shutdownCtx, "http shutdown error", "error", err)
		}
	}()

	app.logger.Info(ctx, "http server listening", "addr", app.config.EndpointAddr)

	if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "db close error", "error", err)
	}
}
