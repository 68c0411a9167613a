package cli

import (
	"bufio"
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mvailland/latchkey/internal/client/biometric"
	"github.com/mvailland/latchkey/internal/client/config"
	"github.com/mvailland/latchkey/internal/client/identity"
	"github.com/mvailland/latchkey/internal/client/migrations"
	"github.com/mvailland/latchkey/internal/client/repositories/credentials"
	"github.com/mvailland/latchkey/internal/client/session"
	"github.com/mvailland/latchkey/internal/filex"
	"github.com/mvailland/latchkey/internal/logging"
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite"
)

// App owns the client's long-lived pieces: the vault database, the identity
// client, and the session orchestrator the REPL drives.
type App struct {
	config *config.Config
	orch   *session.Orchestrator
	idc    identity.Client
	db     *sql.DB
	reader *bufio.Reader
	out    io.Writer
}

// NewApp opens the vault database in the configured data directory, runs
// its migrations, and wires the orchestrator with the terminal passphrase
// factor as the local quick-unlock prompter.
func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewSlogLogger(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	dataDir, err := filex.EnsureDir(c.DataDir)
	if err != nil {
		return nil, fmt.Errorf("preparing data dir: %w", err)
	}

	db, err := openVault(context.Background(), filepath.Join(dataDir, "vault.db"))
	if err != nil {
		return nil, fmt.Errorf("initializing vault: %w", err)
	}

	repo := credentials.NewSQLiteRepository(db)
	prompter := biometric.NewPassphrasePrompter(repo, os.Stdout)
	gateway := biometric.NewGateway(repo, prompter, filepath.Join(dataDir, "vault.key"), logger)

	idc := identity.NewHTTPClient(c.ServerEndpointURL, c.HTTPTimeout)
	orch := session.NewOrchestrator(idc, gateway, logger)

	return &App{
		config: c,
		orch:   orch,
		idc:    idc,
		db:     db,
		reader: bufio.NewReader(os.Stdin),
		out:    os.Stdout,
	}, nil
}

// Run starts the REPL and blocks until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	defer a.close()
	a.repl(ctx, bufio.NewScanner(os.Stdin))
}

func (a *App) close() {
	a.orch.Close()
	if err := a.idc.Close(); err != nil {
		fmt.Fprintf(a.out, "closing identity client: %v\n", err)
	}
	if err := a.db.Close(); err != nil {
		fmt.Fprintf(a.out, "closing vault: %v\n", err)
	}
}

// openVault opens (or creates) the vault database and applies migrations.
func openVault(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("sqlite3"); err != nil {
		db.Close()
		return nil, err
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}
