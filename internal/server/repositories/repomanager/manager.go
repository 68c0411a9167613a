package repomanager

import (
	"context"
	"database/sql"

	"github.com/mvailland/latchkey/internal/dbx"
	"github.com/mvailland/latchkey/internal/server/repositories/refreshtokens"
	"github.com/mvailland/latchkey/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
}
