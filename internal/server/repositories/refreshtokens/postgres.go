package refreshtokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/dbx"
	"github.com/mvailland/latchkey/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, userID, token, family string, validity time.Duration) error {

	query :=
		`INSERT INTO refresh_tokens (user_id, token, family, expires_at)
         VALUES ($1, $2, $3, $4)
		 `

	_, err := r.db.ExecContext(ctx, query, userID, token, family, time.Now().Add(validity))
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	query :=
		`SELECT id, user_id, token, family, revoked, expires_at, created_at
		 FROM refresh_tokens
		 WHERE token = $1
		 `

	rt := &models.RefreshToken{}
	err := r.db.QueryRowContext(ctx, query, token).
		Scan(&rt.ID, &rt.UserID, &rt.Token, &rt.Family, &rt.Revoked, &rt.Expires, &rt.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return rt, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, token string) error {
	return r.revokeWhere(ctx, "token = $1", token)
}

func (r *PostgresRepository) RevokeFamily(ctx context.Context, family string) error {
	return r.revokeWhere(ctx, "family = $1", family)
}

func (r *PostgresRepository) RevokeAllForUser(ctx context.Context, userID string) error {
	return r.revokeWhere(ctx, "user_id = $1", userID)
}

func (r *PostgresRepository) revokeWhere(ctx context.Context, cond, arg string) error {
	query := fmt.Sprintf(`UPDATE refresh_tokens SET revoked = TRUE WHERE %s`, cond)

	if _, err := r.db.ExecContext(ctx, query, arg); err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}
