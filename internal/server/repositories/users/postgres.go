package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/mvailland/latchkey/internal/common"
	"github.com/mvailland/latchkey/internal/dbx"
	"github.com/mvailland/latchkey/internal/server/models"
)

const pgUniqueViolation = "23505"

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (email, password_hash, confirmed, confirmation_token, confirmation_sent_at)
         VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.Email, user.PasswordHash, user.Confirmed, user.ConfirmationToken, user.ConfirmationSentAt).
		Scan(&user.ID, &user.CreatedAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, common.ErrorAlreadyExists
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query :=
		`SELECT id, email, password_hash, confirmed, confirmation_token, confirmation_sent_at, created_at
		 FROM users
		 WHERE email = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query :=
		`SELECT id, email, password_hash, confirmed, confirmation_token, confirmation_sent_at, created_at
		 FROM users
		 WHERE id = $1
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) ConfirmByToken(ctx context.Context, token string) (*models.User, error) {
	query :=
		`UPDATE users SET confirmed = TRUE, confirmation_token = ''
		 WHERE confirmation_token = $1 AND confirmation_token <> ''
		 RETURNING id, email, password_hash, confirmed, confirmation_token, confirmation_sent_at, created_at
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, token))
}

func (r *PostgresRepository) UpdateConfirmationToken(ctx context.Context, userID, token string, sentAt time.Time) error {
	query :=
		`UPDATE users SET confirmation_token = $2, confirmation_sent_at = $3
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, token, sentAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}

func (r *PostgresRepository) UpsertFederated(ctx context.Context, email string) (*models.User, error) {
	query :=
		`INSERT INTO users (email, confirmed)
		 VALUES ($1, TRUE)
		 ON CONFLICT (email) DO UPDATE SET confirmed = TRUE
		 RETURNING id, email, password_hash, confirmed, confirmation_token, confirmation_sent_at, created_at
		 `

	return r.scanOne(r.db.QueryRowContext(ctx, query, email))
}

func (r *PostgresRepository) scanOne(row *sql.Row) (*models.User, error) {
	user := &models.User{}
	var sentAt sql.NullTime

	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash, &user.Confirmed,
		&user.ConfirmationToken, &sentAt, &user.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if sentAt.Valid {
		user.ConfirmationSentAt = sentAt.Time
	}

	return user, nil
}
