package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/dbx"
	"github.com/quiksafe/quiksafebot/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {

	query :=
		`INSERT INTO users (chat_id, salt, master_key_verifier)
         VALUES ($1, $2, $3)
		 RETURNING id
		 `

	err := r.db.QueryRowContext(ctx, query,
		user.ChatID, user.Salt, user.Verifier).Scan(&user.ID)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	query :=
		`SELECT id, chat_id, salt, master_key_verifier FROM users
		 WHERE chat_id = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, chatID).Scan(&user.ID, &user.ChatID, &user.Salt, &user.Verifier)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) UpdateCredentials(ctx context.Context, userID string, salt, verifier []byte) error {
	query :=
		`UPDATE users SET salt = $2, master_key_verifier = $3, updated_at = now()
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, userID, salt, verifier)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}

	return nil
}
