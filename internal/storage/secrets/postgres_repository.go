package secrets

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/dbx"
	"github.com/quiksafe/quiksafebot/internal/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const selectColumns = `id, user_id, kind, name, tags, status, priority, due_date, blob_key, envelopes, created_at, updated_at`

func (r *PostgresRepository) Save(ctx context.Context, secret *models.Secret) error {

	envelopes, err := json.Marshal(secret.Encrypted)
	if err != nil {
		return fmt.Errorf("marshal envelopes: %w", err)
	}

	query :=
		`INSERT INTO secrets (id, user_id, kind, name, tags, status, priority, due_date, blob_key, envelopes, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 `

	var dueDate any
	if secret.DueDate != nil {
		dueDate = *secret.DueDate
	}

	_, err = r.db.ExecContext(ctx, query,
		secret.ID, secret.UserID, string(secret.Kind), secret.Name,
		strings.Join(secret.Tags, ","), secret.Status, secret.Priority,
		dueDate, secret.BlobKey, envelopes, secret.CreatedAt, secret.UpdatedAt)

	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	return nil
}

func (r *PostgresRepository) LoadByUser(ctx context.Context, userID string, filter models.Filter) ([]*models.Secret, error) {

	query := `SELECT ` + selectColumns + ` FROM secrets WHERE user_id = $1`
	args := []any{userID}

	if filter.Kind != "" {
		args = append(args, string(filter.Kind))
		query += fmt.Sprintf(" AND kind = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND status = $%d", len(args))
	}
	if filter.Tag != "" {
		args = append(args, filter.Tag)
		query += fmt.Sprintf(" AND ',' || tags || ',' LIKE '%%,' || $%d || ',%%'", len(args))
	}
	if filter.NameLike != "" {
		args = append(args, "%"+filter.NameLike+"%")
		query += fmt.Sprintf(" AND name ILIKE $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Secret
	for rows.Next() {
		secret, err := scanSecret(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, secret)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.Secret, error) {

	query := `SELECT ` + selectColumns + ` FROM secrets WHERE id = $1`

	secret, err := scanSecret(r.db.QueryRowContext(ctx, query, id).Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, err
	}

	return secret, nil
}

func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status string) error {
	query := `UPDATE secrets SET status = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, status)
}

func (r *PostgresRepository) UpdateBlobKey(ctx context.Context, id string, blobKey string) error {
	query := `UPDATE secrets SET blob_key = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, blobKey)
}

func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM secrets WHERE id = $1`
	return r.exec(ctx, query, id)
}

func (r *PostgresRepository) ReplaceEnvelopes(ctx context.Context, id string, envelopes map[string]*cryptox.Envelope) error {
	raw, err := json.Marshal(envelopes)
	if err != nil {
		return fmt.Errorf("marshal envelopes: %w", err)
	}
	query := `UPDATE secrets SET envelopes = $2, updated_at = now() WHERE id = $1`
	return r.exec(ctx, query, id, raw)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
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

func scanSecret(scan func(dest ...any) error) (*models.Secret, error) {
	var (
		secret  models.Secret
		kind    string
		tags    string
		dueDate sql.NullTime
		raw     []byte
	)

	err := scan(&secret.ID, &secret.UserID, &kind, &secret.Name, &tags,
		&secret.Status, &secret.Priority, &dueDate, &secret.BlobKey, &raw,
		&secret.CreatedAt, &secret.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	secret.Kind = models.Kind(kind)
	if tags != "" {
		secret.Tags = strings.Split(tags, ",")
	}
	if dueDate.Valid {
		t := dueDate.Time
		secret.DueDate = &t
	}
	if err := json.Unmarshal(raw, &secret.Encrypted); err != nil {
		return nil, fmt.Errorf("unmarshal envelopes: %w", err)
	}

	return &secret, nil
}
