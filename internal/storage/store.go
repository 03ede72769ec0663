// Package storage binds the per-aggregate postgres repositories into the
// persistence facade the vault core depends on.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/quiksafe/quiksafebot/internal/dbx"
	"github.com/quiksafe/quiksafebot/internal/models"
	"github.com/quiksafe/quiksafebot/internal/storage/repomanager"
)

// Store implements the vault core's UserStore, SecretStore, and Rekeyer
// contracts on top of a single *sql.DB connection pool.
type Store struct {
	conn *sql.DB
	mgr  repomanager.RepositoryManager
}

// Open connects to postgres, runs pending migrations, and returns the
// ready-to-use store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	mgr := repomanager.NewPostgresRepositoryManager()
	if err := mgr.RunMigrations(ctx, conn); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &Store{conn: conn, mgr: mgr}, nil
}

// NewStore wraps an existing connection, used by tests.
func NewStore(conn *sql.DB, mgr repomanager.RepositoryManager) *Store {
	return &Store{conn: conn, mgr: mgr}
}

func (s *Store) Close() error {
	return s.conn.Close()
}

func (s *Store) Create(ctx context.Context, user *models.User) (*models.User, error) {
	return s.mgr.Users(s.conn).Create(ctx, user)
}

func (s *Store) GetByChatID(ctx context.Context, chatID int64) (*models.User, error) {
	return s.mgr.Users(s.conn).GetByChatID(ctx, chatID)
}

func (s *Store) Save(ctx context.Context, secret *models.Secret) error {
	return s.mgr.Secrets(s.conn).Save(ctx, secret)
}

func (s *Store) LoadByUser(ctx context.Context, userID string, filter models.Filter) ([]*models.Secret, error) {
	return s.mgr.Secrets(s.conn).LoadByUser(ctx, userID, filter)
}

func (s *Store) Get(ctx context.Context, id string) (*models.Secret, error) {
	return s.mgr.Secrets(s.conn).Get(ctx, id)
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status string) error {
	return s.mgr.Secrets(s.conn).UpdateStatus(ctx, id, status)
}

func (s *Store) UpdateBlobKey(ctx context.Context, id string, blobKey string) error {
	return s.mgr.Secrets(s.conn).UpdateBlobKey(ctx, id, blobKey)
}

func (s *Store) Delete(ctx context.Context, id string) error {
	return s.mgr.Secrets(s.conn).Delete(ctx, id)
}

// Rekey swaps the user's credentials and every re-encrypted envelope set in
// one transaction. A failure anywhere rolls the whole swap back, so the old
// key keeps working.
func (s *Store) Rekey(ctx context.Context, userID string, salt, verifier []byte, secretList []*models.Secret) error {
	return dbx.WithTx(ctx, s.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.mgr.Users(tx).UpdateCredentials(ctx, userID, salt, verifier); err != nil {
			return err
		}
		for _, secret := range secretList {
			if err := s.mgr.Secrets(tx).ReplaceEnvelopes(ctx, secret.ID, secret.Encrypted); err != nil {
				return err
			}
		}
		return nil
	})
}
