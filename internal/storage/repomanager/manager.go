package repomanager

import (
	"context"
	"database/sql"

	"github.com/quiksafe/quiksafebot/internal/dbx"
	"github.com/quiksafe/quiksafebot/internal/storage/secrets"
	"github.com/quiksafe/quiksafebot/internal/storage/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Secrets(db dbx.DBTX) secrets.Repository
}
