package users

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/quiksafe/quiksafebot/internal/common"
	"github.com/quiksafe/quiksafebot/internal/models"
)

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func TestCreate_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users \(chat_id, salt, master_key_verifier\)`).
		WithArgs(int64(42), []byte("salt"), []byte("verifier")).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("u1"))

	user, err := repo.Create(context.Background(), &models.User{
		ChatID:   42,
		Salt:     []byte("salt"),
		Verifier: []byte("verifier"),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" {
		t.Fatalf("want id u1, got %q", user.ID)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`INSERT INTO users`).
		WithArgs(int64(42), []byte("salt"), []byte("verifier")).
		WillReturnError(errors.New("db is down"))

	_, err := repo.Create(context.Background(), &models.User{
		ChatID:   42,
		Salt:     []byte("salt"),
		Verifier: []byte("verifier"),
	})
	if err == nil {
		t.Fatal("want error, got nil")
	}
}

func TestGetByChatID_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	rows := sqlmock.NewRows([]string{"id", "chat_id", "salt", "master_key_verifier"}).
		AddRow("u1", int64(42), []byte("salt"), []byte("verifier"))

	mock.ExpectQuery(`SELECT id, chat_id, salt, master_key_verifier FROM users`).
		WithArgs(int64(42)).
		WillReturnRows(rows)

	user, err := repo.GetByChatID(context.Background(), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.ID != "u1" || user.ChatID != 42 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestGetByChatID_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT id, chat_id, salt, master_key_verifier FROM users`).
		WithArgs(int64(42)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByChatID(context.Background(), 42)
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestUpdateCredentials_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET salt = \$2, master_key_verifier = \$3`).
		WithArgs("u1", []byte("new-salt"), []byte("new-verifier")).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.UpdateCredentials(context.Background(), "u1", []byte("new-salt"), []byte("new-verifier"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdateCredentials_UnknownUser(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE users SET salt = \$2, master_key_verifier = \$3`).
		WithArgs("missing", []byte("s"), []byte("v")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateCredentials(context.Background(), "missing", []byte("s"), []byte("v"))
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}
