package users

import (
	"context"

	"github.com/quiksafe/quiksafebot/internal/models"
)

type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByChatID(ctx context.Context, chatID int64) (*models.User, error)
	UpdateCredentials(ctx context.Context, userID string, salt, verifier []byte) error
}
