package secrets

import (
	"context"

	"github.com/quiksafe/quiksafebot/internal/cryptox"
	"github.com/quiksafe/quiksafebot/internal/models"
)

type Repository interface {
	Save(ctx context.Context, secret *models.Secret) error
	LoadByUser(ctx context.Context, userID string, filter models.Filter) ([]*models.Secret, error)
	Get(ctx context.Context, id string) (*models.Secret, error)
	UpdateStatus(ctx context.Context, id string, status string) error
	UpdateBlobKey(ctx context.Context, id string, blobKey string) error
	Delete(ctx context.Context, id string) error
	ReplaceEnvelopes(ctx context.Context, id string, envelopes map[string]*cryptox.Envelope) error
}
