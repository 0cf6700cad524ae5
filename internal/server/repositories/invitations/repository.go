package invitations

import (
	"context"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, inv *models.Invitation) error
	// GetByID returns common.ErrorNotFound when absent.
	GetByID(ctx context.Context, id string) (*models.Invitation, error)
	ListForGroup(ctx context.Context, groupID string) ([]*models.Invitation, error)
	ListForEmail(ctx context.Context, email string) ([]*models.Invitation, error)
	// UpdateStatus transitions the invitation from `from` to `to`; returns
	// common.ErrNotPending when the row is no longer in `from`.
	UpdateStatus(ctx context.Context, id string, from, to models.InvitationStatus) error
}
