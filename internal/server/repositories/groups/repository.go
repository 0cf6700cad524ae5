package groups

import (
	"context"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

type Repository interface {
	// Create inserts the group and enrolls the owner as its first member.
	Create(ctx context.Context, group *models.SharedGroup) error
	// GetByID loads the group with its member list; common.ErrorNotFound
	// when absent.
	GetByID(ctx context.Context, id string) (*models.SharedGroup, error)
	// ListForUser returns every group the user is a member of.
	ListForUser(ctx context.Context, userID string) ([]*models.SharedGroup, error)
	// AddMember enrolls userID; adding an existing member is a no-op.
	AddMember(ctx context.Context, groupID, userID string) error
	// RemoveMember removes userID; common.ErrorNotFound when not a member.
	RemoveMember(ctx context.Context, groupID, userID string) error
	// MemberGroupIDs returns the IDs of every group the user belongs to.
	MemberGroupIDs(ctx context.Context, userID string) ([]string, error)
}
