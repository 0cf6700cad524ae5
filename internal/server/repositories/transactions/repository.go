package transactions

import (
	"context"
	"time"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

// ListQuery is the repository-level shape of a transaction list. The
// service layer resolves a view mode and the caller's memberships into
// the owner/group sets before querying.
type ListQuery struct {
	// IncludePersonal selects rows owned by OwnerID with no group.
	IncludePersonal bool
	OwnerID         string
	// GroupIDs selects rows belonging to any of these groups.
	GroupIDs []string

	Category string
	Merchant string // substring, case-insensitive
	From     time.Time
	To       time.Time

	Limit  int
	Offset int
}

type Repository interface {
	// Create inserts the transaction and its items.
	Create(ctx context.Context, tx *models.Transaction) error
	// Update rewrites the transaction owned by tx.OwnerID and replaces its
	// items wholesale. Returns common.ErrorNotFound when no row matches.
	Update(ctx context.Context, tx *models.Transaction) error
	// Upsert inserts the transaction, or rewrites it when tx.OwnerID
	// already holds the id. Used by batch puts, where the caller does not
	// know which ids already exist.
	Upsert(ctx context.Context, tx *models.Transaction) error
	// Delete removes the transaction if it is owned by ownerID.
	Delete(ctx context.Context, id, ownerID string) error
	GetByID(ctx context.Context, id string) (*models.Transaction, error)
	// List returns a page of matches (date descending) and the total count.
	List(ctx context.Context, q ListQuery) ([]*models.Transaction, int, error)
	// ListForScope returns a scope's transactions in [from, to), date
	// ascending, without items. Used by reports and insights.
	ListForScope(ctx context.Context, scope models.Scope, from, to time.Time) ([]*models.Transaction, error)
}
