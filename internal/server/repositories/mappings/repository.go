package mappings

import (
	"context"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

type Repository interface {
	// Observe records one observation of (scope, kind, key) → category,
	// incrementing the count when the mapping already exists.
	Observe(ctx context.Context, m *models.CategoryMapping) error
	// Best returns the strongest mapping for a key: highest seen count,
	// most recent observation on ties. common.ErrorNotFound when the key
	// has never been observed.
	Best(ctx context.Context, scope models.Scope, kind models.MappingKind, key string) (*models.CategoryMapping, error)
	// ListForScope returns every mapping of a scope, strongest first.
	ListForScope(ctx context.Context, scope models.Scope) ([]*models.CategoryMapping, error)
}
