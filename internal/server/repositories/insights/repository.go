package insights

import (
	"context"
	"time"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

type Repository interface {
	// DeleteForPeriod removes a scope's insights for the given period so a
	// regeneration can replace them. Callers run this and the following
	// inserts inside one transaction.
	DeleteForPeriod(ctx context.Context, scope models.Scope, periodStart, periodEnd time.Time) error
	Insert(ctx context.Context, insight *models.Insight) error
	// ListForScope returns a scope's insights, newest period first.
	ListForScope(ctx context.Context, scope models.Scope) ([]*models.Insight, error)
}
