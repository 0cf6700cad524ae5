package repomanager

import (
	"context"
	"database/sql"

	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/repositories/groups"
	"github.com/hearthledger/hearthledger/internal/server/repositories/insights"
	"github.com/hearthledger/hearthledger/internal/server/repositories/invitations"
	"github.com/hearthledger/hearthledger/internal/server/repositories/mappings"
	"github.com/hearthledger/hearthledger/internal/server/repositories/transactions"
)

// RepositoryManager vends repository implementations bound to a DBTX, so
// services can run several repositories inside one dbx.WithTx transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Transactions(db dbx.DBTX) transactions.Repository
	Groups(db dbx.DBTX) groups.Repository
	Invitations(db dbx.DBTX) invitations.Repository
	Mappings(db dbx.DBTX) mappings.Repository
	Insights(db dbx.DBTX) insights.Repository
}
