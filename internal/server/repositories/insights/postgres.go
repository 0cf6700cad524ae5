// Package insights provides the PostgreSQL-backed repository for stored
// rule-engine findings.
package insights

import (
	"context"
	"fmt"
	"time"

	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// PostgresRepository implements insight storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) DeleteForPeriod(ctx context.Context, scope models.Scope, periodStart, periodEnd time.Time) error {
	query := `
		DELETE FROM insights
		WHERE scope = $1 AND period_start = $2 AND period_end = $3
	`
	if _, err := r.db.ExecContext(ctx, query, scope.String(), periodStart, periodEnd); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Insert(ctx context.Context, insight *models.Insight) error {
	query := `
		INSERT INTO insights (id, scope, rule, severity, title, detail, period_start, period_end, generated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	if _, err := r.db.ExecContext(ctx, query,
		insight.ID, insight.Scope.String(), insight.Rule, insight.Severity,
		insight.Title, insight.Detail, insight.PeriodStart, insight.PeriodEnd,
		insight.GeneratedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListForScope(ctx context.Context, scope models.Scope) ([]*models.Insight, error) {
	query := `
		SELECT id, scope, rule, severity, title, detail, period_start, period_end, generated_at
		FROM insights
		WHERE scope = $1
		ORDER BY period_start DESC, rule ASC
	`
	rows, err := r.db.QueryContext(ctx, query, scope.String())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Insight
	for rows.Next() {
		var ins models.Insight
		var scopeStr string
		if err := rows.Scan(&ins.ID, &scopeStr, &ins.Rule, &ins.Severity,
			&ins.Title, &ins.Detail, &ins.PeriodStart, &ins.PeriodEnd, &ins.GeneratedAt); err != nil {
			return nil, err
		}
		parsed, err := models.ParseScope(scopeStr)
		if err != nil {
			return nil, err
		}
		ins.Scope = parsed
		result = append(result, &ins)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
