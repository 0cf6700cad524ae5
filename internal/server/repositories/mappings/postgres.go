// Package mappings provides the PostgreSQL-backed repository for learned
// merchant/item → category mappings.
package mappings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// PostgresRepository implements mapping storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Observe upserts one observation, bumping seen_count and last_seen on
// conflict.
func (r *PostgresRepository) Observe(ctx context.Context, m *models.CategoryMapping) error {
	query := `
		INSERT INTO category_mappings (scope, kind, key, category, seen_count, last_seen)
		VALUES ($1, $2, $3, $4, 1, $5)
		ON CONFLICT (scope, kind, key, category)
		DO UPDATE SET
			seen_count = category_mappings.seen_count + 1,
			last_seen = EXCLUDED.last_seen
	`
	if _, err := r.db.ExecContext(ctx, query,
		m.Scope.String(), m.Kind, m.Key, m.Category, m.LastSeen); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func scanMapping(scan func(...any) error) (*models.CategoryMapping, error) {
	var m models.CategoryMapping
	var scope string
	if err := scan(&scope, &m.Kind, &m.Key, &m.Category, &m.SeenCount, &m.LastSeen); err != nil {
		return nil, err
	}
	parsed, err := models.ParseScope(scope)
	if err != nil {
		return nil, err
	}
	m.Scope = parsed
	return &m, nil
}

// Best returns the mapping with the highest seen count for the key,
// breaking ties by recency.
func (r *PostgresRepository) Best(ctx context.Context, scope models.Scope, kind models.MappingKind, key string) (*models.CategoryMapping, error) {
	query := `
		SELECT scope, kind, key, category, seen_count, last_seen
		FROM category_mappings
		WHERE scope = $1 AND kind = $2 AND key = $3
		ORDER BY seen_count DESC, last_seen DESC
		LIMIT 1
	`
	row := r.db.QueryRowContext(ctx, query, scope.String(), kind, key)
	m, err := scanMapping(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return m, nil
}

// ListForScope returns all of a scope's mappings, strongest first.
func (r *PostgresRepository) ListForScope(ctx context.Context, scope models.Scope) ([]*models.CategoryMapping, error) {
	query := `
		SELECT scope, kind, key, category, seen_count, last_seen
		FROM category_mappings
		WHERE scope = $1
		ORDER BY seen_count DESC, last_seen DESC
	`
	rows, err := r.db.QueryContext(ctx, query, scope.String())
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.CategoryMapping
	for rows.Next() {
		m, err := scanMapping(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
