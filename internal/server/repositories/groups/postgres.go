// Package groups provides the PostgreSQL-backed repository for shared
// groups and their membership rows.
package groups

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// PostgresRepository implements group storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts the group row and the owner's membership row.
func (r *PostgresRepository) Create(ctx context.Context, group *models.SharedGroup) error {
	query := `
		INSERT INTO shared_groups (id, name, owner_id, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.db.ExecContext(ctx, query,
		group.ID, group.Name, group.OwnerID, group.CreatedAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.AddMember(ctx, group.ID, group.OwnerID)
}

// GetByID loads a group and its member list.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.SharedGroup, error) {
	group := &models.SharedGroup{}
	query := `
		SELECT id, name, owner_id, created_at
		FROM shared_groups
		WHERE id = $1
	`
	if err := r.db.QueryRowContext(ctx, query, id).Scan(
		&group.ID, &group.Name, &group.OwnerID, &group.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT user_id FROM group_members WHERE group_id = $1 ORDER BY joined_at ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, err
		}
		group.MemberIDs = append(group.MemberIDs, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return group, nil
}

// ListForUser returns the groups the user belongs to, without member lists.
func (r *PostgresRepository) ListForUser(ctx context.Context, userID string) ([]*models.SharedGroup, error) {
	query := `
		SELECT g.id, g.name, g.owner_id, g.created_at
		FROM shared_groups g
		JOIN group_members m ON m.group_id = g.id
		WHERE m.user_id = $1
		ORDER BY g.created_at ASC
	`
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.SharedGroup
	for rows.Next() {
		var g models.SharedGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.OwnerID, &g.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// AddMember enrolls the user; re-adding an existing member is idempotent.
func (r *PostgresRepository) AddMember(ctx context.Context, groupID, userID string) error {
	query := `
		INSERT INTO group_members (group_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (group_id, user_id) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, groupID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// RemoveMember removes the membership row.
func (r *PostgresRepository) RemoveMember(ctx context.Context, groupID, userID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM group_members WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// MemberGroupIDs returns the group IDs the user belongs to.
func (r *PostgresRepository) MemberGroupIDs(ctx context.Context, userID string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT group_id FROM group_members WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
