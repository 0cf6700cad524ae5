// Package invitations provides the PostgreSQL-backed repository for group
// invitations.
package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// PostgresRepository implements invitation storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const invColumns = `id, group_id, inviter_id, invitee_email, status, token, created_at, expires_at`

func scanInvitation(scan func(...any) error) (*models.Invitation, error) {
	var inv models.Invitation
	err := scan(&inv.ID, &inv.GroupID, &inv.InviterID, &inv.InviteeEmail,
		&inv.Status, &inv.Token, &inv.CreatedAt, &inv.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}

func (r *PostgresRepository) Create(ctx context.Context, inv *models.Invitation) error {
	query := `
		INSERT INTO invitations (id, group_id, inviter_id, invitee_email, status, token, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		inv.ID, inv.GroupID, inv.InviterID, inv.InviteeEmail,
		inv.Status, inv.Token, inv.CreatedAt, inv.ExpiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Invitation, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+invColumns+` FROM invitations WHERE id = $1`, id)
	inv, err := scanInvitation(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inv, nil
}

func (r *PostgresRepository) listWhere(ctx context.Context, where string, arg any) ([]*models.Invitation, error) {
	query := `SELECT ` + invColumns + ` FROM invitations WHERE ` + where + ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, inv)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListForGroup(ctx context.Context, groupID string) ([]*models.Invitation, error) {
	return r.listWhere(ctx, `group_id = $1`, groupID)
}

func (r *PostgresRepository) ListForEmail(ctx context.Context, email string) ([]*models.Invitation, error) {
	return r.listWhere(ctx, `invitee_email = $1`, email)
}

// UpdateStatus transitions an invitation's status, guarded by the expected
// current status. A zero-row update means the invitation either does not
// exist or has already left the `from` state; the two cases are
// distinguished so callers can map them to different responses.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, from, to models.InvitationStatus) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE invitations SET status = $3 WHERE id = $1 AND status = $2`, id, from, to)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 1 {
		return nil
	}

	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return common.ErrNotPending
}
