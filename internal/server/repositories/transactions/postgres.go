// Package transactions provides the PostgreSQL-backed repository for
// transactions and their line items.
package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// PostgresRepository implements transaction storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func nullableGroup(groupID string) any {
	if groupID == "" {
		return nil
	}
	return groupID
}

// Create inserts the transaction row and one row per item.
func (r *PostgresRepository) Create(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, owner_id, group_id, merchant, category, amount, currency, tx_date, note, receipt_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.OwnerID, nullableGroup(tx.GroupID), tx.Merchant, tx.Category,
		tx.Amount, tx.Currency, tx.Date, tx.Note, tx.ReceiptKey, tx.CreatedAt, tx.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.insertItems(ctx, tx.ID, tx.Items)
}

// Upsert inserts the transaction or, when the id exists and belongs to the
// same owner, rewrites the row and replaces its items. An id held by a
// different owner yields common.ErrorNotFound.
func (r *PostgresRepository) Upsert(ctx context.Context, tx *models.Transaction) error {
	query := `
		INSERT INTO transactions (id, owner_id, group_id, merchant, category, amount, currency, tx_date, note, receipt_key, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			merchant = EXCLUDED.merchant,
			category = EXCLUDED.category,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			tx_date = EXCLUDED.tx_date,
			note = EXCLUDED.note,
			receipt_key = EXCLUDED.receipt_key,
			updated_at = EXCLUDED.updated_at
		WHERE transactions.owner_id = EXCLUDED.owner_id
	`
	res, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.OwnerID, nullableGroup(tx.GroupID), tx.Merchant, tx.Category,
		tx.Amount, tx.Currency, tx.Date, tx.Note, tx.ReceiptKey, tx.CreatedAt, tx.UpdatedAt)
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

	if _, err := r.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.insertItems(ctx, tx.ID, tx.Items)
}

// Update rewrites the row matched by (id, owner_id) and replaces its items.
// Returns common.ErrorNotFound if the caller does not own the transaction.
func (r *PostgresRepository) Update(ctx context.Context, tx *models.Transaction) error {
	query := `
		UPDATE transactions
		SET group_id = $3, merchant = $4, category = $5, amount = $6, currency = $7,
			tx_date = $8, note = $9, receipt_key = $10, updated_at = $11
		WHERE id = $1 AND owner_id = $2
	`
	res, err := r.db.ExecContext(ctx, query,
		tx.ID, tx.OwnerID, nullableGroup(tx.GroupID), tx.Merchant, tx.Category,
		tx.Amount, tx.Currency, tx.Date, tx.Note, tx.ReceiptKey, tx.UpdatedAt)
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

	if _, err := r.db.ExecContext(ctx, `DELETE FROM transaction_items WHERE transaction_id = $1`, tx.ID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return r.insertItems(ctx, tx.ID, tx.Items)
}

func (r *PostgresRepository) insertItems(ctx context.Context, txID string, items []*models.TransactionItem) error {
	query := `
		INSERT INTO transaction_items (id, transaction_id, name, quantity, unit_price, category)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	for _, item := range items {
		if _, err := r.db.ExecContext(ctx, query,
			item.ID, txID, item.Name, item.Quantity, item.UnitPrice, item.Category); err != nil {
			return fmt.Errorf("db error: %w", err)
		}
	}
	return nil
}

// Delete removes the transaction owned by ownerID; items cascade.
func (r *PostgresRepository) Delete(ctx context.Context, id, ownerID string) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM transactions WHERE id = $1 AND owner_id = $2`, id, ownerID)
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

const txColumns = `id, owner_id, COALESCE(group_id::text, ''), merchant, category, amount, currency, tx_date, note, receipt_key, created_at, updated_at`

func scanTransaction(scan func(...any) error) (*models.Transaction, error) {
	var t models.Transaction
	err := scan(&t.ID, &t.OwnerID, &t.GroupID, &t.Merchant, &t.Category,
		&t.Amount, &t.Currency, &t.Date, &t.Note, &t.ReceiptKey, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// GetByID loads a transaction with its items. Returns common.ErrorNotFound
// when the row does not exist.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txColumns+` FROM transactions WHERE id = $1`, id)
	t, err := scanTransaction(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := r.attachItems(ctx, []*models.Transaction{t}); err != nil {
		return nil, err
	}
	return t, nil
}

// buildWhere renders the WHERE clause and arguments shared by List's page
// and count queries.
func buildWhere(q ListQuery) (string, []any) {
	var conds []string
	var args []any

	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	var ownership []string
	if q.IncludePersonal {
		ownership = append(ownership, fmt.Sprintf("(owner_id = %s AND group_id IS NULL)", arg(q.OwnerID)))
	}
	if len(q.GroupIDs) > 0 {
		ownership = append(ownership, fmt.Sprintf("group_id = ANY(%s)", arg(q.GroupIDs)))
	}
	if len(ownership) > 0 {
		conds = append(conds, "("+strings.Join(ownership, " OR ")+")")
	} else {
		// No visible ledgers: match nothing rather than everything.
		conds = append(conds, "FALSE")
	}

	if q.Category != "" {
		conds = append(conds, fmt.Sprintf("category = %s", arg(q.Category)))
	}
	if q.Merchant != "" {
		conds = append(conds, fmt.Sprintf("merchant ILIKE %s", arg("%"+q.Merchant+"%")))
	}
	if !q.From.IsZero() {
		conds = append(conds, fmt.Sprintf("tx_date >= %s", arg(q.From)))
	}
	if !q.To.IsZero() {
		conds = append(conds, fmt.Sprintf("tx_date < %s", arg(q.To)))
	}

	return strings.Join(conds, " AND "), args
}

// List returns a page of matching transactions, newest first, plus the
// total number of matches.
func (r *PostgresRepository) List(ctx context.Context, q ListQuery) ([]*models.Transaction, int, error) {
	where, args := buildWhere(q)

	var total int
	countQuery := `SELECT count(*) FROM transactions WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}

	pageQuery := `SELECT ` + txColumns + ` FROM transactions WHERE ` + where +
		fmt.Sprintf(` ORDER BY tx_date DESC, created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, q.Limit, q.Offset)

	rows, err := r.db.QueryContext(ctx, pageQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	if err := r.attachItems(ctx, result); err != nil {
		return nil, 0, err
	}
	return result, total, nil
}

// ListForScope returns a scope's transactions in [from, to), oldest first,
// without items.
func (r *PostgresRepository) ListForScope(ctx context.Context, scope models.Scope, from, to time.Time) ([]*models.Transaction, error) {
	var where string
	switch scope.Kind {
	case models.ScopeGroup:
		where = `group_id = $1`
	default:
		where = `owner_id = $1 AND group_id IS NULL`
	}

	query := `SELECT ` + txColumns + ` FROM transactions WHERE ` + where +
		` AND tx_date >= $2 AND tx_date < $3 ORDER BY tx_date ASC, created_at ASC`

	rows, err := r.db.QueryContext(ctx, query, scope.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// attachItems loads the items of the given transactions in one query.
func (r *PostgresRepository) attachItems(ctx context.Context, txs []*models.Transaction) error {
	if len(txs) == 0 {
		return nil
	}

	ids := make([]string, 0, len(txs))
	byID := make(map[string]*models.Transaction, len(txs))
	for _, t := range txs {
		ids = append(ids, t.ID)
		byID[t.ID] = t
	}

	query := `
		SELECT id, transaction_id, name, quantity, unit_price, category
		FROM transaction_items
		WHERE transaction_id = ANY($1)
		ORDER BY name ASC
	`
	rows, err := r.db.QueryContext(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var item models.TransactionItem
		if err := rows.Scan(&item.ID, &item.TransactionID, &item.Name,
			&item.Quantity, &item.UnitPrice, &item.Category); err != nil {
			return err
		}
		if parent, ok := byID[item.TransactionID]; ok {
			parent.Items = append(parent.Items, &item)
		}
	}
	return rows.Err()
}
