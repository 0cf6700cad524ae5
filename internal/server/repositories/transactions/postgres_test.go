package transactions

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/shopspring/decimal"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// sliceConverter lets string slices through to the mock, the way the pgx
// driver accepts them for ANY($1) parameters.
type sliceConverter struct{}

func (sliceConverter) ConvertValue(v any) (driver.Value, error) {
	if _, ok := v.([]string); ok {
		return v, nil
	}
	return driver.DefaultParameterConverter.ConvertValue(v)
}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock, *sql.DB) {
	t.Helper()
	db, mock, err := sqlmock.New(
		sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp),
		sqlmock.ValueConverterOption(sliceConverter{}),
	)
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	return NewPostgresRepository(db), mock, db
}

func sampleTx() *models.Transaction {
	at := time.Date(2025, 6, 18, 12, 0, 0, 0, time.UTC)
	return &models.Transaction{
		ID:        "t1",
		OwnerID:   "u1",
		Merchant:  "REWE Markt #423",
		Category:  "groceries",
		Amount:    decimal.RequireFromString("42.50"),
		Currency:  "EUR",
		Date:      at,
		CreatedAt: at,
		UpdatedAt: at,
	}
}

func txRows(txs ...*models.Transaction) *sqlmock.Rows {
	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "group_id", "merchant", "category", "amount",
		"currency", "tx_date", "note", "receipt_key", "created_at", "updated_at",
	})
	for _, tx := range txs {
		rows.AddRow(tx.ID, tx.OwnerID, tx.GroupID, tx.Merchant, tx.Category,
			tx.Amount.String(), tx.Currency, tx.Date, tx.Note, tx.ReceiptKey,
			tx.CreatedAt, tx.UpdatedAt)
	}
	return rows
}

func itemColumns() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "transaction_id", "name", "quantity", "unit_price", "category"})
}

func TestCreate_InsertsRowAndItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	tx := sampleTx()
	tx.Items = []*models.TransactionItem{
		{ID: "i1", Name: "Milk", Quantity: 2, UnitPrice: decimal.RequireFromString("1.25")},
	}

	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(tx.ID, tx.OwnerID, nil, tx.Merchant, tx.Category,
			tx.Amount, tx.Currency, tx.Date, "", "", tx.CreatedAt, tx.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transaction_items`).
		WithArgs("i1", tx.ID, "Milk", 2, decimal.RequireFromString("1.25"), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_GroupIDPassedThrough(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	tx := sampleTx()
	tx.GroupID = "g1"

	mock.ExpectExec(`INSERT INTO transactions`).
		WithArgs(tx.ID, tx.OwnerID, "g1", tx.Merchant, tx.Category,
			tx.Amount, tx.Currency, tx.Date, "", "", tx.CreatedAt, tx.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Create(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreate_DBError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO transactions`).
		WillReturnError(errors.New("connection refused"))

	if err := repo.Create(context.Background(), sampleTx()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestUpsert_ReplacesExistingRowAndItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	tx := sampleTx()
	tx.Items = []*models.TransactionItem{
		{ID: "i1", Name: "Milk", Quantity: 2, UnitPrice: decimal.RequireFromString("1.25")},
	}

	mock.ExpectExec(`(?s)INSERT INTO transactions .* ON CONFLICT \(id\) DO UPDATE SET .* WHERE transactions\.owner_id = EXCLUDED\.owner_id`).
		WithArgs(tx.ID, tx.OwnerID, nil, tx.Merchant, tx.Category,
			tx.Amount, tx.Currency, tx.Date, "", "", tx.CreatedAt, tx.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM transaction_items WHERE transaction_id = \$1`).
		WithArgs(tx.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transaction_items`).
		WithArgs("i1", tx.ID, "Milk", 2, decimal.RequireFromString("1.25"), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Upsert(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpsert_ForeignOwnerRowsAffected0(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`(?s)INSERT INTO transactions .* ON CONFLICT`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Upsert(context.Background(), sampleTx())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestUpdate_ReplacesItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	tx := sampleTx()
	tx.Items = []*models.TransactionItem{
		{ID: "i2", Name: "Bread", Quantity: 1, UnitPrice: decimal.RequireFromString("2.10")},
	}

	mock.ExpectExec(`UPDATE transactions`).
		WithArgs(tx.ID, tx.OwnerID, nil, tx.Merchant, tx.Category,
			tx.Amount, tx.Currency, tx.Date, "", "", tx.UpdatedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM transaction_items WHERE transaction_id = \$1`).
		WithArgs(tx.ID).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO transaction_items`).
		WithArgs("i2", tx.ID, "Bread", 1, decimal.RequireFromString("2.10"), "").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Update(context.Background(), tx); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpdate_NotOwnedRowsAffected0(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`UPDATE transactions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), sampleTx())
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestDelete_Success(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM transactions WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("t1", "u1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "t1", "u1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDelete_NotFound(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectExec(`DELETE FROM transactions`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Delete(context.Background(), "missing", "u1")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestGetByID_AttachesItems(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	want := sampleTx()
	mock.ExpectQuery(`SELECT .* FROM transactions WHERE id = \$1`).
		WithArgs("t1").
		WillReturnRows(txRows(want))
	mock.ExpectQuery(`(?s)SELECT .* FROM transaction_items\s+WHERE transaction_id = ANY\(\$1\)`).
		WithArgs([]string{"t1"}).
		WillReturnRows(itemColumns().
			AddRow("i1", "t1", "Milk", 2, "1.25", ""))

	got, err := repo.GetByID(context.Background(), "t1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Merchant != want.Merchant || got.Currency != "EUR" {
		t.Fatalf("unexpected transaction: %+v", got)
	}
	if !got.Amount.Equal(want.Amount) {
		t.Fatalf("amount = %s, want %s", got.Amount, want.Amount)
	}
	if len(got.Items) != 1 || got.Items[0].Name != "Milk" {
		t.Fatalf("unexpected items: %+v", got.Items)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetByID_NoRows(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT .* FROM transactions WHERE id = \$1`).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, common.ErrorNotFound) {
		t.Fatalf("expected ErrorNotFound, got %v", err)
	}
}

func TestBuildWhere(t *testing.T) {
	from := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	tests := []struct {
		name      string
		q         ListQuery
		wantWhere string
		wantArgs  []any
	}{
		{
			name:      "personal only",
			q:         ListQuery{IncludePersonal: true, OwnerID: "u1"},
			wantWhere: `((owner_id = $1 AND group_id IS NULL))`,
			wantArgs:  []any{"u1"},
		},
		{
			name:      "groups only",
			q:         ListQuery{GroupIDs: []string{"g1", "g2"}},
			wantWhere: `(group_id = ANY($1))`,
			wantArgs:  []any{[]string{"g1", "g2"}},
		},
		{
			name:      "personal and groups",
			q:         ListQuery{IncludePersonal: true, OwnerID: "u1", GroupIDs: []string{"g1"}},
			wantWhere: `((owner_id = $1 AND group_id IS NULL) OR group_id = ANY($2))`,
			wantArgs:  []any{"u1", []string{"g1"}},
		},
		{
			name:      "no visible ledgers matches nothing",
			q:         ListQuery{},
			wantWhere: `FALSE`,
			wantArgs:  nil,
		},
		{
			name: "all filters",
			q: ListQuery{
				IncludePersonal: true, OwnerID: "u1",
				Category: "groceries", Merchant: "rewe", From: from, To: to,
			},
			wantWhere: `((owner_id = $1 AND group_id IS NULL)) AND category = $2 AND merchant ILIKE $3 AND tx_date >= $4 AND tx_date < $5`,
			wantArgs:  []any{"u1", "groceries", "%rewe%", from, to},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			where, args := buildWhere(tt.q)
			if where != tt.wantWhere {
				t.Errorf("where = %q, want %q", where, tt.wantWhere)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args = %v, want %v", args, tt.wantArgs)
			}
		})
	}
}

func TestList_PagesAndCounts(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	q := ListQuery{IncludePersonal: true, OwnerID: "u1", Limit: 10, Offset: 20}

	mock.ExpectQuery(`SELECT count\(\*\) FROM transactions WHERE`).
		WithArgs("u1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))
	mock.ExpectQuery(`SELECT .* FROM transactions WHERE .* ORDER BY tx_date DESC, created_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("u1", 10, 20).
		WillReturnRows(txRows(sampleTx()))
	mock.ExpectQuery(`FROM transaction_items`).
		WithArgs([]string{"t1"}).
		WillReturnRows(itemColumns())

	txs, total, err := repo.List(context.Background(), q)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if total != 42 {
		t.Errorf("total = %d, want 42", total)
	}
	if len(txs) != 1 || txs[0].ID != "t1" {
		t.Fatalf("unexpected page: %+v", txs)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestList_CountError(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	mock.ExpectQuery(`SELECT count\(\*\) FROM transactions`).
		WillReturnError(errors.New("connection refused"))

	if _, _, err := repo.List(context.Background(), ListQuery{IncludePersonal: true, OwnerID: "u1"}); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestListForScope_UserScope(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	from := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectQuery(`SELECT .* FROM transactions WHERE owner_id = \$1 AND group_id IS NULL AND tx_date >= \$2 AND tx_date < \$3 ORDER BY tx_date ASC, created_at ASC`).
		WithArgs("u1", from, to).
		WillReturnRows(txRows(sampleTx()))

	txs, err := repo.ListForScope(context.Background(), models.UserScope("u1"), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestListForScope_GroupScope(t *testing.T) {
	repo, mock, db := newRepoWithMock(t)
	defer db.Close()

	from := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 7)

	mock.ExpectQuery(`SELECT .* FROM transactions WHERE group_id = \$1 AND tx_date >= \$2 AND tx_date < \$3`).
		WithArgs("g1", from, to).
		WillReturnRows(txRows())

	txs, err := repo.ListForScope(context.Background(), models.GroupScope("g1"), from, to)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(txs) != 0 {
		t.Fatalf("expected no transactions, got %d", len(txs))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
