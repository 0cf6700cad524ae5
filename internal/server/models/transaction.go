package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Transaction is a single expense. A transaction with a GroupID belongs to
// that shared group's ledger; with an empty GroupID it is personal.
// Amount is the full receipt total; Items optionally break it down.
type Transaction struct {
	ID         string             `json:"id"`
	OwnerID    string             `json:"owner_id"`
	GroupID    string             `json:"group_id,omitempty"`
	Merchant   string             `json:"merchant"`
	Category   string             `json:"category,omitempty"`
	Amount     decimal.Decimal    `json:"amount"`
	Currency   string             `json:"currency"`
	Date       time.Time          `json:"date"`
	Note       string             `json:"note,omitempty"`
	ReceiptKey string             `json:"receipt_key,omitempty"`
	Items      []*TransactionItem `json:"items,omitempty"`
	CreatedAt  time.Time          `json:"created_at"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// TransactionItem is a line item on a receipt. Category may differ from the
// parent transaction's category.
type TransactionItem struct {
	ID            string          `json:"id"`
	TransactionID string          `json:"transaction_id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Category      string          `json:"category,omitempty"`
}

// Scope returns the ledger this transaction belongs to.
func (t *Transaction) Scope() Scope {
	if t.GroupID != "" {
		return GroupScope(t.GroupID)
	}
	return UserScope(t.OwnerID)
}

// ViewMode selects which transactions a list query returns.
type ViewMode string

const (
	// ViewPersonal: the caller's transactions that are not shared.
	ViewPersonal ViewMode = "personal"
	// ViewGroup: one group's transactions (caller must be a member).
	ViewGroup ViewMode = "group"
	// ViewAll: personal plus every group the caller belongs to.
	ViewAll ViewMode = "all"
)

// TransactionFilter narrows a transaction list query.
type TransactionFilter struct {
	View     ViewMode
	GroupID  string // required when View == ViewGroup
	Category string
	Merchant string // substring match
	From     time.Time
	To       time.Time
	Limit    int
	Offset   int
}
