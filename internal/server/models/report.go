package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategoryTotal is one category's share of a report, sorted descending by
// Total in report output.
type CategoryTotal struct {
	Category string          `json:"category"`
	Total    decimal.Decimal `json:"total"`
	Count    int             `json:"count"`
}

// MemberTotal is one group member's spend within a report week.
type MemberTotal struct {
	UserID string          `json:"user_id"`
	Total  decimal.Decimal `json:"total"`
	Count  int             `json:"count"`
}

// WeeklyReport summarizes one ISO week (Monday 00:00 UTC inclusive to the
// next Monday exclusive) of a scope's ledger. It is derived on demand and
// never stored.
type WeeklyReport struct {
	Scope            Scope           `json:"scope"`
	WeekStart        time.Time       `json:"week_start"`
	WeekEnd          time.Time       `json:"week_end"`
	Total            decimal.Decimal `json:"total"`
	TransactionCount int             `json:"transaction_count"`
	Categories       []CategoryTotal `json:"categories"`
	Members          []MemberTotal   `json:"members,omitempty"`
	PrevWeekTotal    decimal.Decimal `json:"prev_week_total"`
	Delta            decimal.Decimal `json:"delta"`
	// DeltaPercent is nil when the previous week had no spend.
	DeltaPercent *decimal.Decimal `json:"delta_percent,omitempty"`
}
