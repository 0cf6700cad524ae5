package models

import "time"

// InsightSeverity grades how much attention an insight deserves.
type InsightSeverity string

const (
	SeverityInfo    InsightSeverity = "info"
	SeverityNotice  InsightSeverity = "notice"
	SeverityWarning InsightSeverity = "warning"
)

// Insight is one finding produced by the rule engine over a scope's
// recent transaction history. Rule is the stable rule code, e.g.
// "spending-spike".
type Insight struct {
	ID          string          `json:"id"`
	Scope       Scope           `json:"scope"`
	Rule        string          `json:"rule"`
	Severity    InsightSeverity `json:"severity"`
	Title       string          `json:"title"`
	Detail      string          `json:"detail"`
	PeriodStart time.Time       `json:"period_start"`
	PeriodEnd   time.Time       `json:"period_end"`
	GeneratedAt time.Time       `json:"generated_at"`
}
