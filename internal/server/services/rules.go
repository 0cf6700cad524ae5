package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

// ruleInput is the evaluated slice of history: the report week plus the
// three weeks before it. All slices are date-ascending.
type ruleInput struct {
	weekStart time.Time
	weekEnd   time.Time
	window    []*models.Transaction // week + prior
	week      []*models.Transaction
	prior     []*models.Transaction
}

// finding is a rule's positive result.
type finding struct {
	title  string
	detail string
}

// rule is one static heuristic. eval returns nil when the rule does not
// fire.
type rule struct {
	code     string
	severity models.InsightSeverity
	eval     func(in *ruleInput) *finding
}

var (
	ratioSpike    = decimal.RequireFromString("1.5")
	ratioDrop     = decimal.RequireFromString("0.5")
	ratioDominant = decimal.RequireFromString("0.4")
	ratioSurge    = decimal.RequireFromString("2")
	ratioNewMerch = decimal.RequireFromString("0.3")
	ratioLargeTx  = decimal.RequireFromString("3")
	ratioWeekend  = decimal.RequireFromString("0.6")
	smallAmount   = decimal.RequireFromString("5")
	three         = decimal.NewFromInt(3)
)

func sumAmounts(txs []*models.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(tx.Amount)
	}
	return total
}

func totalsByCategory(txs []*models.Transaction) map[string]decimal.Decimal {
	totals := map[string]decimal.Decimal{}
	for _, tx := range txs {
		cat := tx.Category
		if cat == "" {
			cat = "uncategorized"
		}
		totals[cat] = totals[cat].Add(tx.Amount)
	}
	return totals
}

// insightRules are the static heuristics evaluated over a scope's recent
// history. Rules that find nothing emit nothing.
var insightRules = []rule{
	{
		code:     "spending-spike",
		severity: models.SeverityWarning,
		eval: func(in *ruleInput) *finding {
			priorTotal := sumAmounts(in.prior)
			if !priorTotal.IsPositive() {
				return nil
			}
			weekTotal := sumAmounts(in.week)
			mean := priorTotal.Div(three)
			if weekTotal.LessThan(mean.Mul(ratioSpike)) {
				return nil
			}
			return &finding{
				title:  "Spending is well above your usual pace",
				detail: fmt.Sprintf("This week's total %s is at least 1.5x the prior three-week average of %s.", weekTotal.StringFixed(2), mean.StringFixed(2)),
			}
		},
	},
	{
		code:     "spending-drop",
		severity: models.SeverityInfo,
		eval: func(in *ruleInput) *finding {
			priorTotal := sumAmounts(in.prior)
			if !priorTotal.IsPositive() {
				return nil
			}
			weekTotal := sumAmounts(in.week)
			mean := priorTotal.Div(three)
			if weekTotal.GreaterThan(mean.Mul(ratioDrop)) {
				return nil
			}
			return &finding{
				title:  "Spending dropped this week",
				detail: fmt.Sprintf("This week's total %s is at most half the prior three-week average of %s.", weekTotal.StringFixed(2), mean.StringFixed(2)),
			}
		},
	},
	{
		code:     "category-dominant",
		severity: models.SeverityNotice,
		eval: func(in *ruleInput) *finding {
			windowTotal := sumAmounts(in.window)
			if !windowTotal.IsPositive() {
				return nil
			}
			var topCat string
			top := decimal.Zero
			for cat, total := range totalsByCategory(in.window) {
				if total.GreaterThan(top) || (total.Equal(top) && cat < topCat) {
					top, topCat = total, cat
				}
			}
			if top.LessThan(windowTotal.Mul(ratioDominant)) {
				return nil
			}
			return &finding{
				title:  fmt.Sprintf("%q dominates your spending", topCat),
				detail: fmt.Sprintf("%s of the last four weeks' %s went to %q.", top.StringFixed(2), windowTotal.StringFixed(2), topCat),
			}
		},
	},
	{
		code:     "category-surge",
		severity: models.SeverityWarning,
		eval: func(in *ruleInput) *finding {
			weekTotals := totalsByCategory(in.week)
			priorTotals := totalsByCategory(in.prior)

			var surgeCat string
			surgeRatio := decimal.Zero
			for cat, weekTotal := range weekTotals {
				priorTotal, ok := priorTotals[cat]
				if !ok || !priorTotal.IsPositive() {
					continue
				}
				mean := priorTotal.Div(three)
				ratio := weekTotal.Div(mean)
				if ratio.GreaterThanOrEqual(ratioSurge) && ratio.GreaterThan(surgeRatio) {
					surgeRatio, surgeCat = ratio, cat
				}
			}
			if surgeCat == "" {
				return nil
			}
			return &finding{
				title:  fmt.Sprintf("%q spending surged", surgeCat),
				detail: fmt.Sprintf("This week's %q total is %sx its prior weekly average.", surgeCat, surgeRatio.Round(1)),
			}
		},
	},
	{
		code:     "new-merchant-concentration",
		severity: models.SeverityNotice,
		eval: func(in *ruleInput) *finding {
			weekTotal := sumAmounts(in.week)
			if !weekTotal.IsPositive() {
				return nil
			}
			known := map[string]bool{}
			for _, tx := range in.prior {
				known[NormalizeKey(tx.Merchant)] = true
			}
			newSpend := decimal.Zero
			newMerchants := map[string]bool{}
			for _, tx := range in.week {
				key := NormalizeKey(tx.Merchant)
				if !known[key] {
					newSpend = newSpend.Add(tx.Amount)
					newMerchants[key] = true
				}
			}
			if newSpend.LessThan(weekTotal.Mul(ratioNewMerch)) {
				return nil
			}
			return &finding{
				title:  "A large share of this week went to new merchants",
				detail: fmt.Sprintf("%s of this week's %s was spent at %d merchants not seen in the prior three weeks.", newSpend.StringFixed(2), weekTotal.StringFixed(2), len(newMerchants)),
			}
		},
	},
	{
		code:     "possible-duplicate",
		severity: models.SeverityWarning,
		eval: func(in *ruleInput) *finding {
			type dupKey struct {
				merchant string
				amount   string
				date     string
			}
			seen := map[dupKey]bool{}
			for _, tx := range in.window {
				k := dupKey{NormalizeKey(tx.Merchant), tx.Amount.String(), tx.Date.Format("2006-01-02")}
				if seen[k] {
					return &finding{
						title:  "Possible duplicate transaction",
						detail: fmt.Sprintf("%q was charged %s twice on %s.", tx.Merchant, tx.Amount.StringFixed(2), k.date),
					}
				}
				seen[k] = true
			}
			return nil
		},
	},
	{
		code:     "recurring-charge",
		severity: models.SeverityInfo,
		eval: func(in *ruleInput) *finding {
			type chargeKey struct {
				merchant string
				amount   string
			}
			weeks := map[chargeKey]map[string]bool{}
			names := map[chargeKey]string{}
			for _, tx := range in.window {
				k := chargeKey{NormalizeKey(tx.Merchant), tx.Amount.String()}
				if weeks[k] == nil {
					weeks[k] = map[string]bool{}
					names[k] = tx.Merchant
				}
				weeks[k][WeekStart(tx.Date).Format("2006-01-02")] = true
			}
			for k, w := range weeks {
				if len(w) >= 3 {
					return &finding{
						title:  fmt.Sprintf("Recurring charge at %q", names[k]),
						detail: fmt.Sprintf("The same %s charge appeared in %d different weeks; it may be a subscription.", k.amount, len(w)),
					}
				}
			}
			return nil
		},
	},
	{
		code:     "large-transaction",
		severity: models.SeverityNotice,
		eval: func(in *ruleInput) *finding {
			if len(in.window) < 5 {
				return nil
			}
			total := sumAmounts(in.window)
			mean := total.Div(decimal.NewFromInt(int64(len(in.window))))
			if !mean.IsPositive() {
				return nil
			}
			for _, tx := range in.window {
				if tx.Amount.GreaterThanOrEqual(mean.Mul(ratioLargeTx)) {
					return &finding{
						title:  "Unusually large transaction",
						detail: fmt.Sprintf("%s at %q is at least 3x your average transaction of %s.", tx.Amount.StringFixed(2), tx.Merchant, mean.StringFixed(2)),
					}
				}
			}
			return nil
		},
	},
	{
		code:     "weekend-heavy",
		severity: models.SeverityInfo,
		eval: func(in *ruleInput) *finding {
			weekTotal := sumAmounts(in.week)
			if !weekTotal.IsPositive() {
				return nil
			}
			weekend := decimal.Zero
			for _, tx := range in.week {
				switch tx.Date.Weekday() {
				case time.Saturday, time.Sunday:
					weekend = weekend.Add(tx.Amount)
				}
			}
			if weekend.LessThan(weekTotal.Mul(ratioWeekend)) {
				return nil
			}
			return &finding{
				title:  "Most of this week's spending happened on the weekend",
				detail: fmt.Sprintf("%s of %s was spent on Saturday and Sunday.", weekend.StringFixed(2), weekTotal.StringFixed(2)),
			}
		},
	},
	{
		code:     "no-spend-streak",
		severity: models.SeverityInfo,
		eval: func(in *ruleInput) *finding {
			// A week with no activity at all is not a streak.
			if len(in.week) == 0 {
				return nil
			}
			spentOn := map[string]bool{}
			for _, tx := range in.week {
				spentOn[tx.Date.Format("2006-01-02")] = true
			}
			streak, best := 0, 0
			for day := in.weekStart; day.Before(in.weekEnd); day = day.AddDate(0, 0, 1) {
				if spentOn[day.Format("2006-01-02")] {
					streak = 0
					continue
				}
				streak++
				if streak > best {
					best = streak
				}
			}
			if best < 3 {
				return nil
			}
			return &finding{
				title:  "No-spend streak",
				detail: fmt.Sprintf("You went %d consecutive days without spending this week.", best),
			}
		},
	},
	{
		code:     "uncategorized-backlog",
		severity: models.SeverityNotice,
		eval: func(in *ruleInput) *finding {
			if len(in.week) == 0 {
				return nil
			}
			uncat := 0
			for _, tx := range in.week {
				if tx.Category == "" {
					uncat++
				}
			}
			// uncat/total >= 25% without leaving integers.
			if uncat*4 < len(in.week) {
				return nil
			}
			return &finding{
				title:  "Many transactions are uncategorized",
				detail: fmt.Sprintf("%d of this week's %d transactions have no category yet.", uncat, len(in.week)),
			}
		},
	},
	{
		code:     "small-purchase-volume",
		severity: models.SeverityInfo,
		eval: func(in *ruleInput) *finding {
			small := 0
			for _, tx := range in.week {
				if tx.Amount.LessThan(smallAmount) {
					small++
				}
			}
			if small < 15 {
				return nil
			}
			return &finding{
				title:  "Lots of small purchases",
				detail: fmt.Sprintf("%d purchases under %s this week; they add up.", small, smallAmount.StringFixed(2)),
			}
		},
	},
}
