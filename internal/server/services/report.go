package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/shopspring/decimal"

	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
)

// ReportService derives weekly reports from the transaction history and
// caches them in-process. Writes through the transaction service
// invalidate a scope's cached reports.
type ReportService struct {
	db     *sql.DB
	rm     repomanager.RepositoryManager
	cache  *cache.Cache
	logger logging.Logger
}

func NewReportService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger, ttl time.Duration) *ReportService {
	return &ReportService{
		db:     db,
		rm:     rm,
		cache:  cache.New(ttl, 2*ttl),
		logger: logger.With("module", "reports"),
	}
}

// WeekStart returns the Monday 00:00 UTC opening the ISO week containing t.
func WeekStart(t time.Time) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	// time.Weekday counts Sunday as 0.
	offset := (int(day.Weekday()) + 6) % 7
	return day.AddDate(0, 0, -offset)
}

func reportCacheKey(scope models.Scope, weekStart time.Time) string {
	return scope.String() + "|" + weekStart.Format("2006-01-02")
}

// Weekly returns the report of the ISO week opening at weekStart
// (normalized to the containing week's Monday).
func (s *ReportService) Weekly(ctx context.Context, scope models.Scope, weekStart time.Time) (*models.WeeklyReport, error) {
	weekStart = WeekStart(weekStart)
	key := reportCacheKey(scope, weekStart)

	if cached, found := s.cache.Get(key); found {
		s.logger.Debug(ctx, "report served from cache", "scope", scope.String(), "week", weekStart)
		return cached.(*models.WeeklyReport), nil
	}

	report, err := s.build(ctx, scope, weekStart)
	if err != nil {
		return nil, err
	}

	s.cache.SetDefault(key, report)
	return report, nil
}

// Invalidate drops every cached report of the scope. Called by the
// transaction service after any write touching the scope.
func (s *ReportService) Invalidate(scope models.Scope) {
	prefix := scope.String() + "|"
	for key := range s.cache.Items() {
		if strings.HasPrefix(key, prefix) {
			s.cache.Delete(key)
		}
	}
}

func (s *ReportService) build(ctx context.Context, scope models.Scope, weekStart time.Time) (*models.WeeklyReport, error) {
	weekEnd := weekStart.AddDate(0, 0, 7)
	prevStart := weekStart.AddDate(0, 0, -7)

	// One query covers both the report week and the comparison week.
	txs, err := s.rm.Transactions(s.db).ListForScope(ctx, scope, prevStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("loading transactions: %w", err)
	}

	report := &models.WeeklyReport{
		Scope:         scope,
		WeekStart:     weekStart,
		WeekEnd:       weekEnd,
		Total:         decimal.Zero,
		PrevWeekTotal: decimal.Zero,
	}

	categories := map[string]*models.CategoryTotal{}
	members := map[string]*models.MemberTotal{}

	for _, tx := range txs {
		if tx.Date.Before(weekStart) {
			report.PrevWeekTotal = report.PrevWeekTotal.Add(tx.Amount)
			continue
		}

		report.Total = report.Total.Add(tx.Amount)
		report.TransactionCount++

		cat := tx.Category
		if cat == "" {
			cat = "uncategorized"
		}
		ct, ok := categories[cat]
		if !ok {
			ct = &models.CategoryTotal{Category: cat, Total: decimal.Zero}
			categories[cat] = ct
		}
		ct.Total = ct.Total.Add(tx.Amount)
		ct.Count++

		if scope.Kind == models.ScopeGroup {
			mt, ok := members[tx.OwnerID]
			if !ok {
				mt = &models.MemberTotal{UserID: tx.OwnerID, Total: decimal.Zero}
				members[tx.OwnerID] = mt
			}
			mt.Total = mt.Total.Add(tx.Amount)
			mt.Count++
		}
	}

	for _, ct := range categories {
		report.Categories = append(report.Categories, *ct)
	}
	sort.Slice(report.Categories, func(i, j int) bool {
		if !report.Categories[i].Total.Equal(report.Categories[j].Total) {
			return report.Categories[i].Total.GreaterThan(report.Categories[j].Total)
		}
		return report.Categories[i].Category < report.Categories[j].Category
	})

	for _, mt := range members {
		report.Members = append(report.Members, *mt)
	}
	sort.Slice(report.Members, func(i, j int) bool {
		if !report.Members[i].Total.Equal(report.Members[j].Total) {
			return report.Members[i].Total.GreaterThan(report.Members[j].Total)
		}
		return report.Members[i].UserID < report.Members[j].UserID
	})

	report.Delta = report.Total.Sub(report.PrevWeekTotal)
	if report.PrevWeekTotal.IsPositive() {
		pct := report.Delta.Div(report.PrevWeekTotal).Mul(decimal.NewFromInt(100)).Round(1)
		report.DeltaPercent = &pct
	}

	return report, nil
}
