package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
)

// InsightService runs the static rule set over a scope's recent history
// and stores the findings, replacing the previous set for the same period.
type InsightService struct {
	db       *sql.DB
	rm       repomanager.RepositoryManager
	logger   logging.Logger
	notifier Notifier
}

func NewInsightService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger, notifier Notifier) *InsightService {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &InsightService{
		db:       db,
		rm:       rm,
		logger:   logger.With("module", "insights"),
		notifier: notifier,
	}
}

// Generate evaluates all rules over the 28-day window ending with the ISO
// week containing asOf, atomically replaces the scope's stored insights
// for that week, and returns the new set (possibly empty).
func (s *InsightService) Generate(ctx context.Context, scope models.Scope, asOf time.Time) ([]*models.Insight, error) {
	weekStart := WeekStart(asOf)
	weekEnd := weekStart.AddDate(0, 0, 7)
	windowStart := weekStart.AddDate(0, 0, -21)

	txs, err := s.rm.Transactions(s.db).ListForScope(ctx, scope, windowStart, weekEnd)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}

	in := &ruleInput{weekStart: weekStart, weekEnd: weekEnd, window: txs}
	for _, tx := range txs {
		if tx.Date.Before(weekStart) {
			in.prior = append(in.prior, tx)
		} else {
			in.week = append(in.week, tx)
		}
	}

	now := time.Now().UTC()
	var generated []*models.Insight
	for _, r := range insightRules {
		f := r.eval(in)
		if f == nil {
			continue
		}
		generated = append(generated, &models.Insight{
			ID:          uuid.NewString(),
			Scope:       scope,
			Rule:        r.code,
			Severity:    r.severity,
			Title:       f.title,
			Detail:      f.detail,
			PeriodStart: weekStart,
			PeriodEnd:   weekEnd,
			GeneratedAt: now,
		})
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.rm.Insights(tx)
		if err := repo.DeleteForPeriod(ctx, scope, weekStart, weekEnd); err != nil {
			return err
		}
		for _, ins := range generated {
			if err := repo.Insert(ctx, ins); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("storing insights: %w", err)
	}

	s.logger.Info(ctx, "insights generated",
		"scope", scope.String(), "week", weekStart.Format("2006-01-02"), "count", len(generated))
	s.notifier.Publish(Event{
		Type:  EventInsightsGenerated,
		Scope: scope.String(),
		At:    now,
	})

	return generated, nil
}

// List returns a scope's stored insights, newest period first.
func (s *InsightService) List(ctx context.Context, scope models.Scope) ([]*models.Insight, error) {
	return s.rm.Insights(s.db).ListForScope(ctx, scope)
}
