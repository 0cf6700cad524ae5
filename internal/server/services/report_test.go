package services

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

func TestWeekStart(t *testing.T) {
	tests := []struct {
		in   time.Time
		want time.Time
	}{
		// A Wednesday maps back to its Monday.
		{time.Date(2025, 6, 18, 15, 4, 0, 0, time.UTC), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		// Monday maps to itself.
		{time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		// Sunday belongs to the week that started six days earlier.
		{time.Date(2025, 6, 22, 23, 59, 0, 0, time.UTC), time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)},
		// Year boundary: 2025-01-01 is a Wednesday.
		{time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), time.Date(2024, 12, 30, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		assert.True(t, WeekStart(tc.in).Equal(tc.want), "WeekStart(%v) = %v, want %v", tc.in, WeekStart(tc.in), tc.want)
	}
}

func money(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func scopedTx(scope models.Scope, owner, category string, amount string, date time.Time) *models.Transaction {
	tx := &models.Transaction{
		OwnerID:  owner,
		Merchant: "m",
		Category: category,
		Amount:   money(amount),
		Currency: "EUR",
		Date:     date,
	}
	if scope.Kind == models.ScopeGroup {
		tx.GroupID = scope.ID
	}
	return tx
}

func TestReportService_WeeklyAggregation(t *testing.T) {
	rm := newFakeRM()
	scope := models.GroupScope("g1")
	weekStart := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	rm.tx.scoped = []*models.Transaction{
		// Previous week.
		scopedTx(scope, "alice", "groceries", "40.00", weekStart.AddDate(0, 0, -3)),
		// Report week.
		scopedTx(scope, "alice", "groceries", "30.00", weekStart.AddDate(0, 0, 1)),
		scopedTx(scope, "bob", "groceries", "20.00", weekStart.AddDate(0, 0, 2)),
		scopedTx(scope, "bob", "", "10.00", weekStart.AddDate(0, 0, 3)),
	}

	svc := NewReportService(nil, rm, testLogger(), time.Minute)
	report, err := svc.Weekly(context.Background(), scope, weekStart.AddDate(0, 0, 2))
	require.NoError(t, err)

	assert.True(t, report.WeekStart.Equal(weekStart))
	assert.Equal(t, 3, report.TransactionCount)
	assert.True(t, report.Total.Equal(money("60.00")), "total %s", report.Total)
	assert.True(t, report.PrevWeekTotal.Equal(money("40.00")))
	assert.True(t, report.Delta.Equal(money("20.00")))
	require.NotNil(t, report.DeltaPercent)
	assert.True(t, report.DeltaPercent.Equal(money("50")), "delta pct %s", report.DeltaPercent)

	require.Len(t, report.Categories, 2)
	assert.Equal(t, "groceries", report.Categories[0].Category)
	assert.True(t, report.Categories[0].Total.Equal(money("50.00")))
	assert.Equal(t, "uncategorized", report.Categories[1].Category)

	require.Len(t, report.Members, 2)
	assert.Equal(t, "alice", report.Members[0].UserID)
	assert.Equal(t, "bob", report.Members[1].UserID)
	assert.True(t, report.Members[1].Total.Equal(money("30.00")))
}

func TestReportService_NoPriorWeekMeansNilDeltaPercent(t *testing.T) {
	rm := newFakeRM()
	scope := models.UserScope("u1")
	weekStart := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	rm.tx.scoped = []*models.Transaction{
		scopedTx(scope, "u1", "fun", "15.00", weekStart.AddDate(0, 0, 1)),
	}

	svc := NewReportService(nil, rm, testLogger(), time.Minute)
	report, err := svc.Weekly(context.Background(), scope, weekStart)
	require.NoError(t, err)

	assert.Nil(t, report.DeltaPercent)
	assert.True(t, report.Delta.Equal(money("15.00")))
	assert.Empty(t, report.Members, "personal reports carry no member breakdown")
}

func TestReportService_CacheHitAndInvalidate(t *testing.T) {
	rm := newFakeRM()
	scope := models.UserScope("u1")
	weekStart := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	rm.tx.scoped = []*models.Transaction{
		scopedTx(scope, "u1", "fun", "10.00", weekStart),
	}

	svc := NewReportService(nil, rm, testLogger(), time.Minute)

	first, err := svc.Weekly(context.Background(), scope, weekStart)
	require.NoError(t, err)

	// A data change without invalidation is not visible yet.
	rm.tx.scoped = append(rm.tx.scoped, scopedTx(scope, "u1", "fun", "5.00", weekStart.AddDate(0, 0, 1)))

	second, err := svc.Weekly(context.Background(), scope, weekStart)
	require.NoError(t, err)
	assert.Same(t, first, second, "expected the cached report")

	svc.Invalidate(scope)

	third, err := svc.Weekly(context.Background(), scope, weekStart)
	require.NoError(t, err)
	assert.True(t, third.Total.Equal(money("15.00")), "total after invalidate %s", third.Total)
}

func TestReportService_InvalidateIsScoped(t *testing.T) {
	rm := newFakeRM()
	scopeA := models.UserScope("u1")
	scopeB := models.UserScope("u2")
	weekStart := time.Date(2025, 6, 16, 0, 0, 0, 0, time.UTC)

	svc := NewReportService(nil, rm, testLogger(), time.Minute)

	a, err := svc.Weekly(context.Background(), scopeA, weekStart)
	require.NoError(t, err)
	b, err := svc.Weekly(context.Background(), scopeB, weekStart)
	require.NoError(t, err)

	svc.Invalidate(scopeA)

	bAgain, err := svc.Weekly(context.Background(), scopeB, weekStart)
	require.NoError(t, err)
	assert.Same(t, b, bAgain, "unrelated scope must stay cached")

	aAgain, err := svc.Weekly(context.Background(), scopeA, weekStart)
	require.NoError(t, err)
	assert.NotSame(t, a, aAgain)
}
