package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hearthledger/hearthledger/internal/server/models"
)

func TestInsightService_GenerateStoresFindings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rm := newFakeRM()
	notifier := &recordingNotifier{}
	svc := NewInsightService(db, rm, testLogger(), notifier)

	scope := models.UserScope("u1")
	asOf := testWeekStart.AddDate(0, 0, 2)

	// Prior three weeks total 300.00; the report week's 200.00 is a spike.
	rm.tx.scoped = []*models.Transaction{
		scopedTx(scope, "u1", "misc", "300.00", testWeekStart.AddDate(0, 0, -10)),
		scopedTx(scope, "u1", "misc", "200.00", testWeekStart.AddDate(0, 0, 1)),
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	generated, err := svc.Generate(context.Background(), scope, asOf)
	require.NoError(t, err)
	require.NotEmpty(t, generated)

	var spike *models.Insight
	for _, ins := range generated {
		if ins.Rule == "spending-spike" {
			spike = ins
		}
	}
	require.NotNil(t, spike, "expected the spike rule to fire, got %+v", generated)
	assert.Equal(t, models.SeverityWarning, spike.Severity)
	assert.Equal(t, scope, spike.Scope)
	assert.True(t, spike.PeriodStart.Equal(testWeekStart))
	assert.True(t, spike.PeriodEnd.Equal(testWeekStart.AddDate(0, 0, 7)))
	assert.NotEmpty(t, spike.ID)

	// The previous set for the period is replaced, not appended to.
	assert.Equal(t, 1, rm.ins.deletes)
	assert.Equal(t, len(generated), len(rm.ins.inserted))

	require.Equal(t, []string{EventInsightsGenerated}, notifier.types())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightService_GenerateEmptyHistoryClearsPeriod(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rm := newFakeRM()
	svc := NewInsightService(db, rm, testLogger(), nil)

	mock.ExpectBegin()
	mock.ExpectCommit()

	generated, err := svc.Generate(context.Background(), models.UserScope("u1"), testWeekStart)
	require.NoError(t, err)
	assert.Empty(t, generated)
	// Stale insights from an earlier run are still removed.
	assert.Equal(t, 1, rm.ins.deletes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightService_GenerateRollsBackOnInsertError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rm := newFakeRM()
	rm.ins.err = errors.New("insert failed")
	notifier := &recordingNotifier{}
	svc := NewInsightService(db, rm, testLogger(), notifier)

	scope := models.UserScope("u1")
	rm.tx.scoped = []*models.Transaction{
		scopedTx(scope, "u1", "misc", "300.00", testWeekStart.AddDate(0, 0, -10)),
		scopedTx(scope, "u1", "misc", "200.00", testWeekStart.AddDate(0, 0, 1)),
	}

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err = svc.Generate(context.Background(), scope, testWeekStart)
	require.Error(t, err)
	assert.Empty(t, notifier.types(), "no event on a failed run")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightService_WindowBoundaries(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	rm := newFakeRM()
	svc := NewInsightService(db, rm, testLogger(), nil)

	scope := models.UserScope("u1")
	// Just outside the 28-day window on both sides.
	rm.tx.scoped = []*models.Transaction{
		scopedTx(scope, "u1", "misc", "300.00", testWeekStart.AddDate(0, 0, -22)),
		scopedTx(scope, "u1", "misc", "900.00", testWeekStart.AddDate(0, 0, 7)),
	}

	mock.ExpectBegin()
	mock.ExpectCommit()

	generated, err := svc.Generate(context.Background(), scope, testWeekStart)
	require.NoError(t, err)
	assert.Empty(t, generated, "out-of-window transactions must not produce insights")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsightService_ListDelegates(t *testing.T) {
	rm := newFakeRM()
	scope := models.UserScope("u1")
	rm.ins.inserted = []*models.Insight{
		{ID: "i1", Scope: scope, Rule: "spending-spike", GeneratedAt: time.Now()},
		{ID: "i2", Scope: models.UserScope("other"), Rule: "spending-drop"},
	}

	svc := NewInsightService(nil, rm, testLogger(), nil)
	got, err := svc.List(context.Background(), scope)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "i1", got[0].ID)
}
