package services

import (
	"context"
	"database/sql"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/groups"
	"github.com/hearthledger/hearthledger/internal/server/repositories/insights"
	"github.com/hearthledger/hearthledger/internal/server/repositories/invitations"
	"github.com/hearthledger/hearthledger/internal/server/repositories/mappings"
	"github.com/hearthledger/hearthledger/internal/server/repositories/transactions"
)

func testLogger() logging.Logger {
	return logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// fakeTxRepo keeps transactions in memory keyed by ID.
type fakeTxRepo struct {
	byID map[string]*models.Transaction
	// scoped backs ListForScope for report and insight tests.
	scoped []*models.Transaction

	created   []string
	deleted   []string
	lastQuery transactions.ListQuery
	err       error
}

func newFakeTxRepo() *fakeTxRepo {
	return &fakeTxRepo{byID: map[string]*models.Transaction{}}
}

func (f *fakeTxRepo) Create(_ context.Context, tx *models.Transaction) error {
	if f.err != nil {
		return f.err
	}
	// Store a copy: rows must not alias the caller's value, the same way
	// a real database round-trip would not.
	cp := *tx
	f.byID[tx.ID] = &cp
	f.created = append(f.created, tx.ID)
	return nil
}

func (f *fakeTxRepo) Upsert(_ context.Context, tx *models.Transaction) error {
	if f.err != nil {
		return f.err
	}
	if old, ok := f.byID[tx.ID]; ok && old.OwnerID != tx.OwnerID {
		return common.ErrorNotFound
	}
	cp := *tx
	f.byID[tx.ID] = &cp
	f.created = append(f.created, tx.ID)
	return nil
}

func (f *fakeTxRepo) Update(_ context.Context, tx *models.Transaction) error {
	if f.err != nil {
		return f.err
	}
	old, ok := f.byID[tx.ID]
	if !ok || old.OwnerID != tx.OwnerID {
		return common.ErrorNotFound
	}
	cp := *tx
	f.byID[tx.ID] = &cp
	return nil
}

func (f *fakeTxRepo) Delete(_ context.Context, id, ownerID string) error {
	tx, ok := f.byID[id]
	if !ok || tx.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	delete(f.byID, id)
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeTxRepo) GetByID(_ context.Context, id string) (*models.Transaction, error) {
	tx, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return tx, nil
}

func (f *fakeTxRepo) List(_ context.Context, q transactions.ListQuery) ([]*models.Transaction, int, error) {
	f.lastQuery = q
	if f.err != nil {
		return nil, 0, f.err
	}
	var out []*models.Transaction
	for _, tx := range f.byID {
		visible := false
		if q.IncludePersonal && tx.OwnerID == q.OwnerID && tx.GroupID == "" {
			visible = true
		}
		for _, gid := range q.GroupIDs {
			if tx.GroupID == gid {
				visible = true
			}
		}
		if !visible {
			continue
		}
		if q.Category != "" && tx.Category != q.Category {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	total := len(out)
	if q.Offset < len(out) {
		out = out[q.Offset:]
	} else {
		out = nil
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, total, nil
}

func (f *fakeTxRepo) ListForScope(_ context.Context, scope models.Scope, from, to time.Time) ([]*models.Transaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []*models.Transaction
	for _, tx := range f.scoped {
		if tx.Scope() != scope {
			continue
		}
		if tx.Date.Before(from) || !tx.Date.Before(to) {
			continue
		}
		out = append(out, tx)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

type fakeGroupRepo struct {
	byID    map[string]*models.SharedGroup
	removed [][2]string
	err     error
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{byID: map[string]*models.SharedGroup{}}
}

func (f *fakeGroupRepo) Create(_ context.Context, g *models.SharedGroup) error {
	if f.err != nil {
		return f.err
	}
	f.byID[g.ID] = g
	return nil
}

func (f *fakeGroupRepo) GetByID(_ context.Context, id string) (*models.SharedGroup, error) {
	g, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return g, nil
}

func (f *fakeGroupRepo) ListForUser(_ context.Context, userID string) ([]*models.SharedGroup, error) {
	var out []*models.SharedGroup
	for _, g := range f.byID {
		if g.HasMember(userID) {
			out = append(out, g)
		}
	}
	return out, nil
}

func (f *fakeGroupRepo) AddMember(_ context.Context, groupID, userID string) error {
	g, ok := f.byID[groupID]
	if !ok {
		return common.ErrorNotFound
	}
	if !g.HasMember(userID) {
		g.MemberIDs = append(g.MemberIDs, userID)
	}
	return nil
}

func (f *fakeGroupRepo) RemoveMember(_ context.Context, groupID, userID string) error {
	g, ok := f.byID[groupID]
	if !ok || !g.HasMember(userID) {
		return common.ErrorNotFound
	}
	var kept []string
	for _, id := range g.MemberIDs {
		if id != userID {
			kept = append(kept, id)
		}
	}
	g.MemberIDs = kept
	f.removed = append(f.removed, [2]string{groupID, userID})
	return nil
}

func (f *fakeGroupRepo) MemberGroupIDs(_ context.Context, userID string) ([]string, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []string
	for id, g := range f.byID {
		if g.HasMember(userID) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

type fakeInvRepo struct {
	byID map[string]*models.Invitation
}

func newFakeInvRepo() *fakeInvRepo {
	return &fakeInvRepo{byID: map[string]*models.Invitation{}}
}

func (f *fakeInvRepo) Create(_ context.Context, inv *models.Invitation) error {
	f.byID[inv.ID] = inv
	return nil
}

func (f *fakeInvRepo) GetByID(_ context.Context, id string) (*models.Invitation, error) {
	inv, ok := f.byID[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return inv, nil
}

func (f *fakeInvRepo) ListForGroup(_ context.Context, groupID string) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, inv := range f.byID {
		if inv.GroupID == groupID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvRepo) ListForEmail(_ context.Context, email string) ([]*models.Invitation, error) {
	var out []*models.Invitation
	for _, inv := range f.byID {
		if inv.InviteeEmail == email {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *fakeInvRepo) UpdateStatus(_ context.Context, id string, from, to models.InvitationStatus) error {
	inv, ok := f.byID[id]
	if !ok {
		return common.ErrorNotFound
	}
	if inv.Status != from {
		return common.ErrNotPending
	}
	inv.Status = to
	return nil
}

type fakeMappingRepo struct {
	observed []*models.CategoryMapping
	// best maps "kind|key" to a canned answer.
	best map[string]*models.CategoryMapping
	err  error
}

func newFakeMappingRepo() *fakeMappingRepo {
	return &fakeMappingRepo{best: map[string]*models.CategoryMapping{}}
}

func (f *fakeMappingRepo) Observe(_ context.Context, m *models.CategoryMapping) error {
	if f.err != nil {
		return f.err
	}
	f.observed = append(f.observed, m)
	return nil
}

func (f *fakeMappingRepo) Best(_ context.Context, _ models.Scope, kind models.MappingKind, key string) (*models.CategoryMapping, error) {
	if f.err != nil {
		return nil, f.err
	}
	m, ok := f.best[string(kind)+"|"+key]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return m, nil
}

func (f *fakeMappingRepo) ListForScope(_ context.Context, scope models.Scope) ([]*models.CategoryMapping, error) {
	var out []*models.CategoryMapping
	for _, m := range f.observed {
		if m.Scope == scope {
			out = append(out, m)
		}
	}
	return out, nil
}

type fakeInsightRepo struct {
	inserted []*models.Insight
	deletes  int
	err      error
}

func (f *fakeInsightRepo) DeleteForPeriod(_ context.Context, _ models.Scope, _, _ time.Time) error {
	if f.err != nil {
		return f.err
	}
	f.deletes++
	return nil
}

func (f *fakeInsightRepo) Insert(_ context.Context, insight *models.Insight) error {
	if f.err != nil {
		return f.err
	}
	f.inserted = append(f.inserted, insight)
	return nil
}

func (f *fakeInsightRepo) ListForScope(_ context.Context, scope models.Scope) ([]*models.Insight, error) {
	var out []*models.Insight
	for _, ins := range f.inserted {
		if ins.Scope == scope {
			out = append(out, ins)
		}
	}
	return out, nil
}

// fakeRM vends the in-memory fakes regardless of the DBTX handed in.
type fakeRM struct {
	tx  *fakeTxRepo
	grp *fakeGroupRepo
	inv *fakeInvRepo
	mp  *fakeMappingRepo
	ins *fakeInsightRepo
}

func newFakeRM() *fakeRM {
	return &fakeRM{
		tx:  newFakeTxRepo(),
		grp: newFakeGroupRepo(),
		inv: newFakeInvRepo(),
		mp:  newFakeMappingRepo(),
		ins: &fakeInsightRepo{},
	}
}

func (m *fakeRM) RunMigrations(context.Context, *sql.DB) error       { return nil }
func (m *fakeRM) Transactions(dbx.DBTX) transactions.Repository     { return m.tx }
func (m *fakeRM) Groups(dbx.DBTX) groups.Repository                 { return m.grp }
func (m *fakeRM) Invitations(dbx.DBTX) invitations.Repository       { return m.inv }
func (m *fakeRM) Mappings(dbx.DBTX) mappings.Repository             { return m.mp }
func (m *fakeRM) Insights(dbx.DBTX) insights.Repository             { return m.ins }

// recordingNotifier captures published events.
type recordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func (n *recordingNotifier) Publish(e Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.events))
	for i, e := range n.events {
		out[i] = e.Type
	}
	return out
}

// recordingInvalidator captures invalidated scopes.
type recordingInvalidator struct {
	scopes []models.Scope
}

func (r *recordingInvalidator) Invalidate(scope models.Scope) {
	r.scopes = append(r.scopes, scope)
}
