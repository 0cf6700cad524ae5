package services

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/batch"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
	"github.com/hearthledger/hearthledger/internal/server/repositories/transactions"
)

// MaxBatchOps caps one batch request; the batch writer chunks below this.
const MaxBatchOps = 2000

// defaultPageSize and maxPageSize bound list pagination.
const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Invalidator drops derived data for a scope after a write. The report
// service implements it.
type Invalidator interface {
	Invalidate(scope models.Scope)
}

type nopInvalidator struct{}

func (nopInvalidator) Invalidate(models.Scope) {}

// TransactionService provides transaction CRUD with ownership and
// group-membership enforcement, batch imports, and category learning.
type TransactionService struct {
	db          *sql.DB
	rm          repomanager.RepositoryManager
	logger      logging.Logger
	mappings    *MappingService
	invalidator Invalidator
	notifier    Notifier
	writer      *batch.Writer
}

func NewTransactionService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger,
	mappings *MappingService, invalidator Invalidator, notifier Notifier, writer *batch.Writer) *TransactionService {
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	if notifier == nil {
		notifier = NopNotifier{}
	}
	return &TransactionService{
		db:          db,
		rm:          rm,
		logger:      logger.With("module", "transactions"),
		mappings:    mappings,
		invalidator: invalidator,
		notifier:    notifier,
		writer:      writer,
	}
}

// validate normalizes and checks a transaction payload.
func validate(tx *models.Transaction) error {
	if strings.TrimSpace(tx.Merchant) == "" {
		return fmt.Errorf("%w: merchant is required", common.ErrValidation)
	}
	tx.Currency = strings.ToUpper(strings.TrimSpace(tx.Currency))
	if len(tx.Currency) != 3 {
		return fmt.Errorf("%w: currency must be a 3-letter code", common.ErrValidation)
	}
	if !tx.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", common.ErrValidation)
	}
	if tx.Date.IsZero() {
		return fmt.Errorf("%w: date is required", common.ErrValidation)
	}
	for _, item := range tx.Items {
		if strings.TrimSpace(item.Name) == "" {
			return fmt.Errorf("%w: item name is required", common.ErrValidation)
		}
		if item.Quantity <= 0 {
			item.Quantity = 1
		}
	}
	return nil
}

// requireGroupMember returns common.ErrorForbidden unless userID belongs
// to the group.
func (s *TransactionService) requireGroupMember(ctx context.Context, userID, groupID string) error {
	group, err := s.rm.Groups(s.db).GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if !group.HasMember(userID) {
		return common.ErrorForbidden
	}
	return nil
}

// prepare stamps identity and timestamps on a transaction and its items.
// A caller-supplied id is kept so batch re-imports replace their earlier
// rows instead of duplicating them.
func prepare(userID string, tx *models.Transaction, now time.Time) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	tx.OwnerID = userID
	tx.CreatedAt = now
	tx.UpdatedAt = now
	for _, item := range tx.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.TransactionID = tx.ID
	}
}

// Create validates and stores a new transaction for userID, learns its
// categorization, and notifies listeners.
func (s *TransactionService) Create(ctx context.Context, userID string, tx *models.Transaction) (*models.Transaction, error) {
	if err := validate(tx); err != nil {
		return nil, err
	}
	if tx.GroupID != "" {
		if err := s.requireGroupMember(ctx, userID, tx.GroupID); err != nil {
			return nil, err
		}
	}

	// Single creates always get a server-assigned id.
	tx.ID = ""
	prepare(userID, tx, time.Now().UTC())

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dtx dbx.DBTX) error {
		return s.rm.Transactions(dtx).Create(ctx, tx)
	})
	if err != nil {
		return nil, fmt.Errorf("creating transaction: %w", err)
	}

	s.afterWrite(ctx, tx, EventTransactionCreated)
	return tx, nil
}

// Update rewrites a transaction the caller owns, relearns its
// categorization, and notifies listeners.
func (s *TransactionService) Update(ctx context.Context, userID string, tx *models.Transaction) (*models.Transaction, error) {
	if tx.ID == "" {
		return nil, fmt.Errorf("%w: id is required", common.ErrValidation)
	}
	if err := validate(tx); err != nil {
		return nil, err
	}
	if tx.GroupID != "" {
		if err := s.requireGroupMember(ctx, userID, tx.GroupID); err != nil {
			return nil, err
		}
	}

	tx.OwnerID = userID
	tx.UpdatedAt = time.Now().UTC()
	for _, item := range tx.Items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		item.TransactionID = tx.ID
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dtx dbx.DBTX) error {
		return s.rm.Transactions(dtx).Update(ctx, tx)
	})
	if err != nil {
		return nil, err
	}

	s.afterWrite(ctx, tx, EventTransactionUpdated)
	return tx, nil
}

// afterWrite learns mappings from a categorized write, invalidates the
// scope's derived data, and publishes a change event.
func (s *TransactionService) afterWrite(ctx context.Context, tx *models.Transaction, eventType string) {
	scope := tx.Scope()

	if tx.Category != "" {
		if err := s.mappings.Learn(ctx, scope, models.MappingMerchant, tx.Merchant, tx.Category); err != nil {
			s.logger.Warn(ctx, "mapping learn failed", "error", err.Error())
		}
	}
	for _, item := range tx.Items {
		if item.Category == "" {
			continue
		}
		if err := s.mappings.Learn(ctx, scope, models.MappingItem, item.Name, item.Category); err != nil {
			s.logger.Warn(ctx, "item mapping learn failed", "error", err.Error())
		}
	}

	s.invalidator.Invalidate(scope)
	s.notifier.Publish(Event{
		Type:     eventType,
		Scope:    scope.String(),
		EntityID: tx.ID,
		At:       time.Now().UTC(),
	})
}

// Get loads a transaction the caller may see: their own, or one belonging
// to a group they are a member of.
func (s *TransactionService) Get(ctx context.Context, userID, id string) (*models.Transaction, error) {
	tx, err := s.rm.Transactions(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.checkVisible(ctx, userID, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *TransactionService) checkVisible(ctx context.Context, userID string, tx *models.Transaction) error {
	if tx.OwnerID == userID {
		return nil
	}
	if tx.GroupID == "" {
		return common.ErrorForbidden
	}
	return s.requireGroupMember(ctx, userID, tx.GroupID)
}

// Delete removes a transaction the caller owns.
func (s *TransactionService) Delete(ctx context.Context, userID, id string) error {
	tx, err := s.rm.Transactions(s.db).GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.rm.Transactions(s.db).Delete(ctx, id, userID); err != nil {
		return err
	}

	scope := tx.Scope()
	s.invalidator.Invalidate(scope)
	s.notifier.Publish(Event{
		Type:     EventTransactionDeleted,
		Scope:    scope.String(),
		EntityID: id,
		At:       time.Now().UTC(),
	})
	return nil
}

// List resolves the requested view mode into the caller's visible ledgers
// and returns a page of matches plus the total count.
func (s *TransactionService) List(ctx context.Context, userID string, f models.TransactionFilter) ([]*models.Transaction, int, error) {
	q := transactions.ListQuery{
		Category: f.Category,
		Merchant: f.Merchant,
		From:     f.From,
		To:       f.To,
		Limit:    f.Limit,
		Offset:   f.Offset,
	}
	if q.Limit <= 0 {
		q.Limit = defaultPageSize
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	switch f.View {
	case models.ViewPersonal, "":
		q.IncludePersonal = true
		q.OwnerID = userID
	case models.ViewGroup:
		if f.GroupID == "" {
			return nil, 0, fmt.Errorf("%w: group_id is required for the group view", common.ErrValidation)
		}
		if err := s.requireGroupMember(ctx, userID, f.GroupID); err != nil {
			return nil, 0, err
		}
		q.GroupIDs = []string{f.GroupID}
	case models.ViewAll:
		q.IncludePersonal = true
		q.OwnerID = userID
		groupIDs, err := s.rm.Groups(s.db).MemberGroupIDs(ctx, userID)
		if err != nil {
			return nil, 0, err
		}
		q.GroupIDs = groupIDs
	default:
		return nil, 0, fmt.Errorf("%w: unknown view %q", common.ErrValidation, f.View)
	}

	return s.rm.Transactions(s.db).List(ctx, q)
}

// SuggestCategory proposes a category for a merchant name from the
// caller's learned mappings. Empty result means no suggestion.
func (s *TransactionService) SuggestCategory(ctx context.Context, userID, merchant string) (string, error) {
	return s.mappings.Suggest(ctx, models.UserScope(userID), models.MappingMerchant, merchant)
}

// BatchWrite validates and applies up to MaxBatchOps put/delete operations
// through the chunking batch writer. Puts are stamped like Create; group
// memberships are resolved once up front.
func (s *TransactionService) BatchWrite(ctx context.Context, userID string, ops []batch.Op) (*batch.Result, error) {
	if len(ops) == 0 {
		return &batch.Result{}, nil
	}
	if len(ops) > MaxBatchOps {
		return nil, fmt.Errorf("%w: at most %d operations per batch", common.ErrValidation, MaxBatchOps)
	}

	memberOf := map[string]bool{}
	groupIDs, err := s.rm.Groups(s.db).MemberGroupIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, id := range groupIDs {
		memberOf[id] = true
	}

	now := time.Now().UTC()
	scopes := map[models.Scope]bool{}
	for i := range ops {
		op := &ops[i]
		switch op.Kind {
		case batch.OpPut:
			if op.Transaction == nil {
				return nil, fmt.Errorf("%w: put operation without transaction", common.ErrValidation)
			}
			if err := validate(op.Transaction); err != nil {
				return nil, err
			}
			if op.Transaction.GroupID != "" && !memberOf[op.Transaction.GroupID] {
				return nil, common.ErrorForbidden
			}
			prepare(userID, op.Transaction, now)
			scopes[op.Transaction.Scope()] = true
		case batch.OpDelete:
			if op.ID == "" {
				return nil, fmt.Errorf("%w: delete operation without id", common.ErrValidation)
			}
			scopes[models.UserScope(userID)] = true
		default:
			return nil, fmt.Errorf("%w: unknown operation kind %q", common.ErrValidation, op.Kind)
		}
	}

	res, err := s.writer.Write(ctx, userID, ops)

	// Committed chunks stay committed even when a later chunk fails, so
	// derived data is refreshed in both outcomes.
	if res != nil && res.ChunksCommitted > 0 {
		for scope := range scopes {
			s.invalidator.Invalidate(scope)
		}
		s.notifier.Publish(Event{
			Type:  EventBatchCommitted,
			Scope: models.UserScope(userID).String(),
			At:    time.Now().UTC(),
		})
	}
	return res, err
}
