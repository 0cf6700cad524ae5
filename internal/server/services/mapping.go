// Package services contains server-side business logic: transaction CRUD
// with view-mode filtering, batch imports, mapping learning, weekly
// reports, the insight rule engine, groups/invitations, and receipt
// storage.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
)

// MappingService learns merchant/item → category associations from user
// categorizations and suggests categories for new transactions.
type MappingService struct {
	db *sql.DB
	rm repomanager.RepositoryManager
}

func NewMappingService(db *sql.DB, rm repomanager.RepositoryManager) *MappingService {
	return &MappingService{db: db, rm: rm}
}

// NormalizeKey reduces a merchant or item name to its learned-mapping key:
// lowercase, digits and punctuation stripped, whitespace collapsed.
// "REWE Markt #423" and "rewe markt" share one key.
func NormalizeKey(name string) string {
	var b strings.Builder
	b.Grow(len(name))

	lastSpace := true
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r), unicode.IsDigit(r), unicode.IsPunct(r), unicode.IsSymbol(r):
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

// Learn records one observation of name being filed under category within
// the scope. Empty names or categories are silently skipped.
func (s *MappingService) Learn(ctx context.Context, scope models.Scope, kind models.MappingKind, name, category string) error {
	key := NormalizeKey(name)
	if key == "" || category == "" {
		return nil
	}

	m := &models.CategoryMapping{
		Scope:    scope,
		Kind:     kind,
		Key:      key,
		Category: category,
		LastSeen: time.Now().UTC(),
	}
	if err := s.rm.Mappings(s.db).Observe(ctx, m); err != nil {
		return fmt.Errorf("learning mapping: %w", err)
	}
	return nil
}

// Suggest returns the best-known category for name, or "" when the name
// has never been observed in the scope.
func (s *MappingService) Suggest(ctx context.Context, scope models.Scope, kind models.MappingKind, name string) (string, error) {
	key := NormalizeKey(name)
	if key == "" {
		return "", nil
	}

	m, err := s.rm.Mappings(s.db).Best(ctx, scope, kind, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return "", nil
		}
		return "", fmt.Errorf("looking up mapping: %w", err)
	}
	return m.Category, nil
}

// ListMappings returns every learned mapping of a scope, strongest first.
func (s *MappingService) ListMappings(ctx context.Context, scope models.Scope) ([]*models.CategoryMapping, error) {
	return s.rm.Mappings(s.db).ListForScope(ctx, scope)
}
