// Package models defines the server-side domain entities: transactions and
// their line items, shared groups, invitations, learned category mappings,
// insights, and derived weekly reports.
package models

import (
	"fmt"
	"strings"
)

// ScopeKind distinguishes personal and group ownership.
type ScopeKind string

const (
	ScopeUser  ScopeKind = "user"
	ScopeGroup ScopeKind = "group"
)

// Scope identifies whose data an operation concerns: a single user's
// personal ledger or a shared group's ledger. It is persisted as the
// string "user:<id>" or "group:<id>".
type Scope struct {
	Kind ScopeKind
	ID   string
}

func UserScope(userID string) Scope {
	return Scope{Kind: ScopeUser, ID: userID}
}

func GroupScope(groupID string) Scope {
	return Scope{Kind: ScopeGroup, ID: groupID}
}

func (s Scope) String() string {
	return string(s.Kind) + ":" + s.ID
}

func (s Scope) IsZero() bool {
	return s.Kind == "" && s.ID == ""
}

// ParseScope parses the persisted "kind:id" form.
func ParseScope(v string) (Scope, error) {
	kind, id, ok := strings.Cut(v, ":")
	if !ok || id == "" {
		return Scope{}, fmt.Errorf("invalid scope %q", v)
	}
	switch ScopeKind(kind) {
	case ScopeUser, ScopeGroup:
		return Scope{Kind: ScopeKind(kind), ID: id}, nil
	default:
		return Scope{}, fmt.Errorf("invalid scope kind %q", kind)
	}
}
