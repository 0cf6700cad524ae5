// Package common defines shared constants and sentinel errors used across
// the hearthledger server layers. Callers should use errors.Is to match
// these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal  = errors.New("internal error")
	ErrorForbidden = errors.New("forbidden")
	ErrValidation  = errors.New("validation error")

	// Invitation lifecycle errors.
	ErrInvalidToken      = errors.New("invalid token")
	ErrInvitationExpired = errors.New("invitation expired")
	ErrNotPending        = errors.New("invitation is not pending")
)
