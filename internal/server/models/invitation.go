package models

import "time"

// InvitationStatus is the lifecycle state of a group invitation.
type InvitationStatus string

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationDeclined InvitationStatus = "declined"
	InvitationRevoked  InvitationStatus = "revoked"
)

// Invitation asks an email address to join a shared group. Token is a
// signed JWT the invitee presents to accept.
type Invitation struct {
	ID           string           `json:"id"`
	GroupID      string           `json:"group_id"`
	InviterID    string           `json:"inviter_id"`
	InviteeEmail string           `json:"invitee_email"`
	Status       InvitationStatus `json:"status"`
	Token        string           `json:"token,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	ExpiresAt    time.Time        `json:"expires_at"`
}
