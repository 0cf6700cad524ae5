package models

import "time"

// SharedGroup is a household or other circle whose members pool their
// shared transactions into one ledger.
type SharedGroup struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerID   string    `json:"owner_id"`
	MemberIDs []string  `json:"member_ids"`
	CreatedAt time.Time `json:"created_at"`
}

// HasMember reports whether userID belongs to the group. The owner is
// always a member.
func (g *SharedGroup) HasMember(userID string) bool {
	if userID == g.OwnerID {
		return true
	}
	for _, id := range g.MemberIDs {
		if id == userID {
			return true
		}
	}
	return false
}
