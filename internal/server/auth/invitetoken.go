// Package auth issues and verifies the signed tokens embedded in group
// invitations.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hearthledger/hearthledger/internal/common"
)

// InvitationClaims extends the registered JWT claims with the invitation
// identity the token grants.
type InvitationClaims struct {
	jwt.RegisteredClaims
	InvitationID string `json:"inv"`
	GroupID      string `json:"grp"`
	InviteeEmail string `json:"eml"`
}

// GenerateInvitationToken signs an HS256 token binding the invitation id,
// group id, and invitee email until expiry.
func GenerateInvitationToken(invitationID, groupID, email string, secretKey []byte, validity time.Duration) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, InvitationClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(validity)),
		},
		InvitationID: invitationID,
		GroupID:      groupID,
		InviteeEmail: email,
	})

	return token.SignedString(secretKey)
}

// ParseInvitationToken verifies the signature and expiry and returns the
// claims. Any failure yields common.ErrInvalidToken.
func ParseInvitationToken(tokenString string, secretKey []byte) (*InvitationClaims, error) {
	claims := &InvitationClaims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return secretKey, nil
	})
	if err != nil || !token.Valid {
		return nil, common.ErrInvalidToken
	}

	return claims, nil
}
