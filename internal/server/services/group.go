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
	"github.com/hearthledger/hearthledger/internal/server/auth"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
)

// GroupService manages shared groups and their invitation lifecycle.
// Invitations are accepted or declined by presenting the signed token from
// the invitation email, so the invitee needs no prior account linkage.
type GroupService struct {
	db                 *sql.DB
	rm                 repomanager.RepositoryManager
	logger             logging.Logger
	secretKey          string
	invitationValidity time.Duration
}

func NewGroupService(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger,
	secretKey string, invitationValidity time.Duration) *GroupService {
	return &GroupService{
		db:                 db,
		rm:                 rm,
		logger:             logger.With("module", "groups"),
		secretKey:          secretKey,
		invitationValidity: invitationValidity,
	}
}

// Create makes a new group owned by userID. The owner is always a member.
func (s *GroupService) Create(ctx context.Context, userID, name string) (*models.SharedGroup, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: group name is required", common.ErrValidation)
	}

	group := &models.SharedGroup{
		ID:        uuid.NewString(),
		Name:      name,
		OwnerID:   userID,
		MemberIDs: []string{userID},
		CreatedAt: time.Now().UTC(),
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dtx dbx.DBTX) error {
		return s.rm.Groups(dtx).Create(ctx, group)
	})
	if err != nil {
		return nil, fmt.Errorf("creating group: %w", err)
	}
	return group, nil
}

// Get returns a group the caller is a member of.
func (s *GroupService) Get(ctx context.Context, userID, groupID string) (*models.SharedGroup, error) {
	group, err := s.rm.Groups(s.db).GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(userID) {
		return nil, common.ErrorForbidden
	}
	return group, nil
}

// ListForUser returns every group the caller belongs to.
func (s *GroupService) ListForUser(ctx context.Context, userID string) ([]*models.SharedGroup, error) {
	return s.rm.Groups(s.db).ListForUser(ctx, userID)
}

// RemoveMember removes memberID from a group. The owner may remove any
// member; a member may remove only themselves. The owner cannot leave
// their own group.
func (s *GroupService) RemoveMember(ctx context.Context, userID, groupID, memberID string) error {
	group, err := s.rm.Groups(s.db).GetByID(ctx, groupID)
	if err != nil {
		return err
	}
	if memberID == group.OwnerID {
		return fmt.Errorf("%w: the owner cannot be removed", common.ErrValidation)
	}
	if userID != group.OwnerID && userID != memberID {
		return common.ErrorForbidden
	}
	return s.rm.Groups(s.db).RemoveMember(ctx, groupID, memberID)
}

// Invite creates a pending invitation to a group the caller is a member of
// and returns it together with its signed token.
func (s *GroupService) Invite(ctx context.Context, userID, groupID, email string) (*models.Invitation, string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, "", fmt.Errorf("%w: a valid email is required", common.ErrValidation)
	}

	group, err := s.rm.Groups(s.db).GetByID(ctx, groupID)
	if err != nil {
		return nil, "", err
	}
	if !group.HasMember(userID) {
		return nil, "", common.ErrorForbidden
	}

	now := time.Now().UTC()
	inv := &models.Invitation{
		ID:           uuid.NewString(),
		GroupID:      groupID,
		InviterID:    userID,
		InviteeEmail: email,
		Status:       models.InvitationPending,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.invitationValidity),
	}

	token, err := auth.GenerateInvitationToken(inv.ID, inv.GroupID, inv.InviteeEmail, []byte(s.secretKey), s.invitationValidity)
	if err != nil {
		return nil, "", fmt.Errorf("signing invitation token: %w", err)
	}
	inv.Token = token

	if err := s.rm.Invitations(s.db).Create(ctx, inv); err != nil {
		return nil, "", fmt.Errorf("creating invitation: %w", err)
	}

	s.logger.Info(ctx, "invitation created", "group_id", groupID, "invitation_id", inv.ID)
	return inv, token, nil
}

// resolveToken parses a token and loads its pending, unexpired invitation.
func (s *GroupService) resolveToken(ctx context.Context, token string) (*models.Invitation, error) {
	claims, err := auth.ParseInvitationToken(token, []byte(s.secretKey))
	if err != nil {
		return nil, err
	}
	inv, err := s.rm.Invitations(s.db).GetByID(ctx, claims.InvitationID)
	if err != nil {
		return nil, err
	}
	if inv.Status != models.InvitationPending {
		return nil, common.ErrNotPending
	}
	if time.Now().UTC().After(inv.ExpiresAt) {
		return nil, common.ErrInvitationExpired
	}
	return inv, nil
}

// Accept redeems an invitation token for userID: the invitation becomes
// accepted and the user joins the group, atomically.
func (s *GroupService) Accept(ctx context.Context, userID, token string) (*models.SharedGroup, error) {
	inv, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, dtx dbx.DBTX) error {
		if err := s.rm.Invitations(dtx).UpdateStatus(ctx, inv.ID, models.InvitationPending, models.InvitationAccepted); err != nil {
			return err
		}
		return s.rm.Groups(dtx).AddMember(ctx, inv.GroupID, userID)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "invitation accepted", "group_id", inv.GroupID, "invitation_id", inv.ID)
	return s.rm.Groups(s.db).GetByID(ctx, inv.GroupID)
}

// Decline marks a token's invitation as declined.
func (s *GroupService) Decline(ctx context.Context, token string) error {
	inv, err := s.resolveToken(ctx, token)
	if err != nil {
		return err
	}
	return s.rm.Invitations(s.db).UpdateStatus(ctx, inv.ID, models.InvitationPending, models.InvitationDeclined)
}

// Revoke cancels a pending invitation. Only the inviter or the group owner
// may revoke.
func (s *GroupService) Revoke(ctx context.Context, userID, invitationID string) error {
	inv, err := s.rm.Invitations(s.db).GetByID(ctx, invitationID)
	if err != nil {
		return err
	}
	group, err := s.rm.Groups(s.db).GetByID(ctx, inv.GroupID)
	if err != nil {
		return err
	}
	if userID != inv.InviterID && userID != group.OwnerID {
		return common.ErrorForbidden
	}
	return s.rm.Invitations(s.db).UpdateStatus(ctx, invitationID, models.InvitationPending, models.InvitationRevoked)
}

// ListInvitations returns a group's invitations to any of its members.
func (s *GroupService) ListInvitations(ctx context.Context, userID, groupID string) ([]*models.Invitation, error) {
	group, err := s.rm.Groups(s.db).GetByID(ctx, groupID)
	if err != nil {
		return nil, err
	}
	if !group.HasMember(userID) {
		return nil, common.ErrorForbidden
	}
	return s.rm.Invitations(s.db).ListForGroup(ctx, groupID)
}
