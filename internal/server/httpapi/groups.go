package httpapi

import (
	"fmt"
	"net/http"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	group, err := s.groups.Create(r.Context(), userID(r), req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, group)
}

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []*models.SharedGroup{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	group, err := s.groups.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, r *http.Request) {
	err := s.groups.RemoveMember(r.Context(), userID(r), r.PathValue("id"), r.PathValue("userID"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleInvite(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	inv, token, err := s.groups.Invite(r.Context(), userID(r), r.PathValue("id"), req.Email)
	if err != nil {
		writeError(w, err)
		return
	}

	// Invite stores the token on the invitation; the caller delivers it
	// to the invitee out of band.
	inv.Token = token
	writeJSON(w, http.StatusCreated, inv)
}

func (s *Server) handleListInvitations(w http.ResponseWriter, r *http.Request) {
	invs, err := s.groups.ListInvitations(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	if invs == nil {
		invs = []*models.Invitation{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"invitations": invs})
}

func decodeTokenRequest(r *http.Request) (string, error) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decodeJSON(r, &req); err != nil {
		return "", err
	}
	if req.Token == "" {
		return "", fmt.Errorf("%w: token is required", common.ErrValidation)
	}
	return req.Token, nil
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, r *http.Request) {
	token, err := decodeTokenRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	group, err := s.groups.Accept(r.Context(), userID(r), token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, group)
}

func (s *Server) handleDeclineInvitation(w http.ResponseWriter, r *http.Request) {
	token, err := decodeTokenRequest(r)
	if err != nil {
		writeError(w, err)
		return
	}

	if err := s.groups.Decline(r.Context(), token); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRevokeInvitation(w http.ResponseWriter, r *http.Request) {
	if err := s.groups.Revoke(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
