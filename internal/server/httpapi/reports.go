package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// resolveScope parses the scope query parameter and checks the caller may
// read it: a user scope must be their own, a group scope requires
// membership. An empty parameter defaults to the caller's personal scope.
func (s *Server) resolveScope(r *http.Request) (models.Scope, error) {
	raw := r.URL.Query().Get("scope")
	if raw == "" {
		return models.UserScope(userID(r)), nil
	}

	scope, err := models.ParseScope(raw)
	if err != nil {
		return models.Scope{}, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	switch scope.Kind {
	case models.ScopeUser:
		if scope.ID != userID(r) {
			return models.Scope{}, common.ErrorForbidden
		}
	case models.ScopeGroup:
		// Get enforces membership.
		if _, err := s.groups.Get(r.Context(), userID(r), scope.ID); err != nil {
			return models.Scope{}, err
		}
	}
	return scope, nil
}

func (s *Server) handleWeeklyReport(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	week := time.Now().UTC()
	if v := r.URL.Query().Get("week"); v != "" {
		if week, err = parseDateParam(v); err != nil {
			writeError(w, err)
			return
		}
	}

	report, err := s.reports.Weekly(r.Context(), scope, week)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleListMappings(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	list, err := s.mappings.ListMappings(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []*models.CategoryMapping{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"mappings": list})
}

func (s *Server) handleListInsights(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	insights, err := s.insights.List(r.Context(), scope)
	if err != nil {
		writeError(w, err)
		return
	}
	if insights == nil {
		insights = []*models.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

func (s *Server) handleGenerateInsights(w http.ResponseWriter, r *http.Request) {
	scope, err := s.resolveScope(r)
	if err != nil {
		writeError(w, err)
		return
	}

	insights, err := s.insights.Generate(r.Context(), scope, time.Now().UTC())
	if err != nil {
		writeError(w, err)
		return
	}
	if insights == nil {
		insights = []*models.Insight{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"insights": insights})
}

// handleEvents upgrades the connection and binds it to the caller's
// personal scope plus their current group memberships.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	groups, err := s.groups.ListForUser(r.Context(), userID(r))
	if err != nil {
		writeError(w, err)
		return
	}
	groupIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		groupIDs = append(groupIDs, g.ID)
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		s.logger.Warn(r.Context(), "websocket upgrade failed", "error", err.Error())
		return
	}
	s.subscriber.Subscribe(conn, userID(r), groupIDs)
}
