// Package httpapi exposes the service layer as a JSON HTTP API. All /api
// routes expect the authenticated user's ID in the X-User-ID header,
// normally injected by the fronting proxy.
package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/batch"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// TransactionService is the transaction surface the API needs.
type TransactionService interface {
	Create(ctx context.Context, userID string, tx *models.Transaction) (*models.Transaction, error)
	Update(ctx context.Context, userID string, tx *models.Transaction) (*models.Transaction, error)
	Delete(ctx context.Context, userID, id string) error
	Get(ctx context.Context, userID, id string) (*models.Transaction, error)
	List(ctx context.Context, userID string, f models.TransactionFilter) ([]*models.Transaction, int, error)
	SuggestCategory(ctx context.Context, userID, merchant string) (string, error)
	BatchWrite(ctx context.Context, userID string, ops []batch.Op) (*batch.Result, error)
}

type GroupService interface {
	Create(ctx context.Context, userID, name string) (*models.SharedGroup, error)
	Get(ctx context.Context, userID, groupID string) (*models.SharedGroup, error)
	ListForUser(ctx context.Context, userID string) ([]*models.SharedGroup, error)
	RemoveMember(ctx context.Context, userID, groupID, memberID string) error
	Invite(ctx context.Context, userID, groupID, email string) (*models.Invitation, string, error)
	Accept(ctx context.Context, userID, token string) (*models.SharedGroup, error)
	Decline(ctx context.Context, token string) error
	Revoke(ctx context.Context, userID, invitationID string) error
	ListInvitations(ctx context.Context, userID, groupID string) ([]*models.Invitation, error)
}

type ReportService interface {
	Weekly(ctx context.Context, scope models.Scope, weekStart time.Time) (*models.WeeklyReport, error)
}

// MappingService exposes a scope's learned category mappings.
type MappingService interface {
	ListMappings(ctx context.Context, scope models.Scope) ([]*models.CategoryMapping, error)
}

type InsightService interface {
	Generate(ctx context.Context, scope models.Scope, asOf time.Time) ([]*models.Insight, error)
	List(ctx context.Context, scope models.Scope) ([]*models.Insight, error)
}

type ReceiptService interface {
	UploadURL(ctx context.Context) (string, string, error)
	DownloadURL(ctx context.Context, userID, transactionID string) (string, error)
}

// Subscriber attaches an upgraded websocket connection to the event hub.
type Subscriber interface {
	Subscribe(conn *websocket.Conn, userID string, groupIDs []string)
}

type Server struct {
	logger       logging.Logger
	transactions TransactionService
	groups       GroupService
	reports      ReportService
	mappings     MappingService
	insights     InsightService
	receipts     ReceiptService
	subscriber   Subscriber
	upgrader     websocket.Upgrader
}

func NewServer(logger logging.Logger, transactions TransactionService, groups GroupService,
	reports ReportService, mappings MappingService, insights InsightService,
	receipts ReceiptService, subscriber Subscriber) *Server {
	return &Server{
		logger:       logger.With("module", "httpapi"),
		transactions: transactions,
		groups:       groups,
		reports:      reports,
		mappings:     mappings,
		insights:     insights,
		receipts:     receipts,
		subscriber:   subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
}

// Routes builds the full route table.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.Handle("POST /api/transactions", s.requireUser(s.handleCreateTransaction))
	mux.Handle("GET /api/transactions", s.requireUser(s.handleListTransactions))
	mux.Handle("GET /api/transactions/suggest-category", s.requireUser(s.handleSuggestCategory))
	mux.Handle("POST /api/transactions/batch", s.requireUser(s.handleBatchWrite))
	mux.Handle("GET /api/transactions/{id}", s.requireUser(s.handleGetTransaction))
	mux.Handle("PUT /api/transactions/{id}", s.requireUser(s.handleUpdateTransaction))
	mux.Handle("DELETE /api/transactions/{id}", s.requireUser(s.handleDeleteTransaction))
	mux.Handle("GET /api/transactions/{id}/receipt-url", s.requireUser(s.handleReceiptDownloadURL))

	mux.Handle("POST /api/receipts/upload-url", s.requireUser(s.handleReceiptUploadURL))

	mux.Handle("POST /api/groups", s.requireUser(s.handleCreateGroup))
	mux.Handle("GET /api/groups", s.requireUser(s.handleListGroups))
	mux.Handle("GET /api/groups/{id}", s.requireUser(s.handleGetGroup))
	mux.Handle("DELETE /api/groups/{id}/members/{userID}", s.requireUser(s.handleRemoveMember))
	mux.Handle("POST /api/groups/{id}/invitations", s.requireUser(s.handleInvite))
	mux.Handle("GET /api/groups/{id}/invitations", s.requireUser(s.handleListInvitations))

	mux.Handle("POST /api/invitations/accept", s.requireUser(s.handleAcceptInvitation))
	mux.Handle("POST /api/invitations/decline", s.requireUser(s.handleDeclineInvitation))
	mux.Handle("POST /api/invitations/{id}/revoke", s.requireUser(s.handleRevokeInvitation))

	mux.Handle("GET /api/mappings", s.requireUser(s.handleListMappings))

	mux.Handle("GET /api/reports/weekly", s.requireUser(s.handleWeeklyReport))
	mux.Handle("GET /api/insights", s.requireUser(s.handleListInsights))
	mux.Handle("POST /api/insights/generate", s.requireUser(s.handleGenerateInsights))

	mux.Handle("GET /api/events", s.requireUser(s.handleEvents))

	return s.logRequests(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
