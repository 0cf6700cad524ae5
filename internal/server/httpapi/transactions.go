package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/hearthledger/hearthledger/internal/common"
	"github.com/hearthledger/hearthledger/internal/server/batch"
	"github.com/hearthledger/hearthledger/internal/server/models"
)

// listEnvelope is the pagination wrapper around transaction lists.
type listEnvelope struct {
	Transactions []*models.Transaction `json:"transactions"`
	TotalItems   int                   `json:"total_items"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := decodeJSON(r, &tx); err != nil {
		writeError(w, err)
		return
	}

	created, err := s.transactions.Create(r.Context(), userID(r), &tx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := s.transactions.Get(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	var tx models.Transaction
	if err := decodeJSON(r, &tx); err != nil {
		writeError(w, err)
		return
	}
	tx.ID = r.PathValue("id")

	updated, err := s.transactions.Update(r.Context(), userID(r), &tx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := s.transactions.Delete(r.Context(), userID(r), r.PathValue("id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// parseListFilter reads the list query parameters. Dates are inclusive
// "from" and exclusive "to", both RFC 3339 or plain dates.
func parseListFilter(r *http.Request) (models.TransactionFilter, error) {
	q := r.URL.Query()
	f := models.TransactionFilter{
		View:     models.ViewMode(q.Get("view")),
		GroupID:  q.Get("group_id"),
		Category: q.Get("category"),
		Merchant: q.Get("merchant"),
	}

	var err error
	if f.From, err = parseDateParam(q.Get("from")); err != nil {
		return f, err
	}
	if f.To, err = parseDateParam(q.Get("to")); err != nil {
		return f, err
	}

	if v := q.Get("limit"); v != "" {
		f.Limit, err = strconv.Atoi(v)
		if err != nil || f.Limit < 1 {
			return f, fmt.Errorf("%w: limit must be a positive integer", common.ErrValidation)
		}
	}
	if v := q.Get("offset"); v != "" {
		f.Offset, err = strconv.Atoi(v)
		if err != nil || f.Offset < 0 {
			return f, fmt.Errorf("%w: offset must be a non-negative integer", common.ErrValidation)
		}
	}
	return f, nil
}

func parseDateParam(v string) (time.Time, error) {
	if v == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if t, err := time.Parse("2006-01-02", v); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid date %q", common.ErrValidation, v)
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	f, err := parseListFilter(r)
	if err != nil {
		writeError(w, err)
		return
	}

	txs, total, err := s.transactions.List(r.Context(), userID(r), f)
	if err != nil {
		writeError(w, err)
		return
	}
	if txs == nil {
		txs = []*models.Transaction{}
	}
	writeJSON(w, http.StatusOK, listEnvelope{
		Transactions: txs,
		TotalItems:   total,
		Limit:        f.Limit,
		Offset:       f.Offset,
	})
}

func (s *Server) handleSuggestCategory(w http.ResponseWriter, r *http.Request) {
	merchant := r.URL.Query().Get("merchant")
	if merchant == "" {
		writeError(w, fmt.Errorf("%w: merchant parameter is required", common.ErrValidation))
		return
	}

	category, err := s.transactions.SuggestCategory(r.Context(), userID(r), merchant)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"category": category})
}

// batchRequest is the wire form of a batch write. Each op is either a put
// carrying a transaction or a delete carrying an id.
type batchRequest struct {
	Ops []struct {
		Kind        string              `json:"kind"`
		Transaction *models.Transaction `json:"transaction,omitempty"`
		ID          string              `json:"id,omitempty"`
	} `json:"ops"`
}

func (s *Server) handleBatchWrite(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	ops := make([]batch.Op, len(req.Ops))
	for i, op := range req.Ops {
		ops[i] = batch.Op{Kind: batch.OpKind(op.Kind), Transaction: op.Transaction, ID: op.ID}
	}

	res, err := s.transactions.BatchWrite(r.Context(), userID(r), ops)
	if err != nil {
		// A later chunk can fail after earlier chunks committed; report
		// the partial result alongside the error.
		status := http.StatusInternalServerError
		if res != nil && res.ChunksCommitted > 0 {
			writeJSON(w, status, map[string]any{
				"error":            err.Error(),
				"chunks_committed": res.ChunksCommitted,
				"chunks":           res.Chunks,
			})
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleReceiptUploadURL(w http.ResponseWriter, r *http.Request) {
	key, url, err := s.receipts.UploadURL(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"key": key, "url": url})
}

func (s *Server) handleReceiptDownloadURL(w http.ResponseWriter, r *http.Request) {
	url, err := s.receipts.DownloadURL(r.Context(), userID(r), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}
