// Package batch implements bulk transaction writes. Operations are split
// into chunks of at most 500, each chunk is applied atomically in its own
// database transaction, and a chunk failing with a transient error is
// retried exactly once after a backoff delay.
package batch

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sethvargo/go-retry"

	"github.com/hearthledger/hearthledger/internal/dbx"
	"github.com/hearthledger/hearthledger/internal/logging"
	"github.com/hearthledger/hearthledger/internal/server/models"
	"github.com/hearthledger/hearthledger/internal/server/repositories/repomanager"
)

// MaxChunkSize is the largest number of operations committed in one
// database transaction.
const MaxChunkSize = 500

// OpKind selects what an Op does.
type OpKind string

const (
	OpPut    OpKind = "put"    // insert or replace a transaction
	OpDelete OpKind = "delete" // delete a transaction by id
)

// Op is one batched operation. Put carries the full transaction; Delete
// carries the transaction id (OwnerID comes from the caller).
type Op struct {
	Kind        OpKind
	Transaction *models.Transaction
	ID          string
}

// Result reports what a Write committed. On error, ChunksCommitted tells
// the caller which prefix of the input is durable.
type Result struct {
	Ops             int `json:"ops"`
	Chunks          int `json:"chunks"`
	ChunksCommitted int `json:"chunks_committed"`
}

// Writer applies batches of operations for one owner.
type Writer struct {
	db      *sql.DB
	rm      repomanager.RepositoryManager
	logger  logging.Logger
	backoff time.Duration
}

func NewWriter(db *sql.DB, rm repomanager.RepositoryManager, logger logging.Logger, backoff time.Duration) *Writer {
	return &Writer{
		db:      db,
		rm:      rm,
		logger:  logger.With("module", "batch_writer"),
		backoff: backoff,
	}
}

// Write applies ops in input order, chunked at MaxChunkSize. An empty
// input performs no database work. On a chunk failure the returned error
// names the failing chunk; earlier chunks stay committed.
func (w *Writer) Write(ctx context.Context, ownerID string, ops []Op) (*Result, error) {
	res := &Result{Ops: len(ops)}
	if len(ops) == 0 {
		return res, nil
	}

	chunks := split(ops, MaxChunkSize)
	res.Chunks = len(chunks)

	for i, chunk := range chunks {
		if err := w.writeChunk(ctx, ownerID, chunk); err != nil {
			w.logger.Error(ctx, "batch chunk failed",
				"chunk", i+1, "chunks", len(chunks), "ops", len(chunk))
			return res, fmt.Errorf("chunk %d/%d: %w", i+1, len(chunks), err)
		}
		res.ChunksCommitted++
	}

	w.logger.Info(ctx, "batch committed", "ops", len(ops), "chunks", len(chunks))
	return res, nil
}

// writeChunk commits one chunk, retrying once when the failure is
// transient.
func (w *Writer) writeChunk(ctx context.Context, ownerID string, ops []Op) error {
	b := retry.WithMaxRetries(1, retry.NewConstant(w.backoff))

	return retry.Do(ctx, b, func(ctx context.Context) error {
		err := dbx.WithTx(ctx, w.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
			repo := w.rm.Transactions(tx)
			for _, op := range ops {
				var opErr error
				switch op.Kind {
				case OpPut:
					opErr = repo.Upsert(ctx, op.Transaction)
				case OpDelete:
					opErr = repo.Delete(ctx, op.ID, ownerID)
				default:
					opErr = fmt.Errorf("unknown op kind %q", op.Kind)
				}
				if opErr != nil {
					return opErr
				}
			}
			return nil
		})
		if err != nil && isTransient(err) {
			w.logger.Warn(ctx, "transient batch failure, retrying", "error", err.Error())
			return retry.RetryableError(err)
		}
		return err
	})
}

// isTransient reports whether the error is worth one retry: serialization
// failures, deadlocks, and connection-class errors.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == "40001": // serialization_failure
			return true
		case pgErr.Code == "40P01": // deadlock_detected
			return true
		case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
			return true
		}
		return false
	}
	return errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone)
}

// split cuts ops into consecutive chunks of at most size elements,
// preserving order.
func split(ops []Op, size int) [][]Op {
	var chunks [][]Op
	for len(ops) > size {
		chunks = append(chunks, ops[:size])
		ops = ops[size:]
	}
	return append(chunks, ops)
}
