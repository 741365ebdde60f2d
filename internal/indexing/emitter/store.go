package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
	"github.com/vietddude/ivawatch/internal/subscription"
)

const (
	// DefaultBatchSize is the number of buffered transactions that triggers a write.
	DefaultBatchSize = 500

	// maxPending bounds the buffer while the store is unreachable.
	maxPending = 100_000
)

// ErrBufferFull is returned when the store has been failing long enough
// for the buffer to reach its limit. The transaction is not buffered.
var ErrBufferFull = errors.New("store buffer full")

// StoreHandler buffers delivered transactions and writes them to a
// TransactionRepository in batches. Pending transactions are written when
// the batch fills or on Flush.
type StoreHandler struct {
	repo      storage.TransactionRepository
	batchSize int
	log       *slog.Logger

	mu      sync.Mutex
	pending []*domain.VMDataTransaction
}

// NewStoreHandler creates a store-backed handler.
func NewStoreHandler(repo storage.TransactionRepository, batchSize int) *StoreHandler {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &StoreHandler{
		repo:      repo,
		batchSize: batchSize,
		log:       slog.Default().With("component", "emitter", "sink", "store"),
	}
}

func (h *StoreHandler) HandleTransaction(ctx context.Context, tx *domain.VMDataTransaction) error {
	h.mu.Lock()
	if len(h.pending) >= maxPending {
		h.mu.Unlock()
		return fmt.Errorf("%w: dropping %s", ErrBufferFull, tx.Hash)
	}
	cp := *tx
	h.pending = append(h.pending, &cp)
	full := len(h.pending) >= h.batchSize
	h.mu.Unlock()

	if full {
		return h.Flush(ctx)
	}
	return nil
}

// Flush writes all pending transactions. On failure they stay buffered for
// the next attempt.
func (h *StoreHandler) Flush(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(h.pending) == 0 {
		return nil
	}
	if err := h.repo.SaveBatch(ctx, h.pending); err != nil {
		h.log.Warn("Failed to store transactions", "pending", len(h.pending), "error", err)
		return fmt.Errorf("flush %d transactions: %w", len(h.pending), err)
	}
	h.pending = h.pending[:0]
	return nil
}

// Pending returns the number of buffered transactions.
func (h *StoreHandler) Pending() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.pending)
}

// Flusher is implemented by handlers that buffer writes.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushingCheckpointer flushes f before delegating to next, so a stored
// checkpoint never runs ahead of the stored transactions. next may be nil.
func FlushingCheckpointer(f Flusher, next subscription.Checkpointer) subscription.Checkpointer {
	return subscription.CheckpointFunc(func(ctx context.Context, vmID uint64, p subscription.Progress) error {
		if err := f.Flush(ctx); err != nil {
			return err
		}
		if next == nil {
			return nil
		}
		return next.Checkpoint(ctx, vmID, p)
	})
}
