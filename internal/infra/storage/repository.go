package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
)

var (
	// ErrCheckpointNotFound is returned when no checkpoint exists for a VM id
	ErrCheckpointNotFound = errors.New("checkpoint not found")

	// ErrTransactionNotFound is returned when a stored transaction doesn't exist
	ErrTransactionNotFound = errors.New("transaction not found")
)

// CheckpointRepository handles subscription progress storage
type CheckpointRepository interface {
	// Get retrieves the checkpoint for a VM id
	Get(ctx context.Context, vmID uint64) (*domain.Checkpoint, error)

	// Save saves/updates the checkpoint
	Save(ctx context.Context, cp *domain.Checkpoint) error

	// List retrieves every checkpoint, ordered by VM id
	List(ctx context.Context) ([]*domain.Checkpoint, error)
}

// TransactionRepository handles delivered transaction storage.
// Saves are idempotent on (vm_id, hash).
type TransactionRepository interface {
	// Save saves a transaction
	Save(ctx context.Context, tx *domain.VMDataTransaction) error

	// SaveBatch saves multiple transactions
	SaveBatch(ctx context.Context, txs []*domain.VMDataTransaction) error

	// GetByHash retrieves a transaction by hash
	GetByHash(ctx context.Context, vmID uint64, hash string) (*domain.VMDataTransaction, error)

	// ListByVM retrieves up to limit transactions from fromBlock on, in block order
	ListByVM(
		ctx context.Context,
		vmID uint64,
		fromBlock uint64,
		limit int,
	) ([]*domain.VMDataTransaction, error)

	// DeleteOlderThan deletes transactions stored before cutoff and returns the count
	DeleteOlderThan(ctx context.Context, vmID uint64, cutoff time.Time) (int64, error)
}
