package subscription

import (
	"context"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
)

// Source is the chain data source a subscription polls.
type Source interface {
	// LatestBlockNumber returns the highest confirmed block number.
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// VMDataTransactions returns the transactions for vmID confirmed in
	// [from, to], in block order then in-block order. from <= to.
	VMDataTransactions(
		ctx context.Context,
		vmID uint64,
		from, to uint64,
	) ([]*domain.VMDataTransaction, error)
}

// Handler receives delivered transactions.
// Calls are sequential and run inline on the poll loop, so implementations
// should return promptly. A returned error is logged and counted; the
// transaction is not redelivered.
type Handler interface {
	HandleTransaction(ctx context.Context, tx *domain.VMDataTransaction) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, tx *domain.VMDataTransaction) error

// HandleTransaction calls f(ctx, tx).
func (f HandlerFunc) HandleTransaction(ctx context.Context, tx *domain.VMDataTransaction) error {
	return f(ctx, tx)
}

// Checkpointer persists progress after each advanced window.
type Checkpointer interface {
	Checkpoint(ctx context.Context, vmID uint64, p Progress) error
}

// CheckpointFunc adapts a function to the Checkpointer interface.
type CheckpointFunc func(ctx context.Context, vmID uint64, p Progress) error

// Checkpoint calls f(ctx, vmID, p).
func (f CheckpointFunc) Checkpoint(ctx context.Context, vmID uint64, p Progress) error {
	return f(ctx, vmID, p)
}

// Backoff returns how long to wait after the given number of consecutive
// failures (0-indexed). recovery.ExponentialBackoff satisfies it.
type Backoff interface {
	GetDelay(attempt int) time.Duration
}
