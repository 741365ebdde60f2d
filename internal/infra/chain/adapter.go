package chain

import (
	"context"

	"github.com/vietddude/ivawatch/internal/core/domain"
)

// Adapter defines the chain-level read interface a subscription polls.
// It is satisfied by subscription.Source.
type Adapter interface {
	// LatestBlockNumber returns the latest confirmed block number
	LatestBlockNumber(ctx context.Context) (uint64, error)

	// VMDataTransactions returns the VM data transactions for vmID in [from, to]
	VMDataTransactions(
		ctx context.Context,
		vmID uint64,
		from, to uint64,
	) ([]*domain.VMDataTransaction, error)

	// Network returns a short name of the chain the adapter reads
	Network() string
}
