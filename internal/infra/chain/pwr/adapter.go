// Package pwr reads VM data transactions from a PWR chain node over its
// REST API.
package pwr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/rpc"
)

// ErrUnexpectedResponse is returned when a node answers with a body that
// is valid JSON but not the expected shape.
var ErrUnexpectedResponse = errors.New("unexpected response")

// PWRAdapter implements chain.Adapter for PWR nodes.
// API: GET /latestBlockNumber/, GET /getVmTransactions/
type PWRAdapter struct {
	network string
	client  rpc.RPCClient
	log     *slog.Logger
}

// NewPWRAdapter creates a new PWR adapter.
func NewPWRAdapter(network string, client rpc.RPCClient) *PWRAdapter {
	return &PWRAdapter{
		network: network,
		client:  client,
		log:     slog.Default().With("component", "pwr", "network", network),
	}
}

// Network returns the configured network name.
func (a *PWRAdapter) Network() string {
	return a.network
}

type latestBlockResponse struct {
	LatestBlockNumber *uint64 `json:"latestBlockNumber"`
}

type vmTransactionsResponse struct {
	Transactions []*domain.VMDataTransaction `json:"transactions"`
}

// LatestBlockNumber returns the latest block number on the chain.
func (a *PWRAdapter) LatestBlockNumber(ctx context.Context) (uint64, error) {
	var resp latestBlockResponse
	if err := a.call(ctx, rpc.NewOperation("latestBlockNumber", nil), &resp); err != nil {
		return 0, fmt.Errorf("failed to get latest block: %w", err)
	}
	if resp.LatestBlockNumber == nil {
		return 0, fmt.Errorf("latestBlockNumber: %w: missing field", ErrUnexpectedResponse)
	}
	return *resp.LatestBlockNumber, nil
}

// VMDataTransactions returns the VM data transactions for vmID confirmed in
// [from, to], ordered by block then position in the block.
func (a *PWRAdapter) VMDataTransactions(
	ctx context.Context,
	vmID uint64,
	from, to uint64,
) ([]*domain.VMDataTransaction, error) {
	if from > to {
		return nil, fmt.Errorf("invalid range [%d, %d]", from, to)
	}

	query := url.Values{
		"startingBlock": {strconv.FormatUint(from, 10)},
		"endingBlock":   {strconv.FormatUint(to, 10)},
		"vmId":          {strconv.FormatUint(vmID, 10)},
	}

	var resp vmTransactionsResponse
	if err := a.call(ctx, rpc.NewOperation("getVmTransactions", query), &resp); err != nil {
		return nil, fmt.Errorf("failed to get vm %d transactions: %w", vmID, err)
	}

	txs := make([]*domain.VMDataTransaction, 0, len(resp.Transactions))
	for i, tx := range resp.Transactions {
		if tx == nil {
			a.log.Warn("skipping null transaction", "index", i)
			continue
		}
		// Nodes may omit vmId on the scoped endpoint
		if tx.VMID == 0 {
			tx.VMID = vmID
		}
		if tx.VMID != vmID || tx.BlockNumber < from || tx.BlockNumber > to {
			a.log.Warn("skipping out-of-scope transaction",
				"hash", tx.Hash,
				"vm_id", tx.VMID,
				"block", tx.BlockNumber,
			)
			continue
		}
		txs = append(txs, tx)
	}

	sort.SliceStable(txs, func(i, j int) bool {
		if txs[i].BlockNumber != txs[j].BlockNumber {
			return txs[i].BlockNumber < txs[j].BlockNumber
		}
		return txs[i].PositionInTheBlock < txs[j].PositionInTheBlock
	})

	return txs, nil
}

func (a *PWRAdapter) call(ctx context.Context, op rpc.Operation, out any) error {
	raw, err := a.client.Execute(ctx, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: %w: %v", op.Name, ErrUnexpectedResponse, err)
	}
	return nil
}
