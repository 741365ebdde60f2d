package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

// TxRepo implements storage.TransactionRepository using PostgreSQL.
type TxRepo struct {
	db *DB
}

var _ storage.TransactionRepository = (*TxRepo)(nil)

// NewTxRepo creates a new PostgreSQL transaction repository.
func NewTxRepo(db *DB) *TxRepo {
	return &TxRepo{db: db}
}

// Save saves a transaction to the database.
func (r *TxRepo) Save(ctx context.Context, tx *domain.VMDataTransaction) error {
	return r.SaveBatch(ctx, []*domain.VMDataTransaction{tx})
}

// SaveBatch inserts all transactions in one statement. Rows already stored
// for (vm_id, hash) are left untouched.
func (r *TxRepo) SaveBatch(ctx context.Context, txs []*domain.VMDataTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	n := len(txs)
	var (
		ids       = make([]string, n)
		vmIDs     = make([]int64, n)
		hashes    = make([]string, n)
		senders   = make([]string, n)
		nonces    = make([]int64, n)
		blocks    = make([]int64, n)
		positions = make([]int64, n)
		stamps    = make([]int64, n)
		fees      = make([]int64, n)
		sizes     = make([]int64, n)
		data      = make([]string, n)
		successes = make([]bool, n)
		messages  = make([]string, n)
	)
	for i, t := range txs {
		ids[i] = uuid.NewString()
		vmIDs[i] = int64(t.VMID)
		hashes[i] = t.Hash
		senders[i] = t.Sender
		nonces[i] = int64(t.Nonce)
		blocks[i] = int64(t.BlockNumber)
		positions[i] = int64(t.PositionInTheBlock)
		stamps[i] = int64(t.Timestamp)
		fees[i] = int64(t.Fee)
		sizes[i] = int64(t.Size)
		data[i] = t.Data
		successes[i] = t.Success
		messages[i] = t.ErrorMessage
	}

	query := `
		INSERT INTO iva_transactions (
			id, vm_id, hash, sender, nonce, block_number, position_in_block,
			timestamp, fee, size, data, success, error_message
		)
		SELECT * FROM unnest(
			$1::uuid[], $2::bigint[], $3::text[], $4::text[], $5::bigint[], $6::bigint[], $7::int[],
			$8::bigint[], $9::bigint[], $10::int[], $11::text[], $12::boolean[], $13::text[]
		)
		ON CONFLICT (vm_id, hash) DO NOTHING
	`
	_, err := r.db.ExecContext(ctx, query,
		pq.Array(ids), pq.Array(vmIDs), pq.Array(hashes), pq.Array(senders),
		pq.Array(nonces), pq.Array(blocks), pq.Array(positions),
		pq.Array(stamps), pq.Array(fees), pq.Array(sizes),
		pq.Array(data), pq.Array(successes), pq.Array(messages),
	)
	if err != nil {
		return fmt.Errorf("failed to save transactions: %w", err)
	}
	return nil
}

const txColumns = `
	vm_id, hash, sender, nonce, block_number, position_in_block,
	timestamp, fee, size, data, success, error_message
`

// GetByHash retrieves a transaction by hash.
func (r *TxRepo) GetByHash(ctx context.Context, vmID uint64, hash string) (*domain.VMDataTransaction, error) {
	query := `SELECT ` + txColumns + ` FROM iva_transactions WHERE vm_id = $1 AND hash = $2`

	var tx domain.VMDataTransaction
	err := r.db.GetContext(ctx, &tx, query, int64(vmID), hash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrTransactionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &tx, nil
}

// ListByVM retrieves transactions for a VM id from fromBlock on.
func (r *TxRepo) ListByVM(
	ctx context.Context,
	vmID uint64,
	fromBlock uint64,
	limit int,
) ([]*domain.VMDataTransaction, error) {
	if limit <= 0 {
		limit = 1000
	}
	query := `SELECT ` + txColumns + `
		FROM iva_transactions
		WHERE vm_id = $1 AND block_number >= $2
		ORDER BY block_number, position_in_block
		LIMIT $3`

	var txs []*domain.VMDataTransaction
	if err := r.db.SelectContext(ctx, &txs, query, int64(vmID), int64(fromBlock), limit); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// DeleteOlderThan deletes transactions stored before cutoff.
func (r *TxRepo) DeleteOlderThan(ctx context.Context, vmID uint64, cutoff time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM iva_transactions WHERE vm_id = $1 AND stored_at < $2`,
		int64(vmID), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune transactions: %w", err)
	}
	return res.RowsAffected()
}
