package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

type txKey struct {
	vmID uint64
	hash string
}

type storedTx struct {
	tx       domain.VMDataTransaction
	storedAt time.Time
}

type MemoryStorage struct {
	checkpoints map[uint64]*domain.Checkpoint
	txs         map[txKey]*storedTx
	mu          sync.RWMutex

	now func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		checkpoints: make(map[uint64]*domain.Checkpoint),
		txs:         make(map[txKey]*storedTx),
		now:         time.Now,
	}
}

// -----------------------------------------------------------------------------
// Checkpoint Repository
// -----------------------------------------------------------------------------

type CheckpointRepo struct {
	store *MemoryStorage
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

func NewCheckpointRepo(store *MemoryStorage) *CheckpointRepo {
	return &CheckpointRepo{store: store}
}

func (r *CheckpointRepo) Get(ctx context.Context, vmID uint64) (*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	cp, ok := r.store.checkpoints[vmID]
	if !ok {
		return nil, storage.ErrCheckpointNotFound
	}
	out := *cp
	return &out, nil
}

func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	saved := *cp
	if saved.UpdatedAt.IsZero() {
		saved.UpdatedAt = r.store.now()
	}
	r.store.checkpoints[cp.VMID] = &saved
	return nil
}

func (r *CheckpointRepo) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.Checkpoint, 0, len(r.store.checkpoints))
	for _, cp := range r.store.checkpoints {
		c := *cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].VMID < out[j].VMID })
	return out, nil
}

// -----------------------------------------------------------------------------
// Transaction Repository
// -----------------------------------------------------------------------------

type TxRepo struct {
	store *MemoryStorage
}

var _ storage.TransactionRepository = (*TxRepo)(nil)

func NewTxRepo(store *MemoryStorage) *TxRepo {
	return &TxRepo{store: store}
}

func (r *TxRepo) Save(ctx context.Context, tx *domain.VMDataTransaction) error {
	return r.SaveBatch(ctx, []*domain.VMDataTransaction{tx})
}

func (r *TxRepo) SaveBatch(ctx context.Context, txs []*domain.VMDataTransaction) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	now := r.store.now()
	for _, tx := range txs {
		key := txKey{tx.VMID, tx.Hash}
		if _, exists := r.store.txs[key]; exists {
			continue
		}
		r.store.txs[key] = &storedTx{tx: *tx, storedAt: now}
	}
	return nil
}

func (r *TxRepo) GetByHash(ctx context.Context, vmID uint64, hash string) (*domain.VMDataTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	s, ok := r.store.txs[txKey{vmID, hash}]
	if !ok {
		return nil, storage.ErrTransactionNotFound
	}
	tx := s.tx
	return &tx, nil
}

func (r *TxRepo) ListByVM(
	ctx context.Context,
	vmID uint64,
	fromBlock uint64,
	limit int,
) ([]*domain.VMDataTransaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	var out []*domain.VMDataTransaction
	for key, s := range r.store.txs {
		if key.vmID == vmID && s.tx.BlockNumber >= fromBlock {
			tx := s.tx
			out = append(out, &tx)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BlockNumber != out[j].BlockNumber {
			return out[i].BlockNumber < out[j].BlockNumber
		}
		return out[i].PositionInTheBlock < out[j].PositionInTheBlock
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *TxRepo) DeleteOlderThan(ctx context.Context, vmID uint64, cutoff time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	var n int64
	for key, s := range r.store.txs {
		if key.vmID == vmID && s.storedAt.Before(cutoff) {
			delete(r.store.txs, key)
			n++
		}
	}
	return n, nil
}
