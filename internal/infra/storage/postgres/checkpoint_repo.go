package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using PostgreSQL.
type CheckpointRepo struct {
	db *DB
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

// NewCheckpointRepo creates a new PostgreSQL checkpoint repository.
func NewCheckpointRepo(db *DB) *CheckpointRepo {
	return &CheckpointRepo{db: db}
}

// Save upserts the checkpoint.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	query := `
		INSERT INTO iva_checkpoints (vm_id, next_block, latest_checked_block, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (vm_id) DO UPDATE SET
			next_block = EXCLUDED.next_block,
			latest_checked_block = EXCLUDED.latest_checked_block,
			updated_at = EXCLUDED.updated_at
	`
	if _, err := r.db.ExecContext(ctx, query,
		int64(cp.VMID), int64(cp.NextBlock), int64(cp.LatestCheckedBlock), updatedAt,
	); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get retrieves the checkpoint for a VM id.
func (r *CheckpointRepo) Get(ctx context.Context, vmID uint64) (*domain.Checkpoint, error) {
	query := `
		SELECT vm_id, next_block, latest_checked_block, updated_at
		FROM iva_checkpoints
		WHERE vm_id = $1
	`
	var cp domain.Checkpoint
	err := r.db.GetContext(ctx, &cp, query, int64(vmID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get checkpoint: %w", err)
	}
	return &cp, nil
}

// List retrieves every checkpoint.
func (r *CheckpointRepo) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	query := `
		SELECT vm_id, next_block, latest_checked_block, updated_at
		FROM iva_checkpoints
		ORDER BY vm_id
	`
	var cps []*domain.Checkpoint
	if err := r.db.SelectContext(ctx, &cps, query); err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	return cps, nil
}
