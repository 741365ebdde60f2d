package redis

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

// CheckpointRepo implements storage.CheckpointRepository using Redis hashes.
// Each VM id has a hash at checkpoint:iva:<vm_id>; the set checkpoints:iva
// indexes them for List.
type CheckpointRepo struct {
	rdb *redis.Client
}

var _ storage.CheckpointRepository = (*CheckpointRepo)(nil)

// NewCheckpointRepo creates a new Redis-backed checkpoint repository.
func NewCheckpointRepo(client *Client) *CheckpointRepo {
	return &CheckpointRepo{rdb: client.rdb}
}

// Save writes the checkpoint and indexes its VM id.
func (r *CheckpointRepo) Save(ctx context.Context, cp *domain.Checkpoint) error {
	updatedAt := cp.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, checkpointKey(cp.VMID),
			"next_block", strconv.FormatUint(cp.NextBlock, 10),
			"latest_checked_block", strconv.FormatUint(cp.LatestCheckedBlock, 10),
			"updated_at", strconv.FormatInt(updatedAt.UnixMilli(), 10),
		)
		pipe.SAdd(ctx, checkpointIndexKey, strconv.FormatUint(cp.VMID, 10))
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	return nil
}

// Get retrieves the checkpoint for a VM id.
func (r *CheckpointRepo) Get(ctx context.Context, vmID uint64) (*domain.Checkpoint, error) {
	fields, err := r.rdb.HGetAll(ctx, checkpointKey(vmID)).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall failed: %w", err)
	}
	if len(fields) == 0 {
		return nil, storage.ErrCheckpointNotFound
	}
	return parseCheckpoint(vmID, fields)
}

// List retrieves every indexed checkpoint.
func (r *CheckpointRepo) List(ctx context.Context) ([]*domain.Checkpoint, error) {
	members, err := r.rdb.SMembers(ctx, checkpointIndexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("smembers failed: %w", err)
	}

	vmIDs := make([]uint64, 0, len(members))
	for _, m := range members {
		id, err := strconv.ParseUint(m, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid vm id %q in index: %w", m, err)
		}
		vmIDs = append(vmIDs, id)
	}
	sort.Slice(vmIDs, func(i, j int) bool { return vmIDs[i] < vmIDs[j] })

	cmds := make([]*redis.MapStringStringCmd, len(vmIDs))
	_, err = r.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, id := range vmIDs {
			cmds[i] = pipe.HGetAll(ctx, checkpointKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline failed: %w", err)
	}

	out := make([]*domain.Checkpoint, 0, len(vmIDs))
	for i, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue // indexed but deleted
		}
		cp, err := parseCheckpoint(vmIDs[i], fields)
		if err != nil {
			return nil, err
		}
		out = append(out, cp)
	}
	return out, nil
}

func parseCheckpoint(vmID uint64, fields map[string]string) (*domain.Checkpoint, error) {
	next, err := strconv.ParseUint(fields["next_block"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid next_block for vm %d: %w", vmID, err)
	}
	cp := &domain.Checkpoint{VMID: vmID, NextBlock: next}

	if v, ok := fields["latest_checked_block"]; ok {
		if cp.LatestCheckedBlock, err = strconv.ParseUint(v, 10, 64); err != nil {
			return nil, fmt.Errorf("invalid latest_checked_block for vm %d: %w", vmID, err)
		}
	}
	if v, ok := fields["updated_at"]; ok {
		ms, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid updated_at for vm %d: %w", vmID, err)
		}
		cp.UpdatedAt = time.UnixMilli(ms)
	}
	return cp, nil
}
