package domain

import "time"

// Checkpoint is the persisted position of a subscription.
type Checkpoint struct {
	VMID               uint64    `db:"vm_id"`
	NextBlock          uint64    `db:"next_block"`
	LatestCheckedBlock uint64    `db:"latest_checked_block"`
	UpdatedAt          time.Time `db:"updated_at"`
}
