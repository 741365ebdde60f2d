package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLeaseLost is returned when a lease expired or was taken over.
var ErrLeaseLost = errors.New("lease lost")

// DefaultLeaseTTL is used when Config.LeaseTTL is zero.
const DefaultLeaseTTL = 30 * time.Second

// Only the holder of the token may extend or delete the key.
var (
	refreshScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

// Lease is a single-writer claim on one VM id's subscription.
type Lease struct {
	rdb   *redis.Client
	key   string
	token string
	ttl   time.Duration
}

// AcquireLease claims lease:iva:<vm_id> for ttl. It returns false, with no
// error, if another process holds it.
func (c *Client) AcquireLease(ctx context.Context, vmID uint64, ttl time.Duration) (*Lease, bool, error) {
	if ttl <= 0 {
		ttl = DefaultLeaseTTL
	}
	l := &Lease{
		rdb:   c.rdb,
		key:   leaseKey(vmID),
		token: uuid.NewString(),
		ttl:   ttl,
	}

	ok, err := c.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("setnx failed: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return l, true, nil
}

// Token returns the lease owner token.
func (l *Lease) Token() string { return l.token }

// Refresh extends the lease by its TTL.
func (l *Lease) Refresh(ctx context.Context) error {
	n, err := refreshScript.Run(ctx, l.rdb, []string{l.key}, l.token, l.ttl.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("refresh lease: %w", err)
	}
	if n == 0 {
		return ErrLeaseLost
	}
	return nil
}

// Release deletes the lease if still held.
func (l *Lease) Release(ctx context.Context) error {
	if _, err := releaseScript.Run(ctx, l.rdb, []string{l.key}, l.token).Result(); err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// KeepAlive refreshes the lease every TTL/3 until ctx is done. onLost is
// called once, and KeepAlive returns, when the lease cannot be kept.
// Transient refresh errors are retried on the next interval while the lease
// has not yet expired.
func (l *Lease) KeepAlive(ctx context.Context, onLost func(error)) {
	interval := l.ttl / 3
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	lastOK := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := l.Refresh(ctx)
			if err == nil {
				lastOK = time.Now()
				continue
			}
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, ErrLeaseLost) || time.Since(lastOK) >= l.ttl {
				onLost(err)
				return
			}
			slog.Warn("Lease refresh failed, retrying", "key", l.key, "error", err)
		}
	}
}
