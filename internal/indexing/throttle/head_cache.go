package throttle

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/chain"
)

// CachedSource caches the chain head so that subscriptions sharing one node
// see a single head query per TTL. Range queries pass straight through.
type CachedSource struct {
	adapter chain.Adapter
	ttl     time.Duration
	group   singleflight.Group

	mu       sync.RWMutex
	cached   uint64
	cachedAt time.Time
	valid    bool
}

// NewCachedSource wraps adapter. A ttl of zero disables caching but still
// collapses concurrent head queries into one.
func NewCachedSource(adapter chain.Adapter, ttl time.Duration) *CachedSource {
	return &CachedSource{
		adapter: adapter,
		ttl:     ttl,
	}
}

// LatestBlockNumber returns the cached chain head if within TTL, otherwise fetches fresh.
func (c *CachedSource) LatestBlockNumber(ctx context.Context) (uint64, error) {
	c.mu.RLock()
	if c.valid && time.Since(c.cachedAt) < c.ttl {
		cached := c.cached
		c.mu.RUnlock()
		return cached, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do("head", func() (any, error) {
		// Another caller may have refreshed the cache while we waited
		c.mu.RLock()
		if c.valid && time.Since(c.cachedAt) < c.ttl {
			cached := c.cached
			c.mu.RUnlock()
			return cached, nil
		}
		c.mu.RUnlock()

		head, err := c.adapter.LatestBlockNumber(ctx)
		if err != nil {
			return uint64(0), err
		}

		c.mu.Lock()
		// The head never moves backwards for a confirmed chain
		if !c.valid || head >= c.cached {
			c.cached = head
		}
		c.cachedAt = time.Now()
		c.valid = true
		head = c.cached
		c.mu.Unlock()

		return head, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint64), nil
}

// VMDataTransactions delegates to the wrapped adapter.
func (c *CachedSource) VMDataTransactions(
	ctx context.Context,
	vmID uint64,
	from, to uint64,
) ([]*domain.VMDataTransaction, error) {
	return c.adapter.VMDataTransactions(ctx, vmID, from, to)
}

// Network returns the wrapped adapter's network.
func (c *CachedSource) Network() string {
	return c.adapter.Network()
}

// Invalidate clears the cache, forcing the next call to fetch fresh data.
func (c *CachedSource) Invalidate() {
	c.mu.Lock()
	c.valid = false
	c.cached = 0
	c.mu.Unlock()
}
