package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/ivawatch/internal/infra/rpc/routing"
)

// RPCClient is the subset of Client chain adapters depend on.
type RPCClient interface {
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)
}

// Client is the high-level interface for making RPC calls.
// This is what application layers should use.
type Client struct {
	router routing.Router
	retry  routing.RetryConfig

	mu        sync.RWMutex
	providers []Provider
}

// NewClient creates a new RPC client.
func NewClient(router routing.Router, retry routing.RetryConfig) *Client {
	return &Client{
		router: router,
		retry:  retry,
	}
}

// AddProvider registers a provider with the client and its router.
func (c *Client) AddProvider(p Provider) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.providers = append(c.providers, p)
	c.router.AddProvider(p)
}

// Execute runs op with automatic retry and failover and returns the raw body.
func (c *Client) Execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	return routing.CallWithRetryAndFailover(ctx, c.router, op, c.retry)
}

// Call runs op and decodes the response into out.
func (c *Client) Call(ctx context.Context, op Operation, out any) error {
	raw, err := c.Execute(ctx, op)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op.Name, err)
	}
	return nil
}

// Providers returns the registered providers in registration order.
func (c *Client) Providers() []Provider {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Provider, len(c.providers))
	copy(out, c.providers)
	return out
}

// Close closes every provider.
func (c *Client) Close() error {
	var errs []error
	for _, p := range c.Providers() {
		if err := p.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", p.GetName(), err))
		}
	}
	return errors.Join(errs...)
}
