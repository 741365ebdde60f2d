// Package provider implements the RPC endpoints chain data is read from.
//
// This package contains:
//   - Provider interface: core abstraction for RPC endpoints
//   - HTTPProvider: REST/JSON over HTTP implementation
//   - ProviderMonitor: health and rate tracking
package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrThrottled is returned without sending a request while the provider is
// rate limited or blocked.
var ErrThrottled = errors.New("provider throttled")

// Operation represents a REST call to execute.
type Operation struct {
	// Name is the resource path relative to the endpoint (e.g. "latestBlockNumber")
	Name string

	// Query holds URL query parameters
	Query url.Values
}

// Provider defines the core interface for an RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "pwr-main", "pwr-backup")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// HasQuotaRemaining checks if the provider has not exceeded its rate limits
	HasQuotaRemaining() bool

	// Execute performs the operation and returns the raw JSON body
	Execute(ctx context.Context, op Operation) (json.RawMessage, error)

	// Close cleans up resources
	Close() error
}

// HTTPError is a non-2xx response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool          `json:"available"`
	Latency       time.Duration `json:"latency"`
	ErrorRate     float64       `json:"error_rate"`
	LastSuccessAt time.Time     `json:"last_success_at"`
	LastFailureAt time.Time     `json:"last_failure_at"`
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}
