// Package rpc provides a resilient client for chain node REST endpoints.
//
// This package offers:
//   - Multiple provider support with round-robin ordering
//   - Automatic retry and failover
//   - Health monitoring
//
// # Quick Start
//
//	import "github.com/vietddude/ivawatch/internal/infra/rpc"
//
//	client := rpc.NewClient(rpc.NewRouter(), rpc.DefaultRetryConfig)
//	client.AddProvider(rpc.NewHTTPProvider("main", "https://pwrrpc.pwrlabs.io", 10*time.Second))
//	client.AddProvider(rpc.NewHTTPProvider("backup", backupURL, 10*time.Second))
//
//	var out struct{ LatestBlockNumber uint64 }
//	err := client.Call(ctx, rpc.NewOperation("latestBlockNumber", nil), &out)
//
// # Package Structure
//
//   - provider/ - Provider implementations (HTTPProvider, monitoring)
//   - routing/  - Provider ordering, circuit breaking, retry logic
//
// Most types are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc/provider"
	"github.com/vietddude/ivawatch/internal/infra/rpc/routing"
)

// =============================================================================
// Re-exported types from provider package
// =============================================================================

// Provider is the core interface for RPC endpoints.
type Provider = provider.Provider

// HTTPProvider implements Provider for REST/JSON over HTTP.
type HTTPProvider = provider.HTTPProvider

// HealthStatus represents the health state of a provider.
type HealthStatus = provider.HealthStatus

// Operation represents a REST call to execute.
type Operation = provider.Operation

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// =============================================================================
// Re-exported types from routing package
// =============================================================================

// Router handles provider selection and health tracking.
type Router = routing.Router

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// DefaultRetryConfig provides sensible retry defaults.
var DefaultRetryConfig = routing.DefaultRetryConfig

// NewRouter creates a new round-robin router.
func NewRouter() *routing.DefaultRouter {
	return routing.NewRouter()
}
