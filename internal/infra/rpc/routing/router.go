// Package routing handles provider ordering, retry, and failover logic.
//
// This package contains:
//   - Router: interface for provider selection and health tracking
//   - DefaultRouter: round-robin implementation with circuit breaker
//   - Retry: retry logic with exponential backoff and failover
package routing

import (
	"sync"
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc/provider"
)

// Router handles provider selection and health tracking.
type Router interface {
	// AddProvider registers a provider
	AddProvider(p provider.Provider)

	// GetAllProviders returns every provider in the order they should be tried
	GetAllProviders() []provider.Provider

	// RecordSuccess tracks successful calls
	RecordSuccess(providerName string, latency time.Duration)

	// RecordFailure tracks failed calls
	RecordFailure(providerName string, err error)
}

const (
	circuitThreshold = 5
	circuitCooldown  = 30 * time.Second
)

type providerMetrics struct {
	successCount     int
	failureCount     int
	totalLatency     time.Duration
	lastSuccessAt    time.Time
	lastFailureAt    time.Time
	consecutiveFails int
	circuitOpenedAt  time.Time
}

func (m *providerMetrics) circuitOpen(now time.Time) bool {
	return !m.circuitOpenedAt.IsZero() && now.Sub(m.circuitOpenedAt) < circuitCooldown
}

// DefaultRouter rotates the starting provider on every call and moves
// unhealthy providers to the back.
type DefaultRouter struct {
	mu             sync.Mutex
	providers      []provider.Provider
	providerHealth map[string]*providerMetrics
	next           int
}

// NewRouter creates an empty router.
func NewRouter() *DefaultRouter {
	return &DefaultRouter{
		providerHealth: make(map[string]*providerMetrics),
	}
}

// AddProvider registers a provider.
func (r *DefaultRouter) AddProvider(p provider.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.providers = append(r.providers, p)
	r.providerHealth[p.GetName()] = &providerMetrics{
		lastSuccessAt: time.Now(),
	}
}

// GetAllProviders returns all providers, healthy ones first, starting from
// the next one in round-robin order. Unhealthy providers are still returned
// so a call can fall back to them.
func (r *DefaultRouter) GetAllProviders() []provider.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.providers)
	if n == 0 {
		return nil
	}

	start := r.next % n
	r.next = (r.next + 1) % n

	now := time.Now()
	healthy := make([]provider.Provider, 0, n)
	var degraded []provider.Provider
	for i := 0; i < n; i++ {
		p := r.providers[(start+i)%n]
		m := r.providerHealth[p.GetName()]
		if p.IsAvailable() && (m == nil || !m.circuitOpen(now)) {
			healthy = append(healthy, p)
		} else {
			degraded = append(degraded, p)
		}
	}
	return append(healthy, degraded...)
}

// RecordSuccess records a successful call.
func (r *DefaultRouter) RecordSuccess(providerName string, latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	m.successCount++
	m.totalLatency += latency
	m.lastSuccessAt = time.Now()
	m.consecutiveFails = 0
	m.circuitOpenedAt = time.Time{}
}

// RecordFailure records a failed call.
func (r *DefaultRouter) RecordFailure(providerName string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	if !ok {
		return
	}

	m.failureCount++
	m.lastFailureAt = time.Now()
	m.consecutiveFails++

	if m.consecutiveFails >= circuitThreshold {
		m.circuitOpenedAt = m.lastFailureAt
	}
}

// IsCircuitOpen reports whether the named provider is cooling down.
func (r *DefaultRouter) IsCircuitOpen(providerName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.providerHealth[providerName]
	return ok && m.circuitOpen(time.Now())
}
