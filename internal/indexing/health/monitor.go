package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc"
	"github.com/vietddude/ivawatch/internal/subscription"
)

// DefaultCacheTTL is how long a report is reused before it is rebuilt.
const DefaultCacheTTL = 2 * time.Second

// Target is a subscription the monitor reports on and the server controls.
type Target interface {
	Status() subscription.Status
	Pause()
	Resume()
}

// ProviderLister lists the RPC providers to report on. *rpc.Client satisfies it.
type ProviderLister interface {
	Providers() []rpc.Provider
}

// Monitor aggregates health status from the registered subscriptions.
type Monitor struct {
	providers ProviderLister
	cacheTTL  time.Duration

	mu         sync.Mutex
	targets    map[uint64]Target
	lastCheck  time.Time
	lastReport *HealthReport
}

// NewMonitor creates a new health monitor. providers may be nil.
func NewMonitor(providers ProviderLister) *Monitor {
	return &Monitor{
		providers: providers,
		cacheTTL:  DefaultCacheTTL,
		targets:   make(map[uint64]Target),
	}
}

// Register adds or replaces the target reported under vmID.
func (m *Monitor) Register(vmID uint64, t Target) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.targets[vmID] = t
	m.lastReport = nil
}

// Lookup returns the target registered under vmID.
func (m *Monitor) Lookup(vmID uint64) (Target, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.targets[vmID]
	return t, ok
}

// Invalidate drops the cached report.
func (m *Monitor) Invalidate() {
	m.mu.Lock()
	m.lastReport = nil
	m.mu.Unlock()
}

// CheckHealth returns the health report, rebuilding it at most once per cache TTL.
func (m *Monitor) CheckHealth(ctx context.Context) HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastReport != nil && time.Since(m.lastCheck) < m.cacheTTL {
		return *m.lastReport
	}

	report := HealthReport{Subscriptions: make(map[uint64]SubscriptionHealth, len(m.targets))}
	for vmID, t := range m.targets {
		report.Subscriptions[vmID] = evaluate(t.Status())
	}
	report.SystemStatus = report.Aggregate()

	if m.providers != nil {
		for _, p := range m.providers.Providers() {
			report.Providers = append(report.Providers, ProviderHealth{Name: p.GetName(), HealthStatus: p.GetHealth()})
		}
		sort.Slice(report.Providers, func(i, j int) bool { return report.Providers[i].Name < report.Providers[j].Name })
	}

	m.lastCheck = time.Now()
	m.lastReport = &report
	return report
}

func evaluate(st subscription.Status) SubscriptionHealth {
	h := SubscriptionHealth{
		VMID:                st.VMID,
		RunID:               st.RunID,
		Running:             st.Running,
		Paused:              st.Paused,
		NextBlock:           st.NextBlock,
		LatestCheckedBlock:  st.LatestCheckedBlock,
		ChainHead:           st.ChainHead,
		Delivered:           st.Health.Delivered,
		ConsecutiveFailures: st.Health.ConsecutiveFailures,
		TotalFailures:       st.Health.TotalFailures,
		HandlerFailures:     st.Health.HandlerFailures,
		CheckpointFailures:  st.Health.CheckpointFailures,
		LastError:           st.Health.LastError,
	}
	if !st.Health.LastErrorAt.IsZero() {
		at := st.Health.LastErrorAt
		h.LastErrorAt = &at
	}
	// NextBlock is the first unchecked block, so a caught-up cursor sits at head+1
	if st.ChainHead >= st.NextBlock {
		h.BlockLag = st.ChainHead - st.NextBlock + 1
	}

	switch {
	case !st.Running || st.Health.ConsecutiveFailures >= CriticalFailureCount || h.BlockLag > CriticalLag:
		h.Status = StatusCritical
	case st.Paused || st.Health.ConsecutiveFailures > 0 || h.BlockLag > DegradedLag:
		h.Status = StatusDegraded
	default:
		h.Status = StatusHealthy
	}
	return h
}
