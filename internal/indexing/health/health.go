// Package health provides subscription health monitoring and the
// operator HTTP surface.
package health

import (
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// Thresholds used by CheckHealth.
const (
	DegradedLag          = 1000
	CriticalLag          = 10000
	CriticalFailureCount = 10
)

// SubscriptionHealth contains health metrics for one VM id subscription.
type SubscriptionHealth struct {
	VMID                uint64       `json:"vm_id"`
	RunID               string       `json:"run_id,omitempty"`
	Status              SystemStatus `json:"status"`
	Running             bool         `json:"running"`
	Paused              bool         `json:"paused"`
	NextBlock           uint64       `json:"next_block"`
	LatestCheckedBlock  uint64       `json:"latest_checked_block"`
	ChainHead           uint64       `json:"chain_head"`
	BlockLag            uint64       `json:"block_lag"`
	Delivered           uint64       `json:"delivered"`
	ConsecutiveFailures uint64       `json:"consecutive_failures"`
	TotalFailures       uint64       `json:"total_failures"`
	HandlerFailures     uint64       `json:"handler_failures"`
	CheckpointFailures  uint64       `json:"checkpoint_failures"`
	LastError           string       `json:"last_error,omitempty"`
	LastErrorAt         *time.Time   `json:"last_error_at,omitempty"`
}

// ProviderHealth is the health of one RPC provider.
type ProviderHealth struct {
	Name string `json:"name"`
	rpc.HealthStatus
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus  SystemStatus                  `json:"system_status"`
	Subscriptions map[uint64]SubscriptionHealth `json:"subscriptions"`
	Providers     []ProviderHealth              `json:"providers,omitempty"`
}

// Aggregate returns the worst status in the report.
func (r HealthReport) Aggregate() SystemStatus {
	status := StatusHealthy
	for _, sub := range r.Subscriptions {
		if sub.Status == StatusCritical {
			return StatusCritical
		}
		if sub.Status == StatusDegraded {
			status = StatusDegraded
		}
	}
	return status
}
