package provider

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ProviderStatus represents the health state of a provider.
type ProviderStatus int

const (
	StatusHealthy   ProviderStatus = iota // Provider is working normally
	StatusDegraded                        // Provider is slow but working
	StatusThrottled                       // Provider is rate limiting
	StatusBlocked                         // Provider has blocked this client
)

func (s ProviderStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusThrottled:
		return "throttled"
	case StatusBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// MonitorStats holds monitoring statistics for a provider.
type MonitorStats struct {
	Status              ProviderStatus `json:"status"`
	AverageLatency      time.Duration  `json:"average_latency"`
	ThrottleCount429    int            `json:"throttle_count_429"`
	ThrottleCount403    int            `json:"throttle_count_403"`
	RequestsLast1Hour   int            `json:"requests_last_1h"`
	RequestsLast24Hours int            `json:"requests_last_24h"`
	EstimatedDailyLimit int            `json:"estimated_daily_limit"`
	UsagePercentage     float64        `json:"usage_percentage"`
}

// MonitorConfig holds the thresholds a ProviderMonitor judges status by.
type MonitorConfig struct {
	LatencyWindow         int
	DailyLimit            int
	SlowResponseThreshold time.Duration
	// ThrottleAfter is the number of 429s before the provider counts as throttled
	ThrottleAfter     int
	DefaultRetryAfter time.Duration
	BlockedRetryAfter time.Duration
}

// DefaultMonitorConfig returns conservative defaults for a public node.
func DefaultMonitorConfig() MonitorConfig {
	return MonitorConfig{
		LatencyWindow:         100,
		DailyLimit:            1_000_000,
		SlowResponseThreshold: 3 * time.Second,
		ThrottleAfter:         3,
		DefaultRetryAfter:     30 * time.Second,
		BlockedRetryAfter:     10 * time.Minute,
	}
}

var throttlePatterns = []string{
	"rate limit exceeded",
	"too many requests",
	"request count exceeded",
	"quota exceeded",
}

// ProviderMonitor tracks provider health and rate limiting.
type ProviderMonitor struct {
	mu  sync.RWMutex
	cfg MonitorConfig

	// latencies is a ring of the most recent successful requests
	latencies []time.Duration
	next      int
	filled    bool

	status429Count   int
	status403Count   int
	lastThrottleTime time.Time
	retryAfter       time.Duration

	// requestTimestamps is kept sorted, oldest first
	requestTimestamps []time.Time
}

// NewProviderMonitor creates a monitor with the given thresholds.
func NewProviderMonitor(cfg MonitorConfig) *ProviderMonitor {
	def := DefaultMonitorConfig()
	if cfg.LatencyWindow <= 0 {
		cfg.LatencyWindow = def.LatencyWindow
	}
	if cfg.DailyLimit <= 0 {
		cfg.DailyLimit = def.DailyLimit
	}
	if cfg.SlowResponseThreshold <= 0 {
		cfg.SlowResponseThreshold = def.SlowResponseThreshold
	}
	if cfg.ThrottleAfter <= 0 {
		cfg.ThrottleAfter = def.ThrottleAfter
	}
	if cfg.DefaultRetryAfter <= 0 {
		cfg.DefaultRetryAfter = def.DefaultRetryAfter
	}
	if cfg.BlockedRetryAfter <= 0 {
		cfg.BlockedRetryAfter = def.BlockedRetryAfter
	}
	return &ProviderMonitor{
		cfg:       cfg,
		latencies: make([]time.Duration, cfg.LatencyWindow),
	}
}

// RecordRequest records a successful request with its latency.
func (pm *ProviderMonitor) RecordRequest(latency time.Duration) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.latencies[pm.next] = latency
	pm.next = (pm.next + 1) % len(pm.latencies)
	if pm.next == 0 {
		pm.filled = true
	}

	now := time.Now()
	pm.requestTimestamps = append(pm.requestTimestamps, now)
	pm.pruneLocked(now)

	// A success after the retry-after window clears the throttle counters
	if pm.retryAfter > 0 && now.Sub(pm.lastThrottleTime) >= pm.retryAfter {
		pm.status429Count = 0
		pm.status403Count = 0
		pm.retryAfter = 0
	}
}

// RecordThrottle records a rate limiting or blocking response. retryAfter is
// the raw Retry-After header, in seconds or as an HTTP date.
func (pm *ProviderMonitor) RecordThrottle(statusCode int, retryAfter string) {
	pm.mu.Lock()
	defer pm.mu.Unlock()

	pm.lastThrottleTime = time.Now()

	switch statusCode {
	case http.StatusTooManyRequests:
		pm.status429Count++
		pm.retryAfter = parseRetryAfter(retryAfter, pm.lastThrottleTime, pm.cfg.DefaultRetryAfter)
	case http.StatusForbidden:
		pm.status403Count++
		pm.retryAfter = pm.cfg.BlockedRetryAfter
	}
}

func parseRetryAfter(v string, now time.Time, fallback time.Duration) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return fallback
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil && t.After(now) {
		return t.Sub(now)
	}
	return fallback
}

// DetectThrottlePattern checks if a message contains throttle patterns.
func (pm *ProviderMonitor) DetectThrottlePattern(message string) bool {
	lowerMsg := strings.ToLower(message)
	for _, pattern := range throttlePatterns {
		if strings.Contains(lowerMsg, pattern) {
			return true
		}
	}
	return false
}

// CheckProviderStatus returns the current status of the provider.
func (pm *ProviderMonitor) CheckProviderStatus() ProviderStatus {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.statusLocked(time.Now())
}

func (pm *ProviderMonitor) statusLocked(now time.Time) ProviderStatus {
	inWindow := now.Sub(pm.lastThrottleTime) < pm.retryAfter

	// Blocked by 403
	if pm.status403Count > 0 && inWindow {
		return StatusBlocked
	}

	// Throttled by 429
	if pm.status429Count >= pm.cfg.ThrottleAfter && inWindow {
		return StatusThrottled
	}

	// Sliding window usage
	if float64(len(pm.requestTimestamps)) > 0.9*float64(pm.cfg.DailyLimit) {
		return StatusThrottled
	}

	if n := pm.sampleCountLocked(); n > 10 && pm.averageLatencyLocked() > pm.cfg.SlowResponseThreshold {
		return StatusDegraded
	}

	return StatusHealthy
}

// GetRetryAfter returns remaining time before retry is allowed.
func (pm *ProviderMonitor) GetRetryAfter() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	if remaining := pm.retryAfter - time.Since(pm.lastThrottleTime); remaining > 0 {
		return remaining
	}
	return 0
}

// GetAverageLatency returns the average latency of recent requests.
func (pm *ProviderMonitor) GetAverageLatency() time.Duration {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.averageLatencyLocked()
}

func (pm *ProviderMonitor) sampleCountLocked() int {
	if pm.filled {
		return len(pm.latencies)
	}
	return pm.next
}

func (pm *ProviderMonitor) averageLatencyLocked() time.Duration {
	n := pm.sampleCountLocked()
	if n == 0 {
		return 0
	}
	var total time.Duration
	for _, lat := range pm.latencies[:n] {
		total += lat
	}
	return total / time.Duration(n)
}

// GetRequestCount returns number of requests in the given duration.
func (pm *ProviderMonitor) GetRequestCount(d time.Duration) int {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.countSinceLocked(time.Now().Add(-d))
}

func (pm *ProviderMonitor) countSinceLocked(cutoff time.Time) int {
	// Timestamps are sorted, walk back from the newest
	count := 0
	for i := len(pm.requestTimestamps) - 1; i >= 0; i-- {
		if !pm.requestTimestamps[i].After(cutoff) {
			break
		}
		count++
	}
	return count
}

func (pm *ProviderMonitor) pruneLocked(now time.Time) {
	cutoff := now.Add(-24 * time.Hour)
	i := 0
	for i < len(pm.requestTimestamps) && !pm.requestTimestamps[i].After(cutoff) {
		i++
	}
	if i > 0 {
		pm.requestTimestamps = append(pm.requestTimestamps[:0], pm.requestTimestamps[i:]...)
	}
}

// GetStats returns current monitoring statistics.
func (pm *ProviderMonitor) GetStats() MonitorStats {
	pm.mu.RLock()
	defer pm.mu.RUnlock()

	now := time.Now()
	stats := MonitorStats{
		Status:              pm.statusLocked(now),
		AverageLatency:      pm.averageLatencyLocked(),
		ThrottleCount429:    pm.status429Count,
		ThrottleCount403:    pm.status403Count,
		RequestsLast1Hour:   pm.countSinceLocked(now.Add(-time.Hour)),
		RequestsLast24Hours: len(pm.requestTimestamps),
		EstimatedDailyLimit: pm.cfg.DailyLimit,
	}
	stats.UsagePercentage = float64(stats.RequestsLast24Hours) / float64(pm.cfg.DailyLimit) * 100
	return stats
}
