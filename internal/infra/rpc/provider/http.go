package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vietddude/ivawatch/internal/indexing/metrics"
)

// maxResponseSize bounds a single response body. A full 1000-block window of
// VM data fits well below this.
const maxResponseSize = 64 << 20

// HTTPProvider implements Provider for REST/JSON over HTTP.
type HTTPProvider struct {
	name       string
	endpoint   string
	httpClient *http.Client

	mu           sync.RWMutex
	health       HealthStatus
	totalLatency time.Duration
	successCount int
	failureCount int
	requestCount int

	Monitor *ProviderMonitor
}

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		name:     name,
		endpoint: strings.TrimRight(endpoint, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		health: HealthStatus{
			Available:     true,
			LastSuccessAt: time.Now(),
		},
		Monitor: NewProviderMonitor(DefaultMonitorConfig()),
	}
}

// Execute sends a GET for op and returns the response body.
func (p *HTTPProvider) Execute(ctx context.Context, op Operation) (json.RawMessage, error) {
	start := time.Now()

	// Pre-call checks
	if status := p.Monitor.CheckProviderStatus(); status == StatusThrottled || status == StatusBlocked {
		return nil, fmt.Errorf("%w: %s, retry after %v", ErrThrottled, p.name, p.Monitor.GetRetryAfter())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url(op), nil)
	if err != nil {
		p.recordFailure("request")
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		p.recordFailure("transport")
		return nil, fmt.Errorf("%s: %w", op.Name, err)
	}
	defer resp.Body.Close()

	latency := time.Since(start)
	metrics.RPCLatency.WithLabelValues(p.name, op.Name).Observe(latency.Seconds())

	// Rate limit detection
	if resp.StatusCode == http.StatusTooManyRequests {
		p.Monitor.RecordThrottle(http.StatusTooManyRequests, resp.Header.Get("Retry-After"))
		p.recordFailure("rate_limited")
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: "rate limited"}
	}

	// IP blocked detection
	if resp.StatusCode == http.StatusForbidden {
		p.Monitor.RecordThrottle(http.StatusForbidden, "")
		p.recordFailure("blocked")
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: "ip blocked"}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		p.recordFailure("read")
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := truncate(string(body), 256)
		if p.Monitor.DetectThrottlePattern(msg) {
			p.Monitor.RecordThrottle(http.StatusTooManyRequests, "")
			p.recordFailure("rate_limited")
			return nil, &HTTPError{StatusCode: http.StatusTooManyRequests, Body: msg}
		}
		p.recordFailure(fmt.Sprintf("http_%d", resp.StatusCode))
		return nil, &HTTPError{StatusCode: resp.StatusCode, Body: msg}
	}

	if !json.Valid(body) {
		p.recordFailure("parse")
		return nil, fmt.Errorf("parse response: invalid json from %s", op.Name)
	}

	p.Monitor.RecordRequest(latency)
	p.recordSuccess(latency)

	return json.RawMessage(body), nil
}

// url builds endpoint/name/?query. PWR nodes expect the trailing slash.
func (p *HTTPProvider) url(op Operation) string {
	u := p.endpoint + "/" + strings.Trim(op.Name, "/") + "/"
	if len(op.Query) > 0 {
		u += "?" + op.Query.Encode()
	}
	return u
}

// GetName returns the provider's name.
func (p *HTTPProvider) GetName() string {
	return p.name
}

// GetHealth returns the provider's health status.
func (p *HTTPProvider) GetHealth() HealthStatus {
	p.mu.RLock()
	defer p.mu.RUnlock()

	h := p.health
	stats := p.Monitor.GetStats()
	h.MonitorStats = &stats
	return h
}

// Close cleans up resources.
func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// HasQuotaRemaining checks if this provider has quota remaining.
func (p *HTTPProvider) HasQuotaRemaining() bool {
	status := p.Monitor.CheckProviderStatus()
	if status == StatusThrottled || status == StatusBlocked {
		return false
	}
	return p.Monitor.GetStats().UsagePercentage < 95
}

// IsAvailable checks if the provider is available.
func (p *HTTPProvider) IsAvailable() bool {
	status := p.Monitor.CheckProviderStatus()
	if status != StatusHealthy && status != StatusDegraded {
		return false
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.health.Available
}

func (p *HTTPProvider) recordSuccess(latency time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.successCount++
	p.requestCount++
	p.totalLatency += latency
	p.health.LastSuccessAt = time.Now()
	p.health.Available = true
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)
	p.health.Latency = p.totalLatency / time.Duration(p.successCount)
}

func (p *HTTPProvider) recordFailure(errType string) {
	metrics.RPCErrorsTotal.WithLabelValues(p.name, errType).Inc()

	p.mu.Lock()
	defer p.mu.Unlock()

	p.failureCount++
	p.requestCount++
	p.health.LastFailureAt = time.Now()
	p.health.ErrorRate = float64(p.failureCount) / float64(p.requestCount)

	// Require a few samples before marking a provider down
	if p.requestCount >= 4 && p.health.ErrorRate > 0.5 {
		p.health.Available = false
	}
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
