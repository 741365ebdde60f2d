package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc"
	"github.com/vietddude/ivawatch/internal/subscription"
)

// =============================================================================
// Mocks
// =============================================================================

type stubTarget struct {
	mu      sync.Mutex
	status  subscription.Status
	pauses  int
	resumes int
}

func (s *stubTarget) Status() subscription.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *stubTarget) Pause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauses++
	s.status.Paused = true
}

func (s *stubTarget) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resumes++
	s.status.Paused = false
}

func (s *stubTarget) counts() (pauses, resumes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pauses, s.resumes
}

func running(vmID, next, head uint64) *stubTarget {
	return &stubTarget{status: subscription.Status{VMID: vmID, NextBlock: next, ChainHead: head, Running: true}}
}

type stubProviders struct {
	providers []rpc.Provider
}

func (s stubProviders) Providers() []rpc.Provider { return s.providers }

// =============================================================================
// Tests
// =============================================================================

func TestMonitor_Healthy(t *testing.T) {
	m := NewMonitor(nil)
	m.Register(7, running(7, 1001, 1000))

	report := m.CheckHealth(context.Background())
	if report.SystemStatus != StatusHealthy {
		t.Errorf("expected healthy, got %s", report.SystemStatus)
	}
	if h := report.Subscriptions[7]; h.BlockLag != 0 {
		t.Errorf("caught-up cursor should have no lag, got %d", h.BlockLag)
	}
}

func TestMonitor_Degraded(t *testing.T) {
	tests := []struct {
		name   string
		target *stubTarget
	}{
		{"lag", running(7, 1, 2000)},
		{"paused", func() *stubTarget { s := running(7, 1001, 1000); s.status.Paused = true; return s }()},
		{"failing", func() *stubTarget { s := running(7, 1001, 1000); s.status.Health.ConsecutiveFailures = 1; return s }()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil)
			m.Register(7, tt.target)
			if got := m.CheckHealth(context.Background()).Subscriptions[7].Status; got != StatusDegraded {
				t.Errorf("expected degraded, got %s", got)
			}
		})
	}
}

func TestMonitor_Critical(t *testing.T) {
	tests := []struct {
		name   string
		target *stubTarget
	}{
		{"lag", running(7, 1, 20000)},
		{"stopped", &stubTarget{status: subscription.Status{VMID: 7}}},
		{"stuck", func() *stubTarget {
			s := running(7, 1001, 1000)
			s.status.Health.ConsecutiveFailures = CriticalFailureCount
			return s
		}()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewMonitor(nil)
			m.Register(7, tt.target)
			m.Register(8, running(8, 1001, 1000))

			report := m.CheckHealth(context.Background())
			if report.Subscriptions[7].Status != StatusCritical {
				t.Errorf("expected critical, got %s", report.Subscriptions[7].Status)
			}
			if report.SystemStatus != StatusCritical {
				t.Errorf("worst status should win, got %s", report.SystemStatus)
			}
		})
	}
}

func TestMonitor_CachesReport(t *testing.T) {
	target := running(7, 1001, 1000)
	m := NewMonitor(nil)
	m.Register(7, target)

	_ = m.CheckHealth(context.Background())
	target.status.Running = false
	if got := m.CheckHealth(context.Background()).Subscriptions[7].Status; got != StatusHealthy {
		t.Errorf("expected cached healthy report, got %s", got)
	}

	m.Invalidate()
	if got := m.CheckHealth(context.Background()).Subscriptions[7].Status; got != StatusCritical {
		t.Errorf("expected fresh critical report, got %s", got)
	}
}

func TestMonitor_ReportsProviders(t *testing.T) {
	providers := stubProviders{providers: []rpc.Provider{
		rpc.NewHTTPProvider("b", "http://b.invalid", time.Second),
		rpc.NewHTTPProvider("a", "http://a.invalid", time.Second),
	}}
	report := NewMonitor(providers).CheckHealth(context.Background())

	if len(report.Providers) != 2 || report.Providers[0].Name != "a" {
		t.Fatalf("expected providers sorted by name, got %+v", report.Providers)
	}
}

func TestServer_Health(t *testing.T) {
	m := NewMonitor(nil)
	m.Register(7, &stubTarget{status: subscription.Status{VMID: 7}})
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected 503 for critical, got %d", resp.StatusCode)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != string(StatusCritical) {
		t.Errorf("unexpected body %v", body)
	}
}

func TestServer_Detailed(t *testing.T) {
	m := NewMonitor(nil)
	m.Register(7, running(7, 11, 20))
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health/detailed")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	var report HealthReport
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if h := report.Subscriptions[7]; h.BlockLag != 10 || h.NextBlock != 11 {
		t.Errorf("unexpected subscription health %+v", h)
	}
}

func TestServer_PauseResume(t *testing.T) {
	target := running(7, 1001, 1000)
	m := NewMonitor(nil)
	m.Register(7, target)
	srv := httptest.NewServer(NewServer(m, 0).Handler())
	defer srv.Close()

	post := func(path string) int {
		resp, err := http.Post(srv.URL+path, "application/json", nil)
		if err != nil {
			t.Fatalf("request failed: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := post("/subscriptions/7/pause"); code != http.StatusOK {
		t.Fatalf("pause: expected 200, got %d", code)
	}
	if pauses, _ := target.counts(); pauses != 1 || !target.Status().Paused {
		t.Error("target was not paused")
	}
	if got := m.CheckHealth(context.Background()).Subscriptions[7].Status; got != StatusDegraded {
		t.Errorf("paused subscription should report degraded, got %s", got)
	}

	if code := post("/subscriptions/7/resume"); code != http.StatusOK {
		t.Fatalf("resume: expected 200, got %d", code)
	}
	if _, resumes := target.counts(); resumes != 1 {
		t.Error("target was not resumed")
	}

	if code := post("/subscriptions/9/pause"); code != http.StatusNotFound {
		t.Errorf("unknown vm: expected 404, got %d", code)
	}
	if code := post("/subscriptions/abc/pause"); code != http.StatusBadRequest {
		t.Errorf("bad vm: expected 400, got %d", code)
	}
}

func TestServer_Metrics(t *testing.T) {
	srv := httptest.NewServer(NewServer(NewMonitor(nil), 0).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}
