package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc/provider"
)

// MockProvider returns scripted errors, then result.
type MockProvider struct {
	name      string
	errs      []error
	result    json.RawMessage
	available bool
	calls     int
}

func newMockProvider(name string, errs ...error) *MockProvider {
	return &MockProvider{name: name, errs: errs, result: json.RawMessage(`{"ok":true}`), available: true}
}

func (m *MockProvider) GetName() string                  { return m.name }
func (m *MockProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{} }
func (m *MockProvider) IsAvailable() bool                { return m.available }
func (m *MockProvider) HasQuotaRemaining() bool          { return true }
func (m *MockProvider) Close() error                     { return nil }

func (m *MockProvider) Execute(ctx context.Context, op provider.Operation) (json.RawMessage, error) {
	m.calls++
	if len(m.errs) > 0 {
		err := m.errs[0]
		m.errs = m.errs[1:]
		if err != nil {
			return nil, err
		}
	}
	return m.result, nil
}

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        5 * time.Millisecond,
	BackoffMultiple: 2,
}

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{&provider.HTTPError{StatusCode: 429}, ActionFailover},
		{&provider.HTTPError{StatusCode: 403}, ActionFailover},
		{&provider.HTTPError{StatusCode: 401}, ActionFailover},
		{&provider.HTTPError{StatusCode: 400, Body: "bad vmId"}, ActionFatal},
		{&provider.HTTPError{StatusCode: 404}, ActionFatal},
		{&provider.HTTPError{StatusCode: 408}, ActionRetry},
		{&provider.HTTPError{StatusCode: 502}, ActionRetry},
		{fmt.Errorf("latest: %w", &provider.HTTPError{StatusCode: 503}), ActionRetry},
		{fmt.Errorf("%w: pwr-main", provider.ErrThrottled), ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{errors.New("daily request count exceeded"), ActionFailover},
		{errors.New("parse response: invalid json from latestBlockNumber"), ActionFailover},
		{&json.SyntaxError{}, ActionFailover},
		{context.Canceled, ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%v) = %s, want %s", tt.err, got, tt.expect)
		}
	}
}

func TestCallWithRetry_RecoversFromTransientErrors(t *testing.T) {
	p := newMockProvider("a", errors.New("connection reset"), errors.New("timeout"))

	result, err := CallWithRetry(context.Background(), p, provider.Operation{Name: "latestBlockNumber"}, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(result) != `{"ok":true}` {
		t.Errorf("unexpected result: %s", result)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestCallWithRetry_GivesUp(t *testing.T) {
	boom := errors.New("connection refused")
	p := newMockProvider("a", boom, boom, boom, boom)

	_, err := CallWithRetry(context.Background(), p, provider.Operation{Name: "latestBlockNumber"}, fastRetry)
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
}

func TestCallWithRetry_FailoverReturnsImmediately(t *testing.T) {
	p := newMockProvider("a", &provider.HTTPError{StatusCode: 429})

	if _, err := CallWithRetry(context.Background(), p, provider.Operation{}, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	r := NewRouter()
	limited := newMockProvider("limited", &provider.HTTPError{StatusCode: 429})
	backup := newMockProvider("backup")
	r.AddProvider(limited)
	r.AddProvider(backup)

	if _, err := CallWithRetryAndFailover(context.Background(), r, provider.Operation{}, fastRetry); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if limited.calls != 1 || backup.calls != 1 {
		t.Errorf("expected one call each, got limited=%d backup=%d", limited.calls, backup.calls)
	}
}

func TestCallWithRetryAndFailover_FatalStops(t *testing.T) {
	r := NewRouter()
	first := newMockProvider("first", &provider.HTTPError{StatusCode: 400})
	second := newMockProvider("second", &provider.HTTPError{StatusCode: 400})
	r.AddProvider(first)
	r.AddProvider(second)

	_, err := CallWithRetryAndFailover(context.Background(), r, provider.Operation{}, fastRetry)
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if first.calls+second.calls != 1 {
		t.Errorf("fatal error should not fail over, got %d calls", first.calls+second.calls)
	}
}

func TestCallWithRetryAndFailover_NoProviders(t *testing.T) {
	if _, err := CallWithRetryAndFailover(context.Background(), NewRouter(), provider.Operation{Name: "x"}, fastRetry); err == nil {
		t.Fatal("expected error with no providers")
	}
}

func TestCallWithRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newMockProvider("a", context.Canceled)

	_, err := CallWithRetry(ctx, p, provider.Operation{}, fastRetry)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestCalculateBackoff(t *testing.T) {
	cfg := RetryConfig{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, BackoffMultiple: 2}

	if d := calculateBackoff(0, cfg); d != 100*time.Millisecond {
		t.Errorf("attempt 0: got %v", d)
	}
	if d := calculateBackoff(2, cfg); d != 400*time.Millisecond {
		t.Errorf("attempt 2: got %v", d)
	}
	if d := calculateBackoff(10, cfg); d != time.Second {
		t.Errorf("attempt 10 should cap, got %v", d)
	}
}
