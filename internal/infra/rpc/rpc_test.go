package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/infra/rpc/provider"
)

// MockProvider implements provider.Provider for client tests
type MockProvider struct {
	name       string
	shouldFail bool
	callCount  int
}

func (m *MockProvider) GetName() string {
	return m.name
}

func (m *MockProvider) Execute(ctx context.Context, op provider.Operation) (json.RawMessage, error) {
	m.callCount++
	if m.shouldFail {
		return nil, fmt.Errorf("mock provider %s failed", m.name)
	}
	return json.RawMessage(`{"latestBlockNumber":42}`), nil
}

func (m *MockProvider) GetHealth() provider.HealthStatus {
	return provider.HealthStatus{Available: true}
}

func (m *MockProvider) IsAvailable() bool {
	return true
}

func (m *MockProvider) HasQuotaRemaining() bool {
	return true
}

func (m *MockProvider) Close() error {
	return nil
}

// TestRPC_RetryAndFailover verifies retry on primary provider
// and failover to secondary provider
func TestRPC_RetryAndFailover(t *testing.T) {
	ctx := context.Background()

	primary := &MockProvider{name: "primary", shouldFail: true}
	secondary := &MockProvider{name: "secondary"}

	retry := RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, BackoffMultiple: 1}
	client := NewClient(NewRouter(), retry)
	client.AddProvider(primary)
	client.AddProvider(secondary)

	var out struct {
		LatestBlockNumber uint64 `json:"latestBlockNumber"`
	}
	if err := client.Call(ctx, NewOperation("latestBlockNumber", nil), &out); err != nil {
		t.Fatalf("expected success, got error: %v", err)
	}

	if out.LatestBlockNumber != 42 {
		t.Fatalf("unexpected result: %v", out.LatestBlockNumber)
	}

	if primary.callCount != retry.MaxAttempts {
		t.Errorf("primary provider expected %d retries, got %d", retry.MaxAttempts, primary.callCount)
	}

	if secondary.callCount != 1 {
		t.Errorf("secondary provider expected 1 call, got %d", secondary.callCount)
	}

	if len(client.Providers()) != 2 {
		t.Errorf("expected 2 providers, got %d", len(client.Providers()))
	}
}
