package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/core/config"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

type mockTxRepo struct {
	storage.TransactionRepository
	vmID    uint64
	cutoffs []time.Time
	deleted int64
	err     error
}

func (m *mockTxRepo) DeleteOlderThan(ctx context.Context, vmID uint64, cutoff time.Time) (int64, error) {
	m.vmID = vmID
	m.cutoffs = append(m.cutoffs, cutoff)
	return m.deleted, m.err
}

func TestPruner_Interval(t *testing.T) {
	tests := []struct {
		retention time.Duration
		want      time.Duration
	}{
		{time.Minute, time.Minute},
		{30 * time.Minute, 3 * time.Minute},
		{72 * time.Hour, time.Hour},
	}

	for _, tt := range tests {
		p := NewPruner(config.SubscriptionConfig{RetentionPeriod: tt.retention}, &mockTxRepo{})
		if got := p.Interval(); got != tt.want {
			t.Errorf("retention %v: expected interval %v, got %v", tt.retention, tt.want, got)
		}
	}
}

func TestPruner_PruneCutoff(t *testing.T) {
	repo := &mockTxRepo{deleted: 3}
	p := NewPruner(config.SubscriptionConfig{VMID: 7, RetentionPeriod: 24 * time.Hour}, repo)
	base := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	if n := p.Prune(context.Background()); n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}
	if repo.vmID != 7 {
		t.Errorf("expected vm 7, got %d", repo.vmID)
	}
	if want := base.Add(-24 * time.Hour); !repo.cutoffs[0].Equal(want) {
		t.Errorf("expected cutoff %v, got %v", want, repo.cutoffs[0])
	}
}

func TestPruner_PruneError(t *testing.T) {
	repo := &mockTxRepo{err: errors.New("db down")}
	p := NewPruner(config.SubscriptionConfig{VMID: 7, RetentionPeriod: time.Hour}, repo)

	if n := p.Prune(context.Background()); n != 0 {
		t.Errorf("expected 0 on error, got %d", n)
	}
}

func TestPruner_StartDisabled(t *testing.T) {
	repo := &mockTxRepo{}
	done := make(chan struct{})
	go func() {
		NewPruner(config.SubscriptionConfig{VMID: 7}, repo).Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("disabled pruner should return immediately")
	}
	if len(repo.cutoffs) != 0 {
		t.Error("disabled pruner should not delete")
	}
}

func TestPruner_StartPrunesImmediately(t *testing.T) {
	repo := &mockTxRepo{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	// The initial prune runs before the loop checks ctx
	NewPruner(config.SubscriptionConfig{VMID: 7, RetentionPeriod: time.Hour}, repo).Start(ctx)

	if len(repo.cutoffs) != 1 {
		t.Fatalf("expected one initial prune, got %d", len(repo.cutoffs))
	}
}
