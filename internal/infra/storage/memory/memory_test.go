package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

func TestCheckpointRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewCheckpointRepo(NewMemoryStorage())

	if _, err := repo.Get(ctx, 7); !errors.Is(err, storage.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}

	if err := repo.Save(ctx, &domain.Checkpoint{VMID: 7, NextBlock: 106, LatestCheckedBlock: 105}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.Save(ctx, &domain.Checkpoint{VMID: 3, NextBlock: 10, LatestCheckedBlock: 9}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	cp, err := repo.Get(ctx, 7)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cp.NextBlock != 106 || cp.LatestCheckedBlock != 105 || cp.UpdatedAt.IsZero() {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}

	// Returned values are copies
	cp.NextBlock = 0
	again, _ := repo.Get(ctx, 7)
	if again.NextBlock != 106 {
		t.Error("stored checkpoint was mutated through returned pointer")
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(all) != 2 || all[0].VMID != 3 || all[1].VMID != 7 {
		t.Errorf("expected checkpoints for [3 7], got %+v", all)
	}
}

func TestTxRepo_SaveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	repo := NewTxRepo(NewMemoryStorage())

	tx := &domain.VMDataTransaction{Hash: "0x1", VMID: 7, BlockNumber: 100, Data: "0xaa"}
	if err := repo.Save(ctx, tx); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	dup := *tx
	dup.Data = "0xbb"
	if err := repo.SaveBatch(ctx, []*domain.VMDataTransaction{&dup}); err != nil {
		t.Fatalf("save batch failed: %v", err)
	}

	got, err := repo.GetByHash(ctx, 7, "0x1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if got.Data != "0xaa" {
		t.Errorf("redelivery must not overwrite stored transaction, got %s", got.Data)
	}

	if _, err := repo.GetByHash(ctx, 8, "0x1"); !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound for other vm, got %v", err)
	}
}

func TestTxRepo_ListByVM(t *testing.T) {
	ctx := context.Background()
	repo := NewTxRepo(NewMemoryStorage())

	_ = repo.SaveBatch(ctx, []*domain.VMDataTransaction{
		{Hash: "c", VMID: 7, BlockNumber: 103},
		{Hash: "b", VMID: 7, BlockNumber: 101, PositionInTheBlock: 2},
		{Hash: "a", VMID: 7, BlockNumber: 101, PositionInTheBlock: 1},
		{Hash: "old", VMID: 7, BlockNumber: 50},
		{Hash: "x", VMID: 8, BlockNumber: 101},
	})

	txs, err := repo.ListByVM(ctx, 7, 100, 2)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(txs) != 2 || txs[0].Hash != "a" || txs[1].Hash != "b" {
		t.Errorf("unexpected list: %+v", txs)
	}
}

func TestTxRepo_DeleteOlderThan(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStorage()
	repo := NewTxRepo(store)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	_ = repo.Save(ctx, &domain.VMDataTransaction{Hash: "old", VMID: 7})
	_ = repo.Save(ctx, &domain.VMDataTransaction{Hash: "other-vm", VMID: 8})

	store.now = func() time.Time { return base.Add(2 * time.Hour) }
	_ = repo.Save(ctx, &domain.VMDataTransaction{Hash: "new", VMID: 7})

	n, err := repo.DeleteOlderThan(ctx, 7, base.Add(time.Hour))
	if err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if _, err := repo.GetByHash(ctx, 7, "new"); err != nil {
		t.Error("recent transaction should be kept")
	}
	if _, err := repo.GetByHash(ctx, 8, "other-vm"); err != nil {
		t.Error("other VM's transactions should be kept")
	}
}
