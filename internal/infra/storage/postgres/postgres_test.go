package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

// testDB connects to IVAWATCH_TEST_DB_URL and applies migrations, or skips.
func testDB(t *testing.T) *DB {
	t.Helper()

	url := os.Getenv("IVAWATCH_TEST_DB_URL")
	if url == "" {
		t.Skip("IVAWATCH_TEST_DB_URL not set")
	}

	ctx := context.Background()
	db, err := NewDB(ctx, Config{URL: url})
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// testVMID keeps rows from concurrent runs apart.
func testVMID() uint64 {
	return uint64(time.Now().UnixNano() % 1_000_000_000)
}

func TestCheckpointRepo_SaveGetList(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewCheckpointRepo(db)
	vmID := testVMID()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM iva_checkpoints WHERE vm_id = $1`, int64(vmID))
	})

	if _, err := repo.Get(ctx, vmID); !errors.Is(err, storage.ErrCheckpointNotFound) {
		t.Fatalf("expected ErrCheckpointNotFound, got %v", err)
	}

	if err := repo.Save(ctx, &domain.Checkpoint{VMID: vmID, NextBlock: 106, LatestCheckedBlock: 105}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if err := repo.Save(ctx, &domain.Checkpoint{VMID: vmID, NextBlock: 1100, LatestCheckedBlock: 1099}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}

	cp, err := repo.Get(ctx, vmID)
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if cp.NextBlock != 1100 || cp.LatestCheckedBlock != 1099 {
		t.Errorf("unexpected checkpoint: %+v", cp)
	}

	all, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	found := false
	for _, c := range all {
		if c.VMID == vmID {
			found = true
		}
	}
	if !found {
		t.Error("saved checkpoint missing from list")
	}
}

func TestTxRepo_BatchIdempotentAndPrune(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	repo := NewTxRepo(db)
	vmID := testVMID()
	t.Cleanup(func() {
		_, _ = db.ExecContext(ctx, `DELETE FROM iva_transactions WHERE vm_id = $1`, int64(vmID))
	})

	txs := []*domain.VMDataTransaction{
		{Hash: "0xb", VMID: vmID, BlockNumber: 101, PositionInTheBlock: 2, Data: "0x01", Success: true},
		{Hash: "0xa", VMID: vmID, BlockNumber: 101, PositionInTheBlock: 1, Data: "0x02", Success: true},
		{Hash: "0xc", VMID: vmID, BlockNumber: 104, Sender: "0xsender", Fee: 12, ErrorMessage: "reverted"},
	}
	if err := repo.SaveBatch(ctx, txs); err != nil {
		t.Fatalf("save batch failed: %v", err)
	}
	// Redelivery is a no-op
	if err := repo.SaveBatch(ctx, txs); err != nil {
		t.Fatalf("second save batch failed: %v", err)
	}

	got, err := repo.ListByVM(ctx, vmID, 0, 10)
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(got) != 3 || got[0].Hash != "0xa" || got[1].Hash != "0xb" || got[2].Hash != "0xc" {
		t.Fatalf("unexpected list: %+v", got)
	}
	if got[2].Sender != "0xsender" || got[2].Fee != 12 || got[2].ErrorMessage != "reverted" || got[2].Success {
		t.Errorf("fields not round-tripped: %+v", got[2])
	}

	one, err := repo.GetByHash(ctx, vmID, "0xa")
	if err != nil || one.Data != "0x02" {
		t.Errorf("unexpected get: %+v (%v)", one, err)
	}
	if _, err := repo.GetByHash(ctx, vmID, "0xmissing"); !errors.Is(err, storage.ErrTransactionNotFound) {
		t.Errorf("expected ErrTransactionNotFound, got %v", err)
	}

	n, err := repo.DeleteOlderThan(ctx, vmID, time.Now().Add(time.Minute))
	if err != nil {
		t.Fatalf("prune failed: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 pruned, got %d", n)
	}
}
