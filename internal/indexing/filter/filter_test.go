package filter

import (
	"context"
	"testing"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/subscription"
)

func TestSenderFilter(t *testing.T) {
	f := NewSenderFilter("0xABC", " ")

	if !f.Contains("0xabc") {
		t.Error("Expected filter to be case-insensitive")
	}
	if f.Contains("0x456") {
		t.Error("Expected filter not to contain 0x456")
	}
	if f.Size() != 1 {
		t.Errorf("Expected blank entry to be ignored, got size %d", f.Size())
	}

	f.Add("0xdef", "0x123")
	if got := f.Senders(); len(got) != 3 || got[0] != "0x123" {
		t.Errorf("Expected sorted senders, got %v", got)
	}

	f.Remove("0XDEF")
	if f.Contains("0xdef") || f.Size() != 2 {
		t.Error("Expected 0xdef to be removed")
	}
}

func TestHandler(t *testing.T) {
	var got []string
	next := subscription.HandlerFunc(func(ctx context.Context, tx *domain.VMDataTransaction) error {
		got = append(got, tx.Hash)
		return nil
	})

	h := Handler(NewSenderFilter("0xalice"), next)
	for _, tx := range []*domain.VMDataTransaction{
		{Hash: "0x1", Sender: "0xALICE"},
		{Hash: "0x2", Sender: "0xbob"},
	} {
		if err := h.HandleTransaction(context.Background(), tx); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if len(got) != 1 || got[0] != "0x1" {
		t.Errorf("Expected only 0x1 delivered, got %v", got)
	}
}

func TestHandler_EmptyPassesAll(t *testing.T) {
	calls := 0
	next := subscription.HandlerFunc(func(ctx context.Context, tx *domain.VMDataTransaction) error {
		calls++
		return nil
	})

	_ = Handler(NewSenderFilter(), next).HandleTransaction(context.Background(), &domain.VMDataTransaction{Sender: "0xany"})
	if calls != 1 {
		t.Errorf("Expected empty filter to pass, got %d calls", calls)
	}
}
