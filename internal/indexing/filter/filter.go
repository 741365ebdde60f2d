// Package filter narrows delivered transactions to a set of sender addresses.
package filter

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/subscription"
)

// Filter reports whether an address is tracked.
type Filter interface {
	Contains(address string) bool
	Size() int
}

// SenderFilter is an in-memory, case-insensitive set of sender addresses.
type SenderFilter struct {
	senders map[string]struct{}
	mu      sync.RWMutex
}

// NewSenderFilter creates a filter tracking senders.
func NewSenderFilter(senders ...string) *SenderFilter {
	f := &SenderFilter{senders: make(map[string]struct{}, len(senders))}
	f.Add(senders...)
	return f
}

func normalize(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// Contains checks if an address is tracked.
func (f *SenderFilter) Contains(address string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, exists := f.senders[normalize(address)]
	return exists
}

// Add tracks addresses. Blank entries are ignored.
func (f *SenderFilter) Add(addresses ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, addr := range addresses {
		if a := normalize(addr); a != "" {
			f.senders[a] = struct{}{}
		}
	}
}

// Remove stops tracking an address.
func (f *SenderFilter) Remove(address string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.senders, normalize(address))
}

// Size returns the number of tracked addresses.
func (f *SenderFilter) Size() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.senders)
}

// Senders returns the tracked addresses in sorted order.
func (f *SenderFilter) Senders() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	result := make([]string, 0, len(f.senders))
	for addr := range f.senders {
		result = append(result, addr)
	}
	sort.Strings(result)
	return result
}

// Handler passes to next only the transactions whose sender f contains.
// An empty filter passes everything.
func Handler(f Filter, next subscription.Handler) subscription.Handler {
	return subscription.HandlerFunc(func(ctx context.Context, tx *domain.VMDataTransaction) error {
		if f.Size() > 0 && !f.Contains(tx.Sender) {
			return nil
		}
		return next.HandleTransaction(ctx, tx)
	})
}
