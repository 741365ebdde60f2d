// Package emitter holds the subscription handlers that deliver IVA
// transactions to their sinks.
package emitter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/subscription"
)

// LogHandler logs every delivered transaction.
type LogHandler struct {
	log *slog.Logger
}

// NewLogHandler creates a handler that logs to l, or slog.Default when nil.
func NewLogHandler(l *slog.Logger) *LogHandler {
	if l == nil {
		l = slog.Default()
	}
	return &LogHandler{log: l.With("component", "emitter")}
}

func (h *LogHandler) HandleTransaction(ctx context.Context, tx *domain.VMDataTransaction) error {
	h.log.InfoContext(ctx, "IVA transaction",
		"vm_id", tx.VMID,
		"hash", tx.Hash,
		"block", tx.BlockNumber,
		"position", tx.PositionInTheBlock,
		"sender", tx.Sender,
		"size", tx.Size,
		"success", tx.Success,
	)
	return nil
}

// MultiHandler fans a transaction out to several handlers in order. Every
// handler is called even if an earlier one fails; the errors are joined.
type MultiHandler struct {
	handlers []subscription.Handler
}

// NewMultiHandler creates a handler that calls each of handlers in turn.
func NewMultiHandler(handlers ...subscription.Handler) *MultiHandler {
	return &MultiHandler{handlers: handlers}
}

func (m *MultiHandler) HandleTransaction(ctx context.Context, tx *domain.VMDataTransaction) error {
	var errs []error
	for i, h := range m.handlers {
		if err := callHandler(ctx, h, tx); err != nil {
			errs = append(errs, fmt.Errorf("handler %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

// callHandler turns a panic into an error so later handlers still run.
func callHandler(ctx context.Context, h subscription.Handler, tx *domain.VMDataTransaction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return h.HandleTransaction(ctx, tx)
}
