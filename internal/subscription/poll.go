package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/indexing/metrics"
)

type tickResult string

const (
	tickIdle     tickResult = "idle"
	tickAdvanced tickResult = "advanced"
	tickFailed   tickResult = "failed"
	tickPaused   tickResult = "paused"
)

func newRunID() string {
	return uuid.NewString()
}

// run is the worker. It owns cursor advancement.
func (s *Subscription) run(ctx context.Context, done chan struct{}, log *slog.Logger) {
	defer func() {
		s.running.Store(false)
		close(done)
	}()

	log.Info("Subscription started",
		"next_block", s.NextBlock(),
		"poll_interval", s.pollInterval,
	)

	for {
		if s.stopped.Load() || ctx.Err() != nil {
			log.Info("Subscription stopped", "latest_checked_block", s.LatestCheckedBlock())
			return
		}

		if s.paused.Load() {
			metrics.TicksTotal.WithLabelValues(s.label, string(tickPaused)).Inc()
			s.waitWhilePaused(ctx)
			continue
		}

		wait := s.pollInterval
		result, err := s.tick(ctx)
		if err != nil {
			attempt := s.recordFailure(err)
			wait = max(wait, s.backoff.GetDelay(attempt-1))
			log.Warn("Poll tick failed, retrying window",
				"next_block", s.NextBlock(),
				"consecutive_failures", attempt,
				"retry_in", wait,
				"error", err,
			)
		} else {
			s.recordSuccess()
		}
		metrics.TicksTotal.WithLabelValues(s.label, string(result)).Inc()

		s.idle(ctx, wait)
	}
}

// tick runs one poll step: head query, window computation, range query,
// dispatch, and cursor advance. On error nothing is advanced.
func (s *Subscription) tick(ctx context.Context) (tickResult, error) {
	head, err := s.source.LatestBlockNumber(ctx)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(s.label, "head").Inc()
		return tickFailed, fmt.Errorf("get latest block number: %w", err)
	}
	s.chainHead.Store(head)
	metrics.ChainHeadBlock.WithLabelValues(s.label).Set(float64(head))

	from := s.NextBlock()
	to := windowEnd(from, head)
	if to < from {
		return tickIdle, nil
	}
	metrics.WindowSize.WithLabelValues(s.label).Observe(float64(to - from + 1))

	txs, err := s.source.VMDataTransactions(ctx, s.vmID, from, to)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(s.label, "range").Inc()
		return tickFailed, fmt.Errorf("get vm data transactions [%d, %d]: %w", from, to, err)
	}

	for _, tx := range txs {
		s.dispatch(ctx, tx)
	}

	next := Progress{NextBlock: to + 1, LatestCheckedBlock: to}
	s.progress.Store(&next)
	metrics.CursorBlock.WithLabelValues(s.label).Set(float64(next.NextBlock))

	s.saveCheckpoint(ctx, next)

	if len(txs) > 0 {
		s.log.Debug("Window delivered", "from", from, "to", to, "transactions", len(txs))
	}
	return tickAdvanced, nil
}

// windowEnd returns min(head, cursor+MaxWindow-1) without overflowing.
func windowEnd(cursor, head uint64) uint64 {
	end := cursor + MaxWindow - 1
	if end < cursor {
		end = math.MaxUint64
	}
	return min(head, end)
}

// dispatch hands one transaction to the handler. Handler errors and panics
// are counted and logged but never reach the loop.
func (s *Subscription) dispatch(ctx context.Context, tx *domain.VMDataTransaction) {
	s.delivered.Add(1)
	metrics.TransactionsDelivered.WithLabelValues(s.label).Inc()

	defer func() {
		if r := recover(); r != nil {
			s.handlerFailures.Add(1)
			metrics.HandlerErrorsTotal.WithLabelValues(s.label).Inc()
			s.log.Error("Handler panicked",
				"hash", tx.Hash,
				"block", tx.BlockNumber,
				"panic", r,
			)
		}
	}()

	if err := s.handler.HandleTransaction(ctx, tx); err != nil {
		s.handlerFailures.Add(1)
		metrics.HandlerErrorsTotal.WithLabelValues(s.label).Inc()
		s.log.Error("Handler failed",
			"hash", tx.Hash,
			"block", tx.BlockNumber,
			"error", err,
		)
	}
}

func (s *Subscription) saveCheckpoint(ctx context.Context, p Progress) {
	if s.checkpointer == nil {
		return
	}
	if err := s.checkpointer.Checkpoint(ctx, s.vmID, p); err != nil {
		s.checkpointFailures.Add(1)
		metrics.CheckpointErrorsTotal.WithLabelValues(s.label).Inc()
		s.log.Warn("Failed to save checkpoint", "next_block", p.NextBlock, "error", err)
	}
}

// waitWhilePaused blocks until Resume, Stop, or ctx cancellation.
func (s *Subscription) waitWhilePaused(ctx context.Context) {
	for s.paused.Load() && !s.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		case <-s.wake:
		}
	}
}

// idle waits d between ticks. Control calls cut the wait short.
func (s *Subscription) idle(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-s.wake:
	}
}

func (s *Subscription) recordFailure(err error) int {
	s.totalFailures.Add(1)
	s.lastFailure.Store(&failure{msg: err.Error(), at: time.Now()})
	return int(s.consecutiveFailures.Add(1))
}

func (s *Subscription) recordSuccess() {
	s.consecutiveFailures.Store(0)
	s.lastSuccessAt.Store(time.Now().UnixNano())
}
