package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/ivawatch/internal/core/config"
	"github.com/vietddude/ivawatch/internal/infra/storage"
)

// Pruner deletes stored transactions of one VM id based on retention policy.
type Pruner struct {
	cfg    config.SubscriptionConfig
	txRepo storage.TransactionRepository
	log    *slog.Logger
	now    func() time.Time
}

// NewPruner creates a new Pruner worker.
func NewPruner(cfg config.SubscriptionConfig, txRepo storage.TransactionRepository) *Pruner {
	return &Pruner{
		cfg:    cfg,
		txRepo: txRepo,
		log:    slog.Default().With("component", "pruner", "vm_id", cfg.VMID),
		now:    time.Now,
	}
}

// Interval returns how often the pruner runs: a tenth of the retention
// period, between one minute and one hour.
func (p *Pruner) Interval() time.Duration {
	interval := min(p.cfg.RetentionPeriod/10, 1*time.Hour)
	return max(interval, 1*time.Minute)
}

// Start runs the pruner loop until ctx is done.
func (p *Pruner) Start(ctx context.Context) {
	if p.cfg.RetentionPeriod <= 0 {
		return // Retention disabled
	}

	ticker := time.NewTicker(p.Interval())
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune deletes transactions stored before now minus the retention period.
func (p *Pruner) Prune(ctx context.Context) int64 {
	cutoff := p.now().Add(-p.cfg.RetentionPeriod)

	n, err := p.txRepo.DeleteOlderThan(ctx, p.cfg.VMID, cutoff)
	if err != nil {
		p.log.Error("Failed to prune transactions", "cutoff", cutoff, "error", err)
		return 0
	}
	if n > 0 {
		p.log.Info("Pruned transactions", "count", n, "cutoff", cutoff)
	}
	return n
}
