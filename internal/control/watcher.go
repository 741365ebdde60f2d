// Package control wires the configured subscriptions to their data source,
// sinks, checkpoint store and operator endpoints.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/ivawatch/internal/core/config"
	"github.com/vietddude/ivawatch/internal/core/domain"
	"github.com/vietddude/ivawatch/internal/core/worker"
	"github.com/vietddude/ivawatch/internal/indexing/emitter"
	"github.com/vietddude/ivawatch/internal/indexing/filter"
	"github.com/vietddude/ivawatch/internal/indexing/health"
	"github.com/vietddude/ivawatch/internal/indexing/throttle"
	"github.com/vietddude/ivawatch/internal/infra/chain/pwr"
	redisclient "github.com/vietddude/ivawatch/internal/infra/redis"
	"github.com/vietddude/ivawatch/internal/infra/rpc"
	"github.com/vietddude/ivawatch/internal/infra/storage"
	"github.com/vietddude/ivawatch/internal/infra/storage/memory"
	"github.com/vietddude/ivawatch/internal/infra/storage/postgres"
	"github.com/vietddude/ivawatch/internal/subscription"
)

// Watcher is the main application struct that manages the subscription lifecycle.
type Watcher struct {
	cfg          *config.AppConfig
	client       *rpc.Client
	source       *throttle.CachedSource
	checkpoints  storage.CheckpointRepository
	txRepo       storage.TransactionRepository
	units        []*unit
	healthMon    *health.Monitor
	healthServer *health.Server
	db           *postgres.DB
	redisClient  *redisclient.Client
	log          *slog.Logger

	cancel context.CancelFunc
}

// unit is one configured VM id and everything that runs for it.
type unit struct {
	cfg     config.SubscriptionConfig
	handler subscription.Handler
	store   *emitter.StoreHandler
	pruner  *worker.Pruner

	sub   *subscription.Subscription
	lease *redisclient.Lease
}

// NewWatcher connects the configured backends and builds one unit per
// subscription. Subscriptions are created by Start.
func NewWatcher(ctx context.Context, cfg *config.AppConfig) (*Watcher, error) {
	w := &Watcher{
		cfg: cfg,
		log: slog.Default().With("component", "watcher"),
	}

	// 1. RPC client and data source
	w.client = rpc.NewClient(rpc.NewRouter(), cfg.RPC.Retry)
	for _, p := range cfg.RPC.Providers {
		w.client.AddProvider(rpc.NewHTTPProvider(p.Name, p.URL, cfg.RPC.Timeout))
	}
	w.source = throttle.NewCachedSource(pwr.NewPWRAdapter(cfg.RPC.Network, w.client), cfg.HeadCacheTTL)

	// 2. Storage
	if err := w.initStorage(ctx); err != nil {
		_ = w.closeBackends()
		return nil, err
	}

	// 3. Units
	for _, subCfg := range cfg.Subscriptions {
		u, err := w.newUnit(subCfg)
		if err != nil {
			_ = w.closeBackends()
			return nil, err
		}
		w.units = append(w.units, u)
	}

	// 4. Health
	w.healthMon = health.NewMonitor(w.client)
	w.healthServer = health.NewServer(w.healthMon, cfg.Server.Port)

	return w, nil
}

func (w *Watcher) initStorage(ctx context.Context) error {
	if w.cfg.Database.URL != "" {
		db, err := postgres.NewDB(ctx, w.cfg.Database)
		if err != nil {
			return fmt.Errorf("failed to init db: %w", err)
		}
		w.db = db
		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to migrate db: %w", err)
		}
		w.txRepo = postgres.NewTxRepo(db)
		w.log.Info("Using PostgreSQL storage")
	}

	if w.cfg.Redis.URL != "" {
		rc, err := redisclient.NewClient(ctx, w.cfg.Redis)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}
		w.redisClient = rc
		w.log.Info("Using Redis leases")
	}

	switch w.cfg.Checkpoint.Backend {
	case domain.CheckpointRedis:
		if w.redisClient == nil {
			return errors.New("redis checkpoint backend requires redis.url")
		}
		w.checkpoints = redisclient.NewCheckpointRepo(w.redisClient)
	case domain.CheckpointPostgres:
		if w.db == nil {
			return errors.New("postgres checkpoint backend requires database.url")
		}
		w.checkpoints = postgres.NewCheckpointRepo(w.db)
	default:
		w.checkpoints = memory.NewCheckpointRepo(memory.NewMemoryStorage())
	}
	w.log.Info("Checkpoint backend ready", "backend", w.cfg.Checkpoint.Backend)
	return nil
}

func (w *Watcher) newUnit(cfg config.SubscriptionConfig) (*unit, error) {
	u := &unit{cfg: cfg}

	var handlers []subscription.Handler
	if cfg.HasSink(domain.SinkLog) {
		handlers = append(handlers, emitter.NewLogHandler(slog.Default()))
	}
	if cfg.HasSink(domain.SinkStore) {
		if w.txRepo == nil {
			return nil, fmt.Errorf("vm %d: store sink requires database.url", cfg.VMID)
		}
		u.store = emitter.NewStoreHandler(w.txRepo, cfg.BatchSize)
		handlers = append(handlers, u.store)

		if cfg.RetentionPeriod > 0 {
			u.pruner = worker.NewPruner(cfg, w.txRepo)
		}
	}

	switch len(handlers) {
	case 0:
		return nil, fmt.Errorf("vm %d: no sinks configured", cfg.VMID)
	case 1:
		u.handler = handlers[0]
	default:
		u.handler = emitter.NewMultiHandler(handlers...)
	}

	if len(cfg.Senders) > 0 {
		u.handler = filter.Handler(filter.NewSenderFilter(cfg.Senders...), u.handler)
	}
	return u, nil
}

// Start starts the health server and every subscription whose lease could
// be acquired. It does not block.
func (w *Watcher) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	// Start Health Server
	go func() {
		if err := w.healthServer.Start(); err != nil {
			w.log.Error("Health server failed", "error", err)
		}
	}()

	// Start DB Metrics Collector
	if w.db != nil {
		w.db.StartMetricsCollector(runCtx)
	}

	var errs []error
	started := 0
	for _, u := range w.units {
		ok, err := w.startUnit(runCtx, u)
		if err != nil {
			errs = append(errs, fmt.Errorf("vm %d: %w", u.cfg.VMID, err))
			continue
		}
		if ok {
			started++
		}
	}

	w.log.Info("Watcher started", "subscriptions", started, "configured", len(w.units))
	return errors.Join(errs...)
}

func (w *Watcher) startUnit(ctx context.Context, u *unit) (bool, error) {
	log := w.log.With("vm_id", u.cfg.VMID)

	if w.redisClient != nil {
		lease, ok, err := w.redisClient.AcquireLease(ctx, u.cfg.VMID, w.cfg.Redis.LeaseTTL)
		if err != nil {
			return false, fmt.Errorf("acquire lease: %w", err)
		}
		if !ok {
			log.Warn("Subscription lease held by another process, not starting")
			return false, nil
		}
		u.lease = lease
	}

	start, err := w.resolveStart(ctx, u.cfg)
	if err != nil {
		w.releaseLease(ctx, u)
		return false, err
	}

	var cp subscription.Checkpointer = w.checkpointer()
	if u.store != nil {
		cp = emitter.FlushingCheckpointer(u.store, cp)
	}

	u.sub = subscription.New(
		w.source,
		u.cfg.VMID,
		start,
		u.handler,
		u.cfg.PollInterval,
		subscription.WithCheckpointer(cp),
	)
	if err := u.sub.Start(ctx); err != nil {
		w.releaseLease(ctx, u)
		return false, err
	}
	w.healthMon.Register(u.cfg.VMID, u.sub)

	if u.lease != nil {
		sub := u.sub
		go u.lease.KeepAlive(ctx, func(err error) {
			log.Error("Subscription lease lost, stopping", "error", err)
			sub.Stop()
		})
	}

	if u.pruner != nil {
		log.Info("Starting pruner", "retention", u.cfg.RetentionPeriod, "interval", u.pruner.Interval())
		go u.pruner.Start(ctx)
	}

	log.Info("Subscription started", "starting_block", start, "poll_interval", u.cfg.PollInterval)
	return true, nil
}

// resolveStart returns the stored checkpoint position when resuming, or the
// configured starting block.
func (w *Watcher) resolveStart(ctx context.Context, cfg config.SubscriptionConfig) (uint64, error) {
	if !cfg.ShouldResume() {
		return cfg.StartingBlock, nil
	}

	cp, err := w.checkpoints.Get(ctx, cfg.VMID)
	if errors.Is(err, storage.ErrCheckpointNotFound) {
		return cfg.StartingBlock, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load checkpoint: %w", err)
	}

	w.log.Info("Resuming from checkpoint",
		"vm_id", cfg.VMID,
		"next_block", cp.NextBlock,
		"updated_at", cp.UpdatedAt,
	)
	return cp.NextBlock, nil
}

func (w *Watcher) checkpointer() subscription.Checkpointer {
	return subscription.CheckpointFunc(func(ctx context.Context, vmID uint64, p subscription.Progress) error {
		return w.checkpoints.Save(ctx, &domain.Checkpoint{
			VMID:               vmID,
			NextBlock:          p.NextBlock,
			LatestCheckedBlock: p.LatestCheckedBlock,
			UpdatedAt:          time.Now(),
		})
	})
}

// Stop stops every subscription, waits for the workers to exit within the
// ctx deadline, flushes buffered writes and releases all backends.
func (w *Watcher) Stop(ctx context.Context) error {
	w.log.Info("Stopping Watcher...")

	var g errgroup.Group
	for _, u := range w.units {
		if u.sub == nil {
			continue
		}
		u.sub.Stop()
		sub := u.sub
		g.Go(func() error {
			if err := sub.Wait(ctx); err != nil {
				return fmt.Errorf("vm %d: %w", sub.VMID(), err)
			}
			return nil
		})
	}

	var errs []error
	if err := g.Wait(); err != nil {
		errs = append(errs, err)
	}

	for _, u := range w.units {
		if u.store != nil {
			if err := u.store.Flush(ctx); err != nil {
				errs = append(errs, fmt.Errorf("vm %d: %w", u.cfg.VMID, err))
			}
		}
		w.releaseLease(ctx, u)
	}

	if w.cancel != nil {
		w.cancel()
	}

	// Stop Health Server
	if err := w.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if err := w.closeBackends(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (w *Watcher) releaseLease(ctx context.Context, u *unit) {
	if u.lease == nil {
		return
	}
	if err := u.lease.Release(ctx); err != nil {
		w.log.Warn("Failed to release lease", "vm_id", u.cfg.VMID, "error", err)
	}
	u.lease = nil
}

func (w *Watcher) closeBackends() error {
	var errs []error
	if w.redisClient != nil {
		if err := w.redisClient.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if w.db != nil {
		if err := w.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close db: %w", err))
		}
	}
	if err := w.client.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Subscription returns the running subscription for vmID, if any.
func (w *Watcher) Subscription(vmID uint64) (*subscription.Subscription, bool) {
	for _, u := range w.units {
		if u.cfg.VMID == vmID && u.sub != nil {
			return u.sub, true
		}
	}
	return nil, false
}

// Checkpoints returns the checkpoint repository in use.
func (w *Watcher) Checkpoints() storage.CheckpointRepository {
	return w.checkpoints
}
