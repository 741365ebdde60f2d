// Package subscription watches a chain data source for IVA transactions of
// one VM id and delivers them to a Handler as they are confirmed.
//
// # Lifecycle
//
//	sub := subscription.New(source, vmID, startingBlock, handler, 100*time.Millisecond)
//	if err := sub.Start(ctx); err != nil { ... }
//
//	sub.Pause()  // no fetch or dispatch until Resume
//	sub.Resume()
//
//	sub.Stop()            // cooperative, takes effect at the next tick boundary
//	_ = sub.Wait(stopCtx) // blocks until the worker has exited
//
// # Windowing
//
// Each tick fetches at most MaxWindow blocks starting at the cursor. The
// cursor only moves past a window after every transaction in it has been
// handed to the handler. A failed query leaves the cursor where it is, so
// the same window is requested again on the next tick.
package subscription

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vietddude/ivawatch/internal/indexing/recovery"
)

const (
	// MaxWindow caps the number of blocks requested per tick.
	MaxWindow = 1000

	// DefaultPollInterval is used when the configured interval is zero.
	DefaultPollInterval = 100 * time.Millisecond
)

// ErrAlreadyRunning is returned by Start while the worker is active.
var ErrAlreadyRunning = errors.New("subscription already running")

// Progress is the cursor position, swapped as a single value.
type Progress struct {
	// NextBlock is the next block number not yet fetched.
	NextBlock uint64
	// LatestCheckedBlock is the last block number successfully examined.
	LatestCheckedBlock uint64
}

// Health holds failure counters for owners that need to know the
// subscription is stuck.
type Health struct {
	Delivered           uint64
	TotalFailures       uint64
	ConsecutiveFailures uint64
	HandlerFailures     uint64
	CheckpointFailures  uint64
	LastError           string
	LastErrorAt         time.Time
	LastSuccessAt       time.Time
}

// Status is a point-in-time view of a subscription.
type Status struct {
	RunID              string
	VMID               uint64
	StartingBlock      uint64
	NextBlock          uint64
	LatestCheckedBlock uint64
	ChainHead          uint64
	Running            bool
	Paused             bool
	Stopped            bool
	Health             Health
}

type failure struct {
	msg string
	at  time.Time
}

// Subscription is the poll loop for one VM id.
type Subscription struct {
	source        Source
	handler       Handler
	vmID          uint64
	label         string
	startingBlock uint64
	pollInterval  time.Duration
	backoff       Backoff
	checkpointer  Checkpointer
	log           *slog.Logger

	progress  atomic.Pointer[Progress]
	chainHead atomic.Uint64

	running atomic.Bool
	paused  atomic.Bool
	stopped atomic.Bool
	wake    chan struct{}

	mu    sync.Mutex
	done  chan struct{}
	runID string

	delivered           atomic.Uint64
	totalFailures       atomic.Uint64
	consecutiveFailures atomic.Uint64
	handlerFailures     atomic.Uint64
	checkpointFailures  atomic.Uint64
	lastFailure         atomic.Pointer[failure]
	lastSuccessAt       atomic.Int64
}

// Option configures a Subscription.
type Option func(*Subscription)

// WithLogger sets the logger. The vm_id attribute is added automatically.
func WithLogger(l *slog.Logger) Option {
	return func(s *Subscription) {
		if l != nil {
			s.log = l
		}
	}
}

// WithBackoff sets the wait policy applied after consecutive failed ticks.
func WithBackoff(b Backoff) Option {
	return func(s *Subscription) {
		if b != nil {
			s.backoff = b
		}
	}
}

// WithCheckpointer persists progress after every advanced window.
func WithCheckpointer(c Checkpointer) Option {
	return func(s *Subscription) { s.checkpointer = c }
}

// New creates a stopped subscription. It performs no I/O.
func New(
	source Source,
	vmID uint64,
	startingBlock uint64,
	handler Handler,
	pollInterval time.Duration,
	opts ...Option,
) *Subscription {
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	done := make(chan struct{})
	close(done)

	s := &Subscription{
		source:        source,
		handler:       handler,
		vmID:          vmID,
		label:         strconv.FormatUint(vmID, 10),
		startingBlock: startingBlock,
		pollInterval:  pollInterval,
		backoff:       recovery.DefaultBackoff(nil),
		log:           slog.Default(),
		wake:          make(chan struct{}, 1),
		done:          done,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With("component", "subscription", "vm_id", vmID)
	s.progress.Store(&Progress{NextBlock: startingBlock})
	return s
}

// Start launches the poll loop. It returns ErrAlreadyRunning, and changes
// nothing, if the loop is already active. Cancelling ctx ends the loop like
// Stop does.
func (s *Subscription) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		s.log.Error("Subscription is already running")
		return ErrAlreadyRunning
	}
	s.paused.Store(false)
	s.stopped.Store(false)
	s.drainWake()

	done := make(chan struct{})
	runID := newRunID()

	s.mu.Lock()
	s.done = done
	s.runID = runID
	s.mu.Unlock()

	go s.run(ctx, done, s.log.With("run_id", runID))
	return nil
}

// Pause suspends fetching and dispatch from the next tick boundary.
func (s *Subscription) Pause() {
	s.paused.Store(true)
	s.signal()
}

// Resume clears a previous Pause.
func (s *Subscription) Resume() {
	s.paused.Store(false)
	s.signal()
}

// Stop asks the loop to exit at the next tick boundary. It does not abort
// a fetch or dispatch already in progress.
func (s *Subscription) Stop() {
	s.stopped.Store(true)
	s.signal()
}

// Done returns a channel closed when the current worker has exited. For a
// subscription that was never started the channel is already closed.
func (s *Subscription) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Wait blocks until the worker exits or ctx is done.
func (s *Subscription) Wait(ctx context.Context) error {
	select {
	case <-s.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Subscription) IsRunning() bool { return s.running.Load() }
func (s *Subscription) IsPaused() bool  { return s.paused.Load() }
func (s *Subscription) IsStopped() bool { return s.stopped.Load() }

// Progress returns the cursor and latest checked block as one snapshot.
func (s *Subscription) Progress() Progress { return *s.progress.Load() }

// NextBlock returns the cursor.
func (s *Subscription) NextBlock() uint64 { return s.Progress().NextBlock }

// LatestCheckedBlock returns the last block examined, 0 before the first window.
func (s *Subscription) LatestCheckedBlock() uint64 { return s.Progress().LatestCheckedBlock }

func (s *Subscription) StartingBlock() uint64 { return s.startingBlock }
func (s *Subscription) VMID() uint64          { return s.vmID }
func (s *Subscription) Handler() Handler      { return s.handler }

// Health returns the failure counters.
func (s *Subscription) Health() Health {
	h := Health{
		Delivered:           s.delivered.Load(),
		TotalFailures:       s.totalFailures.Load(),
		ConsecutiveFailures: s.consecutiveFailures.Load(),
		HandlerFailures:     s.handlerFailures.Load(),
		CheckpointFailures:  s.checkpointFailures.Load(),
	}
	if f := s.lastFailure.Load(); f != nil {
		h.LastError = f.msg
		h.LastErrorAt = f.at
	}
	if ts := s.lastSuccessAt.Load(); ts > 0 {
		h.LastSuccessAt = time.Unix(0, ts)
	}
	return h
}

// Status returns a snapshot of the subscription.
func (s *Subscription) Status() Status {
	s.mu.Lock()
	runID := s.runID
	s.mu.Unlock()

	p := s.Progress()
	return Status{
		RunID:              runID,
		VMID:               s.vmID,
		StartingBlock:      s.startingBlock,
		NextBlock:          p.NextBlock,
		LatestCheckedBlock: p.LatestCheckedBlock,
		ChainHead:          s.chainHead.Load(),
		Running:            s.IsRunning(),
		Paused:             s.IsPaused(),
		Stopped:            s.IsStopped(),
		Health:             s.Health(),
	}
}

// signal wakes the loop if it is idle or paused. The buffer of one keeps a
// wake-up sent between the flag check and the wait from being lost.
func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Subscription) drainWake() {
	select {
	case <-s.wake:
	default:
	}
}
