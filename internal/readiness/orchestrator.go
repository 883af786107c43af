package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/efebarandurmaz/recall/internal/index"
	"github.com/efebarandurmaz/recall/internal/observability"
	"github.com/efebarandurmaz/recall/internal/store"
)

// ErrWaitExpired is returned by Run when max_wait elapses without a
// successful build.
var ErrWaitExpired = errors.New("readiness: gave up waiting for embeddings")

// Loader builds a snapshot from a store.
type Loader interface {
	Load(ctx context.Context, r store.Reader) (*index.Snapshot, error)
}

// Config controls the background loading loop.
type Config struct {
	PollInterval time.Duration
	// MaxWait bounds the loop. Zero waits forever.
	MaxWait  time.Duration
	LogEvery time.Duration
	Logger   *slog.Logger
	Metrics  *observability.RecallMetrics
}

// Status is a point-in-time view for health endpoints.
type Status struct {
	State      string    `json:"state"`
	Ready      bool      `json:"ready"`
	SnapshotID string    `json:"snapshot_id,omitempty"`
	Records    int       `json:"records"`
	Dimension  int       `json:"dimension,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
	LastError  string    `json:"last_error,omitempty"`
	Uptime     string    `json:"uptime"`
}

// Orchestrator owns the serving snapshot. Builds are serialized by buildMu;
// readers load the pointer without locking and always see a complete
// snapshot or none.
type Orchestrator struct {
	loader Loader
	reader store.Reader
	cfg    Config
	logger *slog.Logger

	snap  atomic.Pointer[index.Snapshot]
	state atomic.Int32

	buildMu sync.Mutex

	mu        sync.Mutex
	lastErr   error
	cancel    context.CancelFunc
	done      chan struct{}
	ready     chan struct{}
	readyOnce sync.Once
	startedAt time.Time
}

// New creates an orchestrator in the NotLoaded state.
func New(loader Loader, reader store.Reader, cfg Config) *Orchestrator {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		loader:    loader,
		reader:    reader,
		cfg:       cfg,
		logger:    logger.With("component", "readiness"),
		ready:     make(chan struct{}),
		startedAt: time.Now(),
	}
}

// Start launches the loading loop and returns immediately. Calling Start
// while a loop is running is a no-op.
func (o *Orchestrator) Start(ctx context.Context) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		select {
		case <-o.done:
		default:
			return
		}
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel = cancel
	o.done = done

	go func() {
		defer close(done)
		if err := o.Run(loopCtx); err != nil {
			o.logger.Error("background index loading stopped; serving not-ready", "error", err)
		}
	}()
}

// Stop cancels the loading loop and waits for it to exit.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Run polls storage until a snapshot is built, a non-retryable error occurs,
// MaxWait elapses or ctx is cancelled. Cancellation returns nil.
func (o *Orchestrator) Run(ctx context.Context) error {
	if o.snap.Load() != nil {
		return nil
	}
	o.state.CompareAndSwap(int32(NotLoaded), int32(Loading))
	o.state.CompareAndSwap(int32(LoadFailed), int32(Loading))

	o.logger.Info("waiting for embeddings",
		"poll_interval", o.cfg.PollInterval,
		"max_wait", o.cfg.MaxWait,
	)

	var b retry.Backoff = retry.NewConstant(o.cfg.PollInterval)
	if o.cfg.MaxWait > 0 {
		b = retry.WithMaxDuration(o.cfg.MaxWait, b)
	}

	throttle := newLogThrottle(o.cfg.LogEvery)
	start := time.Now()
	attempts := 0

	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if o.snap.Load() != nil {
			return nil
		}
		attempts++
		_, err := o.build(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || index.IsFatal(err) {
			return err
		}
		condition := classify(err)
		if throttle.allow(condition) {
			o.logger.Info("embeddings not available yet",
				"condition", condition,
				"attempt", attempts,
				"waited", time.Since(start).Round(time.Millisecond),
				"error", err,
			)
		}
		return retry.RetryableError(err)
	})

	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		o.state.CompareAndSwap(int32(Loading), int32(NotLoaded))
		o.logger.Info("index loading cancelled", "attempts", attempts)
		return nil
	case index.IsFatal(err):
		o.fail(err)
		return fmt.Errorf("build index: %w", err)
	default:
		err = fmt.Errorf("%w after %s (%d attempts): %w", ErrWaitExpired, o.cfg.MaxWait, attempts, err)
		o.fail(err)
		return err
	}
}

func (o *Orchestrator) fail(err error) {
	o.setLastErr(err)
	if o.snap.Load() == nil {
		o.state.Store(int32(LoadFailed))
	}
}

func classify(err error) string {
	switch {
	case errors.Is(err, store.ErrSchemaNotReady):
		return "schema_not_ready"
	case errors.Is(err, index.ErrNoDataYet):
		return "no_data"
	default:
		return "transient"
	}
}

// build runs one load under the build mutex and swaps the snapshot in on
// success. A failed build leaves the current snapshot untouched.
func (o *Orchestrator) build(ctx context.Context) (*index.Snapshot, error) {
	o.buildMu.Lock()
	defer o.buildMu.Unlock()

	start := time.Now()
	snap, err := o.loader.Load(ctx, o.reader)
	if o.cfg.Metrics != nil {
		size, dim := 0, 0
		if snap != nil {
			size, dim = snap.Size(), snap.Dimension()
		}
		o.cfg.Metrics.RecordBuild(time.Since(start), size, dim, err)
	}
	if err != nil {
		o.setLastErr(err)
		return nil, err
	}

	prev := o.snap.Swap(snap)
	o.state.Store(int32(Ready))
	o.setLastErr(nil)
	o.readyOnce.Do(func() { close(o.ready) })

	attrs := []any{
		"snapshot_id", snap.ID(),
		"records", snap.Size(),
		"dimension", snap.Dimension(),
		"duration", time.Since(start).Round(time.Millisecond),
	}
	if prev != nil {
		attrs = append(attrs, "previous_snapshot_id", prev.ID())
	}
	o.logger.Info("index ready", attrs...)
	return snap, nil
}

// Reload forces a fresh build. On failure the serving snapshot is kept; a
// non-retryable failure with nothing serving moves the state to LoadFailed.
func (o *Orchestrator) Reload(ctx context.Context) (*index.Snapshot, error) {
	snap, err := o.build(ctx)
	if err != nil {
		if index.IsFatal(err) {
			o.fail(err)
		}
		o.logger.Warn("reload failed; keeping current snapshot", "error", err, "serving", o.snap.Load() != nil)
		return nil, err
	}
	return snap, nil
}

// Snapshot returns the serving snapshot or nil.
func (o *Orchestrator) Snapshot() *index.Snapshot {
	return o.snap.Load()
}

// Ready reports whether a snapshot is being served.
func (o *Orchestrator) Ready() bool {
	return o.snap.Load() != nil
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

// WaitReady blocks until a snapshot is served, the loop exits without one,
// or ctx is done.
func (o *Orchestrator) WaitReady(ctx context.Context) error {
	o.mu.Lock()
	done := o.done
	o.mu.Unlock()

	select {
	case <-o.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		if o.Ready() {
			return nil
		}
		if err := o.LastError(); err != nil {
			return err
		}
		return errors.New("readiness: loading stopped before the index was built")
	}
}

// LastError returns the most recent build failure, cleared on success.
func (o *Orchestrator) LastError() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastErr
}

func (o *Orchestrator) setLastErr(err error) {
	o.mu.Lock()
	o.lastErr = err
	o.mu.Unlock()
}

// Health returns the current status.
func (o *Orchestrator) Health() Status {
	st := Status{
		State:  o.State().String(),
		Uptime: time.Since(o.startedAt).Round(time.Second).String(),
	}
	if snap := o.snap.Load(); snap != nil {
		st.Ready = true
		st.SnapshotID = snap.ID()
		st.Records = snap.Size()
		st.Dimension = snap.Dimension()
		st.BuiltAt = snap.BuiltAt()
	}
	if err := o.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}
