// Package pipeline coordinates backend initialization: preparation work runs
// while an external indexing job finishes, and processing starts only once
// the job succeeded and the search service is ready.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// JobWaiter blocks on and monitors the external job. jobs.Waiter implements it.
type JobWaiter interface {
	WaitForJobComplete(ctx context.Context, name, namespace string, maxWait time.Duration) error
	MonitorJob(ctx context.Context, name, namespace string, interval time.Duration) error
}

// ServiceWaiter blocks until the downstream service answers ready.
type ServiceWaiter interface {
	WaitReady(ctx context.Context) error
}

// ServiceWaiterFunc adapts a function to ServiceWaiter.
type ServiceWaiterFunc func(ctx context.Context) error

func (f ServiceWaiterFunc) WaitReady(ctx context.Context) error { return f(ctx) }

// Config names the job to wait on.
type Config struct {
	JobName    string
	Namespace  string
	JobMaxWait time.Duration
	// MonitorInterval <= 0 disables the background monitor.
	MonitorInterval time.Duration
	Logger          *slog.Logger
}

// Coordinator runs initialization pipelines.
type Coordinator struct {
	jobs    JobWaiter
	service ServiceWaiter
	cfg     Config
	logger  *slog.Logger
}

// NewCoordinator creates a Coordinator.
func NewCoordinator(jobs JobWaiter, service ServiceWaiter, cfg Config) *Coordinator {
	if cfg.JobMaxWait <= 0 {
		cfg.JobMaxWait = 10 * time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{jobs: jobs, service: service, cfg: cfg, logger: logger.With("component", "pipeline")}
}

// Steps are the caller's work. Prepare must not depend on the job; Process
// receives Prepare's output.
type Steps[T any] struct {
	Prepare func(ctx context.Context) (T, error)
	Process func(ctx context.Context, prepared T) error
}

// Run executes one pipeline:
//
//  1. start the job monitor in the background
//  2. run Prepare and the job wait concurrently and join both
//  3. wait for the downstream service
//  4. run Process
//
// A failed job or Prepare aborts before Process. The monitor is cancelled
// and awaited on every return path.
func Run[T any](ctx context.Context, c *Coordinator, steps Steps[T]) (err error) {
	runID := uuid.NewString()
	log := c.logger.With("run_id", runID, "job", c.cfg.JobName, "namespace", c.cfg.Namespace)
	start := time.Now()
	log.Info("initialization pipeline starting")

	stopMonitor := c.startMonitor(ctx, log)
	defer stopMonitor()

	defer func() {
		if err != nil {
			log.Error("initialization pipeline failed", "error", err, "elapsed", time.Since(start).Round(time.Millisecond))
			return
		}
		log.Info("initialization pipeline complete", "elapsed", time.Since(start).Round(time.Millisecond))
	}()

	var prepared T
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := c.jobs.WaitForJobComplete(gctx, c.cfg.JobName, c.cfg.Namespace, c.cfg.JobMaxWait); err != nil {
			return fmt.Errorf("waiting for job %s: %w", c.cfg.JobName, err)
		}
		return nil
	})
	g.Go(func() error {
		v, err := steps.Prepare(gctx)
		if err != nil {
			return fmt.Errorf("prepare: %w", err)
		}
		prepared = v
		log.Info("preparation complete; waiting for job if still running")
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if c.service != nil {
		if err := c.service.WaitReady(ctx); err != nil {
			return fmt.Errorf("waiting for service: %w", err)
		}
	}

	if err := steps.Process(ctx, prepared); err != nil {
		return fmt.Errorf("process: %w", err)
	}
	return nil
}

// startMonitor launches MonitorJob and returns a func that cancels it and
// waits for it to return.
func (c *Coordinator) startMonitor(ctx context.Context, log *slog.Logger) func() {
	if c.cfg.MonitorInterval <= 0 {
		log.Warn("job monitoring disabled; continuing without it")
		return func() {}
	}

	monCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := c.jobs.MonitorJob(monCtx, c.cfg.JobName, c.cfg.Namespace, c.cfg.MonitorInterval); err != nil {
			log.Warn("job monitor exited", "error", err)
		}
	}()
	return func() {
		cancel()
		<-done
	}
}
