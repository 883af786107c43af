package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/efebarandurmaz/recall/internal/observability"
)

// Waiter polls a StatusSource.
type Waiter struct {
	source       StatusSource
	pollInterval time.Duration
	logger       *slog.Logger
	metrics      *observability.RecallMetrics
}

// Option configures a Waiter.
type Option func(*Waiter)

// WithPollInterval sets how often WaitForJobComplete polls. Default 10s.
func WithPollInterval(d time.Duration) Option {
	return func(w *Waiter) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Waiter) { w.logger = l }
}

// WithMetrics counts status polls.
func WithMetrics(m *observability.RecallMetrics) Option {
	return func(w *Waiter) { w.metrics = m }
}

// NewWaiter creates a Waiter.
func NewWaiter(source StatusSource, opts ...Option) *Waiter {
	w := &Waiter{
		source:       source,
		pollInterval: 10 * time.Second,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With("component", "jobs")
	return w
}

func (w *Waiter) poll(ctx context.Context, name, namespace string) (Phase, error) {
	if w.metrics != nil {
		w.metrics.JobPollsTotal.Inc()
	}
	return w.source.JobPhase(ctx, name, namespace)
}

// WaitForJobComplete blocks until the job succeeds (nil), fails
// (ErrJobFailed), maxWait elapses (ErrJobTimeout) or ctx is done. Status
// query errors are logged and polling continues. The timeout is never
// reported before maxWait has elapsed.
func (w *Waiter) WaitForJobComplete(ctx context.Context, name, namespace string, maxWait time.Duration) (err error) {
	ctx, span := observability.StartJobWaitSpan(ctx, name, namespace)
	defer func() {
		observability.RecordError(span, err)
		span.End()
	}()

	log := w.logger.With("job", name, "namespace", namespace)
	log.Info("waiting for job to complete", "max_wait", maxWait, "poll_interval", w.pollInterval)

	start := time.Now()
	b := retry.WithMaxDuration(maxWait, retry.NewConstant(w.pollInterval))
	last := Unknown

	err = retry.Do(ctx, b, func(ctx context.Context) error {
		phase, err := w.poll(ctx, name, namespace)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("job status query failed", "error", err)
			return retry.RetryableError(err)
		}
		if phase != last {
			log.Info("job phase", "phase", phase.String(), "elapsed", time.Since(start).Round(time.Second))
			last = phase
		}
		switch phase {
		case Succeeded:
			return nil
		case Failed:
			return ErrJobFailed
		default:
			return retry.RetryableError(errStillRunning)
		}
	})

	switch {
	case err == nil:
		log.Info("job completed", "elapsed", time.Since(start).Round(time.Millisecond))
		return nil
	case errors.Is(err, ErrJobFailed):
		log.Error("job failed")
		return fmt.Errorf("%s/%s: %w", namespace, name, ErrJobFailed)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		log.Error("timed out waiting for job", "last_phase", last.String(), "elapsed", time.Since(start).Round(time.Millisecond))
		return fmt.Errorf("%s/%s after %s (last phase %s): %w", namespace, name, maxWait, last, ErrJobTimeout)
	}
}

var errStillRunning = errors.New("job not finished")

// MonitorJob logs phase transitions every interval until ctx is cancelled.
// It always returns nil: monitoring is best-effort.
func (w *Waiter) MonitorJob(ctx context.Context, name, namespace string, interval time.Duration) error {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	log := w.logger.With("job", name, "namespace", namespace, "monitor", true)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	last := Unknown
	first := true
	for {
		phase, err := w.poll(ctx, name, namespace)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Debug("monitor status query failed", "error", err)
		case err == nil && (first || phase != last):
			log.Info("job status", "phase", phase.String())
			last = phase
			first = false
		}
		select {
		case <-ctx.Done():
			log.Debug("job monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}
