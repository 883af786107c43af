// Package jobs waits on and monitors an external one-shot indexing job.
package jobs

import (
	"context"
	"errors"
)

var (
	// ErrJobFailed means the job reached a terminal failure phase.
	ErrJobFailed = errors.New("jobs: job failed")
	// ErrJobTimeout means the job did not finish within the allowed wait.
	ErrJobTimeout = errors.New("jobs: timed out waiting for job")
)

// Phase is the coarse status of an external job.
type Phase int

const (
	Unknown Phase = iota
	Pending
	Running
	Succeeded
	Failed
)

func (p Phase) String() string {
	switch p {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the phase will not change again.
func (p Phase) Terminal() bool {
	return p == Succeeded || p == Failed
}

// StatusSource reports the phase of a named job.
type StatusSource interface {
	JobPhase(ctx context.Context, name, namespace string) (Phase, error)
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context, name, namespace string) (Phase, error)

func (f StatusFunc) JobPhase(ctx context.Context, name, namespace string) (Phase, error) {
	return f(ctx, name, namespace)
}
