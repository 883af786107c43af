// Package embedding turns query text into unit-length vectors using an
// OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrProvider marks every failure that originates at the embedding provider:
// transport errors, non-2xx responses, timeouts and malformed bodies.
var ErrProvider = errors.New("embedding provider error")

// Provider is implemented by embedding backends.
type Provider interface {
	// Embed returns one vector per input text, in order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	// Name returns the provider identifier.
	Name() string
}

// StatusError is returned for a non-2xx provider response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %s", e.Code, e.Body)
}

func (e *StatusError) Is(target error) bool {
	return target == ErrProvider
}

func providerError(op string, err error) error {
	if errors.Is(err, ErrProvider) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", ErrProvider, op, err)
}
