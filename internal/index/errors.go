package index

import (
	"errors"
	"fmt"

	"github.com/efebarandurmaz/recall/internal/store"
)

var (
	// ErrNoDataYet means storage returned zero rows. The upstream job has not
	// written anything yet; callers should retry later.
	ErrNoDataYet = errors.New("index: no embeddings found in storage")

	// ErrDimensionMismatch is a configuration error: stored embeddings do not
	// match the configured dimension. It fails the whole build.
	ErrDimensionMismatch = errors.New("index: embedding dimension mismatch")

	// ErrShapeMismatch is returned by Search when the query vector length
	// differs from the snapshot dimension.
	ErrShapeMismatch = errors.New("index: query shape mismatch")

	// ErrInvalidParams is returned by Search for out-of-range parameters.
	ErrInvalidParams = errors.New("index: invalid search parameters")

	// ErrDuplicateKey means two stored rows share a key. It fails the whole
	// build.
	ErrDuplicateKey = errors.New("index: duplicate key")
)

// DecodeError reports a stored vector that could not be parsed.
type DecodeError struct {
	Key    string
	Reason string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("index: could not parse embedding for %s: %s", e.Key, e.Reason)
}

// IsFatal reports whether err is a build failure that retrying cannot fix
// without an operator changing data or configuration.
func IsFatal(err error) bool {
	var decodeErr *DecodeError
	return errors.Is(err, ErrDimensionMismatch) ||
		errors.Is(err, ErrDuplicateKey) ||
		errors.Is(err, store.ErrMalformedVector) ||
		errors.As(err, &decodeErr)
}
