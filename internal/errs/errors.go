// Package errs defines the error taxonomy shared across the engine.
// Use errors.Is() / errors.As() to classify errors in calling code.
package errs

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for the core failure classes.
var (
	// ErrValidation indicates a malformed request (missing fields, bad
	// enum values, unknown fact kinds).
	ErrValidation = errors.New("validation error")

	// ErrReference indicates a dangling cross-reference: a memory entry or
	// edge points at a knowledge node that does not exist.
	ErrReference = errors.New("reference error")

	// ErrStorage indicates a persistence failure.
	ErrStorage = errors.New("storage error")

	// ErrEmbedding indicates an embedding provider failure, most commonly
	// a dimension mismatch against the project's configured dimension.
	ErrEmbedding = errors.New("embedding error")

	// ErrGenerationTimeout indicates the generation provider exceeded its
	// configured deadline. Treated as failure, never partial success.
	ErrGenerationTimeout = errors.New("generation timeout")

	// ErrConsistencyBlocking indicates generation was rejected because of
	// blocking consistency findings after the retry budget was exhausted.
	ErrConsistencyBlocking = errors.New("consistency blocking")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)

// Validationf wraps ErrValidation with a formatted message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}

// Referencef wraps ErrReference with a formatted message.
func Referencef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrReference}, args...)...)
}

// Storagef wraps ErrStorage with a formatted message.
func Storagef(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrStorage}, args...)...)
}

// DimensionError reports an embedding whose dimension does not match the
// project's configured dimension. Unwraps to ErrEmbedding.
type DimensionError struct {
	Got  int
	Want int
}

func (e *DimensionError) Error() string {
	return fmt.Sprintf("embedding error: dimension mismatch: got %d, want %d", e.Got, e.Want)
}

func (e *DimensionError) Unwrap() error { return ErrEmbedding }

// Transient reports whether an error is worth retrying with backoff.
// Storage and plain provider failures are transient; validation, reference,
// dimension and blocking errors are not.
func Transient(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrReference),
		errors.Is(err, ErrEmbedding),
		errors.Is(err, ErrConsistencyBlocking),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	}
	return true
}
