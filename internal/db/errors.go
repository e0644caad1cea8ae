// Package db error classification for SurrealDB query failures.
package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"

	"github.com/lorekeep/lorekeep/internal/errs"
)

// Sentinel errors for database operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrAlreadyExists indicates a record with the same identity already
	// exists, typically from a unique index collision under concurrency.
	ErrAlreadyExists = errors.New("record already exists")

	// ErrTransactionConflict indicates concurrent transactions touched the
	// same records. Callers should retry.
	ErrTransactionConflict = errors.New("transaction conflict")

	// ErrMissingNode indicates an edge or reference targeted a node that
	// does not exist.
	ErrMissingNode = fmt.Errorf("%w: missing node", errs.ErrReference)
)

// wrapQueryError inspects a SurrealDB error and wraps it with the
// appropriate sentinel. Unrecognized errors are classified as storage
// failures so callers can retry them with backoff.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) {
		msg := queryErr.Message
		switch {
		case strings.Contains(msg, "missing node"):
			return fmt.Errorf("%w: %s", ErrMissingNode, msg)
		// Unique index collisions read "index ... already contains ...";
		// record id collisions read "already exists".
		case strings.Contains(msg, "already exists"), strings.Contains(msg, "already contains"):
			return fmt.Errorf("%w: %s", ErrAlreadyExists, msg)
		case strings.Contains(msg, "Transaction conflict"):
			return fmt.Errorf("%w: %s", ErrTransactionConflict, msg)
		}
		return fmt.Errorf("%w: %s", errs.ErrStorage, msg)
	}

	return fmt.Errorf("%w: %v", errs.ErrStorage, err)
}
