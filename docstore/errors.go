package docstore

import (
	"errors"
	"fmt"
)

// Sentinel errors for the docstore package.
var (
	// ErrNotFound is returned when an operation targets an id that does
	// not exist. Recoverable — the caller decides the fallback.
	ErrNotFound = errors.New("docstore: document not found")

	// ErrConflict is returned when a write supplies a revision that does
	// not match the stored one. Recoverable via re-read and retry.
	ErrConflict = errors.New("docstore: revision conflict")

	// ErrStorageUnavailable wraps failures of the underlying engine.
	// Fatal for the current session — surface to the user.
	ErrStorageUnavailable = errors.New("docstore: storage unavailable")

	// ErrValidation is returned for malformed documents or snapshots.
	ErrValidation = errors.New("docstore: validation failed")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("docstore: store is closed")
)

// RevisionConflictError reports a lost-update attempt with enough detail
// for the caller to re-read and retry. It unwraps to [ErrConflict].
type RevisionConflictError struct {
	DocumentID string
	Supplied   string
	Stored     string
}

func (e *RevisionConflictError) Error() string {
	return fmt.Sprintf("docstore: revision conflict on %s: supplied %q, stored %q",
		e.DocumentID, e.Supplied, e.Stored)
}

func (e *RevisionConflictError) Unwrap() error {
	return ErrConflict
}

// storageErr wraps an engine failure so callers can match
// [ErrStorageUnavailable] while keeping the original cause in the chain.
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorageUnavailable, op, err)
}
