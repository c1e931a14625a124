package domain

import (
	"errors"
	"fmt"
)

// Error classes shared by every pipeline stage. Callers branch on them with errors.Is.
var (
	// ErrConfiguration marks a missing index path, collection or an invalid setting.
	ErrConfiguration = errors.New("configuration error")

	// ErrEmptyInput marks a document with no extractable text.
	ErrEmptyInput = errors.New("empty input")

	// ErrBackendUnavailable marks an unreachable embedding, reranker, LLM or index service.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrNotFound marks a query against a missing or empty index.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput marks malformed caller input (negative k, blank query, bad metadata).
	ErrInvalidInput = errors.New("invalid input")

	// ErrModelMismatch marks an index built with a different embedding model than the one loaded.
	ErrModelMismatch = fmt.Errorf("%w: embedding model mismatch", ErrConfiguration)
)

// BackendError reports a failed call to an external model or index service.
type BackendError struct {
	Backend string
	Err     error
}

// Unavailable wraps err as a BackendError for the named backend.
func Unavailable(backend string, err error) error {
	return &BackendError{Backend: backend, Err: err}
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Backend, e.Err)
}

// Unwrap exposes both the error class and the cause.
func (e *BackendError) Unwrap() []error {
	return []error{ErrBackendUnavailable, e.Err}
}
