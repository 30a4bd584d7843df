package kvstore

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by backends when a document does not exist.
var ErrNotFound = errors.New("document not found")

// ValidationError reports a request rejected before any backend call.
type ValidationError struct {
	Op     string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kvstore: invalid %s: %s", e.Op, e.Reason)
}

// WriteError reports a failed backend write or delete.
type WriteError struct {
	Op         string
	Collection string
	Key        string
	Err        error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("kvstore: %s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
