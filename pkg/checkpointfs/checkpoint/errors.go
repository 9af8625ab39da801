package checkpoint

import (
	"errors"
	"fmt"
)

// Sentinel errors for checkpoint operations.
var (
	// ErrMissingIdentifier indicates a required thread or checkpoint id was empty.
	ErrMissingIdentifier = errors.New("missing identifier")

	// ErrInvalidIdentifier indicates an id cannot be mapped to storage safely,
	// e.g. it contains a path separator or the write filename delimiter.
	ErrInvalidIdentifier = errors.New("invalid identifier")

	// ErrNilCheckpoint indicates Put was called without a checkpoint.
	ErrNilCheckpoint = errors.New("checkpoint is nil")

	// ErrStoreClosed indicates the saver has been closed.
	ErrStoreClosed = errors.New("checkpoint store closed")
)

// IdentifierError reports which identifier an operation rejected.
type IdentifierError struct {
	// Op is the operation that was called ("put", "put_writes", ...).
	Op string
	// Field names the offending identifier ("thread_id", "checkpoint_id", ...).
	Field string
	// Value is the rejected value. Empty for missing identifiers.
	Value string
	// Err is ErrMissingIdentifier or ErrInvalidIdentifier.
	Err error
}

// Error implements the error interface.
func (e *IdentifierError) Error() string {
	if e.Value == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Field, e.Err)
	}
	return fmt.Sprintf("%s: %s %q: %v", e.Op, e.Field, e.Value, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *IdentifierError) Unwrap() error {
	return e.Err
}

// MissingIdentifier builds an IdentifierError wrapping ErrMissingIdentifier.
func MissingIdentifier(op, field string) error {
	return &IdentifierError{Op: op, Field: field, Err: ErrMissingIdentifier}
}

// InvalidIdentifier builds an IdentifierError wrapping ErrInvalidIdentifier.
func InvalidIdentifier(op, field, value string) error {
	return &IdentifierError{Op: op, Field: field, Value: value, Err: ErrInvalidIdentifier}
}

// OpError wraps a storage failure with the operation and the artifact involved.
type OpError struct {
	// Op is the operation that failed ("read", "write", "decode", ...).
	Op string
	// Path is the file, row key, or other location of the artifact.
	Path string
	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *OpError) Error() string {
	return fmt.Sprintf("checkpoint %s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *OpError) Unwrap() error {
	return e.Err
}
