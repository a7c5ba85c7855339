package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input. No state is changed when it is returned.
	ErrValidation = errors.New("validation failed")
	// ErrStorage marks a store that is unavailable or rejected a write.
	ErrStorage = errors.New("storage failure")
	// ErrDuplicateSample marks a sample whose (kiosk, timestamp, sensor) key
	// is already stored. The write that hit it persisted nothing.
	ErrDuplicateSample = errors.New("duplicate sample")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// StorageError wraps a store failure with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

func (e *StorageError) Unwrap() error { return e.Err }

// NewStorageError returns nil when err is nil, so callers can wrap unconditionally.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Err: err}
}
