package store

import (
	"errors"
	"fmt"
)

// ErrOwnerRequired is returned when a property operation is attempted
// without an authenticated owner.
var ErrOwnerRequired = errors.New("owner id required")

var (
	errProfileNotFound  = errors.New("profile not found")
	errPropertyNotFound = errors.New("property not found")
	errTaskNotFound     = errors.New("task not found")
)

// ErrorKind classifies store failures the way the backend reports them.
type ErrorKind string

const (
	KindNotFound   ErrorKind = "not-found"
	KindPermission ErrorKind = "permission"
	KindNetwork    ErrorKind = "network"
	KindQuota      ErrorKind = "quota"
	KindInternal   ErrorKind = "internal"
)

// StoreError tags a backend failure with its classification. The store
// performs no retries; retry policy, if any, belongs to the caller.
type StoreError struct {
	Kind ErrorKind
	Err  error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store: %s: %v", e.Kind, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// NewStoreError wraps err with a classification.
func NewStoreError(kind ErrorKind, err error) *StoreError {
	return &StoreError{Kind: kind, Err: err}
}

// KindOf extracts the classification from err, defaulting to internal.
func KindOf(err error) ErrorKind {
	var se *StoreError
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindInternal
}

// IsNotFound reports whether err carries the not-found classification.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}
