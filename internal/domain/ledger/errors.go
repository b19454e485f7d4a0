package ledger

import (
	"errors"
	"fmt"
)

var (
	// ErrPersistence is wrapped by every error caused by the backing store.
	ErrPersistence = errors.New("ledger persistence failed")
	// ErrInvalidIdentity is returned when recording the unknown identity.
	ErrInvalidIdentity = errors.New("invalid identity")
	// ErrInvalidRecord is returned by Load for rows the ledger cannot hold.
	ErrInvalidRecord = errors.New("invalid ledger record")
)

// PersistenceError carries the backend that failed.
type PersistenceError struct {
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s (%s): %v", ErrPersistence, e.Backend, e.Err)
}

// Unwrap exposes both the sentinel and the store's own error.
func (e *PersistenceError) Unwrap() []error { return []error{ErrPersistence, e.Err} }
