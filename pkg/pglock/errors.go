package pglock

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is matched by every *InvalidKeyError.
	ErrInvalidKey = errors.New("pglock: invalid lock id")
	// ErrUnknownConnection is returned when Using names a connection that was never registered.
	ErrUnknownConnection = errors.New("pglock: unknown connection")
)

// InvalidKeyError reports a lock id of the wrong shape or type. It is always returned
// before any statement reaches the database.
type InvalidKeyError struct {
	Value  any
	Reason string
}

func (e *InvalidKeyError) Error() string {
	return fmt.Sprintf("pglock: invalid lock id %#v: %s", e.Value, e.Reason)
}

func (e *InvalidKeyError) Is(target error) bool {
	return target == ErrInvalidKey
}

func invalidKey(v any, reason string) error {
	return &InvalidKeyError{Value: v, Reason: reason}
}
