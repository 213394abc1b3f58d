package device

import (
	"errors"
	"fmt"
)

// ErrorKind is the closed set of externally visible failure categories.
// Every error surfaced by a public SDK operation maps to exactly one kind.
type ErrorKind string

const (
	KindPermissionDenied ErrorKind = "permission_denied"
	KindBluetoothOff     ErrorKind = "bluetooth_off"
	KindDeviceNotFound   ErrorKind = "device_not_found"
	KindSubscribeFailed  ErrorKind = "subscribe_failed"

	// KindDisconnected is observational: out-of-band state loss is reported
	// through IsConnected(), never thrown from an operation.
	KindDisconnected ErrorKind = "disconnected"
)

// Error is a transport failure tagged with its kind.
type Error struct {
	Kind ErrorKind
	Msg  string
}

// Error implements the error interface
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Msg == "" {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is allows errors.Is to compare Error values by Kind
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// Predefined sentinel errors, one per kind
var (
	ErrPermissionDenied = &Error{Kind: KindPermissionDenied}
	ErrBluetoothOff     = &Error{Kind: KindBluetoothOff}
	ErrDeviceNotFound   = &Error{Kind: KindDeviceNotFound}
	ErrSubscribeFailed  = &Error{Kind: KindSubscribeFailed}
	ErrDisconnected     = &Error{Kind: KindDisconnected}
)

// KindOf extracts the failure kind from an error chain.
// The ok result is false for nil errors and errors outside the closed set.
func KindOf(err error) (ErrorKind, bool) {
	var derr *Error
	if errors.As(err, &derr) {
		return derr.Kind, true
	}
	return "", false
}

// WrapKind tags err with the given sentinel while preserving the original
// context for logging and errors.Is checks.
func WrapKind(sentinel *Error, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", sentinel, err)
}
