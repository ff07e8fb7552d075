// Package fault defines the error taxonomy shared by every relay component.
//
// Each recoverable failure belongs to exactly one class (discovery, connect,
// I/O or decode). The relay engine recovers all of them locally by abandoning
// the current epoch; only ErrBusClosed signals a programming error.
package fault

import (
	"errors"
	"fmt"
)

// Error classes.
var (
	// ErrDiscovery indicates that no usable serial port could be located.
	ErrDiscovery = errors.New("discovery failed")

	// ErrConnect indicates that opening a device or a WebSocket handshake failed.
	ErrConnect = errors.New("connect failed")

	// ErrIO indicates a read or write failure on an established transport.
	ErrIO = errors.New("i/o failed")

	// ErrDecode indicates a malformed frame (bad tag, bad UTF-8, truncated).
	ErrDecode = errors.New("decode failed")

	// ErrBusClosed indicates that the in-process channel bus was closed
	// while an engine was still using it.
	ErrBusClosed = errors.New("bus closed")
)

// Error wraps a cause with the operation, its target and the error class.
type Error struct {
	Op     string // operation that failed, e.g. "serial open"
	Target string // device path or URL
	Kind   error  // one of the class sentinels above
	Err    error  // underlying cause
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Target != "" {
		return fmt.Sprintf("%s %s: %v: %v", e.Op, e.Target, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

// Unwrap exposes both the class sentinel and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	return []error{e.Kind, e.Err}
}

// New wraps err with context. It returns nil when err is nil.
func New(kind error, op, target string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Target: target, Kind: kind, Err: err}
}

// Discovery is shorthand for New(ErrDiscovery, ...).
func Discovery(op, target string, err error) error { return New(ErrDiscovery, op, target, err) }

// Connect is shorthand for New(ErrConnect, ...).
func Connect(op, target string, err error) error { return New(ErrConnect, op, target, err) }

// IO is shorthand for New(ErrIO, ...).
func IO(op, target string, err error) error { return New(ErrIO, op, target, err) }

// Class returns a short label for the class of err, used in logs and metrics.
func Class(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrDiscovery):
		return "discovery"
	case errors.Is(err, ErrConnect):
		return "connect"
	case errors.Is(err, ErrDecode):
		return "decode"
	case errors.Is(err, ErrIO):
		return "io"
	case errors.Is(err, ErrBusClosed):
		return "bus"
	default:
		return "unknown"
	}
}
