// Package kerrors declares the sentinel error values shared across the
// kernel. Callers wrap these with fmt.Errorf("...: %w", err) and check
// them with errors.Is rather than comparing strings.
package kerrors

import "errors"

var (
	// ErrInvalidConfig is returned when a loaded configuration fails
	// structural or cross-reference validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrUnknownDevice is returned when an operation names a device that
	// is not registered in the State Fabric.
	ErrUnknownDevice = errors.New("unknown device")

	// ErrDuplicateDevice is returned when registering a device name that
	// already exists.
	ErrDuplicateDevice = errors.New("duplicate device")

	// ErrTypeMismatch is returned when a memory-map access targets a
	// value of the wrong address space or width.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrTopologyInvalid is returned when a network/membership reference
	// in the configuration does not resolve.
	ErrTopologyInvalid = errors.New("invalid network topology")

	// ErrBindFailed is returned when a protocol listener cannot bind its
	// configured host:port.
	ErrBindFailed = errors.New("listener bind failed")

	// ErrProtocolError is returned for malformed or policy-violating
	// wire traffic (bad MBAP length, unit-id mismatch, short frame).
	ErrProtocolError = errors.New("protocol error")

	// ErrDeviceFaulted is returned when an operation targets a device
	// that is marked offline or faulted.
	ErrDeviceFaulted = errors.New("device faulted")

	// ErrInvalidMode is returned when a clock operation is invalid for
	// the clock's current mode (e.g. Step while not Stepped).
	ErrInvalidMode = errors.New("invalid clock mode")
)
