package command

import "errors"

var (
	// ErrNotConnected is returned when the transport is not connected.
	// Nothing is published and the correlation counter is not advanced.
	ErrNotConnected = errors.New("command: not connected")

	// ErrInvalidDeviceID is returned for empty, reserved or multi-level IDs.
	ErrInvalidDeviceID = errors.New("command: invalid device id")

	// ErrInvalidParams is returned when parameters are out of range.
	ErrInvalidParams = errors.New("command: invalid parameters")
)
