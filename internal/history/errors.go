package history

import "errors"

var (
	// ErrUnavailable is returned when the store could not be read.
	// The accompanying record slice is always empty.
	ErrUnavailable = errors.New("history: unavailable")

	// ErrInvalidDeviceID is returned for an empty device ID.
	ErrInvalidDeviceID = errors.New("history: invalid device id")

	// ErrInvalidWindow is returned by ParseWindow for unusable input.
	ErrInvalidWindow = errors.New("history: invalid window")
)
