package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrInvalidName) {
//	    // reject the rename
//	}
var (
	// ErrInvalidName is returned when a display name is empty or too long.
	ErrInvalidName = errors.New("device: invalid name")

	// ErrInvalidID is returned when a device ID is empty or reserved.
	ErrInvalidID = errors.New("device: invalid id")
)
