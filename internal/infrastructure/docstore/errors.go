package docstore

import "errors"

// Sentinel errors for document store operations.
//
// These errors can be checked using errors.Is() for specific handling:
//
//	if errors.Is(err, docstore.ErrRequestFailed) {
//	    // Show "history unavailable"
//	}
var (
	// ErrRequestFailed indicates the store could not be read.
	ErrRequestFailed = errors.New("docstore: request failed")

	// ErrNotConfigured indicates no store URL was configured.
	ErrNotConfigured = errors.New("docstore: url not configured")

	// ErrInvalidDeviceID indicates an empty device ID.
	ErrInvalidDeviceID = errors.New("docstore: invalid device id")
)
