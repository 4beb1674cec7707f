package message

import (
	"errors"
	"fmt"
)

// ErrNoEvent is wrapped by every decode failure. Callers drop the message
// and may log the error as a diagnostic.
var ErrNoEvent = errors.New("message: no event")

var (
	// ErrUnrecognizedTopic is returned for topics that do not have exactly
	// three non-empty levels.
	ErrUnrecognizedTopic = fmt.Errorf("%w: unrecognized topic", ErrNoEvent)

	// ErrNamespaceMismatch is returned when the first topic level is not the
	// configured namespace.
	ErrNamespaceMismatch = fmt.Errorf("%w: namespace mismatch", ErrNoEvent)

	// ErrReservedDevice is returned for the app's own status channel.
	ErrReservedDevice = fmt.Errorf("%w: reserved device id", ErrNoEvent)

	// ErrUnknownKind is returned when the last topic level is not state,
	// data or info.
	ErrUnknownKind = fmt.Errorf("%w: unknown message kind", ErrNoEvent)

	// ErrMalformedPayload is returned when the payload is not a JSON object.
	ErrMalformedPayload = fmt.Errorf("%w: malformed payload", ErrNoEvent)
)
