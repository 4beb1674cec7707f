package settings

import (
	"errors"

	"github.com/nerrad567/roomlink-core/internal/alert"
)

var (
	// ErrCorruptValue is returned when a stored value cannot be parsed.
	ErrCorruptValue = errors.New("settings: corrupt stored value")

	// ErrInvalidCredentials is returned when credentials lack a host.
	ErrInvalidCredentials = errors.New("settings: invalid credentials")

	// ErrInvalidThresholds is returned by SetThresholds for negative limits.
	// It is the alert package's sentinel, so either name matches.
	ErrInvalidThresholds = alert.ErrInvalidThresholds
)
