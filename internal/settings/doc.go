// Package settings persists RoomLink's local state in SQLite: saved
// device display names, alert thresholds, the alerts-enabled flag and the
// last-used broker credentials.
//
// Values that were never saved fall back to the defaults taken from
// config.yaml, so a fresh install behaves exactly as configured.
//
// Store implements device.NameStore and is safe for concurrent use.
package settings
