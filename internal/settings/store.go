package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/config"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/database"
)

// Setting keys in the settings table.
const (
	keyAlertsEnabled    = "alerts.enabled"
	keyAlertTemperature = "alerts.temperature"
	keyAlertHumidity    = "alerts.humidity"
	keyAlertIlluminance = "alerts.illuminance"
	keyMQTTHost         = "mqtt.host"
	keyMQTTPort         = "mqtt.port"
	keyMQTTUsername     = "mqtt.username"
	keyMQTTPassword     = "mqtt.password"
)

// floatFormatPrecision stores floats with the fewest digits that round-trip.
const floatFormatPrecision = -1

// Credentials are the broker address and login last used to connect.
type Credentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
}

// Defaults are returned for values that were never saved.
type Defaults struct {
	Thresholds    alert.Thresholds
	AlertsEnabled bool
}

// DefaultsFromConfig takes the defaults from the alerts section.
func DefaultsFromConfig(cfg config.AlertsConfig) Defaults {
	return Defaults{
		Thresholds: alert.Thresholds{
			Temperature: cfg.Temperature,
			Humidity:    cfg.Humidity,
			Illuminance: cfg.Illuminance,
		},
		AlertsEnabled: cfg.Enabled,
	}
}

// Store reads and writes settings in the settings database.
//
// Thresholds and the alerts flag are read on every sensor update, so
// they are cached after the first load and refreshed on every write
// through this Store.
type Store struct {
	db       *database.DB
	defaults Defaults
	now      func() time.Time

	mu            sync.RWMutex
	thresholds    *alert.Thresholds
	alertsEnabled *bool
}

// New creates a Store on a migrated database.
func New(db *database.DB, defaults Defaults) *Store {
	return &Store{db: db, defaults: defaults, now: time.Now}
}

// DeviceName returns the saved display name of a device.
func (s *Store) DeviceName(ctx context.Context, id string) (string, bool, error) {
	var name string
	err := s.db.QueryRowContext(ctx, "SELECT name FROM device_names WHERE device_id = ?", id).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("loading device name: %w", err)
	}
	return name, true, nil
}

// SetDeviceName saves the display name of a device.
func (s *Store) SetDeviceName(ctx context.Context, id, name string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO device_names (device_id, name, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		id, name, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("saving device name: %w", err)
	}
	return nil
}

// DeviceNames returns every saved name keyed by device ID.
func (s *Store) DeviceNames(ctx context.Context) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT device_id, name FROM device_names")
	if err != nil {
		return nil, fmt.Errorf("loading device names: %w", err)
	}
	defer rows.Close()

	names := make(map[string]string)
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("scanning device name: %w", err)
		}
		names[id] = name
	}
	return names, rows.Err()
}

// Thresholds returns the alert limits.
func (s *Store) Thresholds(ctx context.Context) (alert.Thresholds, error) {
	s.mu.RLock()
	cached := s.thresholds
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	values, err := s.values(ctx, keyAlertTemperature, keyAlertHumidity, keyAlertIlluminance)
	if err != nil {
		return s.defaults.Thresholds, err
	}

	t := s.defaults.Thresholds
	if v, ok := values[keyAlertTemperature]; ok {
		if t.Temperature, err = parseFloat(keyAlertTemperature, v); err != nil {
			return s.defaults.Thresholds, err
		}
	}
	if v, ok := values[keyAlertHumidity]; ok {
		if t.Humidity, err = parseFloat(keyAlertHumidity, v); err != nil {
			return s.defaults.Thresholds, err
		}
	}
	if v, ok := values[keyAlertIlluminance]; ok {
		if t.Illuminance, err = parseInt(keyAlertIlluminance, v); err != nil {
			return s.defaults.Thresholds, err
		}
	}

	s.mu.Lock()
	s.thresholds = &t
	s.mu.Unlock()
	return t, nil
}

// SetThresholds validates and saves the alert limits.
func (s *Store) SetThresholds(ctx context.Context, t alert.Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}

	err := s.put(ctx, map[string]string{
		keyAlertTemperature: strconv.FormatFloat(t.Temperature, 'f', floatFormatPrecision, 64),
		keyAlertHumidity:    strconv.FormatFloat(t.Humidity, 'f', floatFormatPrecision, 64),
		keyAlertIlluminance: strconv.Itoa(t.Illuminance),
	})
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.thresholds = &t
	s.mu.Unlock()
	return nil
}

// AlertsEnabled reports whether alerts are delivered.
func (s *Store) AlertsEnabled(ctx context.Context) (bool, error) {
	s.mu.RLock()
	cached := s.alertsEnabled
	s.mu.RUnlock()
	if cached != nil {
		return *cached, nil
	}

	values, err := s.values(ctx, keyAlertsEnabled)
	if err != nil {
		return s.defaults.AlertsEnabled, err
	}

	enabled := s.defaults.AlertsEnabled
	if v, ok := values[keyAlertsEnabled]; ok {
		if enabled, err = strconv.ParseBool(v); err != nil {
			return s.defaults.AlertsEnabled, fmt.Errorf("%w: %s", ErrCorruptValue, keyAlertsEnabled)
		}
	}

	s.mu.Lock()
	s.alertsEnabled = &enabled
	s.mu.Unlock()
	return enabled, nil
}

// SetAlertsEnabled saves the alerts flag.
func (s *Store) SetAlertsEnabled(ctx context.Context, enabled bool) error {
	if err := s.put(ctx, map[string]string{keyAlertsEnabled: strconv.FormatBool(enabled)}); err != nil {
		return err
	}
	s.mu.Lock()
	s.alertsEnabled = &enabled
	s.mu.Unlock()
	return nil
}

// Credentials returns the last saved broker credentials. ok is false when
// none were saved.
func (s *Store) Credentials(ctx context.Context) (Credentials, bool, error) {
	values, err := s.values(ctx, keyMQTTHost, keyMQTTPort, keyMQTTUsername, keyMQTTPassword)
	if err != nil {
		return Credentials{}, false, err
	}
	host, ok := values[keyMQTTHost]
	if !ok {
		return Credentials{}, false, nil
	}

	c := Credentials{
		Host:     host,
		Username: values[keyMQTTUsername],
		Password: values[keyMQTTPassword],
	}
	if v, ok := values[keyMQTTPort]; ok {
		if c.Port, err = parseInt(keyMQTTPort, v); err != nil {
			return Credentials{}, false, err
		}
	}
	return c, true, nil
}

// SaveCredentials stores the broker credentials.
func (s *Store) SaveCredentials(ctx context.Context, c Credentials) error {
	if c.Host == "" || c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("%w: host %q port %d", ErrInvalidCredentials, c.Host, c.Port)
	}
	return s.put(ctx, map[string]string{
		keyMQTTHost:     c.Host,
		keyMQTTPort:     strconv.Itoa(c.Port),
		keyMQTTUsername: c.Username,
		keyMQTTPassword: c.Password,
	})
}

// values loads the given keys; missing keys are absent from the map.
func (s *Store) values(ctx context.Context, keys ...string) (map[string]string, error) {
	values := make(map[string]string, len(keys))
	for _, key := range keys {
		var v string
		err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("loading setting %s: %w", key, err)
		}
		values[key] = v
	}
	return values, nil
}

// put upserts all values in one transaction.
func (s *Store) put(ctx context.Context, values map[string]string) error {
	ts := s.now().UnixMilli()
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for key, value := range values {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
				ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				key, value, ts,
			); err != nil {
				return fmt.Errorf("saving setting %s: %w", key, err)
			}
		}
		return nil
	})
}

func parseFloat(key, v string) (float64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrCorruptValue, key)
	}
	return f, nil
}

func parseInt(key, v string) (int, error) {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrCorruptValue, key)
	}
	return n, nil
}
