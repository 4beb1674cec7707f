// Package alert compares sensor readings against configured limits.
//
// Evaluation is stateless: every reading above a limit produces an alert,
// including consecutive readings that stay above it. Whether alerts are
// delivered to a person is decided by the caller.
package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/roomlink-core/internal/device"
)

// Metric names carried in alert events.
const (
	MetricTemperature = "Temperature"
	MetricHumidity    = "Humidity"
	MetricIlluminance = "Illuminance"
)

// Thresholds holds one upper limit per metric.
type Thresholds struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Illuminance int     `json:"illuminance"`
}

// ErrInvalidThresholds is returned by Validate for negative limits.
var ErrInvalidThresholds = errors.New("alert: thresholds must not be negative")

// Validate checks that every limit is non-negative.
func (t Thresholds) Validate() error {
	if t.Temperature < 0 || t.Humidity < 0 || t.Illuminance < 0 {
		return ErrInvalidThresholds
	}
	return nil
}

// Event is one metric exceeding its limit on one reading.
type Event struct {
	DeviceID       string    `json:"device_id,omitempty"`
	DeviceName     string    `json:"device_name"`
	Metric         string    `json:"metric"`
	Value          float64   `json:"value"`
	Limit          float64   `json:"limit"`
	FormattedValue string    `json:"formatted_value"`
	FormattedLimit string    `json:"formatted_limit"`
	At             time.Time `json:"at"`
}

// Message renders the event as a single notification line.
func (e Event) Message() string {
	return fmt.Sprintf("%s: %s %s exceeds limit %s", e.DeviceName, e.Metric, e.FormattedValue, e.FormattedLimit)
}

// Evaluate returns one event per metric of next that is strictly greater
// than its limit. A reading equal to the limit does not alert.
//
// previous is not consulted: there is no hysteresis, so a reading above
// the limit alerts regardless of what came before it.
func Evaluate(previous, next device.Sensors, deviceName string, cfg Thresholds) []Event {
	_ = previous

	var events []Event
	now := time.Now()

	if next.Temperature > cfg.Temperature {
		events = append(events, Event{
			DeviceName:     deviceName,
			Metric:         MetricTemperature,
			Value:          next.Temperature,
			Limit:          cfg.Temperature,
			FormattedValue: formatTemperature(next.Temperature),
			FormattedLimit: formatTemperature(cfg.Temperature),
			At:             now,
		})
	}

	if next.Humidity > cfg.Humidity {
		events = append(events, Event{
			DeviceName:     deviceName,
			Metric:         MetricHumidity,
			Value:          next.Humidity,
			Limit:          cfg.Humidity,
			FormattedValue: formatHumidity(next.Humidity),
			FormattedLimit: formatHumidity(cfg.Humidity),
			At:             now,
		})
	}

	if next.Illuminance > cfg.Illuminance {
		events = append(events, Event{
			DeviceName:     deviceName,
			Metric:         MetricIlluminance,
			Value:          float64(next.Illuminance),
			Limit:          float64(cfg.Illuminance),
			FormattedValue: formatIlluminance(next.Illuminance),
			FormattedLimit: formatIlluminance(cfg.Illuminance),
			At:             now,
		})
	}

	return events
}

// metricFields maps each metric to the payload field that carries it.
var metricFields = map[string]device.Field{
	MetricTemperature: device.FieldTemperature,
	MetricHumidity:    device.FieldHumidity,
	MetricIlluminance: device.FieldIlluminance,
}

// EvaluateChange evaluates the sensors of an applied change and tags the
// events with the device ID. Only metrics carried by the event are
// considered; values kept from earlier readings never alert again.
func EvaluateChange(change device.Change, cfg Thresholds) []Event {
	all := Evaluate(change.Previous.Sensors, change.Current.Sensors, change.Current.Name, cfg)
	events := all[:0]
	for _, ev := range all {
		if !change.Fields.Has(metricFields[ev.Metric]) {
			continue
		}
		ev.DeviceID = change.Current.ID
		events = append(events, ev)
	}
	return events
}

func formatTemperature(v float64) string { return fmt.Sprintf("%.1f°C", v) }
func formatHumidity(v float64) string    { return fmt.Sprintf("%.1f%%", v) }
func formatIlluminance(v int) string     { return fmt.Sprintf("%d lx", v) }

// Notifier delivers alert events to a person or another system.
type Notifier interface {
	Notify(ctx context.Context, events []Event) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, events []Event) error

// Notify calls f.
func (f NotifierFunc) Notify(ctx context.Context, events []Event) error {
	return f(ctx, events)
}

// Notifiers fans events out to several notifiers. Every notifier is
// called; their errors are joined.
type Notifiers []Notifier

// Notify delivers events to each notifier in order.
func (ns Notifiers) Notify(ctx context.Context, events []Event) error {
	var errs []error
	for _, n := range ns {
		if err := n.Notify(ctx, events); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Logger is the subset of logging.Logger used by LogNotifier.
type Logger interface {
	Warn(msg string, args ...any)
}

// LogNotifier writes each alert as a warning log entry.
type LogNotifier struct {
	Logger Logger
}

// Notify logs every event.
func (n LogNotifier) Notify(_ context.Context, events []Event) error {
	for _, e := range events {
		n.Logger.Warn("threshold exceeded",
			"device_id", e.DeviceID,
			"device_name", e.DeviceName,
			"metric", e.Metric,
			"value", e.FormattedValue,
			"limit", e.FormattedLimit,
		)
	}
	return nil
}
