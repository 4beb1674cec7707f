package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/mqtt"
	"github.com/nerrad567/roomlink-core/internal/message"
)

// Broadcast channels used for live-view events.
const (
	ChannelDeviceUpdated    = "device.updated"
	ChannelAlertTriggered   = "alert.triggered"
	ChannelConnectionStatus = "connection.status"
)

// Diagnostics for dropped messages are rate limited so a misbehaving
// publisher cannot flood the log.
const (
	dropLogInterval = time.Second
	dropLogBurst    = 10
)

// Settings supplies the alert configuration. settings.Store satisfies it.
type Settings interface {
	Thresholds(ctx context.Context) (alert.Thresholds, error)
	AlertsEnabled(ctx context.Context) (bool, error)
}

// StaticSettings serves fixed alert settings, for running without a
// settings database.
type StaticSettings struct {
	Limits  alert.Thresholds
	Enabled bool
}

// Thresholds returns the fixed limits.
func (s StaticSettings) Thresholds(context.Context) (alert.Thresholds, error) {
	return s.Limits, nil
}

// AlertsEnabled returns the fixed flag.
func (s StaticSettings) AlertsEnabled(context.Context) (bool, error) {
	return s.Enabled, nil
}

// Recorder stores sensor readings for history. influxdb.Client satisfies it.
type Recorder interface {
	RecordReading(deviceID string, sensors device.Sensors, at time.Time)
}

// Hub is the interface for broadcasting live-view events.
type Hub interface {
	Broadcast(channel string, payload any)
}

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options wires an Engine. Decoder, Registry and Settings are required.
type Options struct {
	Decoder  *message.Decoder
	Registry *device.Registry
	Settings Settings
	// Notifier receives alerts while alerts are enabled. Optional.
	Notifier alert.Notifier
	// Recorder receives every sensor snapshot. Optional.
	Recorder Recorder
	// Hub receives live-view events. Optional.
	Hub    Hub
	Logger Logger
}

// Stats are cumulative message counters.
type Stats struct {
	Received uint64 `json:"received"`
	Applied  uint64 `json:"applied"`
	Dropped  uint64 `json:"dropped"`
	Ignored  uint64 `json:"ignored"` // the app's own status messages
	Alerts   uint64 `json:"alerts"`
}

// Engine consumes transport traffic and keeps the registry current.
//
// Thread Safety: Run must be called once. Stats and Status are safe for
// concurrent use.
type Engine struct {
	decoder  *message.Decoder
	registry *device.Registry
	settings Settings
	notifier alert.Notifier
	recorder Recorder
	hub      Hub
	logger   Logger

	dropLog *rate.Limiter

	received atomic.Uint64
	applied  atomic.Uint64
	dropped  atomic.Uint64
	ignored  atomic.Uint64
	alerts   atomic.Uint64

	statusMu sync.RWMutex
	status   Status
}

// New creates an Engine. The connection state starts as connecting.
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = noopLogger{}
	}
	return &Engine{
		decoder:  opts.Decoder,
		registry: opts.Registry,
		settings: opts.Settings,
		notifier: opts.Notifier,
		recorder: opts.Recorder,
		hub:      opts.Hub,
		logger:   logger,
		dropLog:  rate.NewLimiter(rate.Every(dropLogInterval), dropLogBurst),
		status:   Status{State: StateConnecting, Since: time.Now()},
	}
}

// Run processes messages and connection events until ctx is done or the
// message channel is closed. Both end the loop without error. status may
// be nil.
func (e *Engine) Run(ctx context.Context, messages <-chan mqtt.Message, status <-chan mqtt.ConnectionEvent) error {
	e.logger.Info("engine started")
	defer e.logger.Info("engine stopped")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-status:
			if !ok {
				status = nil
				continue
			}
			e.HandleConnectionEvent(ev)
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			e.HandleMessage(ctx, msg)
		}
	}
}

// HandleMessage runs one inbound message through the pipeline.
func (e *Engine) HandleMessage(ctx context.Context, msg mqtt.Message) {
	e.received.Add(1)

	ev, err := e.decoder.Decode(msg.Topic, msg.Payload)
	if err != nil {
		if errors.Is(err, message.ErrReservedDevice) {
			e.ignored.Add(1)
			return
		}
		e.dropped.Add(1)
		if e.dropLog.Allow() {
			e.logger.Debug("message dropped", "topic", msg.Topic, "error", err)
		}
		return
	}

	change := e.registry.Apply(ctx, ev)
	e.applied.Add(1)

	if ev.Category() == device.CategorySensor {
		e.handleReading(ctx, change)
	}

	if e.hub != nil {
		e.hub.Broadcast(ChannelDeviceUpdated, change.Current)
	}
}

// handleReading evaluates thresholds and records the new sensor snapshot.
func (e *Engine) handleReading(ctx context.Context, change device.Change) {
	current := change.Current

	if e.recorder != nil {
		e.recorder.RecordReading(current.ID, current.Sensors, time.UnixMilli(current.LastUpdate))
	}

	thresholds, err := e.settings.Thresholds(ctx)
	if err != nil {
		// Settings return their defaults alongside the error.
		e.logger.Warn("loading alert thresholds", "error", err)
	}

	events := alert.EvaluateChange(change, thresholds)
	if len(events) == 0 {
		return
	}
	e.alerts.Add(uint64(len(events)))

	enabled, err := e.settings.AlertsEnabled(ctx)
	if err != nil {
		e.logger.Warn("loading alerts flag", "error", err)
	}
	if !enabled {
		return
	}

	if e.notifier != nil {
		if err := e.notifier.Notify(ctx, events); err != nil {
			e.logger.Error("delivering alerts", "device_id", current.ID, "error", err)
		}
	}
	if e.hub != nil {
		for _, ev := range events {
			e.hub.Broadcast(ChannelAlertTriggered, ev)
		}
	}
}

// Stats returns the message counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Received: e.received.Load(),
		Applied:  e.applied.Load(),
		Dropped:  e.dropped.Load(),
		Ignored:  e.ignored.Load(),
		Alerts:   e.alerts.Load(),
	}
}
