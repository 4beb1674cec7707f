package command

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/nerrad567/roomlink-core/internal/infrastructure/mqtt"
)

// qosAtLeastOnce is the delivery level for commands.
const qosAtLeastOnce = 1

// Publisher is the transport used by the Dispatcher. *mqtt.Client
// satisfies it.
type Publisher interface {
	IsConnected() bool
	PublishAsync(topic string, payload []byte, qos byte, retained bool) error
}

// Logger defines the logging interface used by the Dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Envelope is the wire shape of a command.
type Envelope struct {
	ID      string `json:"id"`
	Command string `json:"command"`
	Params  Params `json:"params"`
}

// Dispatcher publishes commands to room controllers.
//
// Thread Safety:
//   - All methods are safe for concurrent use. Correlation IDs are unique
//     for the lifetime of the process.
type Dispatcher struct {
	pub     Publisher
	topics  mqtt.Topics
	counter atomic.Uint64
	logger  Logger
}

// NewDispatcher creates a dispatcher publishing under namespace.
func NewDispatcher(pub Publisher, namespace string) *Dispatcher {
	return &Dispatcher{
		pub:    pub,
		topics: mqtt.Topics{Namespace: namespace},
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// Send publishes params to deviceID and returns the correlation ID
// embedded in the envelope.
//
// Preconditions are checked before the counter advances: an invalid
// device, invalid parameters or a disconnected transport publish nothing
// and consume no ID.
//
// Returns:
//   - string: correlation ID, e.g. "app_001"
//   - error: ErrNotConnected, ErrInvalidDeviceID, ErrInvalidParams, or a
//     wrapped transport submission error
func (d *Dispatcher) Send(deviceID string, params Params) (string, error) {
	if err := validateDeviceID(deviceID); err != nil {
		return "", err
	}
	if params == nil {
		return "", fmt.Errorf("%w: missing parameters", ErrInvalidParams)
	}
	if err := params.validate(); err != nil {
		return "", err
	}
	if !d.pub.IsConnected() {
		return "", ErrNotConnected
	}

	env := Envelope{
		ID:      d.nextID(),
		Command: params.Name(),
		Params:  params,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return "", fmt.Errorf("encoding command: %w", err)
	}

	topic := d.topics.Command(deviceID)
	if err := d.pub.PublishAsync(topic, payload, qosAtLeastOnce, false); err != nil {
		if errors.Is(err, mqtt.ErrNotConnected) {
			return "", ErrNotConnected
		}
		return "", fmt.Errorf("submitting command: %w", err)
	}

	d.logger.Debug("command submitted", "device_id", deviceID, "command", env.Command, "id", env.ID)
	return env.ID, nil
}

// nextID advances the process-local counter and formats it as app_NNN.
func (d *Dispatcher) nextID() string {
	return fmt.Sprintf("app_%03d", d.counter.Add(1))
}

// SetActuator switches one actuator of deviceID.
func (d *Dispatcher) SetActuator(deviceID string, actuator Actuator, on bool) (string, error) {
	return d.Send(deviceID, SetActuator{Actuator: actuator, On: on})
}

// SetAllActuators switches light, fan and AC of deviceID together.
func (d *Dispatcher) SetAllActuators(deviceID string, light, fan, ac bool) (string, error) {
	return d.Send(deviceID, SetAllActuators{Light: light, Fan: fan, AC: ac})
}

// SetMasterMode switches master mode of deviceID.
func (d *Dispatcher) SetMasterMode(deviceID string, on bool) (string, error) {
	return d.Send(deviceID, SetMode{Master: on})
}

// SetSamplingInterval clamps seconds to [MinInterval, MaxInterval] and
// sends the result.
func (d *Dispatcher) SetSamplingInterval(deviceID string, seconds int) (string, error) {
	return d.Send(deviceID, SetInterval{Seconds: ClampInterval(seconds)})
}

// Reboot restarts deviceID.
func (d *Dispatcher) Reboot(deviceID string) (string, error) {
	return d.Send(deviceID, Reboot{})
}

// validateDeviceID rejects IDs that would not address a single device topic.
func validateDeviceID(id string) error {
	if id == "" || id == mqtt.ReservedDeviceID || strings.ContainsAny(id, "/+#") {
		return fmt.Errorf("%w: %q", ErrInvalidDeviceID, id)
	}
	return nil
}
