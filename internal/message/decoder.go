package message

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/nerrad567/roomlink-core/internal/device"
	"github.com/nerrad567/roomlink-core/internal/infrastructure/mqtt"
)

// topicLevels is the exact number of levels in a device topic.
const topicLevels = 3

// Decoder turns (topic, payload) pairs into device events for one namespace.
// A Decoder is stateless and safe for concurrent use.
type Decoder struct {
	namespace string
}

// NewDecoder creates a decoder accepting topics under namespace.
func NewDecoder(namespace string) *Decoder {
	return &Decoder{namespace: namespace}
}

// Decode parses one publication into at most one event.
//
// Returns:
//   - device.Event: the decoded update, nil on error
//   - error: wraps ErrNoEvent when the message carries no applicable update
func (d *Decoder) Decode(topic string, payload []byte) (device.Event, error) {
	id, kind, err := d.parseTopic(topic)
	if err != nil {
		return nil, err
	}

	switch kind {
	case mqtt.KindState, mqtt.KindData, mqtt.KindInfo:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	fields, err := parseObject(payload)
	if err != nil {
		return nil, err
	}

	switch kind {
	case mqtt.KindData:
		return decodeSensors(id, fields), nil
	case mqtt.KindState:
		return decodeActuators(id, fields), nil
	default:
		return decodeInfo(id, fields), nil
	}
}

// parseTopic splits and validates <namespace>/<deviceId>/<kind>.
func (d *Decoder) parseTopic(topic string) (id, kind string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != topicLevels || parts[1] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrUnrecognizedTopic, topic)
	}
	if parts[0] != d.namespace {
		return "", "", fmt.Errorf("%w: %q", ErrNamespaceMismatch, parts[0])
	}
	if parts[1] == mqtt.ReservedDeviceID {
		return "", "", ErrReservedDevice
	}
	return parts[1], parts[2], nil
}

// parseObject decodes a JSON object payload.
func parseObject(payload []byte) (map[string]any, error) {
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: not an object", ErrMalformedPayload)
	}
	return fields, nil
}

func decodeSensors(id string, fields map[string]any) device.SensorUpdate {
	u := device.SensorUpdate{ID: id}
	if v, ok := number(fields["temperature"]); ok {
		u.Sensors.Temperature = v
		u.Present |= device.FieldTemperature
	}
	if v, ok := number(fields["humidity"]); ok {
		u.Sensors.Humidity = v
		u.Present |= device.FieldHumidity
	}
	if v, ok := integer(fields["light"]); ok {
		u.Sensors.Illuminance = v
		u.Present |= device.FieldIlluminance
	}
	return u
}

func decodeActuators(id string, fields map[string]any) device.ActuatorUpdate {
	u := device.ActuatorUpdate{ID: id}
	toggles := []struct {
		key   string
		field device.Field
		dst   *bool
	}{
		{"light", device.FieldLight, &u.Actuators.Light},
		{"fan", device.FieldFan, &u.Actuators.Fan},
		{"ac", device.FieldAC, &u.Actuators.AC},
		{"mode", device.FieldMasterMode, &u.Actuators.MasterMode},
	}
	for _, t := range toggles {
		if v, ok := integer(fields[t.key]); ok {
			*t.dst = v != 0
			u.Present |= t.field
		}
	}
	if v, ok := integer(fields["interval"]); ok {
		u.Actuators.SamplingInterval = v
		u.Present |= device.FieldSamplingInterval
	}
	return u
}

func decodeInfo(id string, fields map[string]any) device.InfoUpdate {
	u := device.InfoUpdate{ID: id}
	texts := []struct {
		key   string
		field device.Field
		dst   *string
	}{
		{"ip", device.FieldIP, &u.Info.IP},
		{"ssid", device.FieldSSID, &u.Info.SSID},
		{"firmware", device.FieldFirmware, &u.Info.Firmware},
		{"mac", device.FieldMAC, &u.Info.MAC},
	}
	for _, t := range texts {
		if v, ok := fields[t.key].(string); ok {
			*t.dst = v
			u.Present |= t.field
		}
	}
	return u
}

// number accepts JSON numbers, booleans and numeric strings. Firmware
// builds differ in how they encode values, so all three are seen on the wire.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n) && !math.IsInf(n, 0)
	case bool:
		if n {
			return 1, true
		}
		return 0, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

// integer is number rounded to the nearest int, rejecting values outside
// the int32 range.
func integer(v any) (int, bool) {
	f, ok := number(v)
	if !ok || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}
