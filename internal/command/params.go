package command

import (
	"encoding/json"
	"fmt"
)

// Command names understood by the firmware.
const (
	NameSetDevice   = "set_device"
	NameSetAll      = "set_all"
	NameSetMode     = "set_mode"
	NameSetInterval = "set_interval"
	NameReboot      = "reboot"
)

// Sampling interval bounds in seconds.
const (
	MinInterval = 5
	MaxInterval = 3600
)

// Actuator names one switchable output of a room controller.
type Actuator string

const (
	ActuatorLight Actuator = "light"
	ActuatorFan   Actuator = "fan"
	ActuatorAC    Actuator = "ac"
)

// ParseActuator validates an actuator name.
func ParseActuator(s string) (Actuator, error) {
	switch a := Actuator(s); a {
	case ActuatorLight, ActuatorFan, ActuatorAC:
		return a, nil
	default:
		return "", fmt.Errorf("%w: unknown actuator %q", ErrInvalidParams, s)
	}
}

// Params is the parameter object of one command. Implementations are
// limited to the types in this package.
type Params interface {
	// Name returns the command name sent alongside the parameters.
	Name() string
	validate() error
}

// SetActuator switches one actuator.
type SetActuator struct {
	Actuator Actuator
	On       bool
}

// SetAllActuators switches light, fan and AC in one command.
type SetAllActuators struct {
	Light bool
	Fan   bool
	AC    bool
}

// SetMode switches master (automatic) mode.
type SetMode struct {
	Master bool
}

// SetInterval sets the sensor sampling interval in seconds. Seconds must
// already be within [MinInterval, MaxInterval]; see ClampInterval.
type SetInterval struct {
	Seconds int
}

// Reboot restarts the controller. It carries no parameters.
type Reboot struct{}

func (SetActuator) Name() string     { return NameSetDevice }
func (SetAllActuators) Name() string { return NameSetAll }
func (SetMode) Name() string         { return NameSetMode }
func (SetInterval) Name() string     { return NameSetInterval }
func (Reboot) Name() string          { return NameReboot }

func (p SetActuator) validate() error {
	_, err := ParseActuator(string(p.Actuator))
	return err
}

func (SetAllActuators) validate() error { return nil }
func (SetMode) validate() error         { return nil }
func (Reboot) validate() error          { return nil }

func (p SetInterval) validate() error {
	if p.Seconds < MinInterval || p.Seconds > MaxInterval {
		return fmt.Errorf("%w: interval %d outside [%d, %d]", ErrInvalidParams, p.Seconds, MinInterval, MaxInterval)
	}
	return nil
}

// MarshalJSON encodes {"device":"light","state":1}.
func (p SetActuator) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Device string `json:"device"`
		State  int    `json:"state"`
	}{string(p.Actuator), flag(p.On)})
}

// MarshalJSON encodes {"light":1,"fan":0,"ac":1}.
func (p SetAllActuators) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Light int `json:"light"`
		Fan   int `json:"fan"`
		AC    int `json:"ac"`
	}{flag(p.Light), flag(p.Fan), flag(p.AC)})
}

// MarshalJSON encodes {"mode":1}.
func (p SetMode) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Mode int `json:"mode"`
	}{flag(p.Master)})
}

// MarshalJSON encodes {"interval":30}.
func (p SetInterval) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Interval int `json:"interval"`
	}{p.Seconds})
}

// MarshalJSON encodes {}.
func (Reboot) MarshalJSON() ([]byte, error) {
	return []byte("{}"), nil
}

// ClampInterval limits seconds to [MinInterval, MaxInterval].
func ClampInterval(seconds int) int {
	return min(max(seconds, MinInterval), MaxInterval)
}

func flag(on bool) int {
	if on {
		return 1
	}
	return 0
}
