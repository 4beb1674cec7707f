package device

import "time"

// Sensors is the latest sensor reading reported on a device's data topic.
type Sensors struct {
	Temperature float64 `json:"temperature"`
	Humidity    float64 `json:"humidity"`
	Illuminance int     `json:"illuminance"`
}

// Actuators is the latest actuator state reported on a device's state topic.
type Actuators struct {
	Light      bool `json:"light"`
	Fan        bool `json:"fan"`
	AC         bool `json:"ac"`
	MasterMode bool `json:"master_mode"`

	// SamplingInterval is the sensor publish period in seconds.
	SamplingInterval int `json:"sampling_interval"`
}

// Info is the network and firmware metadata reported on a device's info topic.
type Info struct {
	IP       string `json:"ip"`
	SSID     string `json:"ssid"`
	Firmware string `json:"firmware"`
	MAC      string `json:"mac"`
}

// Device is one room controller as last seen by the registry.
//
// Device holds no references, so a copy is fully independent of the
// registry's internal state.
type Device struct {
	// ID is the publisher-assigned identifier. It never changes.
	ID   string `json:"id"`
	Name string `json:"name"`

	Sensors   Sensors   `json:"sensors"`
	Actuators Actuators `json:"actuators"`
	Info      Info      `json:"info"`

	Connected bool `json:"connected"`

	// LastUpdate is Unix milliseconds of the last applied event. It strictly
	// increases across events for the same device.
	LastUpdate int64 `json:"last_update"`
}

// LastSeen returns LastUpdate as a time.
func (d Device) LastSeen() time.Time {
	return time.UnixMilli(d.LastUpdate)
}

// IsStale reports whether no event has been applied within after.
// The registry never acts on staleness; it is for presentation only.
func (d Device) IsStale(now time.Time, after time.Duration) bool {
	return now.Sub(d.LastSeen()) > after
}
