package device

// Category identifies which part of a Device an event updates.
type Category int

const (
	CategorySensor Category = iota + 1
	CategoryActuator
	CategoryInfo
)

// String returns the category name used in logs and API payloads.
func (c Category) String() string {
	switch c {
	case CategorySensor:
		return "sensor"
	case CategoryActuator:
		return "actuator"
	case CategoryInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Field is a bitmask of payload fields carried by an event. Fields absent
// from the payload are left untouched when the event is applied.
type Field uint16

const (
	FieldTemperature Field = 1 << iota
	FieldHumidity
	FieldIlluminance
	FieldLight
	FieldFan
	FieldAC
	FieldMasterMode
	FieldSamplingInterval
	FieldIP
	FieldSSID
	FieldFirmware
	FieldMAC
)

// Has reports whether every field in f is set.
func (m Field) Has(f Field) bool {
	return m&f == f
}

// Event is a decoded inbound update scoped to one device. The set of
// implementations is closed: SensorUpdate, ActuatorUpdate and InfoUpdate.
type Event interface {
	DeviceID() string
	Category() Category
	Fields() Field
	apply(d *Device)
}

// SensorUpdate carries readings from a device's data topic.
type SensorUpdate struct {
	ID      string
	Sensors Sensors
	Present Field
}

// ActuatorUpdate carries actuator state from a device's state topic.
type ActuatorUpdate struct {
	ID        string
	Actuators Actuators
	Present   Field
}

// InfoUpdate carries metadata from a device's info topic.
type InfoUpdate struct {
	ID      string
	Info    Info
	Present Field
}

func (u SensorUpdate) DeviceID() string   { return u.ID }
func (u ActuatorUpdate) DeviceID() string { return u.ID }
func (u InfoUpdate) DeviceID() string     { return u.ID }

func (SensorUpdate) Category() Category   { return CategorySensor }
func (ActuatorUpdate) Category() Category { return CategoryActuator }
func (InfoUpdate) Category() Category     { return CategoryInfo }

func (u SensorUpdate) Fields() Field   { return u.Present }
func (u ActuatorUpdate) Fields() Field { return u.Present }
func (u InfoUpdate) Fields() Field     { return u.Present }

func (u SensorUpdate) apply(d *Device) {
	if u.Present.Has(FieldTemperature) {
		d.Sensors.Temperature = u.Sensors.Temperature
	}
	if u.Present.Has(FieldHumidity) {
		d.Sensors.Humidity = u.Sensors.Humidity
	}
	if u.Present.Has(FieldIlluminance) {
		d.Sensors.Illuminance = u.Sensors.Illuminance
	}
}

func (u ActuatorUpdate) apply(d *Device) {
	if u.Present.Has(FieldLight) {
		d.Actuators.Light = u.Actuators.Light
	}
	if u.Present.Has(FieldFan) {
		d.Actuators.Fan = u.Actuators.Fan
	}
	if u.Present.Has(FieldAC) {
		d.Actuators.AC = u.Actuators.AC
	}
	if u.Present.Has(FieldMasterMode) {
		d.Actuators.MasterMode = u.Actuators.MasterMode
	}
	if u.Present.Has(FieldSamplingInterval) {
		d.Actuators.SamplingInterval = u.Actuators.SamplingInterval
	}
}

func (u InfoUpdate) apply(d *Device) {
	if u.Present.Has(FieldIP) {
		d.Info.IP = u.Info.IP
	}
	if u.Present.Has(FieldSSID) {
		d.Info.SSID = u.Info.SSID
	}
	if u.Present.Has(FieldFirmware) {
		d.Info.Firmware = u.Info.Firmware
	}
	if u.Present.Has(FieldMAC) {
		d.Info.MAC = u.Info.MAC
	}
}
