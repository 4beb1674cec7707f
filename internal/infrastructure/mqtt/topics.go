package mqtt

import "strings"

// Message kinds carried in the third topic level.
const (
	KindState   = "state"
	KindData    = "data"
	KindInfo    = "info"
	KindCommand = "command"
	KindStatus  = "status"
)

// ReservedDeviceID is the device segment used for the app's own status
// channel. It never names a real device.
const ReservedDeviceID = "app"

// Topics provides builders for RoomLink MQTT topics.
// All topics follow <namespace>/<deviceId>/<kind>.
//
//	topics := mqtt.Topics{Namespace: "esp32"}
//	topics.Command("living_room") // "esp32/living_room/command"
type Topics struct {
	Namespace string
}

// All returns the wildcard subscription covering every device topic.
//
// Example: esp32/#
func (t Topics) All() string {
	return t.Namespace + "/#"
}

// AppStatus returns the app's own online/offline status topic.
//
// Example: esp32/app/status
func (t Topics) AppStatus() string {
	return t.Device(ReservedDeviceID, KindStatus)
}

// Command returns the topic commands for a device are published to.
//
// Example: esp32/living_room/command
func (t Topics) Command(deviceID string) string {
	return t.Device(deviceID, KindCommand)
}

// Device returns the topic for one message kind of one device.
//
// Example: esp32/living_room/data
func (t Topics) Device(deviceID, kind string) string {
	return strings.Join([]string{t.Namespace, deviceID, kind}, "/")
}
