// Package message decodes raw broker publications into device events.
//
// Topics follow <namespace>/<deviceId>/<kind>. The kind selects the
// payload schema:
//
//	state  {"light":1,"fan":0,"ac":1,"mode":0,"interval":30}  -> device.ActuatorUpdate
//	data   {"temperature":23.4,"humidity":41,"light":310}      -> device.SensorUpdate
//	info   {"ip":"…","ssid":"…","firmware":"…","mac":"…"}      -> device.InfoUpdate
//
// Every field is optional. Fields that are missing or carry an unusable
// type are reported as absent, so partial payloads update only what they
// carry. Anything that cannot produce an event returns an error wrapping
// ErrNoEvent; decoding never panics.
package message
