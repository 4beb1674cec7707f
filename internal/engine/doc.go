// Package engine runs the inbound pipeline of RoomLink.
//
// A single goroutine consumes the transport's message stream and
// connection events. Each message is decoded, applied to the device
// registry and, for sensor readings, checked against the alert
// thresholds. Results are broadcast to live-view clients.
//
// Because one goroutine applies every message, updates for a device are
// applied in arrival order.
package engine
