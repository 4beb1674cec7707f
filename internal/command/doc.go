// Package command builds and publishes correlated control commands for
// room controllers.
//
// Every command is published as
//
//	{"id":"app_007","command":"set_device","params":{"device":"light","state":1}}
//
// to <namespace>/<deviceId>/command with QoS 1, not retained. The id comes
// from a process-local counter and restarts at app_001 with the process.
//
// Parameters are a closed set of types (SetActuator, SetAllActuators,
// SetMode, SetInterval, Reboot), so only well-formed payloads reach the
// wire. Send returns once the publish is submitted; delivery failures are
// reported by the transport, not by Send, and are not matched back to the
// id.
package command
