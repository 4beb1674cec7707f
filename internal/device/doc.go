// Package device provides the Device Registry for RoomLink Core.
//
// The registry is the authoritative in-memory view of every room
// controller seen on the broker. Decoded events (SensorUpdate,
// ActuatorUpdate, InfoUpdate) are applied one at a time; each applied event
// publishes a new immutable snapshot, so API handlers and the WebSocket hub
// read without locking and never see a half-applied update.
//
// # Key Types
//
//   - Device: sensors, actuators, info, connectivity and last-update time
//   - Event: the closed set of decoded updates, each scoped to one device
//   - Change: a device before and after one applied event
//   - NameStore: persistence for user-assigned display names
//
// # Usage
//
//	registry := device.NewRegistry(settingsStore)
//	registry.SetLogger(log)
//
//	change := registry.Apply(ctx, device.SensorUpdate{
//	    ID:      "living_room",
//	    Sensors: device.Sensors{Temperature: 23.5},
//	    Present: device.FieldTemperature,
//	})
//	fmt.Println(change.Current.Name) // "Living Room"
//
//	for _, d := range registry.Snapshot() {
//	    fmt.Println(d.ID, d.Sensors.Temperature)
//	}
//
// # Lifecycle
//
// Devices are created on first sighting and never removed. Staleness
// (see Device.IsStale and Registry.Stale) is reported, not enforced.
package device
