// Package mqtt provides MQTT client connectivity for RoomLink Core.
//
// This package manages:
//   - Connection to the broker with TLS and auto-reconnect
//   - Message publishing, both acknowledged and submit-only
//   - Topic subscriptions delivered as ordered channels
//   - Last Will and Testament (LWT) for offline detection
//   - Connection status reported as a channel of events
//
// # Architecture
//
// Room controllers publish state, sensor data and info under
// <namespace>/<deviceId>/<kind> and receive commands on
// <namespace>/<deviceId>/command. The app announces itself on
// <namespace>/app/status with retained "online"/"offline" payloads; the
// broker publishes "offline" via the LWT if the app drops unexpectedly.
//
//	Room controllers ↔ MQTT Broker ↔ RoomLink Core
//
// # Security Considerations
//
//   - TLS is enabled by default (cfg.Broker.TLS=true, TLS 1.2 minimum)
//   - Credentials are validated against broker ACL
//   - Message payloads are not encrypted beyond TLS transport
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	msgs, err := client.Stream(client.Topics().All(), 1)
//	status := client.ConnectionEvents()
//
//	// Commands are submitted without waiting for the broker ack.
//	client.PublishAsync(client.Topics().Command("living_room"), payload, 1, false)
package mqtt
