// Package api implements the HTTP REST API and WebSocket server for RoomLink.
//
// This package provides:
//   - REST endpoints for devices, commands, sensor history, and alert settings
//   - WebSocket hub relaying device updates, alerts and connection status
//   - Bearer token verification with ticket-based WebSocket auth
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//   - TLS support for production deployments
//
// # Architecture
//
// The API server sits between user interfaces and the engine. Reads come
// from the device registry and the history aggregator; commands go out
// through the command dispatcher; the engine broadcasts through the same
// Hub the WebSocket clients are attached to.
//
// # Security
//
// Every route except /health requires an HS256 bearer token with a subject,
// issued by an external identity provider that shares the secret. WebSocket
// clients that cannot set headers exchange their token for a single-use
// ticket via POST /auth/ws-ticket.
//
// # Graceful Degradation
//
// While the broker is unreachable, reads and WebSocket connections keep
// working and command endpoints respond 503. A failing history store
// yields 503 with an empty record list.
package api
