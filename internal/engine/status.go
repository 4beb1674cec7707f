package engine

import (
	"time"

	"github.com/nerrad567/roomlink-core/internal/infrastructure/mqtt"
)

// ConnectionState is the broker connectivity shown to users.
type ConnectionState string

const (
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateDisconnected ConnectionState = "disconnected"
)

// Status is the current connection state and when it was entered.
type Status struct {
	State ConnectionState `json:"state"`
	// LastError describes the most recent connection loss, if any.
	LastError string    `json:"last_error,omitempty"`
	Since     time.Time `json:"since"`
}

// Status returns the current connection status.
func (e *Engine) Status() Status {
	e.statusMu.RLock()
	defer e.statusMu.RUnlock()
	return e.status
}

// HandleConnectionEvent records a connectivity change and broadcasts it.
// Reconnecting is left to the transport.
func (e *Engine) HandleConnectionEvent(ev mqtt.ConnectionEvent) {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	e.statusMu.Lock()
	next := Status{State: StateConnected, Since: at, LastError: e.status.LastError}
	if !ev.Connected {
		next.State = StateDisconnected
		if ev.Err != nil {
			next.LastError = ev.Err.Error()
		}
	}
	e.status = next
	e.statusMu.Unlock()

	if ev.Connected {
		e.logger.Info("broker connected")
	} else {
		e.logger.Warn("broker disconnected", "error", ev.Err)
	}

	if e.hub != nil {
		e.hub.Broadcast(ChannelConnectionStatus, next)
	}
}
