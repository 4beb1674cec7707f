package api

import (
	"net/http"
	"runtime"
	"time"

	"github.com/nerrad567/roomlink-core/internal/engine"
)

// SystemStatus is the body of GET /status.
type SystemStatus struct {
	Timestamp     string         `json:"timestamp"`
	Version       string         `json:"version"`
	UptimeSeconds int64          `json:"uptime_seconds"`
	Connection    *engine.Status `json:"connection,omitempty"`
	Messages      *engine.Stats  `json:"messages,omitempty"`
	Devices       DeviceCounts   `json:"devices"`
	WebSocket     WSMetrics      `json:"websocket"`
	Runtime       RuntimeMetrics `json:"runtime"`
}

// DeviceCounts summarises the registry.
type DeviceCounts struct {
	Total int `json:"total"`
	Stale int `json:"stale"`
}

// WSMetrics contains WebSocket hub statistics.
type WSMetrics struct {
	ConnectedClients int `json:"connected_clients"`
}

// RuntimeMetrics contains Go runtime statistics.
type RuntimeMetrics struct {
	Goroutines    int     `json:"goroutines"`
	MemoryAllocMB float64 `json:"memory_alloc_mb"`
	NumGC         uint32  `json:"num_gc"`
}

// handleStatus reports broker connectivity, message counters and device
// counts.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	now := s.now()
	status := SystemStatus{
		Timestamp:     now.UTC().Format(time.RFC3339),
		Version:       s.version,
		UptimeSeconds: int64(now.Sub(s.startTime).Seconds()),
		Devices: DeviceCounts{
			Total: s.registry.Len(),
			Stale: len(s.registry.Stale(now, s.staleAfter)),
		},
		WebSocket: WSMetrics{ConnectedClients: s.hub.ClientCount()},
		Runtime: RuntimeMetrics{
			Goroutines:    runtime.NumGoroutine(),
			MemoryAllocMB: float64(memStats.Alloc) / 1024 / 1024,
			NumGC:         memStats.NumGC,
		},
	}

	if s.status != nil {
		conn := s.status.Status()
		stats := s.status.Stats()
		status.Connection = &conn
		status.Messages = &stats
	}

	writeJSON(w, http.StatusOK, status)
}
