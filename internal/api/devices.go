package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomlink-core/internal/device"
)

// deviceListResponse is the body of the device list endpoints.
type deviceListResponse struct {
	Devices []device.Device `json:"devices"`
	Count   int             `json:"count"`
}

// renameRequest is the body of PATCH /devices/{id}.
type renameRequest struct {
	Name *string `json:"name"`
}

// handleListDevices returns every known device in first-seen order.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.registry.Snapshot()
	writeJSON(w, http.StatusOK, deviceListResponse{Devices: devices, Count: len(devices)})
}

// handleListStaleDevices returns devices that have not reported recently.
//
// Query parameters:
//   - after: staleness window as a Go duration ("90s", "5m") or whole
//     seconds; defaults to the configured window
func (s *Server) handleListStaleDevices(w http.ResponseWriter, r *http.Request) {
	after := s.staleAfter
	if raw := r.URL.Query().Get("after"); raw != "" {
		d, err := parseStaleWindow(raw)
		if err != nil {
			writeBadRequest(w, "after must be a positive duration or number of seconds")
			return
		}
		after = d
	}

	devices := s.registry.Stale(s.now(), after)
	if devices == nil {
		devices = []device.Device{}
	}
	writeJSON(w, http.StatusOK, deviceListResponse{Devices: devices, Count: len(devices)})
}

// parseStaleWindow accepts either a Go duration or a whole number of seconds.
func parseStaleWindow(raw string) (time.Duration, error) {
	if secs, err := strconv.Atoi(raw); err == nil {
		if secs <= 0 {
			return 0, strconv.ErrRange
		}
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, strconv.ErrRange
	}
	return d, nil
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	dev, ok := s.registry.Get(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	writeJSON(w, http.StatusOK, dev)
}

// handleRenameDevice sets a device's display name.
//
// Renaming a device that has not reported yet is accepted; the name is
// saved and applied when it first appears.
func (s *Server) handleRenameDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Name == nil {
		writeBadRequest(w, "name is required")
		return
	}

	if err := s.registry.Rename(r.Context(), id, *req.Name); err != nil {
		switch {
		case errors.Is(err, device.ErrInvalidName):
			writeValidationError(w, fmt.Sprintf("name must be non-empty and at most %d characters", device.MaxNameLength))
		case errors.Is(err, device.ErrInvalidID):
			writeValidationError(w, "invalid device id")
		default:
			s.logger.Error("renaming device", "device_id", id, "error", err)
			writeInternalError(w, "failed to save device name")
		}
		return
	}

	if dev, ok := s.registry.Get(id); ok {
		writeJSON(w, http.StatusOK, dev)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "name": strings.TrimSpace(*req.Name)})
}
