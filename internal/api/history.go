package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomlink-core/internal/history"
)

// historyResponse is the body of GET /devices/{id}/history.
type historyResponse struct {
	DeviceID string           `json:"device_id"`
	Window   string           `json:"window"`
	Records  []history.Record `json:"records"`
	Count    int              `json:"count"`
	Error    string           `json:"error,omitempty"`
}

// handleDeviceHistory returns stored sensor readings for a device, oldest
// first.
//
// Query parameters:
//   - limit: number of latest entries to read from the store (default and
//     upper bound are configured)
//   - hours: only keep readings from the last N hours; absent or "all"
//     keeps everything read
//
// A store failure responds 503 with an empty record list so clients can
// render an empty chart.
func (s *Server) handleDeviceHistory(w http.ResponseWriter, r *http.Request) {
	deviceID := chi.URLParam(r, "id")
	query := r.URL.Query()

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	window, err := history.ParseWindow(query.Get("hours"))
	if err != nil {
		writeBadRequest(w, "hours must be a positive number of hours or \"all\"")
		return
	}

	records, err := s.history.FetchWindow(r.Context(), deviceID, limit, window)
	resp := historyResponse{
		DeviceID: deviceID,
		Window:   window.String(),
		Records:  records,
		Count:    len(records),
	}
	if resp.Records == nil {
		resp.Records = []history.Record{}
	}

	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, resp)
	case errors.Is(err, history.ErrInvalidDeviceID):
		writeValidationError(w, "invalid device id")
	case errors.Is(err, history.ErrUnavailable):
		s.logger.Warn("history unavailable", "device_id", deviceID, "error", err)
		resp.Error = "history store unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
	default:
		// Cancelled by the caller; nobody reads the response.
		s.logger.Debug("history request ended", "device_id", deviceID, "error", err)
		writeJSON(w, http.StatusServiceUnavailable, resp)
	}
}
