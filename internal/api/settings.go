package api

import (
	"errors"
	"net/http"

	"github.com/nerrad567/roomlink-core/internal/alert"
	"github.com/nerrad567/roomlink-core/internal/settings"
)

// thresholdsRequest carries every limit; partial updates are rejected.
type thresholdsRequest struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	Illuminance *int     `json:"illuminance"`
}

// alertsSettings is the body of GET and PUT /settings/alerts.
type alertsSettings struct {
	Enabled *bool `json:"enabled"`
}

// handleGetThresholds returns the alert limits. A read failure still
// returns the configured defaults, which the engine also falls back to.
func (s *Server) handleGetThresholds(w http.ResponseWriter, r *http.Request) {
	t, err := s.settings.Thresholds(r.Context())
	if err != nil {
		s.logger.Warn("reading thresholds, serving defaults", "error", err)
	}
	writeJSON(w, http.StatusOK, t)
}

// handleSetThresholds replaces the alert limits.
func (s *Server) handleSetThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Temperature == nil || req.Humidity == nil || req.Illuminance == nil {
		writeBadRequest(w, "temperature, humidity and illuminance are required")
		return
	}

	t := alert.Thresholds{
		Temperature: *req.Temperature,
		Humidity:    *req.Humidity,
		Illuminance: *req.Illuminance,
	}
	if err := s.settings.SetThresholds(r.Context(), t); err != nil {
		if errors.Is(err, settings.ErrInvalidThresholds) {
			writeValidationError(w, "thresholds must not be negative")
			return
		}
		s.logger.Error("saving thresholds", "error", err)
		writeInternalError(w, "failed to save thresholds")
		return
	}

	s.logger.Info("alert thresholds updated",
		"temperature", t.Temperature,
		"humidity", t.Humidity,
		"illuminance", t.Illuminance,
		"subject", subjectFromContext(r.Context()),
	)
	writeJSON(w, http.StatusOK, t)
}

// handleGetAlerts reports whether alert delivery is enabled.
func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.settings.AlertsEnabled(r.Context())
	if err != nil {
		s.logger.Warn("reading alerts flag, serving default", "error", err)
	}
	writeJSON(w, http.StatusOK, alertsSettings{Enabled: &enabled})
}

// handleSetAlerts enables or disables alert delivery.
func (s *Server) handleSetAlerts(w http.ResponseWriter, r *http.Request) {
	var req alertsSettings
	if err := decodeJSON(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Enabled == nil {
		writeBadRequest(w, "enabled is required")
		return
	}

	if err := s.settings.SetAlertsEnabled(r.Context(), *req.Enabled); err != nil {
		s.logger.Error("saving alerts flag", "error", err)
		writeInternalError(w, "failed to save alerts setting")
		return
	}

	s.logger.Info("alerts toggled", "enabled", *req.Enabled, "subject", subjectFromContext(r.Context()))
	writeJSON(w, http.StatusOK, req)
}
