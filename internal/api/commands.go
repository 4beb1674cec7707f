package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/roomlink-core/internal/command"
)

// Command path segments accepted by POST /devices/{id}/commands/{command},
// besides the actuator names.
const (
	commandAll      = "all"
	commandMode     = "mode"
	commandInterval = "interval"
	commandReboot   = "reboot"
)

// actuatorRequest switches one actuator.
type actuatorRequest struct {
	On *bool `json:"on"`
}

// allActuatorsRequest switches every actuator.
type allActuatorsRequest struct {
	Light *bool `json:"light"`
	Fan   *bool `json:"fan"`
	AC    *bool `json:"ac"`
}

// modeRequest switches master mode.
type modeRequest struct {
	Master *bool `json:"master"`
}

// intervalRequest sets the sampling interval; out-of-range values are clamped.
type intervalRequest struct {
	Seconds *int `json:"seconds"`
}

// commandResponse acknowledges a submitted command. Delivery is not confirmed.
type commandResponse struct {
	CommandID string `json:"command_id"`
	DeviceID  string `json:"device_id"`
	Command   string `json:"command"`
}

// handleDeviceCommand submits a command to a room controller.
//
// Responds 202 once the command is handed to the broker client, 503 while
// disconnected, and 400 for invalid input.
func (s *Server) handleDeviceCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	params, msg := parseCommand(r, chi.URLParam(r, "command"))
	if params == nil {
		if msg == "" {
			writeNotFound(w, "unknown command")
			return
		}
		writeBadRequest(w, msg)
		return
	}

	commandID, err := s.commands.Send(id, params)
	if err != nil {
		switch {
		case errors.Is(err, command.ErrNotConnected):
			writeUnavailable(w, "not connected to broker")
		case errors.Is(err, command.ErrInvalidDeviceID):
			writeValidationError(w, "invalid device id")
		case errors.Is(err, command.ErrInvalidParams):
			writeValidationError(w, err.Error())
		default:
			s.logger.Error("sending command", "device_id", id, "command", params.Name(), "error", err)
			writeInternalError(w, "failed to send command")
		}
		return
	}

	s.logger.Info("command submitted",
		"device_id", id,
		"command", params.Name(),
		"command_id", commandID,
		"subject", subjectFromContext(r.Context()),
	)
	writeJSON(w, http.StatusAccepted, commandResponse{
		CommandID: commandID,
		DeviceID:  id,
		Command:   params.Name(),
	})
}

// parseCommand builds the parameters for a command path segment. It
// returns nil params with an empty message for unknown commands, and nil
// params with a message for invalid bodies.
func parseCommand(r *http.Request, name string) (command.Params, string) {
	switch name {
	case commandAll:
		var req allActuatorsRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, "invalid JSON body"
		}
		if req.Light == nil || req.Fan == nil || req.AC == nil {
			return nil, "light, fan and ac are required"
		}
		return command.SetAllActuators{Light: *req.Light, Fan: *req.Fan, AC: *req.AC}, ""

	case commandMode:
		var req modeRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, "invalid JSON body"
		}
		if req.Master == nil {
			return nil, "master is required"
		}
		return command.SetMode{Master: *req.Master}, ""

	case commandInterval:
		var req intervalRequest
		if err := decodeJSON(r, &req); err != nil {
			return nil, "invalid JSON body"
		}
		if req.Seconds == nil {
			return nil, "seconds is required"
		}
		return command.SetInterval{Seconds: command.ClampInterval(*req.Seconds)}, ""

	case commandReboot:
		// A body is optional; anything sent must still be an object.
		var req struct{}
		if err := decodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
			return nil, "invalid JSON body"
		}
		return command.Reboot{}, ""
	}

	actuator, err := command.ParseActuator(name)
	if err != nil {
		return nil, ""
	}
	var req actuatorRequest
	if err := decodeJSON(r, &req); err != nil {
		return nil, "invalid JSON body"
	}
	if req.On == nil {
		return nil, "on is required"
	}
	return command.SetActuator{Actuator: actuator, On: *req.On}, ""
}
