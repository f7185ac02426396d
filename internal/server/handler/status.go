package handler

import (
	"net/http"

	"github.com/alanyoungcy/updownbot/internal/engine"
)

// StatusHandler serves the engine snapshot.
type StatusHandler struct {
	mode   string
	status func() *engine.Status
}

// NewStatusHandler creates a StatusHandler over the engine's Status method.
func NewStatusHandler(mode string, status func() *engine.Status) *StatusHandler {
	return &StatusHandler{mode: mode, status: status}
}

type statusResponse struct {
	Mode string `json:"mode"`
	*engine.Status
}

// GetStatus responds with the latest snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, _ *http.Request) {
	s := h.status()
	if s == nil {
		writeError(w, http.StatusServiceUnavailable, "engine not started")
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Mode: h.mode, Status: s})
}
