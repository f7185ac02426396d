package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/updownbot/internal/engine"
)

// staleAfter is how old the engine snapshot may get before health degrades.
const staleAfter = 10 * time.Second

// HealthHandler serves the liveness endpoint.
type HealthHandler struct {
	mode   string
	status func() *engine.Status
	now    func() time.Time
}

// NewHealthHandler creates a HealthHandler. status may be nil before the
// engine exists.
func NewHealthHandler(mode string, status func() *engine.Status) *HealthHandler {
	return &HealthHandler{mode: mode, status: status, now: time.Now}
}

// HealthCheck reports "ok", or "stale" with 503 when the engine has not
// published a snapshot recently.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, _ *http.Request) {
	now := h.now()
	body := map[string]any{
		"status":    "ok",
		"mode":      h.mode,
		"timestamp": now.UTC().Format(time.RFC3339),
	}
	code := http.StatusOK
	if h.status != nil {
		if s := h.status(); s != nil {
			age := now.Sub(s.UpdatedAt)
			body["snapshot_age_secs"] = age.Seconds()
			if age > staleAfter {
				body["status"] = "stale"
				code = http.StatusServiceUnavailable
			}
		}
	}
	writeJSON(w, code, body)
}
