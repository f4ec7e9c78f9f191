package http

import (
	"log/slog"
	"net/http"
)

// Availability is satisfied by *exportApp.StartupSupervisor.
type Availability interface {
	Available() bool
}

type HealthHandler struct {
	export Availability
	logger *slog.Logger
}

func NewHealthHandler(export Availability, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{export: export, logger: logger.With("component", "health_handler")}
}

// Health always answers 200 while the process serves requests. A broker that
// was down at boot shows up as an unavailable export, not as an unhealthy process.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponseDTO{Status: "ok", Export: "unavailable"}
	if h.export != nil && h.export.Available() {
		resp.Export = "available"
	}
	writeJSON(w, h.logger, r, http.StatusOK, resp)
}
