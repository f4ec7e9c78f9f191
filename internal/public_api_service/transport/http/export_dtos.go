package http // public_api_service/transport/http

// ExportAcceptedResponseDTO is returned once an export request has been queued.
type ExportAcceptedResponseDTO struct {
	Message string `json:"message"`
}

// HealthResponseDTO reports process liveness and optional feature availability.
type HealthResponseDTO struct {
	Status string `json:"status"`
	Export string `json:"export"` // "available" or "unavailable"
}
