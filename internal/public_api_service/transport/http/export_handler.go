package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	chi_middleware "github.com/go-chi/chi/v5/middleware" // For GetReqID

	exportApp "github.com/movielib/golang_services/internal/export_service/app"
	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/public_api_service/middleware"
)

const ExportAcceptedMessage = "Export en cours. Vous recevrez le fichier CSV par mail dans quelques instants."

// ExportRequester is satisfied by *exportApp.ExportProducer.
type ExportRequester interface {
	RequestExport(ctx context.Context, req exportDomain.ExportRequest) error
}

type ExportHandler struct {
	producer ExportRequester
	logger   *slog.Logger
}

func NewExportHandler(producer ExportRequester, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		producer: producer,
		logger:   logger.With("component", "export_handler"),
	}
}

// RequestMovieExport enqueues a CSV export of the whole catalog for the caller
// and answers 202 without waiting for it. The recipient is the email in the token.
func (h *ExportHandler) RequestMovieExport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := h.logger.With("request_id", chi_middleware.GetReqID(ctx))

	authUser, ok := middleware.UserFromContext(ctx)
	if !ok {
		logger.WarnContext(ctx, "Unauthorized export request: Missing authentication details")
		http.Error(w, "Unauthorized: Missing or invalid authentication details", http.StatusUnauthorized)
		return
	}
	logger = logger.With("auth_user_id", authUser.ID)

	req := exportDomain.ExportRequest{UserEmail: authUser.Email, UserID: authUser.ID}
	if err := h.producer.RequestExport(ctx, req); err != nil {
		if exportApp.IsInvalidRequest(err) {
			logger.WarnContext(ctx, "Export request rejected", "error", err)
			http.Error(w, "Invalid export request: "+err.Error(), http.StatusBadRequest)
			return
		}
		logger.ErrorContext(ctx, "Failed to publish export request", "error", err)
		http.Error(w, "Failed to request export due to internal error", http.StatusInternalServerError)
		return
	}

	logger.InfoContext(ctx, "Movie export requested", "email", authUser.Email)

	writeJSON(w, logger, r, http.StatusAccepted, ExportAcceptedResponseDTO{Message: ExportAcceptedMessage})
}

func writeJSON(w http.ResponseWriter, logger *slog.Logger, r *http.Request, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.ErrorContext(r.Context(), "Failed to write response", "error", err)
	}
}
