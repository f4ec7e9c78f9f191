package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
)

// Publisher hands a message body to the durable export queue.
type Publisher interface {
	Publish(ctx context.Context, body []byte) error
}

// ExportProducer enqueues export requests. It does not wait for the export itself.
type ExportProducer struct {
	publisher Publisher
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewExportProducer(publisher Publisher, validate *validator.Validate, logger *slog.Logger) *ExportProducer {
	if validate == nil {
		validate = validator.New()
	}
	return &ExportProducer{
		publisher: publisher,
		validate:  validate,
		logger:    logger.With("component", "export_producer"),
	}
}

// RequestExport publishes exactly one message for req. Broker failures are
// returned to the caller (they wrap messagebroker.ErrBrokerUnavailable when
// the connection cannot be established).
func (p *ExportProducer) RequestExport(ctx context.Context, req exportDomain.ExportRequest) error {
	if err := p.validate.StructCtx(ctx, req); err != nil {
		exportRequestsPublishedCounter.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: %w", exportDomain.ErrInvalidExportRequest, err)
	}

	payload, err := json.Marshal(req)
	if err != nil {
		exportRequestsPublishedCounter.WithLabelValues("invalid").Inc()
		return fmt.Errorf("marshal export request: %w", err)
	}

	if err := p.publisher.Publish(ctx, payload); err != nil {
		exportRequestsPublishedCounter.WithLabelValues("broker_error").Inc()
		p.logger.ErrorContext(ctx, "Failed to publish export request", "user_id", req.UserID, "error", err)
		return err
	}

	exportRequestsPublishedCounter.WithLabelValues("success").Inc()
	p.logger.InfoContext(ctx, "Export request published", "user_id", req.UserID, "email", req.UserEmail)
	return nil
}

// IsInvalidRequest reports whether err came from request validation.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, exportDomain.ErrInvalidExportRequest)
}
