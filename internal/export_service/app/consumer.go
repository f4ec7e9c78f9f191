package app // export_service/app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"golang.org/x/sync/errgroup"

	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/platform/messagebroker"
)

const (
	ExportAttachmentName = "movies.csv"
	ExportSubject        = "📊 Export CSV — Bibliothèque de films"
	ExportHTMLBody       = "<p>Veuillez trouver en pièce jointe l'export CSV de l'ensemble des films.</p>"
)

// MessageSource registers a consumer on the export queue.
type MessageSource interface {
	Consume(ctx context.Context) (<-chan messagebroker.Message, error)
}

// ExportConsumer turns queued export requests into CSV mails.
//
// A message is acked only after the mail was accepted. Any failure (bad body,
// catalog read, rendering, mail) discards it with a nack without requeue: the
// export is lost and the user has to ask again.
type ExportConsumer struct {
	source      MessageSource
	catalog     exportDomain.CatalogRepository
	mailer      exportDomain.Mailer
	validate    *validator.Validate
	concurrency int
	logger      *slog.Logger

	mu   sync.Mutex
	done chan struct{}
}

// NewExportConsumer creates a consumer. concurrency bounds the number of
// messages handled at once; zero or less means unbounded.
func NewExportConsumer(
	source MessageSource,
	catalog exportDomain.CatalogRepository,
	mailer exportDomain.Mailer,
	concurrency int,
	logger *slog.Logger,
) *ExportConsumer {
	return &ExportConsumer{
		source:      source,
		catalog:     catalog,
		mailer:      mailer,
		validate:    validator.New(),
		concurrency: concurrency,
		logger:      logger.With("component", "export_consumer"),
	}
}

// StartConsuming registers on the queue and returns once deliveries are flowing.
// The receive loop runs in the background until ctx is cancelled or the broker
// closes the stream. Handlers already running when ctx is cancelled finish
// their work; Wait blocks until they have.
func (c *ExportConsumer) StartConsuming(ctx context.Context) error {
	msgs, err := c.source.Consume(ctx)
	if err != nil {
		return err
	}

	done := make(chan struct{})
	c.mu.Lock()
	c.done = done
	c.mu.Unlock()

	go c.run(context.WithoutCancel(ctx), msgs, done)
	return nil
}

// Wait blocks until the receive loop has stopped and every in-flight message
// has been acked or discarded. It returns at once if consuming never started.
func (c *ExportConsumer) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *ExportConsumer) run(ctx context.Context, msgs <-chan messagebroker.Message, done chan struct{}) {
	defer close(done)

	var g errgroup.Group
	if c.concurrency > 0 {
		g.SetLimit(c.concurrency)
	}
	for msg := range msgs {
		msg := msg
		g.Go(func() error {
			c.HandleDelivery(ctx, msg)
			return nil
		})
	}
	_ = g.Wait()
	c.logger.Info("Export consumer stopped")
}

// HandleDelivery processes one message start to finish and settles it.
// Nothing escapes: errors and panics end in a discard and a log line.
func (c *ExportConsumer) HandleDelivery(ctx context.Context, msg messagebroker.Message) {
	start := time.Now()
	exportMessagesReceivedCounter.WithLabelValues(strconv.FormatBool(msg.Redelivered())).Inc()
	logger := c.logger.With("message_id", msg.MessageID(), "redelivered", msg.Redelivered())

	var (
		req  exportDomain.ExportRequest
		rows int
		err  error
	)
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic while processing export: %v", r)
			}
		}()
		req, rows, err = c.process(ctx, msg.Body())
	}()

	status := "acked"
	if err != nil {
		status = failureStatus(err)
		logger.ErrorContext(ctx, "Failed to process CSV export, discarding message",
			"error", err, "status", status, "user_email", req.UserEmail, "data_len", len(msg.Body()))
		if nackErr := msg.Nack(false); nackErr != nil {
			logger.ErrorContext(ctx, "Failed to nack export message", "error", nackErr)
		}
	} else {
		if ackErr := msg.Ack(); ackErr != nil {
			// The mail already went out; a redelivery would send it twice.
			logger.ErrorContext(ctx, "Failed to ack export message", "error", ackErr)
		}
		exportedRowsCounter.Add(float64(rows))
		logger.InfoContext(ctx, "CSV export sent", "user_email", req.UserEmail, "user_id", req.UserID, "rows", rows)
	}

	exportJobsProcessedCounter.WithLabelValues(status).Inc()
	exportJobProcessingDurationHist.WithLabelValues(status).Observe(time.Since(start).Seconds())
}

func (c *ExportConsumer) process(ctx context.Context, body []byte) (exportDomain.ExportRequest, int, error) {
	var req exportDomain.ExportRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return req, 0, fmt.Errorf("%w: %w", exportDomain.ErrMessageMalformed, err)
	}
	if err := c.validate.Var(req.UserEmail, "required,email"); err != nil {
		return req, 0, fmt.Errorf("%w: userEmail: %w", exportDomain.ErrMessageMalformed, err)
	}

	movies, err := c.catalog.ListMovies(ctx)
	if err != nil {
		return req, 0, fmt.Errorf("%w: %w", exportDomain.ErrCatalogRead, err)
	}

	content, err := RenderMoviesCSV(movies)
	if err != nil {
		return req, 0, err
	}

	attachments := []exportDomain.Attachment{{
		Filename:    ExportAttachmentName,
		Content:     content,
		ContentType: "text/csv",
	}}
	if _, err := c.mailer.Send(ctx, req.UserEmail, ExportSubject, ExportHTMLBody, attachments); err != nil {
		return req, 0, fmt.Errorf("%w: %w", exportDomain.ErrMailDelivery, err)
	}
	return req, len(movies), nil
}

func failureStatus(err error) string {
	switch {
	case errors.Is(err, exportDomain.ErrMessageMalformed):
		return "malformed"
	case errors.Is(err, exportDomain.ErrCatalogRead):
		return "catalog_error"
	case errors.Is(err, exportDomain.ErrMailDelivery):
		return "mail_error"
	default:
		return "render_error"
	}
}
