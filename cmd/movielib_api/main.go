package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/movielib/golang_services/internal/export_service/adapters/mail"
	"github.com/movielib/golang_services/internal/export_service/app"
	exportDomain "github.com/movielib/golang_services/internal/export_service/domain"
	"github.com/movielib/golang_services/internal/export_service/repository/postgres"
	"github.com/movielib/golang_services/internal/platform/config"
	"github.com/movielib/golang_services/internal/platform/database"
	"github.com/movielib/golang_services/internal/platform/logger"
	"github.com/movielib/golang_services/internal/platform/messagebroker"
	"github.com/movielib/golang_services/internal/public_api_service/middleware"
	httptransport "github.com/movielib/golang_services/internal/public_api_service/transport/http"
)

const (
	serviceName     = "movielib-api"
	shutdownTimeout = 30 * time.Second
	requestTimeout  = 60 * time.Second
)

func main() {
	mainCtx, mainCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer mainCancel()

	cfg, err := config.Load(serviceName)
	if err != nil {
		slog.Error("Failed to load configuration", "service", serviceName, "error", err)
		os.Exit(1)
	}

	appLogger := logger.New(cfg.LogLevel).With("service", serviceName)
	appLogger.Info("Movie library API starting...",
		"http_port", cfg.HTTPPort,
		"amqp_configured", cfg.AMQPURL != "",
		"export_queue", cfg.ExportQueueName,
		"mail_host", cfg.MailHost,
	)

	if err := run(mainCtx, cfg, appLogger); err != nil {
		appLogger.Error("Movie library API stopped with error", "error", err)
		os.Exit(1)
	}
	appLogger.Info("Movie library API shut down gracefully.")
}

func run(ctx context.Context, cfg *config.Config, appLogger *slog.Logger) error {
	dbPool, err := database.NewDBPool(ctx, cfg.PostgresDSN, appLogger)
	if err != nil {
		return fmt.Errorf("initialize database connection pool: %w", err)
	}
	defer dbPool.Close()

	catalogRepo := postgres.NewPgMovieCatalogRepository(dbPool, appLogger)
	mailer := mail.NewSMTPMailer(mail.Config{
		Host:     cfg.MailHost,
		Port:     cfg.MailPort,
		Username: cfg.MailUser,
		Password: cfg.MailPass,
		From:     cfg.MailFrom,
	}, appLogger)

	queueName := cfg.ExportQueueName
	if queueName == "" {
		queueName = exportDomain.DefaultExportQueue
	}
	// The broker is optional: nothing dials here, and an unreachable broker
	// only disables exports.
	amqpClient, err := messagebroker.NewAMQPClient(messagebroker.Options{
		URL:           cfg.AMQPURL,
		QueueName:     queueName,
		PrefetchCount: cfg.ExportConsumerPrefetch,
		AppID:         serviceName,
	}, appLogger)
	if err != nil {
		return fmt.Errorf("initialize message broker client: %w", err)
	}
	defer func() {
		if err := amqpClient.Close(); err != nil {
			appLogger.Warn("Error closing message broker connection", "error", err)
		}
	}()

	producer := app.NewExportProducer(amqpClient, nil, appLogger)
	consumer := app.NewExportConsumer(amqpClient, catalogRepo, mailer, cfg.ExportConsumerConcurrency, appLogger)

	consumeCtx, stopConsuming := context.WithCancel(ctx)
	defer stopConsuming()
	supervisor := app.NewStartupSupervisor(consumer, appLogger)
	supervisor.Start(consumeCtx)

	router := httptransport.NewRouter(httptransport.RouterConfig{
		JWT: middleware.JWTConfig{
			Secret:   cfg.JWTSecret,
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		},
		ExportHandler:  httptransport.NewExportHandler(producer, appLogger),
		HealthHandler:  httptransport.NewHealthHandler(supervisor, appLogger),
		RequestTimeout: requestTimeout,
		Logger:         appLogger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, groupCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		appLogger.Info("HTTP server starting", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-groupCtx.Done()
		appLogger.Info("Shutdown signal received, shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			appLogger.Error("HTTP server shutdown error", "error", err)
		}

		// Stop receiving, then let in-flight exports finish before the
		// deferred Close drops the channel they ack on.
		stopConsuming()
		consumer.Wait()
		return nil
	})

	return g.Wait()
}
