package app

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// ConsumerStarter is satisfied by *ExportConsumer.
type ConsumerStarter interface {
	StartConsuming(ctx context.Context) error
}

// StartupSupervisor starts the export consumer at boot. The broker is optional
// at boot: if the consumer cannot start, the export feature is reported as
// unavailable and the rest of the process keeps running.
type StartupSupervisor struct {
	consumer  ConsumerStarter
	logger    *slog.Logger
	available atomic.Bool
}

func NewStartupSupervisor(consumer ConsumerStarter, logger *slog.Logger) *StartupSupervisor {
	return &StartupSupervisor{
		consumer: consumer,
		logger:   logger.With("component", "startup_supervisor"),
	}
}

// Start attempts to start the consumer once and reports whether it did.
// It never returns an error and never panics past its own boundary.
func (s *StartupSupervisor) Start(ctx context.Context) (started bool) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WarnContext(ctx, "Message broker unavailable", "error", r)
			s.logger.WarnContext(ctx, "CSV export feature disabled")
			started = false
		}
		s.available.Store(started)
		if started {
			exportConsumerAvailable.Set(1)
		} else {
			exportConsumerAvailable.Set(0)
		}
	}()

	if err := s.consumer.StartConsuming(ctx); err != nil {
		s.logger.WarnContext(ctx, "Message broker unavailable", "error", err)
		s.logger.WarnContext(ctx, "CSV export feature disabled")
		return false
	}

	s.logger.InfoContext(ctx, "Export consumer started")
	return true
}

// Available reports whether the consumer started at boot.
func (s *StartupSupervisor) Available() bool {
	return s.available.Load()
}
