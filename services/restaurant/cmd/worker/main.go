package main

import (
	"context"
	"log"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/rabbitmq"
	"github.com/chris-alexander-pop/system-design-library/pkg/resilience"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/participant"
	"github.com/chris-alexander-pop/system-design-library/services/restaurant/internal/handler"
)

type Config struct {
	Logger   logger.Config
	RabbitMQ rabbitmq.Config
}

// approveTicketRetry mirrors the reference worker's max_retries=2: up to
// three total attempts, a fixed 200ms delay between them.
func approveTicketRetry() resilience.RetryConfig {
	cfg := resilience.DefaultRetryConfig()
	cfg.MaxAttempts = 3
	cfg.InitialBackoff = 200 * time.Millisecond
	cfg.Multiplier = 1
	return cfg
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog := logger.Init(cfg.Logger)
	ctx := context.Background()

	broker, err := rabbitmq.New(cfg.RabbitMQ)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		return
	}
	defer broker.Close()

	resp := participant.NewBrokerResponder(broker)
	defer resp.Close()

	createTicket, err := broker.Consumer(saga.RequestTopic(contracts.CreateTicketTask), contracts.RestaurantCommandsQueue)
	if err != nil {
		slog.Error("failed to subscribe to create ticket commands", "error", err)
		return
	}
	defer createTicket.Close()

	rejectTicket, err := broker.Consumer(saga.RequestTopic(contracts.RejectTicketTask), contracts.RestaurantCommandsQueue)
	if err != nil {
		slog.Error("failed to subscribe to reject ticket commands", "error", err)
		return
	}
	defer rejectTicket.Close()

	approveTicket, err := broker.Consumer(saga.RequestTopic(contracts.ApproveTicketTask), contracts.RestaurantCommandsQueue)
	if err != nil {
		slog.Error("failed to subscribe to approve ticket commands", "error", err)
		return
	}
	defer approveTicket.Close()

	slog.Info("restaurant service worker started")

	done := make(chan error, 3)

	go func() {
		wrapped := participant.Handle(resp, contracts.CreateTicketTask, handler.CreateTicket)
		done <- createTicket.Consume(ctx, wrapped)
	}()

	go func() {
		wrapped := participant.HandleCompensation(handler.RejectTicket)
		done <- rejectTicket.Consume(ctx, wrapped)
	}()

	go func() {
		withRetry := participant.WithAutoRetry(handler.ApproveTicket, approveTicketRetry())
		wrapped := participant.Handle(resp, contracts.ApproveTicketTask, withRetry)
		done <- approveTicket.Consume(ctx, wrapped)
	}()

	for i := 0; i < 3; i++ {
		if err := <-done; err != nil {
			slog.Error("command consumer stopped", "error", err)
		}
	}
}
