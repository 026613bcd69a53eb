package main

import (
	"context"
	"log"

	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/rabbitmq"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/participant"
	"github.com/chris-alexander-pop/system-design-library/services/consumer/internal/handler"
)

type Config struct {
	Logger   logger.Config
	RabbitMQ rabbitmq.Config
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

	consumer, err := broker.Consumer(saga.RequestTopic(contracts.VerifyConsumerDetailsTask), contracts.ConsumerCommandsQueue)
	if err != nil {
		slog.Error("failed to subscribe to commands queue", "error", err)
		return
	}
	defer consumer.Close()

	slog.Info("consumer service worker started")

	wrapped := participant.Handle(resp, contracts.VerifyConsumerDetailsTask, handler.VerifyConsumerDetails)
	if err := consumer.Consume(ctx, wrapped); err != nil {
		slog.Error("command consumer stopped", "error", err)
	}
}
