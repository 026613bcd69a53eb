package main

import (
	"context"
	"log"

	"github.com/chris-alexander-pop/system-design-library/pkg/config"
	"github.com/chris-alexander-pop/system-design-library/pkg/database"
	dbsql "github.com/chris-alexander-pop/system-design-library/pkg/database/sql"
	"github.com/chris-alexander-pop/system-design-library/pkg/database/sql/adapters/postgres"
	"github.com/chris-alexander-pop/system-design-library/pkg/database/sql/adapters/sqlite"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/rabbitmq"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
	sagagorm "github.com/chris-alexander-pop/system-design-library/pkg/saga/repository/gorm"
	"github.com/chris-alexander-pop/system-design-library/pkg/server"
	"github.com/chris-alexander-pop/system-design-library/services/order/internal/domain"
	"github.com/chris-alexander-pop/system-design-library/services/order/internal/handler"
	ordersaga "github.com/chris-alexander-pop/system-design-library/services/order/internal/saga"
	gormlib "gorm.io/gorm"
)

// Config composes this service's own settings with the shared library's
// ambient config blocks, the way every cmd/ entrypoint in this tree does.
type Config struct {
	Server   server.Config
	Logger   logger.Config
	SQL      dbsql.Config
	RabbitMQ rabbitmq.Config
}

func main() {
	var cfg Config
	if err := config.Load(&cfg); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	slog := logger.Init(cfg.Logger)
	ctx := context.Background()

	db, err := connectDB(cfg.SQL)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		return
	}

	orders := domain.NewRepository(db)
	if err := orders.Migrate(ctx); err != nil {
		slog.Error("failed to migrate orders schema", "error", err)
		return
	}

	sagaRepo := sagagorm.New(db)
	if err := sagaRepo.Migrate(ctx); err != nil {
		slog.Error("failed to migrate saga_states schema", "error", err)
		return
	}
	instrumentedSagaRepo := saga.NewInstrumentedRepository(sagaRepo)

	broker, err := rabbitmq.New(cfg.RabbitMQ)
	if err != nil {
		slog.Error("failed to connect to broker", "error", err)
		return
	}
	defer broker.Close()

	registry := saga.NewRegistry()
	engine := saga.NewEngine(broker, instrumentedSagaRepo, registry)

	builder := ordersaga.NewBuilder(orders, broker)
	def := builder.Build()
	registry.Register(def)

	if err := engine.RegisterReplyHandlers(ctx, def, contracts.CreateOrderSagaReplyQueue); err != nil {
		slog.Error("failed to register saga reply handlers", "error", err)
		return
	}

	srv := server.New(cfg.Server, slog)
	handler.NewStatusHandler(instrumentedSagaRepo).Register(srv.Echo())

	go runDemoSaga(ctx, engine, def, orders, instrumentedSagaRepo)

	if err := srv.Start(); err != nil {
		slog.Error("server failed", "error", err)
	}
}

func connectDB(cfg dbsql.Config) (*gormlib.DB, error) {
	switch cfg.Driver {
	case database.DriverSQLite:
		return sqlite.New(cfg)
	default:
		return postgres.New(cfg)
	}
}

// runDemoSaga seeds one saga instance at startup, the way the reference
// implementation's /run-success-saga route did -- consumer_id=70 passes
// consumer verification (threshold 50) and price=20 passes card
// authorization (threshold 50), so this instance is expected to complete.
func runDemoSaga(ctx context.Context, engine *saga.Engine, def *saga.Definition, orders *domain.Repository, sagaRepo saga.Repository) {
	sagaID, err := ordersaga.Start(ctx, engine, def, orders, sagaRepo, ordersaga.Input{
		ConsumerID: 70,
		CardID:     1,
		Price:      20,
		Items: []domain.OrderItem{
			{Name: "cheeseburger", Quantity: 2},
		},
	})
	if err != nil {
		logger.L().ErrorContext(ctx, "demo saga failed to start", "error", err)
		return
	}
	logger.L().InfoContext(ctx, "demo saga started", "saga_id", sagaID)
}
