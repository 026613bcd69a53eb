package saga_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/memory"
	corepkg "github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
	sagagorm "github.com/chris-alexander-pop/system-design-library/pkg/saga/repository/gorm"
	"github.com/chris-alexander-pop/system-design-library/services/order/internal/domain"
	ordersaga "github.com/chris-alexander-pop/system-design-library/services/order/internal/saga"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// respondTo stands in for a remote participant: it consumes task's request
// topic and replies once on its success or failure topic, echoing the
// saga id back with whatever body payload builds.
func respondTo(t *testing.T, ctx context.Context, broker messaging.Broker, task string, success bool, body func(sagaID int64) json.RawMessage) {
	t.Helper()

	consumer, err := broker.Consumer(corepkg.RequestTopic(task), "participant-"+task)
	if err != nil {
		t.Fatalf("consumer for %s: %v", task, err)
	}

	replyTopic := corepkg.SuccessTopic(task)
	if !success {
		replyTopic = corepkg.FailureTopic(task)
	}
	producer, err := broker.Producer(replyTopic)
	if err != nil {
		t.Fatalf("producer for %s: %v", replyTopic, err)
	}

	go consumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
		var env corepkg.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			return err
		}
		var payload json.RawMessage
		if body != nil {
			payload = body(env.SagaID)
		}
		reply, err := json.Marshal(corepkg.Envelope{SagaID: env.SagaID, Payload: payload})
		if err != nil {
			return err
		}
		return producer.Publish(ctx, &messaging.Message{Payload: reply})
	})
}

func newTestOrderSaga(t *testing.T) (*corepkg.Engine, *corepkg.Definition, *domain.Repository, *sagagorm.Repository, *memory.Broker) {
	t.Helper()
	ctx := context.Background()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	orders := domain.NewRepository(db)
	if err := orders.Migrate(ctx); err != nil {
		t.Fatalf("migrate orders: %v", err)
	}

	sagaRepo := sagagorm.New(db)
	if err := sagaRepo.Migrate(ctx); err != nil {
		t.Fatalf("migrate saga states: %v", err)
	}

	broker := memory.New(memory.Config{BufferSize: 16})
	t.Cleanup(func() { _ = broker.Close() })

	registry := corepkg.NewRegistry()
	engine := corepkg.NewEngine(broker, sagaRepo, registry)

	builder := ordersaga.NewBuilder(orders, broker)
	def := builder.Build()
	registry.Register(def)

	return engine, def, orders, sagaRepo, broker
}

func waitForOrderStatus(t *testing.T, orders *domain.Repository, orderID int64, want domain.Status) *domain.Order {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		order, err := orders.Get(context.Background(), orderID)
		if err != nil {
			t.Fatalf("get order: %v", err)
		}
		if order.Status == want {
			return order
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("order %d did not reach status %q in time", orderID, want)
	return nil
}

func TestCreateOrderSaga_HappyPath(t *testing.T) {
	engine, def, orders, sagaRepo, broker := newTestOrderSaga(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := engine.RegisterReplyHandlers(ctx, def, contracts.CreateOrderSagaReplyQueue); err != nil {
		t.Fatalf("register reply handlers: %v", err)
	}

	respondTo(t, ctx, broker, contracts.VerifyConsumerDetailsTask, true, nil)
	respondTo(t, ctx, broker, contracts.CreateTicketTask, true, func(sagaID int64) json.RawMessage {
		body, _ := json.Marshal(contracts.CreateTicketResponse{TicketID: 250})
		return body
	})
	respondTo(t, ctx, broker, contracts.AuthorizeCardTask, true, func(sagaID int64) json.RawMessage {
		body, _ := json.Marshal(contracts.AuthorizeCardResponse{TransactionID: 999})
		return body
	})
	respondTo(t, ctx, broker, contracts.ApproveTicketTask, true, nil)

	orderID, err := ordersaga.Start(ctx, engine, def, orders, sagaRepo, ordersaga.Input{
		ConsumerID: 70,
		CardID:     1,
		Price:      20,
		Items:      []domain.OrderItem{{Name: "cheeseburger", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("start saga: %v", err)
	}

	order := waitForOrderStatus(t, orders, orderID, domain.StatusApproved)
	if order.RestaurantTicketID != 250 {
		t.Errorf("expected restaurant ticket id 250, got %d", order.RestaurantTicketID)
	}
	if order.TransactionID != 999 {
		t.Errorf("expected transaction id 999, got %d", order.TransactionID)
	}
}

func TestCreateOrderSaga_ConsumerVerificationFailureRejectsOrder(t *testing.T) {
	engine, def, orders, sagaRepo, broker := newTestOrderSaga(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := engine.RegisterReplyHandlers(ctx, def, contracts.CreateOrderSagaReplyQueue); err != nil {
		t.Fatalf("register reply handlers: %v", err)
	}

	respondTo(t, ctx, broker, contracts.VerifyConsumerDetailsTask, false, func(sagaID int64) json.RawMessage {
		body, _ := json.Marshal(corepkg.ErrorPayload{Type: "ValueError", Message: "consumer verification failed"})
		return body
	})

	orderID, err := ordersaga.Start(ctx, engine, def, orders, sagaRepo, ordersaga.Input{
		ConsumerID: 3,
		CardID:     1,
		Price:      20,
		Items:      []domain.OrderItem{{Name: "cheeseburger", Quantity: 2}},
	})
	if err != nil {
		t.Fatalf("start saga: %v", err)
	}

	waitForOrderStatus(t, orders, orderID, domain.StatusRejected)
}
