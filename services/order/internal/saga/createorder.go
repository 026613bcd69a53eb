// Package saga builds the create-order saga's Definition: the ordered
// steps, their dispatch payloads, and the order-state transitions each
// reply drives. sagaID and order id are the same value in this demo — one
// order, one saga, no reuse across retries.
package saga

import (
	"context"
	"encoding/json"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
	"github.com/chris-alexander-pop/system-design-library/services/order/internal/domain"
)

const Name = "create_order_saga"

// Builder constructs the create-order saga.Definition against a concrete
// order repository. broker is used only by compensations that fire a
// no-response command directly (reject restaurant ticket); every forward
// async step dispatches through the engine instead.
type Builder struct {
	orders *domain.Repository
	broker messaging.Broker
}

func NewBuilder(orders *domain.Repository, broker messaging.Broker) *Builder {
	return &Builder{orders: orders, broker: broker}
}

// Build assembles the full step chain: reject order (compensation-only) ->
// verify consumer details -> create restaurant ticket -> authorize card ->
// approve restaurant ticket -> approve order.
func (b *Builder) Build() *saga.Definition {
	def := saga.NewDefinition(Name)

	def.AddStep(saga.Step{
		Name:       "reject order",
		Kind:       saga.Sync,
		Compensate: b.rejectOrder,
	})

	def.AddStep(saga.Step{
		Name:         "verify consumer details",
		Kind:         saga.Async,
		BaseTaskName: contracts.VerifyConsumerDetailsTask,
		Dispatch:     b.dispatchVerifyConsumerDetails,
		OnSuccess:    b.onVerifyConsumerDetailsSuccess,
		OnFailure:    b.onVerifyConsumerDetailsFailure,
	})

	def.AddStep(saga.Step{
		Name:         "create restaurant ticket",
		Kind:         saga.Async,
		BaseTaskName: contracts.CreateTicketTask,
		Dispatch:     b.dispatchCreateTicket,
		OnSuccess:    b.onCreateTicketSuccess,
		OnFailure:    b.onCreateTicketFailure,
		Compensate:   b.rejectRestaurantTicket,
	})

	def.AddStep(saga.Step{
		Name:         "authorize card",
		Kind:         saga.Async,
		BaseTaskName: contracts.AuthorizeCardTask,
		Dispatch:     b.dispatchAuthorizeCard,
		OnSuccess:    b.onAuthorizeCardSuccess,
		OnFailure:    b.onAuthorizeCardFailure,
	})

	def.AddStep(saga.Step{
		Name:         "approve restaurant ticket",
		Kind:         saga.Async,
		BaseTaskName: contracts.ApproveTicketTask,
		Dispatch:     b.dispatchApproveTicket,
		OnSuccess:    b.onApproveTicketSuccess,
		OnFailure:    b.onApproveTicketFailure,
	})

	def.AddStep(saga.Step{
		Name:   "approve order",
		Kind:   saga.Sync,
		Action: b.approveOrder,
	})

	def.OnSagaSuccess = b.onSagaSuccess
	def.OnSagaFailure = b.onSagaFailure

	return def
}

func (b *Builder) dispatchVerifyConsumerDetails(ctx context.Context, sagaID int64) ([]byte, error) {
	order, err := b.orders.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	logger.L().InfoContext(ctx, "verifying consumer details", "saga_id", sagaID, "consumer_id", order.ConsumerID)
	return json.Marshal(contracts.VerifyConsumerDetailsPayload{ConsumerID: order.ConsumerID})
}

func (b *Builder) onVerifyConsumerDetailsSuccess(ctx context.Context, sagaID int64, _ json.RawMessage) error {
	logger.L().InfoContext(ctx, "consumer details verified", "saga_id", sagaID)
	return nil
}

func (b *Builder) onVerifyConsumerDetailsFailure(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	logger.L().WarnContext(ctx, "consumer details verification failed", "saga_id", sagaID, "payload", string(payload))
	return nil
}

func (b *Builder) dispatchCreateTicket(ctx context.Context, sagaID int64) ([]byte, error) {
	order, err := b.orders.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	items := make([]contracts.TicketItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, contracts.TicketItem{Name: item.Name, Quantity: item.Quantity})
	}
	return json.Marshal(contracts.CreateTicketPayload{
		OrderID:    order.ID,
		CustomerID: order.ConsumerID,
		Items:      items,
	})
}

func (b *Builder) onCreateTicketSuccess(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	var resp contracts.CreateTicketResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return err
	}
	logger.L().InfoContext(ctx, "restaurant ticket created", "saga_id", sagaID, "ticket_id", resp.TicketID)
	return b.orders.SetTicketID(ctx, sagaID, resp.TicketID)
}

func (b *Builder) onCreateTicketFailure(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	logger.L().WarnContext(ctx, "restaurant ticket creation failed", "saga_id", sagaID, "payload", string(payload))
	return nil
}

func (b *Builder) dispatchAuthorizeCard(ctx context.Context, sagaID int64) ([]byte, error) {
	order, err := b.orders.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contracts.AuthorizeCardPayload{CardID: order.CardID, Amount: order.Price})
}

func (b *Builder) onAuthorizeCardSuccess(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	var resp contracts.AuthorizeCardResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return err
	}
	logger.L().InfoContext(ctx, "card authorized", "saga_id", sagaID, "transaction_id", resp.TransactionID)
	return b.orders.SetTransactionID(ctx, sagaID, resp.TransactionID)
}

func (b *Builder) onAuthorizeCardFailure(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	logger.L().WarnContext(ctx, "card authorization failed", "saga_id", sagaID, "payload", string(payload))
	return nil
}

func (b *Builder) dispatchApproveTicket(ctx context.Context, sagaID int64) ([]byte, error) {
	order, err := b.orders.Get(ctx, sagaID)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contracts.ApproveTicketPayload{TicketID: order.RestaurantTicketID})
}

func (b *Builder) onApproveTicketSuccess(ctx context.Context, sagaID int64, _ json.RawMessage) error {
	logger.L().InfoContext(ctx, "restaurant ticket approved", "saga_id", sagaID)
	return nil
}

func (b *Builder) onApproveTicketFailure(ctx context.Context, sagaID int64, payload json.RawMessage) error {
	logger.L().WarnContext(ctx, "restaurant ticket approval failed", "saga_id", sagaID, "payload", string(payload))
	return nil
}

func (b *Builder) approveOrder(ctx context.Context, sagaID int64) error {
	logger.L().InfoContext(ctx, "approving order", "saga_id", sagaID)
	return b.orders.UpdateStatus(ctx, sagaID, domain.StatusApproved)
}

func (b *Builder) rejectOrder(ctx context.Context, sagaID int64) error {
	logger.L().InfoContext(ctx, "compensation: rejecting order", "saga_id", sagaID)
	return b.orders.UpdateStatus(ctx, sagaID, domain.StatusRejected)
}

func (b *Builder) rejectRestaurantTicket(ctx context.Context, sagaID int64) error {
	order, err := b.orders.Get(ctx, sagaID)
	if err != nil {
		return err
	}
	if order.RestaurantTicketID == 0 {
		return nil
	}

	logger.L().InfoContext(ctx, "compensation: rejecting restaurant ticket", "saga_id", sagaID, "ticket_id", order.RestaurantTicketID)

	payload, err := json.Marshal(contracts.RejectTicketPayload{TicketID: order.RestaurantTicketID})
	if err != nil {
		return err
	}
	body, err := json.Marshal(saga.Envelope{SagaID: sagaID, Payload: payload})
	if err != nil {
		return err
	}

	topic := saga.RequestTopic(contracts.RejectTicketTask)
	producer, err := b.broker.Producer(topic)
	if err != nil {
		return err
	}
	defer producer.Close()

	return producer.Publish(ctx, &messaging.Message{Topic: topic, Payload: body})
}

func (b *Builder) onSagaSuccess(ctx context.Context, sagaID int64) error {
	logger.L().InfoContext(ctx, "create order saga succeeded", "saga_id", sagaID)
	return nil
}

func (b *Builder) onSagaFailure(ctx context.Context, sagaID int64, cause saga.ErrorPayload) {
	logger.L().ErrorContext(ctx, "create order saga failed",
		"saga_id", sagaID, "cause_type", cause.Type, "cause_message", cause.Message)
}
