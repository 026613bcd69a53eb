// Package contracts holds the wire payload/response shapes shared between
// the create-order saga's orchestrator (services/order) and its
// participants (services/consumer, services/accounting,
// services/restaurant). Both sides import this package rather than one
// importing the other, since each service is its own Go module.
package contracts

// Base task names. Request/success/failure topics are derived from these
// via saga.RequestTopic/SuccessTopic/FailureTopic.
const (
	VerifyConsumerDetailsTask = "consumer_service.verify_consumer_details"
	CreateTicketTask          = "restaurant_service.create_ticket"
	RejectTicketTask          = "restaurant_service.reject_ticket"
	ApproveTicketTask         = "restaurant_service.approve_ticket"
	AuthorizeCardTask         = "accounting_service.authorize_card"
)

// Queue names each participant's worker consumes commands from.
const (
	ConsumerCommandsQueue   = "consumer_service.commands"
	RestaurantCommandsQueue = "restaurant_service.commands"
	AccountingCommandsQueue = "accounting_service.commands"

	CreateOrderSagaReplyQueue = "create_order_saga.replies"
)

// VerifyConsumerDetailsPayload is the consumer verification command. A
// success reply carries no payload; failure means the consumer id failed
// validation.
type VerifyConsumerDetailsPayload struct {
	ConsumerID int64 `json:"consumer_id"`
}

// TicketItem is one line item of a restaurant ticket.
type TicketItem struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

// CreateTicketPayload requests a restaurant ticket for an order.
type CreateTicketPayload struct {
	OrderID    int64        `json:"order_id"`
	CustomerID int64        `json:"customer_id"`
	Items      []TicketItem `json:"items"`
}

// CreateTicketResponse carries the newly created ticket's id.
type CreateTicketResponse struct {
	TicketID int64 `json:"ticket_id"`
}

// RejectTicketPayload is the compensating command for CreateTicketPayload;
// it has no response.
type RejectTicketPayload struct {
	TicketID int64 `json:"ticket_id"`
}

// ApproveTicketPayload confirms a previously created ticket; no response.
type ApproveTicketPayload struct {
	TicketID int64 `json:"ticket_id"`
}

// AuthorizeCardPayload requests a card authorization for amount.
type AuthorizeCardPayload struct {
	CardID int64 `json:"card_id"`
	Amount int64 `json:"amount"`
}

// AuthorizeCardResponse carries the resulting transaction id.
type AuthorizeCardResponse struct {
	TransactionID int64 `json:"transaction_id"`
}
