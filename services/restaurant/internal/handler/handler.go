// Package handler implements the restaurant service's saga commands:
// create, reject, and approve a kitchen ticket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
)

// CreateTicket allocates a fake ticket id for the order -- a stand-in for
// a real kitchen ticketing system.
func CreateTicket(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
	var req contracts.CreateTicketPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	ticketID := int64(200 + rand.Intn(100))
	logger.L().InfoContext(ctx, "restaurant ticket created",
		"saga_id", sagaID, "order_id", req.OrderID, "ticket_id", ticketID)

	return contracts.CreateTicketResponse{TicketID: ticketID}, nil
}

// RejectTicket is the compensating command for CreateTicket. It never
// replies to the orchestrator.
func RejectTicket(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
	var req contracts.RejectTicketPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}
	logger.L().InfoContext(ctx, "restaurant ticket rejected", "saga_id", sagaID, "ticket_id", req.TicketID)
	return nil, nil
}

// ApproveTicket fails about 30% of the time to exercise the participant's
// auto-retry wrapper, matching the reference implementation's demo of a
// transient failure that clears on retry.
func ApproveTicket(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
	var req contracts.ApproveTicketPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	if rand.Float64() < 0.3 {
		return nil, errors.New("test error message, task will retry now")
	}

	logger.L().InfoContext(ctx, "restaurant ticket approved", "saga_id", sagaID, "ticket_id", req.TicketID)
	return nil, nil
}
