// Package handler implements the accounting service's saga command:
// authorize a card for an order's amount.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
)

// AuthorizeCard rejects any authorization of 50 or more -- a stand-in for
// an insufficient-balance decline.
func AuthorizeCard(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
	var req contracts.AuthorizeCardPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	logger.L().InfoContext(ctx, "authorizing card", "saga_id", sagaID, "card_id", req.CardID, "amount", req.Amount)

	if req.Amount >= 50 {
		return nil, errors.New("card authorization failed: insufficient balance")
	}

	return contracts.AuthorizeCardResponse{TransactionID: int64(100 + rand.Intn(900))}, nil
}
