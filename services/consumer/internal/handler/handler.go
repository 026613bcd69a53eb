// Package handler implements the consumer service's saga command: verify
// that a consumer id is good standing before an order proceeds.
package handler

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/contracts"
)

// VerifyConsumerDetails rejects any consumer id under 50 -- a stand-in for
// a real credit/fraud check, kept deliberately simple per this demo's
// scope.
func VerifyConsumerDetails(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
	var req contracts.VerifyConsumerDetailsPayload
	if err := json.Unmarshal(payload, &req); err != nil {
		return nil, err
	}

	logger.L().InfoContext(ctx, "verifying consumer", "saga_id", sagaID, "consumer_id", req.ConsumerID)

	if req.ConsumerID < 50 {
		return nil, fmt.Errorf("consumer has incorrect id = %d", req.ConsumerID)
	}

	return nil, nil
}
