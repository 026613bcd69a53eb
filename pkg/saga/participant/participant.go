// Package participant provides the handler wrapper a saga participant
// applies to its command handlers: run the handler, publish a success or
// failure reply on the derived topic, and leave the orchestrator's next
// move to the reply itself.
package participant

import (
	"context"
	"encoding/json"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/resilience"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
)

// CommandHandler runs one participant command and returns the response
// payload to reply with. A nil response is valid for commands that reply
// with an empty success body.
type CommandHandler func(ctx context.Context, sagaID int64, payload json.RawMessage) (response interface{}, err error)

// Responder publishes a saga reply. It is the same messaging.Producer the
// participant already holds for its response queue.
type Responder interface {
	Publish(ctx context.Context, msg *messaging.Message) error
}

// Handle wraps handler so that its result is always turned into a reply on
// baseTaskName's success or failure topic, published through resp.
//
// This is the base wrapper every command handler goes through; panics in
// handler are recovered and reported as a failure reply rather than
// crashing the consume loop.
func Handle(resp Responder, baseTaskName string, handler CommandHandler) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		sagaID, payload, err := decodeRequest(msg.Payload)
		if err != nil {
			logger.L().ErrorContext(ctx, "malformed saga command envelope",
				"task", baseTaskName, "error", err)
			return err
		}

		response, handlerErr := runHandler(ctx, handler, sagaID, payload)

		if handlerErr != nil {
			logger.L().ErrorContext(ctx, "saga command handler failed",
				"task", baseTaskName, "saga_id", sagaID, "error", handlerErr)
			return publishReply(ctx, resp, saga.FailureTopic(baseTaskName), sagaID, saga.SerializeError(handlerErr))
		}

		return publishReply(ctx, resp, saga.SuccessTopic(baseTaskName), sagaID, response)
	}
}

// WithAutoRetry wraps handler with bounded retry/backoff: a retry success
// never reaches Handle as a failure, and only the final attempt's error is
// reported once cfg.MaxAttempts is exhausted. Grounded on the
// restaurant-ticket-approval participant's auto-retry-then-reraise
// behavior: retry a fixed number of times, then give up and report.
func WithAutoRetry(handler CommandHandler, cfg resilience.RetryConfig) CommandHandler {
	return func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		var response interface{}
		err := resilience.Retry(ctx, cfg, func(ctx context.Context) error {
			var innerErr error
			response, innerErr = handler(ctx, sagaID, payload)
			return innerErr
		})
		if err != nil {
			return nil, err
		}
		return response, nil
	}
}

// HandleCompensation wraps a compensation handler that never replies to
// the orchestrator — the typical shape for a compensating command, which
// runs best-effort on the cascade and whose outcome the orchestrator
// doesn't wait on. A handler error is logged, never published.
func HandleCompensation(handler CommandHandler) messaging.MessageHandler {
	return func(ctx context.Context, msg *messaging.Message) error {
		sagaID, payload, err := decodeRequest(msg.Payload)
		if err != nil {
			logger.L().ErrorContext(ctx, "malformed saga compensation envelope", "error", err)
			return err
		}

		if _, err := runHandler(ctx, handler, sagaID, payload); err != nil {
			logger.L().ErrorContext(ctx, "saga compensation handler failed",
				"saga_id", sagaID, "error", err)
		}
		return nil
	}
}

func runHandler(ctx context.Context, handler CommandHandler, sagaID int64, payload json.RawMessage) (response interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			payload := saga.SerializePanic(r)
			err = errors.Internal(payload.Message, nil)
		}
	}()
	return handler(ctx, sagaID, payload)
}

func decodeRequest(body []byte) (sagaID int64, payload json.RawMessage, err error) {
	var env saga.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return 0, nil, err
	}
	return env.SagaID, env.Payload, nil
}

func publishReply(ctx context.Context, resp Responder, topic string, sagaID int64, response interface{}) error {
	var payload json.RawMessage
	if response != nil {
		body, err := json.Marshal(response)
		if err != nil {
			return err
		}
		payload = body
	}

	body, err := json.Marshal(saga.Envelope{SagaID: sagaID, Payload: payload})
	if err != nil {
		return err
	}

	return resp.Publish(ctx, &messaging.Message{Topic: topic, Payload: body})
}
