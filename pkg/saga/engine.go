package saga

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/dedupe"
)

// Engine runs Saga Definitions: forward execution, async dispatch/reply
// routing, and the backwards compensation cascade. It holds no saga
// continuation between calls; every reply reloads the saga's state row
// through Repository before acting, so a reply can be handled by any
// process, any goroutine, in any order relative to other sagas.
type Engine struct {
	broker   messaging.Broker
	repo     Repository
	registry *Registry
	guard    *dedupe.ReplyGuard
}

// NewEngine wires an Engine to its broker, state repository, and the
// registry of sagas it may advance.
func NewEngine(broker messaging.Broker, repo Repository, registry *Registry) *Engine {
	return &Engine{
		broker:   broker,
		repo:     repo,
		registry: registry,
		guard:    dedupe.NewReplyGuard(10000, 0.01),
	}
}

// Registry returns the Engine's saga Registry, so callers can register
// Definitions against the same Engine that will run them.
func (e *Engine) Registry() *Registry { return e.registry }

// Execute starts a saga instance at its first step. The caller is
// responsible for creating the State row (Repository.Create) beforehand.
func (e *Engine) Execute(ctx context.Context, def *Definition, sagaID int64) error {
	return e.runFrom(ctx, def, sagaID, 0)
}

// runFrom runs steps starting at idx until an Async step dispatches and
// suspends (the rest of the saga resumes from a reply handler), a Sync
// step fails, or the saga completes.
func (e *Engine) runFrom(ctx context.Context, def *Definition, sagaID int64, idx int) error {
	for i := idx; i < len(def.Steps); i++ {
		step := def.Steps[i]
		switch step.Kind {
		case Sync:
			if err := e.runSyncStep(ctx, step, sagaID); err != nil {
				return e.fail(ctx, def, sagaID, i, err)
			}
		case Async:
			if err := e.dispatchAsync(ctx, step, sagaID); err != nil {
				return e.fail(ctx, def, sagaID, i, err)
			}
			return nil
		}
	}
	return e.succeed(ctx, def, sagaID)
}

func (e *Engine) runSyncStep(ctx context.Context, step Step, sagaID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			payload := SerializePanic(r)
			err = errors.Internal(payload.Message, fmt.Errorf("panic in step %s", step.Name))
		}
	}()
	if step.Action == nil {
		return nil
	}
	return step.Action(ctx, sagaID)
}

func (e *Engine) dispatchAsync(ctx context.Context, step Step, sagaID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic dispatching step %s: %v", step.Name, r)
		}
	}()

	var payload []byte
	if step.Dispatch != nil {
		payload, err = step.Dispatch(ctx, sagaID)
		if err != nil {
			return err
		}
	}

	body, err := json.Marshal(Envelope{SagaID: sagaID, Payload: payload})
	if err != nil {
		return err
	}

	topic := RequestTopic(step.BaseTaskName)
	producer, err := e.broker.Producer(topic)
	if err != nil {
		return err
	}
	defer producer.Close()

	msg := &messaging.Message{Topic: topic, Payload: body}
	if err := producer.Publish(ctx, msg); err != nil {
		return err
	}

	lastID := msg.ID
	return e.repo.Update(ctx, sagaID, StatePatch{LastMessageID: &lastID})
}

// RegisterReplyHandlers subscribes one Consumer per reply topic (success
// and failure) for every async step in def, routing each delivery to the
// matching step's hook before advancing or compensating. responseQueue is
// the consumer group name this saga's replies are bound to.
func (e *Engine) RegisterReplyHandlers(ctx context.Context, def *Definition, responseQueue string) error {
	for i, step := range def.Steps {
		if step.Kind != Async {
			continue
		}
		idx, step := i, step

		successConsumer, err := e.broker.Consumer(SuccessTopic(step.BaseTaskName), responseQueue)
		if err != nil {
			return err
		}
		go e.consumeReplies(ctx, successConsumer, def, idx, step, true)

		failureConsumer, err := e.broker.Consumer(FailureTopic(step.BaseTaskName), responseQueue)
		if err != nil {
			return err
		}
		go e.consumeReplies(ctx, failureConsumer, def, idx, step, false)
	}
	return nil
}

func (e *Engine) consumeReplies(ctx context.Context, consumer messaging.Consumer, def *Definition, idx int, step Step, success bool) {
	err := consumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
		return e.handleReply(ctx, def, idx, step, success, msg.Payload)
	})
	if err != nil {
		logger.L().ErrorContext(ctx, "saga reply consumer stopped",
			"saga", def.Name, "step", step.Name, "success", success, "error", err)
	}
}

func (e *Engine) handleReply(ctx context.Context, def *Definition, idx int, step Step, success bool, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		logger.L().ErrorContext(ctx, "malformed saga reply envelope",
			"saga", def.Name, "step", step.Name, "error", err)
		return err
	}

	// Rebuild the (Definition, SagaID) pair this reply belongs to from
	// nothing but def's name and the envelope's saga_id -- the engine keeps
	// no saga continuation in memory between messages.
	instance, err := e.registry.New(def.Name, env.SagaID)
	if err != nil {
		logger.L().ErrorContext(ctx, "saga reply for unregistered saga",
			"saga", def.Name, "saga_id", env.SagaID, "step", step.Name, "error", err)
		return err
	}

	if _, err := e.repo.Get(ctx, instance.SagaID); err != nil {
		logger.L().ErrorContext(ctx, "failed to load saga state for reply",
			"saga", def.Name, "saga_id", instance.SagaID, "step", step.Name, "error", err)
		return err
	}

	if e.guard.SeenAndMark(instance.SagaID, step.Name, success) {
		logger.L().WarnContext(ctx, "duplicate saga reply ignored",
			"saga", def.Name, "saga_id", instance.SagaID, "step", step.Name, "success", success)
		return nil
	}

	if success {
		var hookErr error
		if step.OnSuccess != nil {
			hookErr = step.OnSuccess(ctx, instance.SagaID, env.Payload)
		}
		if hookErr != nil {
			return e.fail(ctx, instance.Definition, instance.SagaID, idx, hookErr)
		}
		return e.runFrom(ctx, instance.Definition, instance.SagaID, idx+1)
	}

	var payload ErrorPayload
	_ = json.Unmarshal(env.Payload, &payload)

	if step.OnFailure != nil {
		if err := step.OnFailure(ctx, instance.SagaID, env.Payload); err != nil {
			logger.L().ErrorContext(ctx, "saga on-failure hook error",
				"saga", def.Name, "step", step.Name, "error", err)
		}
	}
	return e.failWithPayload(ctx, instance.Definition, instance.SagaID, idx, payload)
}

func (e *Engine) succeed(ctx context.Context, def *Definition, sagaID int64) error {
	if err := e.repo.UpdateStatus(ctx, sagaID, "completed"); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist saga completion",
			"saga", def.Name, "saga_id", sagaID, "error", err)
	}
	if def.OnSagaSuccess != nil {
		return def.OnSagaSuccess(ctx, sagaID)
	}
	return nil
}
