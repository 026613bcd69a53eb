package saga_test

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/messaging/adapters/memory"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	sagamemory "github.com/chris-alexander-pop/system-design-library/pkg/saga/repository/memory"
)

func waitFor(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for saga to settle")
	}
}

func newTestEngine(t *testing.T) (*saga.Engine, *memory.Broker, *sagamemory.Repository) {
	broker := memory.New(memory.Config{BufferSize: 16})
	t.Cleanup(func() { _ = broker.Close() })
	repo := sagamemory.New()
	engine := saga.NewEngine(broker, repo, saga.NewRegistry())
	return engine, broker, repo
}

func TestEngine_HappyPath_SyncThenAsync(t *testing.T) {
	engine, broker, repo := newTestEngine(t)

	const task = "test.step.a"
	const sagaID = int64(1)

	var syncRan bool
	done := make(chan struct{})

	def := saga.NewDefinition("happy_path_saga").
		AddStep(saga.Step{
			Name: "sync-step",
			Kind: saga.Sync,
			Action: func(ctx context.Context, sagaID int64) error {
				syncRan = true
				return nil
			},
		}).
		AddStep(saga.Step{
			Name:         "async-step",
			Kind:         saga.Async,
			BaseTaskName: task,
			Dispatch: func(ctx context.Context, sagaID int64) ([]byte, error) {
				return json.Marshal(map[string]int64{"saga_id": sagaID})
			},
			OnSuccess: func(ctx context.Context, sagaID int64, payload []byte) error {
				return nil
			},
		})
	def.OnSagaSuccess = func(ctx context.Context, sagaID int64) error {
		close(done)
		return nil
	}
	engine.Registry().Register(def)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := engine.RegisterReplyHandlers(ctx, def, "happy-path-replies"); err != nil {
		t.Fatalf("register reply handlers: %v", err)
	}

	// Stand in for the remote participant: echo the request straight back
	// as a success reply.
	reqConsumer, err := broker.Consumer(saga.RequestTopic(task), "participant")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	replyProducer, err := broker.Producer(saga.SuccessTopic(task))
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	go reqConsumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
		return replyProducer.Publish(ctx, &messaging.Message{Payload: msg.Payload})
	})

	if err := repo.Create(ctx, sagaID, "started", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Execute(ctx, def, sagaID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	waitFor(t, done)

	if !syncRan {
		t.Error("expected sync step to run")
	}
	state, err := repo.Get(ctx, sagaID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != "completed" {
		t.Errorf("expected completed status, got %q", state.Status)
	}
}

func TestEngine_FailureTriggersCompensationCascade(t *testing.T) {
	engine, broker, repo := newTestEngine(t)

	const task = "test.step.charge"
	const sagaID = int64(2)

	var compensated []string
	done := make(chan struct{})

	def := saga.NewDefinition("failing_saga").
		AddStep(saga.Step{
			Name:   "reserve",
			Kind:   saga.Sync,
			Action: func(ctx context.Context, sagaID int64) error { return nil },
			Compensate: func(ctx context.Context, sagaID int64) error {
				compensated = append(compensated, "reserve")
				return nil
			},
		}).
		AddStep(saga.Step{
			Name:         "charge",
			Kind:         saga.Async,
			BaseTaskName: task,
			Dispatch:     func(ctx context.Context, sagaID int64) ([]byte, error) { return nil, nil },
			OnFailure:    func(ctx context.Context, sagaID int64, payload []byte) error { return nil },
		})
	def.OnSagaFailure = func(ctx context.Context, sagaID int64, cause saga.ErrorPayload) {
		close(done)
	}
	engine.Registry().Register(def)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := engine.RegisterReplyHandlers(ctx, def, "failing-saga-replies"); err != nil {
		t.Fatalf("register reply handlers: %v", err)
	}

	reqConsumer, err := broker.Consumer(saga.RequestTopic(task), "participant")
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	replyProducer, err := broker.Producer(saga.FailureTopic(task))
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	go reqConsumer.Consume(ctx, func(ctx context.Context, msg *messaging.Message) error {
		var env saga.Envelope
		if err := json.Unmarshal(msg.Payload, &env); err != nil {
			return err
		}
		errPayload, _ := json.Marshal(saga.ErrorPayload{Type: "CardDeclined", Message: "card declined"})
		body, _ := json.Marshal(saga.Envelope{SagaID: env.SagaID, Payload: errPayload})
		return replyProducer.Publish(ctx, &messaging.Message{Payload: body})
	})

	if err := repo.Create(ctx, sagaID, "started", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Execute(ctx, def, sagaID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	waitFor(t, done)

	if len(compensated) != 1 || compensated[0] != "reserve" {
		t.Errorf("expected reserve to be compensated, got %v", compensated)
	}
	state, err := repo.Get(ctx, sagaID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != "compensated" {
		t.Errorf("expected compensated status, got %q", state.Status)
	}
	if state.FailedStep == nil || *state.FailedStep != "charge" {
		t.Errorf("expected failed step 'charge', got %v", state.FailedStep)
	}
}

func TestEngine_DuplicateReplyIsIgnored(t *testing.T) {
	engine, broker, repo := newTestEngine(t)

	const task = "test.step.notify"
	const sagaID = int64(3)

	var calls int32
	done := make(chan struct{})

	def := saga.NewDefinition("dedup_saga").
		AddStep(saga.Step{
			Name:         "notify",
			Kind:         saga.Async,
			BaseTaskName: task,
			Dispatch:     func(ctx context.Context, sagaID int64) ([]byte, error) { return nil, nil },
			OnSuccess: func(ctx context.Context, sagaID int64, payload []byte) error {
				atomic.AddInt32(&calls, 1)
				return nil
			},
		})
	def.OnSagaSuccess = func(ctx context.Context, sagaID int64) error {
		close(done)
		return nil
	}
	engine.Registry().Register(def)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	if err := engine.RegisterReplyHandlers(ctx, def, "dedup-saga-replies"); err != nil {
		t.Fatalf("register reply handlers: %v", err)
	}

	if err := repo.Create(ctx, sagaID, "started", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := engine.Execute(ctx, def, sagaID); err != nil {
		t.Fatalf("execute: %v", err)
	}

	replyProducer, err := broker.Producer(saga.SuccessTopic(task))
	if err != nil {
		t.Fatalf("producer: %v", err)
	}
	body, err := json.Marshal(saga.Envelope{SagaID: sagaID})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	if err := replyProducer.Publish(ctx, &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	waitFor(t, done)

	// Redeliver the identical reply -- the bloom-filter guard must drop it.
	if err := replyProducer.Publish(ctx, &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}
	time.Sleep(50 * time.Millisecond)

	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Errorf("expected OnSuccess to run exactly once, got %d", got)
	}
}
