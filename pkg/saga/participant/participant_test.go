package participant_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/pkg/messaging"
	"github.com/chris-alexander-pop/system-design-library/pkg/resilience"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/participant"
)

type captureResponder struct {
	published []*messaging.Message
}

func (c *captureResponder) Publish(ctx context.Context, msg *messaging.Message) error {
	c.published = append(c.published, msg)
	return nil
}

func envelope(t *testing.T, sagaID int64, payload interface{}) []byte {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	env, err := json.Marshal(saga.Envelope{SagaID: sagaID, Payload: body})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return env
}

func TestHandle_Success(t *testing.T) {
	resp := &captureResponder{}
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		return map[string]string{"ok": "yes"}, nil
	}
	wrapped := participant.Handle(resp, "do.thing", handler)

	body := envelope(t, 42, map[string]int{"x": 1})
	if err := wrapped(context.Background(), &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(resp.published) != 1 {
		t.Fatalf("expected 1 published reply, got %d", len(resp.published))
	}
	if resp.published[0].Topic != saga.SuccessTopic("do.thing") {
		t.Errorf("expected success topic, got %q", resp.published[0].Topic)
	}
}

func TestHandle_Failure(t *testing.T) {
	resp := &captureResponder{}
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("boom")
	}
	wrapped := participant.Handle(resp, "do.thing", handler)

	body := envelope(t, 7, map[string]int{})
	if err := wrapped(context.Background(), &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if len(resp.published) != 1 {
		t.Fatalf("expected 1 published reply, got %d", len(resp.published))
	}
	if resp.published[0].Topic != saga.FailureTopic("do.thing") {
		t.Errorf("expected failure topic, got %q", resp.published[0].Topic)
	}

	var env saga.Envelope
	if err := json.Unmarshal(resp.published[0].Payload, &env); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}
	var errPayload saga.ErrorPayload
	if err := json.Unmarshal(env.Payload, &errPayload); err != nil {
		t.Fatalf("unmarshal error payload: %v", err)
	}
	if errPayload.Message != "boom" {
		t.Errorf("expected message %q, got %q", "boom", errPayload.Message)
	}
}

func TestHandle_PanicBecomesFailureReply(t *testing.T) {
	resp := &captureResponder{}
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		panic("unexpected")
	}
	wrapped := participant.Handle(resp, "do.thing", handler)

	body := envelope(t, 9, map[string]int{})
	if err := wrapped(context.Background(), &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(resp.published) != 1 {
		t.Fatalf("expected 1 published reply, got %d", len(resp.published))
	}
	if resp.published[0].Topic != saga.FailureTopic("do.thing") {
		t.Errorf("expected failure topic after panic, got %q", resp.published[0].Topic)
	}
}

func TestWithAutoRetry_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		attempts++
		if attempts < 2 {
			return nil, errors.New("transient")
		}
		return "done", nil
	}
	cfg := resilience.DefaultRetryConfig()
	cfg.InitialBackoff = 0
	retried := participant.WithAutoRetry(handler, cfg)

	response, err := retried(context.Background(), 1, json.RawMessage(`{}`))
	if err != nil {
		t.Fatalf("expected eventual success, got %v", err)
	}
	if response != "done" {
		t.Errorf("expected response %q, got %v", "done", response)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestWithAutoRetry_ExhaustsAttempts(t *testing.T) {
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("always fails")
	}
	cfg := resilience.RetryConfig{MaxAttempts: 2, InitialBackoff: 0}
	retried := participant.WithAutoRetry(handler, cfg)

	if _, err := retried(context.Background(), 1, json.RawMessage(`{}`)); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
}

func TestHandleCompensation_RunsHandlerAndNeverPublishes(t *testing.T) {
	called := false
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		called = true
		return nil, nil
	}
	wrapped := participant.HandleCompensation(handler)

	body := envelope(t, 5, map[string]int{})
	if err := wrapped(context.Background(), &messaging.Message{Payload: body}); err != nil {
		t.Fatalf("handle compensation: %v", err)
	}
	if !called {
		t.Error("expected handler to run")
	}
}

func TestHandleCompensation_ErrorIsLoggedNotPropagated(t *testing.T) {
	handler := func(ctx context.Context, sagaID int64, payload json.RawMessage) (interface{}, error) {
		return nil, errors.New("compensation failed")
	}
	wrapped := participant.HandleCompensation(handler)

	body := envelope(t, 6, map[string]int{})
	if err := wrapped(context.Background(), &messaging.Message{Payload: body}); err != nil {
		t.Errorf("expected nil error even when handler fails, got %v", err)
	}
}
