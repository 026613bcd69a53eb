package memory_test

import (
	"context"
	"testing"

	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga/repository/memory"
)

func TestRepository_CreateGetUpdate(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()

	if err := repo.Create(ctx, 1, "started", nil); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repo.Create(ctx, 1, "started", nil); err == nil {
		t.Fatal("expected conflict on duplicate create")
	}

	state, err := repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != "started" {
		t.Errorf("expected status 'started', got %q", state.Status)
	}

	if err := repo.UpdateStatus(ctx, 1, "completed"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	msgID := "msg-123"
	if err := repo.Update(ctx, 1, saga.StatePatch{LastMessageID: &msgID}); err != nil {
		t.Fatalf("update: %v", err)
	}

	state, err = repo.Get(ctx, 1)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.Status != "completed" || state.LastMessageID != msgID {
		t.Errorf("expected status 'completed' and last message %q, got %+v", msgID, state)
	}
}

func TestRepository_GetMissingReturnsNotFound(t *testing.T) {
	repo := memory.New()
	if _, err := repo.Get(context.Background(), 99); err == nil {
		t.Fatal("expected not-found error for missing saga")
	}
}

func TestRepository_OnStepFailureRecordsDetails(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	if err := repo.Create(ctx, 2, "started", nil); err != nil {
		t.Fatalf("create: %v", err)
	}

	payload := saga.ErrorPayload{Type: "ValueError", Message: "bad input"}
	if err := repo.OnStepFailure(ctx, 2, "charge", payload); err != nil {
		t.Fatalf("on step failure: %v", err)
	}

	state, err := repo.Get(ctx, 2)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if state.FailedStep == nil || *state.FailedStep != "charge" {
		t.Errorf("expected failed step 'charge', got %v", state.FailedStep)
	}
	if state.FailureDetails == nil || state.FailureDetails.Message != "bad input" {
		t.Errorf("expected failure details message 'bad input', got %+v", state.FailureDetails)
	}
	if state.FailedAt == nil {
		t.Error("expected failed-at timestamp to be set")
	}
}
