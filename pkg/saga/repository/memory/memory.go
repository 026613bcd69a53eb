// Package memory is an in-process saga.Repository backed by a guarded map,
// for engine unit tests and the stub-broker end-to-end scenarios.
package memory

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/concurrency"
	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
)

// Repository is a mutex-guarded in-memory implementation of saga.Repository.
type Repository struct {
	mu     *concurrency.SmartRWMutex
	states map[int64]*saga.State
}

// New creates an empty in-memory repository.
func New() *Repository {
	return &Repository{
		mu:     concurrency.NewSmartRWMutex(concurrency.MutexConfig{Name: "SagaRepositoryMemory"}),
		states: make(map[int64]*saga.State),
	}
}

func (r *Repository) Create(ctx context.Context, sagaID int64, status string, extra json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.states[sagaID]; ok {
		return errors.Conflict("saga already exists", nil)
	}
	r.states[sagaID] = &saga.State{SagaID: sagaID, Status: status, Extra: extra}
	return nil
}

func (r *Repository) Get(ctx context.Context, sagaID int64) (*saga.State, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.states[sagaID]
	if !ok {
		return nil, errors.NotFound("saga not found", nil)
	}
	copied := *s
	return &copied, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, sagaID int64, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[sagaID]
	if !ok {
		return errors.NotFound("saga not found", nil)
	}
	s.Status = status
	return nil
}

func (r *Repository) Update(ctx context.Context, sagaID int64, patch saga.StatePatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[sagaID]
	if !ok {
		return errors.NotFound("saga not found", nil)
	}
	if patch.Status != nil {
		s.Status = *patch.Status
	}
	if patch.LastMessageID != nil {
		s.LastMessageID = *patch.LastMessageID
	}
	if patch.Extra != nil {
		s.Extra = patch.Extra
	}
	return nil
}

func (r *Repository) OnStepFailure(ctx context.Context, sagaID int64, stepName string, payload saga.ErrorPayload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.states[sagaID]
	if !ok {
		return errors.NotFound("saga not found", nil)
	}
	name := stepName
	now := time.Now()
	s.FailedStep = &name
	s.FailedAt = &now
	p := payload
	s.FailureDetails = &p
	return nil
}
