// Package gorm backs saga.Repository with GORM, the same way the rest of
// this tree's data access does (see pkg/database/sql/adapters/postgres and
// .../sqlite) — production runs against Postgres, tests against the
// in-memory SQLite adapter.
package gorm

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"github.com/chris-alexander-pop/system-design-library/pkg/saga"
	gormlib "gorm.io/gorm"
)

// Repository is a GORM-backed saga.Repository.
type Repository struct {
	db *gormlib.DB
}

// New wraps an already-connected *gorm.DB (from postgres.New or
// sqlite.New) as a saga.Repository.
func New(db *gormlib.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates the saga_states table if it doesn't exist.
func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&saga.State{})
}

func (r *Repository) Create(ctx context.Context, sagaID int64, status string, extra json.RawMessage) error {
	row := &saga.State{SagaID: sagaID, Status: status, Extra: extra}
	if err := r.db.WithContext(ctx).Create(row).Error; err != nil {
		return errors.Wrap(err, "create saga state")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, sagaID int64) (*saga.State, error) {
	var row saga.State
	if err := r.db.WithContext(ctx).First(&row, "saga_id = ?", sagaID).Error; err != nil {
		if stderrors.Is(err, gormlib.ErrRecordNotFound) {
			return nil, errors.NotFound("saga not found", err)
		}
		return nil, errors.Wrap(err, "load saga state")
	}
	if len(row.FailureDetailsJSON) > 0 {
		var payload saga.ErrorPayload
		if err := json.Unmarshal(row.FailureDetailsJSON, &payload); err == nil {
			row.FailureDetails = &payload
		}
	}
	return &row, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, sagaID int64, status string) error {
	err := r.db.WithContext(ctx).Model(&saga.State{}).
		Where("saga_id = ?", sagaID).
		Update("status", status).Error
	if err != nil {
		return errors.Wrap(err, "update saga status")
	}
	return nil
}

func (r *Repository) Update(ctx context.Context, sagaID int64, patch saga.StatePatch) error {
	updates := map[string]interface{}{}
	if patch.Status != nil {
		updates["status"] = *patch.Status
	}
	if patch.LastMessageID != nil {
		updates["last_message_id"] = *patch.LastMessageID
	}
	if patch.Extra != nil {
		updates["extra"] = patch.Extra
	}
	if len(updates) == 0 {
		return nil
	}
	err := r.db.WithContext(ctx).Model(&saga.State{}).
		Where("saga_id = ?", sagaID).
		Updates(updates).Error
	if err != nil {
		return errors.Wrap(err, "update saga state")
	}
	return nil
}

func (r *Repository) OnStepFailure(ctx context.Context, sagaID int64, stepName string, payload saga.ErrorPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errors.Wrap(err, "marshal failure payload")
	}
	now := time.Now()
	err = r.db.WithContext(ctx).Model(&saga.State{}).
		Where("saga_id = ?", sagaID).
		Updates(map[string]interface{}{
			"failed_step":      stepName,
			"failed_at":        now,
			"failure_details":  body,
		}).Error
	if err != nil {
		return errors.Wrap(err, "record saga step failure")
	}
	return nil
}
