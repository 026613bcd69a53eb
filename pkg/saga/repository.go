package saga

import (
	"context"
	"encoding/json"
	"time"
)

// State is the persisted record of one saga instance. The five core fields
// are owned by the engine; Extra is reserved for the concrete saga's own
// application data (e.g. an order id) when it doesn't keep a richer table
// of its own.
type State struct {
	SagaID             int64           `gorm:"primaryKey;column:saga_id"`
	Status             string          `gorm:"column:status"`
	LastMessageID      string          `gorm:"column:last_message_id"`
	FailedStep         *string         `gorm:"column:failed_step"`
	FailedAt           *time.Time      `gorm:"column:failed_at"`
	FailureDetails     *ErrorPayload   `gorm:"-"`
	FailureDetailsJSON json.RawMessage `gorm:"column:failure_details"`
	Extra              json.RawMessage `gorm:"column:extra"`
}

func (State) TableName() string { return "saga_states" }

// StatePatch carries a partial update to State; nil fields are left
// untouched by Repository.Update.
type StatePatch struct {
	Status        *string
	LastMessageID *string
	Extra         json.RawMessage
}

// Repository persists and loads saga state. The engine reloads the state
// row through Repository on every reply before acting; no saga
// continuation is held in process memory between messages.
type Repository interface {
	Create(ctx context.Context, sagaID int64, status string, extra json.RawMessage) error
	Get(ctx context.Context, sagaID int64) (*State, error)
	UpdateStatus(ctx context.Context, sagaID int64, status string) error
	Update(ctx context.Context, sagaID int64, patch StatePatch) error
	OnStepFailure(ctx context.Context, sagaID int64, stepName string, payload ErrorPayload) error
}
