package saga

import (
	"context"
	"encoding/json"
	"time"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InstrumentedRepository wraps a Repository with an OpenTelemetry span and
// a structured log line on every call, the same decorator idiom
// pkg/database/sql.InstrumentedSQL applies to SQL -- used uniformly over
// both the gorm and memory Repository adapters rather than duplicated in
// each adapter package.
type InstrumentedRepository struct {
	next   Repository
	tracer trace.Tracer
}

// NewInstrumentedRepository wraps next for tracing and logging.
func NewInstrumentedRepository(next Repository) *InstrumentedRepository {
	return &InstrumentedRepository{next: next, tracer: otel.Tracer("pkg/saga")}
}

func (r *InstrumentedRepository) Create(ctx context.Context, sagaID int64, status string, extra json.RawMessage) error {
	ctx, span := r.tracer.Start(ctx, "saga.Repository.Create")
	defer span.End()
	start := time.Now()
	err := r.next.Create(ctx, sagaID, status, extra)
	logRepositoryCall(ctx, span, "create saga state", sagaID, start, err)
	return err
}

func (r *InstrumentedRepository) Get(ctx context.Context, sagaID int64) (*State, error) {
	ctx, span := r.tracer.Start(ctx, "saga.Repository.Get")
	defer span.End()
	start := time.Now()
	state, err := r.next.Get(ctx, sagaID)
	logRepositoryCall(ctx, span, "load saga state", sagaID, start, err)
	return state, err
}

func (r *InstrumentedRepository) UpdateStatus(ctx context.Context, sagaID int64, status string) error {
	ctx, span := r.tracer.Start(ctx, "saga.Repository.UpdateStatus")
	defer span.End()
	start := time.Now()
	err := r.next.UpdateStatus(ctx, sagaID, status)
	logRepositoryCall(ctx, span, "update saga status", sagaID, start, err)
	return err
}

func (r *InstrumentedRepository) Update(ctx context.Context, sagaID int64, patch StatePatch) error {
	ctx, span := r.tracer.Start(ctx, "saga.Repository.Update")
	defer span.End()
	start := time.Now()
	err := r.next.Update(ctx, sagaID, patch)
	logRepositoryCall(ctx, span, "update saga state", sagaID, start, err)
	return err
}

func (r *InstrumentedRepository) OnStepFailure(ctx context.Context, sagaID int64, stepName string, payload ErrorPayload) error {
	ctx, span := r.tracer.Start(ctx, "saga.Repository.OnStepFailure")
	defer span.End()
	start := time.Now()
	err := r.next.OnStepFailure(ctx, sagaID, stepName, payload)
	logRepositoryCall(ctx, span, "record saga step failure", sagaID, start, err)
	return err
}

func logRepositoryCall(ctx context.Context, span trace.Span, msg string, sagaID int64, start time.Time, err error) {
	duration := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.L().ErrorContext(ctx, msg+" failed",
			"saga_id", sagaID, "error", err, "duration_ms", duration.Milliseconds())
		return
	}
	logger.L().DebugContext(ctx, msg, "saga_id", sagaID, "duration_ms", duration.Milliseconds())
}
