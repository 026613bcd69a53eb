package saga

import (
	"context"
	"errors"

	"github.com/chris-alexander-pop/system-design-library/pkg/logger"
)

// fail converts an orchestrator-side error (a failed Sync action, a failed
// dispatch, or an OnSuccess hook error) into the same failWithPayload path
// a participant-reported failure takes.
func (e *Engine) fail(ctx context.Context, def *Definition, sagaID int64, failedIdx int, cause error) error {
	return e.failWithPayload(ctx, def, sagaID, failedIdx, SerializeError(cause))
}

// failWithPayload records the failure against the step that failed and
// runs the compensation cascade backwards from failedIdx.
func (e *Engine) failWithPayload(ctx context.Context, def *Definition, sagaID int64, failedIdx int, payload ErrorPayload) error {
	stepName := def.Steps[failedIdx].Name

	if err := e.repo.OnStepFailure(ctx, sagaID, stepName, payload); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist saga step failure",
			"saga", def.Name, "saga_id", sagaID, "step", stepName, "error", err)
	}

	e.compensate(ctx, def, sagaID, failedIdx, payload)
	return nil
}

// compensate walks backwards from failedIdx to 0 inclusive, running every
// step's Compensate hook. A compensation error is logged and never stops
// the cascade. Compensate hooks receive only the saga id, not the cause;
// the original cause is passed unchanged to the terminal OnSagaFailure
// hook.
func (e *Engine) compensate(ctx context.Context, def *Definition, sagaID int64, failedIdx int, cause ErrorPayload) {
	if err := e.repo.UpdateStatus(ctx, sagaID, "compensating"); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist compensating status",
			"saga", def.Name, "saga_id", sagaID, "error", err)
	}

	for i := failedIdx; i >= 0; i-- {
		step := def.Steps[i]
		if step.Compensate == nil {
			continue
		}
		if err := e.runCompensation(ctx, step, sagaID); err != nil {
			logger.L().ErrorContext(ctx, "compensation step failed, continuing cascade",
				"saga", def.Name, "saga_id", sagaID, "step", step.Name, "error", err)
		}
	}

	if err := e.repo.UpdateStatus(ctx, sagaID, "compensated"); err != nil {
		logger.L().ErrorContext(ctx, "failed to persist compensated status",
			"saga", def.Name, "saga_id", sagaID, "error", err)
	}

	if def.OnSagaFailure != nil {
		def.OnSagaFailure(ctx, sagaID, cause)
	}
}

func (e *Engine) runCompensation(ctx context.Context, step Step, sagaID int64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			payload := SerializePanic(r)
			err = errors.New(payload.Message)
		}
	}()
	return step.Compensate(ctx, sagaID)
}
