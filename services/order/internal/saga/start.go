package saga

import (
	"context"
	"encoding/json"

	corepkg "github.com/chris-alexander-pop/system-design-library/pkg/saga"
	"github.com/chris-alexander-pop/system-design-library/services/order/internal/domain"
)

// Input is the data needed to start a create-order saga, mirroring the
// order-creation request body a (not-in-scope) HTTP front end would
// otherwise translate into this call.
type Input struct {
	ConsumerID int64
	CardID     int64
	Price      int64
	Items      []domain.OrderItem
}

// Start persists the Order and its saga.State row (sharing one id) and
// runs the saga's first step. It is the narrow function boundary an
// external trigger (HTTP handler, CLI, message consumer) calls into; the
// engine itself never exposes a network entry point.
func Start(ctx context.Context, engine *corepkg.Engine, def *corepkg.Definition, orders *domain.Repository, sagaRepo corepkg.Repository, input Input) (int64, error) {
	order := &domain.Order{
		Status:     domain.StatusPendingValidation,
		ConsumerID: input.ConsumerID,
		CardID:     input.CardID,
		Price:      input.Price,
		Items:      input.Items,
	}
	if err := orders.Create(ctx, order); err != nil {
		return 0, err
	}

	if err := sagaRepo.Create(ctx, order.ID, "ORDER_CREATED", json.RawMessage(`{}`)); err != nil {
		return 0, err
	}

	if err := engine.Execute(ctx, def, order.ID); err != nil {
		return order.ID, err
	}
	return order.ID, nil
}
