package domain

import (
	"context"

	"github.com/chris-alexander-pop/system-design-library/pkg/errors"
	"gorm.io/gorm"
)

// Repository persists Order aggregates.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Migrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&Order{}, &OrderItem{})
}

func (r *Repository) Create(ctx context.Context, order *Order) error {
	if err := r.db.WithContext(ctx).Create(order).Error; err != nil {
		return errors.Wrap(err, "create order")
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, orderID int64) (*Order, error) {
	var order Order
	if err := r.db.WithContext(ctx).Preload("Items").First(&order, "id = ?", orderID).Error; err != nil {
		return nil, errors.Wrap(err, "load order")
	}
	return &order, nil
}

func (r *Repository) UpdateStatus(ctx context.Context, orderID int64, status Status) error {
	err := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
	if err != nil {
		return errors.Wrap(err, "update order status")
	}
	return nil
}

func (r *Repository) SetTicketID(ctx context.Context, orderID int64, ticketID int64) error {
	err := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderID).
		Update("restaurant_ticket_id", ticketID).Error
	if err != nil {
		return errors.Wrap(err, "set restaurant ticket id")
	}
	return nil
}

func (r *Repository) SetTransactionID(ctx context.Context, orderID int64, transactionID int64) error {
	err := r.db.WithContext(ctx).Model(&Order{}).
		Where("id = ?", orderID).
		Update("transaction_id", transactionID).Error
	if err != nil {
		return errors.Wrap(err, "set transaction id")
	}
	return nil
}
