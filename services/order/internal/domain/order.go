// Package domain holds the order service's own persisted models, kept
// separate from the generic saga.State row the engine owns.
package domain

import "time"

// Status is an order's lifecycle state.
type Status string

const (
	StatusPendingValidation Status = "pending_validation"
	StatusApproved          Status = "approved"
	StatusRejected          Status = "rejected"
)

// Order is the business entity a create-order saga is acting on.
type Order struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	Status     Status `gorm:"column:status"`
	ConsumerID int64  `gorm:"column:consumer_id"`
	CardID     int64  `gorm:"column:card_id"`
	Price      int64  `gorm:"column:price"`

	TransactionID      int64 `gorm:"column:transaction_id"`
	RestaurantTicketID int64 `gorm:"column:restaurant_ticket_id"`

	Items []OrderItem `gorm:"foreignKey:OrderID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Order) TableName() string { return "orders" }

// OrderItem is one line item of an Order.
type OrderItem struct {
	ID       int64  `gorm:"primaryKey;autoIncrement"`
	OrderID  int64  `gorm:"column:order_id"`
	Name     string `gorm:"column:name"`
	Quantity int    `gorm:"column:quantity"`
}

func (OrderItem) TableName() string { return "order_items" }
