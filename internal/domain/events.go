package domain

import (
	"time"

	"github.com/google/uuid"
)

type OrderStatusChangedEvent struct {
	EventID      string      `json:"event_id"`
	OrderID      string      `json:"order_id"`
	CustomerName string      `json:"customer_name"`
	Status       OrderStatus `json:"status"`
	OccurredAt   time.Time   `json:"occurred_at"`
}

func NewOrderStatusChangedEvent(orderID, customerName string, status OrderStatus) OrderStatusChangedEvent {
	return OrderStatusChangedEvent{
		EventID:      uuid.New().String(),
		OrderID:      orderID,
		CustomerName: customerName,
		Status:       status,
		OccurredAt:   time.Now().UTC(),
	}
}
