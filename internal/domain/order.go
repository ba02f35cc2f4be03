package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusReceived       OrderStatus = "received"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
)

// StatusFlow is the delivery lifecycle an order walks through when left alone.
var StatusFlow = []OrderStatus{
	OrderStatusReceived,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusOutForDelivery,
	OrderStatusDelivered,
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	for _, f := range StatusFlow {
		if f == s {
			return true
		}
	}
	return false
}

// Next returns the status following s in StatusFlow. It reports false for
// terminal or unknown statuses.
func (s OrderStatus) Next() (OrderStatus, bool) {
	for i, f := range StatusFlow[:len(StatusFlow)-1] {
		if f == s {
			return StatusFlow[i+1], true
		}
	}
	return "", false
}

// OrderLine is frozen at placement time; catalog changes never reach it.
type OrderLine struct {
	ItemID    string          `json:"item_id"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`
	Notes     string          `json:"notes,omitempty"`
}

func (l OrderLine) Subtotal() decimal.Decimal {
	return l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Order struct {
	ID           string          `json:"id"`
	CustomerName string          `json:"customer_name"`
	Address      string          `json:"address"`
	Lines        []OrderLine     `json:"lines"`
	Total        decimal.Decimal `json:"total"`
	Status       OrderStatus     `json:"status"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// LinesTotal sums unit price times quantity and rounds to cents.
func LinesTotal(lines []OrderLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Subtotal())
	}
	return total.Round(2)
}

// Clone returns a copy that shares no slices with o.
func (o Order) Clone() Order {
	c := o
	c.Lines = append([]OrderLine(nil), o.Lines...)
	return c
}
