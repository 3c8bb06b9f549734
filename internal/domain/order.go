package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPlaced    OrderStatus = "placed"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Normalize lower-cases a server-provided status. The status set is open:
// unknown values are kept as-is and simply never match a known transition.
func (s OrderStatus) Normalize() OrderStatus {
	return OrderStatus(strings.ToLower(string(s)))
}

// IsTerminal reports whether no further lifecycle transition is permitted.
func (s OrderStatus) IsTerminal() bool {
	n := s.Normalize()
	return n == OrderStatusCompleted || n == OrderStatusCancelled
}

// CanCancel reports whether a cancellation may be attempted from this status.
func (s OrderStatus) CanCancel() bool {
	n := s.Normalize()
	return n == OrderStatusPlaced || n == OrderStatusConfirmed
}

// OrderSummary is the list-view projection of an order. Instances are
// immutable snapshots of server truth; a cancellation produces a new value
// via WithStatus rather than mutating an existing one.
type OrderSummary struct {
	ID             int64           `json:"id"`
	OrderNo        string          `json:"order_no"`
	Status         OrderStatus     `json:"status"`
	OrderDate      int64           `json:"order_date"`
	TotalAmount    decimal.Decimal `json:"total_amount"`
	CustomerMobile string          `json:"customer_mobile,omitempty"`
	CanteenName    string          `json:"canteen_name,omitempty"`
}

// WithStatus returns a copy of the summary with the given status.
func (o OrderSummary) WithStatus(status OrderStatus) OrderSummary {
	o.Status = status
	return o
}

type OrderLineItem struct {
	ItemName  string          `json:"item_name"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// LineTotal is quantity times unit price.
func (i OrderLineItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type PaymentRecord struct {
	ID     int64           `json:"id"`
	Amount decimal.Decimal `json:"amount"`
	Status string          `json:"status"`
	Method string          `json:"method"`
}

type OrderDetail struct {
	OrderSummary
	CreatedAt int64           `json:"created_at"`
	Items     []OrderLineItem `json:"items"`
	Payments  []PaymentRecord `json:"payments"`
}

// FormatOrderDate renders an epoch-seconds timestamp as dd-mm-yyyy, the
// display format used across the portal.
func FormatOrderDate(ts int64) string {
	return time.Unix(ts, 0).Format("02-01-2006")
}

// FormatOrderDateTime renders an epoch-seconds timestamp as
// dd-mm-yyyy hh:mm:ss.
func FormatOrderDateTime(ts int64) string {
	return time.Unix(ts, 0).Format("02-01-2006 15:04:05")
}
