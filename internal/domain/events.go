package domain

import "time"

type OrderCancelledEvent struct {
	OrderID        int64     `json:"order_id"`
	OrderNo        string    `json:"order_no"`
	CustomerMobile string    `json:"customer_mobile,omitempty"`
	CancelledBy    string    `json:"cancelled_by"`
	Timestamp      time.Time `json:"timestamp"`
}
