package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type Item struct {
	ID           int64           `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Description  string          `json:"description"`
	Type         string          `json:"type,omitempty"`
	Quantity     int             `json:"quantity"`
	QuantityUnit string          `json:"quantity_unit"`
	Price        decimal.Decimal `json:"price"`
	Currency     string          `json:"currency,omitempty"`
	StartDate    string          `json:"start_date,omitempty"`
	EndDate      string          `json:"end_date,omitempty"`
	ImageURL     string          `json:"image_url"`
	Status       string          `json:"status,omitempty"`
}

type CanteenContact struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Mobile    string `json:"mobile"`
}

type Canteen struct {
	ID       int64          `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Code     string         `json:"code,omitempty"`
	Location string         `json:"location,omitempty"`
	ImageURL string         `json:"image_url"`
	Contact  CanteenContact `json:"contact"`
}

type User struct {
	ID        int64  `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email,omitempty"`
	Mobile    string `json:"mobile"`
}

type ItemWiseCount struct {
	ItemID        int64  `json:"item_id"`
	ItemName      string `json:"item_name"`
	TotalQuantity string `json:"total_quantity"`
	MenuName      string `json:"menu_name"`
}

// DashboardTotals is the per-day (optionally per-canteen) order roll-up shown
// on the admin dashboard.
type DashboardTotals struct {
	TotalAmount    decimal.Decimal `json:"total_amount"`
	TotalOrders    int             `json:"total_orders"`
	Placed         int             `json:"placed"`
	Completed      int             `json:"completed"`
	Cancelled      int             `json:"cancelled"`
	ItemWiseCounts []ItemWiseCount `json:"item_wise_counts"`
}

type SupportTicket struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Mobile    string    `json:"mobile"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}
