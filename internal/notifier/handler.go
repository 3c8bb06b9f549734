package notifier

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/welfarecanteen/portal/internal/domain"
)

// Handler consumes order.cancelled events and records a notification row for
// each, so the customer-facing channels (picked up out of band) can tell the
// user their order is gone.
type Handler struct {
	db     *sql.DB
	logger *slog.Logger
}

func NewHandler(db *sql.DB, logger *slog.Logger) *Handler {
	return &Handler{
		db:     db,
		logger: logger,
	}
}

func (h *Handler) Handle(ctx context.Context, payload []byte) error {
	var event domain.OrderCancelledEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return fmt.Errorf("unmarshal order cancelled event: %w", err)
	}

	h.logger.Info("processing order cancelled event", "order_id", event.OrderID, "order_no", event.OrderNo)

	message := fmt.Sprintf("Your order %s has been cancelled.", event.OrderNo)

	_, err := h.db.ExecContext(ctx, `
		INSERT INTO notifications (id, order_id, order_no, mobile, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, uuid.New().String(), event.OrderID, event.OrderNo, event.CustomerMobile, message, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record cancellation notification: %w", err)
	}

	h.logger.Info("cancellation notification recorded", "order_id", event.OrderID)
	return nil
}
