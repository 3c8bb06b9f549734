// Package lifecycle manages the client-visible order state machine:
// placed -> {confirmed, cancelled}, confirmed -> {completed, cancelled},
// completed and cancelled terminal.
package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/welfarecanteen/portal/internal/backend"
	"github.com/welfarecanteen/portal/internal/domain"
)

// Canceller is the slice of the canteen API the controller consumes.
type Canceller interface {
	CancelOrder(ctx context.Context, orderID int64) (backend.CancelResult, error)
}

// OrderStore is the visible result set the controller reconciles after a
// server-acknowledged cancellation. It never writes any other field.
type OrderStore interface {
	LookupOrder(orderID int64) (domain.OrderSummary, bool)
	ReplaceOrder(updated domain.OrderSummary)
}

// EventPublisher emits the order.cancelled event after an acknowledged
// cancellation. May be nil when messaging is not configured.
type EventPublisher interface {
	Publish(ctx context.Context, key string, event any) error
}

type Outcome string

const (
	// OutcomeNoOp: terminal state or unknown order, nothing was attempted.
	OutcomeNoOp Outcome = "noop"
	// OutcomePending: awaiting user confirmation, no network effect yet.
	OutcomePending Outcome = "pending"
	// OutcomeRejected: a cancellation for this order is already in flight.
	OutcomeRejected Outcome = "rejected"
	// OutcomeCancelled: the server acknowledged the cancellation.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeFailed: the server refused or the call failed; state unchanged.
	OutcomeFailed Outcome = "failed"
)

type Result struct {
	Outcome Outcome `json:"outcome"`
	Message string  `json:"message"`
}

type Controller struct {
	canceller Canceller
	store     OrderStore
	publisher EventPublisher
	logger    *slog.Logger

	actor string

	mu       sync.Mutex
	inFlight map[int64]struct{}

	cancelCounter metric.Int64Counter
}

// NewController builds a controller acting on behalf of actor (the session's
// user identity, injected read-only). publisher may be nil.
func NewController(canceller Canceller, store OrderStore, publisher EventPublisher, actor string, logger *slog.Logger) *Controller {
	counter, err := otel.Meter("portal/lifecycle").Int64Counter("portal.orders.cancelled",
		metric.WithDescription("Orders cancelled through the portal"),
	)
	if err != nil {
		logger.Error("failed to create cancel counter", "error", err)
	}

	return &Controller{
		canceller:     canceller,
		store:         store,
		publisher:     publisher,
		logger:        logger,
		actor:         actor,
		inFlight:      make(map[int64]struct{}),
		cancelCounter: counter,
	}
}

// PendingCancel is the confirmation gate: nothing touches the network until
// Confirm is called. Dismissing the gate leaves all state untouched.
type PendingCancel struct {
	controller *Controller
	summary    domain.OrderSummary
}

func (p *PendingCancel) Order() domain.OrderSummary {
	return p.summary
}

// RequestCancel checks the last known status of the order and either refuses
// immediately or hands back the confirmation gate.
func (c *Controller) RequestCancel(orderID int64) (*PendingCancel, Result) {
	summary, ok := c.store.LookupOrder(orderID)
	if !ok {
		return nil, Result{Outcome: OutcomeNoOp, Message: "Order not found"}
	}

	switch {
	case summary.Status.Normalize() == domain.OrderStatusCancelled:
		return nil, Result{Outcome: OutcomeNoOp, Message: "This order has already been cancelled"}
	case summary.Status.IsTerminal():
		return nil, Result{Outcome: OutcomeNoOp, Message: "Cannot cancel a completed order"}
	}

	c.mu.Lock()
	_, busy := c.inFlight[orderID]
	c.mu.Unlock()
	if busy {
		return nil, Result{Outcome: OutcomeRejected, Message: "Cancellation already in progress"}
	}

	return &PendingCancel{controller: c, summary: summary}, Result{
		Outcome: OutcomePending,
		Message: "Are you sure you want to cancel this order?",
	}
}

// Confirm performs the cancellation. The visible status changes only after
// the server acknowledges success, never optimistically before.
func (p *PendingCancel) Confirm(ctx context.Context) Result {
	return p.controller.confirm(ctx, p.summary)
}

// Dismiss abandons the gate without side effects.
func (p *PendingCancel) Dismiss() {}

func (c *Controller) confirm(ctx context.Context, summary domain.OrderSummary) Result {
	// Re-check the snapshot: the order may have reached a terminal state
	// between the gate opening and the user confirming.
	if current, ok := c.store.LookupOrder(summary.ID); ok {
		if current.Status.Normalize() == domain.OrderStatusCancelled {
			return Result{Outcome: OutcomeNoOp, Message: "This order has already been cancelled"}
		}
		if current.Status.IsTerminal() {
			return Result{Outcome: OutcomeNoOp, Message: "Cannot cancel a completed order"}
		}
		summary = current
	}

	c.mu.Lock()
	if _, busy := c.inFlight[summary.ID]; busy {
		c.mu.Unlock()
		return Result{Outcome: OutcomeRejected, Message: "Cancellation already in progress"}
	}
	c.inFlight[summary.ID] = struct{}{}
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.inFlight, summary.ID)
		c.mu.Unlock()
	}()

	result, err := c.canceller.CancelOrder(ctx, summary.ID)
	if err != nil {
		c.logger.Error("failed to cancel order", "error", err, "order_id", summary.ID)
		return Result{Outcome: OutcomeFailed, Message: cancelFailureMessage(err)}
	}
	if !result.Success {
		message := result.Message
		if message == "" {
			message = "Failed to cancel order"
		}
		return Result{Outcome: OutcomeFailed, Message: message}
	}

	c.store.ReplaceOrder(summary.WithStatus(domain.OrderStatusCancelled))

	if c.cancelCounter != nil {
		c.cancelCounter.Add(ctx, 1)
	}

	if c.publisher != nil {
		event := domain.OrderCancelledEvent{
			OrderID:        summary.ID,
			OrderNo:        summary.OrderNo,
			CustomerMobile: summary.CustomerMobile,
			CancelledBy:    c.actor,
			Timestamp:      time.Now().UTC(),
		}
		if err := c.publisher.Publish(ctx, summary.OrderNo, event); err != nil {
			c.logger.Error("failed to publish order cancelled event", "error", err, "order_id", summary.ID)
		}
	}

	c.logger.Info("order cancelled", "order_id", summary.ID, "order_no", summary.OrderNo)
	return Result{Outcome: OutcomeCancelled, Message: "Order cancelled successfully"}
}

// PendingCancelIDs lists the orders whose cancellation calls are in flight.
func (c *Controller) PendingCancelIDs() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := make([]int64, 0, len(c.inFlight))
	for id := range c.inFlight {
		ids = append(ids, id)
	}
	return ids
}

func cancelFailureMessage(err error) string {
	var rule *backend.BusinessRuleError
	if errors.As(err, &rule) {
		return rule.Message
	}
	return "Failed to cancel order"
}
