//go:build integration

package test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/welfarecanteen/portal/internal/domain"
	"github.com/welfarecanteen/portal/internal/messaging"
	"github.com/welfarecanteen/portal/internal/notifier"
	"github.com/welfarecanteen/portal/internal/support"
)

func TestSupportTicketFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	repo := support.NewTicketRepository(db)

	first := &domain.SupportTicket{
		Name:    "Asha Rao",
		Mobile:  "9876543210",
		Subject: "Wrong item delivered",
		Message: "I ordered a veg thali and received a sandwich.",
	}
	if err := repo.Create(ctx, first); err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}
	if first.ID == "" {
		t.Fatal("expected a generated ticket id")
	}

	second := &domain.SupportTicket{
		Name:    "Ravi Kumar",
		Mobile:  "9123456780",
		Message: "The portal shows my cancelled order as placed.",
	}
	if err := repo.Create(ctx, second); err != nil {
		t.Fatalf("failed to create ticket: %v", err)
	}

	got, err := repo.GetByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("failed to get ticket: %v", err)
	}
	if got == nil {
		t.Fatal("expected ticket, got nil")
	}
	if got.Name != "Asha Rao" || got.Subject != "Wrong item delivered" {
		t.Errorf("unexpected ticket: %+v", got)
	}

	missing, err := repo.GetByID(ctx, "00000000-0000-0000-0000-000000000000")
	if err != nil {
		t.Fatalf("unexpected error for missing ticket: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing ticket, got %+v", missing)
	}

	tickets, err := repo.List(ctx)
	if err != nil {
		t.Fatalf("failed to list tickets: %v", err)
	}
	if len(tickets) != 2 {
		t.Fatalf("expected 2 tickets, got %d", len(tickets))
	}
	if tickets[0].ID != second.ID {
		t.Errorf("expected newest ticket first, got %s", tickets[0].ID)
	}
}

func TestCancelNotificationFlow(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	pg := SetupPostgres(ctx, t)
	defer pg.Cleanup()

	brokers, cleanupKafka := SetupKafka(ctx, t)
	defer cleanupKafka()

	db, err := OpenDB(pg.ConnStr)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer func() { _ = db.Close() }()

	producer := messaging.NewProducer(brokers, messaging.TopicOrderCancelled)
	defer func() { _ = producer.Close() }()

	event := domain.OrderCancelledEvent{
		OrderID:        101,
		OrderNo:        "WC-0101",
		CustomerMobile: "9876543210",
		CancelledBy:    "7",
		Timestamp:      time.Now().UTC(),
	}
	if err := producer.Publish(ctx, event.OrderNo, event); err != nil {
		t.Fatalf("failed to publish event: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := notifier.NewHandler(db, logger)

	consumer := messaging.NewConsumer(brokers, messaging.TopicOrderCancelled, "cancel-notifier-test",
		messaging.WithStartOffset(kafka.FirstOffset),
	)
	defer func() { _ = consumer.Close() }()

	consumerCtx, stopConsumer := context.WithCancel(ctx)
	defer stopConsumer()
	go func() {
		_ = consumer.Consume(consumerCtx, handler.Handle)
	}()

	deadline := time.Now().Add(60 * time.Second)
	for {
		var count int
		var message string
		err := db.QueryRowContext(ctx, `
			SELECT COUNT(*), COALESCE(MAX(message), '')
			FROM notifications
			WHERE order_id = $1
		`, event.OrderID).Scan(&count, &message)
		if err != nil {
			t.Fatalf("failed to query notifications: %v", err)
		}
		if count == 1 {
			if message != "Your order WC-0101 has been cancelled." {
				t.Errorf("unexpected notification message: %q", message)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("notification row never appeared, count=%d", count)
		}
		time.Sleep(500 * time.Millisecond)
	}
}
