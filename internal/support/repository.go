package support

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/welfarecanteen/portal/internal/domain"
)

// TicketRepository stores support tickets submitted through the contact
// page. Tickets are the only state the portal owns itself.
type TicketRepository struct {
	db *sql.DB
}

func NewTicketRepository(db *sql.DB) *TicketRepository {
	return &TicketRepository{db: db}
}

func (r *TicketRepository) Create(ctx context.Context, ticket *domain.SupportTicket) error {
	ticket.ID = uuid.New().String()
	ticket.CreatedAt = time.Now().UTC()

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO support_tickets (id, name, mobile, subject, message, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, ticket.ID, ticket.Name, ticket.Mobile, ticket.Subject, ticket.Message, ticket.CreatedAt)
	return err
}

func (r *TicketRepository) GetByID(ctx context.Context, id string) (*domain.SupportTicket, error) {
	ticket := &domain.SupportTicket{}

	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, mobile, subject, message, created_at
		FROM support_tickets
		WHERE id = $1
	`, id).Scan(&ticket.ID, &ticket.Name, &ticket.Mobile, &ticket.Subject, &ticket.Message, &ticket.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return ticket, nil
}

func (r *TicketRepository) List(ctx context.Context) ([]domain.SupportTicket, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, mobile, subject, message, created_at
		FROM support_tickets
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tickets := []domain.SupportTicket{}
	for rows.Next() {
		var ticket domain.SupportTicket
		if err := rows.Scan(&ticket.ID, &ticket.Name, &ticket.Mobile, &ticket.Subject, &ticket.Message, &ticket.CreatedAt); err != nil {
			return nil, err
		}
		tickets = append(tickets, ticket)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tickets, nil
}
