package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
)

const (
	orderColumns  = `id, purchaser_id, type, total_amount, status, created_at, updated_at`
	ticketColumns = `id, order_id, purchaser_id, session_id, zone_id, buyer_id_number, buyer_name, status, created_at, updated_at`
)

// InsertTicket writes a ticket row. For a valid ticket the partial unique
// index on (session_id, buyer_id_number) makes this the anti-scalping claim:
// a duplicate returns models.ErrDuplicateClaim. The order FK is deferred, so
// the ticket may precede its order within a transaction.
func (s *Store) InsertTicket(ctx context.Context, ticket *models.Ticket) error {
	query := `
		INSERT INTO tickets (id, order_id, purchaser_id, session_id, zone_id, buyer_id_number, buyer_name, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at, updated_at`

	err := sqlx.GetContext(ctx, s.ext(ctx), ticket, query,
		ticket.ID, ticket.OrderID, ticket.PurchaserID, ticket.SessionID, ticket.ZoneID,
		ticket.BuyerIDNumber, ticket.BuyerName, ticket.Status)
	if isUniqueViolation(err) {
		return models.ErrDuplicateClaim
	}
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	return nil
}

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (id, purchaser_id, type, total_amount, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at, updated_at`

	err := sqlx.GetContext(ctx, s.ext(ctx), order, query,
		order.ID, order.PurchaserID, order.Type, order.TotalAmount, order.Status)
	if err != nil {
		return fmt.Errorf("create order: %w", err)
	}
	return nil
}

// GetOrderByID retrieves an order by ID
func (s *Store) GetOrderByID(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := sqlx.GetContext(ctx, s.ext(ctx), &order,
		"SELECT "+orderColumns+" FROM orders WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %s: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order: %w", err)
	}
	return &order, nil
}

// GetTicketsByOrderID retrieves all tickets of an order
func (s *Store) GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error) {
	var tickets []models.Ticket
	err := sqlx.SelectContext(ctx, s.ext(ctx), &tickets,
		"SELECT "+ticketColumns+" FROM tickets WHERE order_id = $1 ORDER BY created_at, id", orderID)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	return tickets, nil
}

// UpdateOrderStatus moves an order from one status to another. It returns
// models.ErrInvalidTransition when the order is not currently in from.
func (s *Store) UpdateOrderStatus(ctx context.Context, orderID string, from, to models.OrderStatus) error {
	res, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, orderID, from)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}
	return expectOneRow(res, "order", orderID)
}

// UpdateTicketStatus moves a ticket from one status to another.
func (s *Store) UpdateTicketStatus(ctx context.Context, ticketID string, from, to models.TicketStatus) error {
	res, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE tickets SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3",
		to, ticketID, from)
	if err != nil {
		return fmt.Errorf("update ticket status: %w", err)
	}
	return expectOneRow(res, "ticket", ticketID)
}

// ExpireValidTickets expires every still-valid ticket of an order and
// returns how many were changed.
func (s *Store) ExpireValidTickets(ctx context.Context, orderID string) (int64, error) {
	res, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE tickets SET status = $1, updated_at = NOW() WHERE order_id = $2 AND status = $3",
		models.TicketStatusExpired, orderID, models.TicketStatusValid)
	if err != nil {
		return 0, fmt.Errorf("expire tickets: %w", err)
	}
	return res.RowsAffected()
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := sqlx.GetContext(ctx, s.ext(ctx), &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}

func expectOneRow(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", kind, id, models.ErrInvalidTransition)
	}
	return nil
}
