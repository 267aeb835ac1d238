package service

import (
	"context"
	"errors"

	"ticket-service/internal/models"
)

// ErrOrderNotFound is returned by OrderQueries for an unknown order id.
var ErrOrderNotFound = errors.New("order not found")

// OrderReadStore reads committed orders and tickets.
type OrderReadStore interface {
	GetOrderByID(ctx context.Context, id string) (*models.Order, error)
	GetTicketsByOrderID(ctx context.Context, orderID string) ([]models.Ticket, error)
}

// OrderQueries serves read-only views of committed orders.
type OrderQueries struct {
	store OrderReadStore
}

func NewOrderQueries(store OrderReadStore) *OrderQueries {
	return &OrderQueries{store: store}
}

// GetOrder retrieves an order with its tickets
func (q *OrderQueries) GetOrder(ctx context.Context, orderID string) (*models.Order, []models.Ticket, error) {
	order, err := q.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, nil, err
	}

	tickets, err := q.store.GetTicketsByOrderID(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	return order, tickets, nil
}
