package models

import "time"

// Event types
const (
	EventTypeTicketsAllocated = "TICKETS_ALLOCATED"
	EventTypeTicketUsed       = "TICKET_USED"
	EventTypeTicketExpired    = "TICKET_EXPIRED"
	EventTypeOrderShipped     = "ORDER_SHIPPED"
	EventTypeOrderCancelled   = "ORDER_CANCELLED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// TicketsAllocatedEvent is handed to downstream fulfillment (QR codes,
// notifications) once an order commits.
type TicketsAllocatedEvent struct {
	BaseEvent
	OrderID     string       `json:"order_id"`
	PurchaserID int64        `json:"purchaser_id"`
	SessionID   int64        `json:"session_id"`
	ZoneID      int64        `json:"zone_id"`
	TotalAmount Money        `json:"total_amount"`
	Tickets     []TicketData `json:"tickets"`
}

// TicketData represents ticket data in events
type TicketData struct {
	TicketID  string `json:"ticket_id"`
	BuyerName string `json:"buyer_name"`
}

// TicketStatusEvent is published by the venue/fulfillment side when a ticket
// is scanned or lapses.
type TicketStatusEvent struct {
	BaseEvent
	TicketID string `json:"ticket_id"`
}

// OrderStatusEvent is published by shipping or refund workflows.
type OrderStatusEvent struct {
	BaseEvent
	OrderID string `json:"order_id"`
	Reason  string `json:"reason,omitempty"`
}
