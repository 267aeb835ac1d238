package store

import (
	"context"
	"fmt"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// InsertOutboxEvent records an event to be relayed after commit.
func (s *Store) InsertOutboxEvent(ctx context.Context, event *models.OutboxEvent) error {
	err := sqlx.GetContext(ctx, s.ext(ctx), &event.CreatedAt, `
		INSERT INTO outbox_events (id, aggregate_id, event_type, payload)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at`,
		event.ID, event.AggregateID, event.EventType, string(event.Payload))
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// FetchUnpublished locks up to limit unpublished events, oldest first.
// Rows locked by another relay are skipped. Call it inside WithTx.
func (s *Store) FetchUnpublished(ctx context.Context, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := sqlx.SelectContext(ctx, s.ext(ctx), &events, `
		SELECT id, aggregate_id, event_type, payload, created_at, published_at
		FROM outbox_events
		WHERE published_at IS NULL
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch outbox: %w", err)
	}
	return events, nil
}

// MarkPublished stamps an outbox event as relayed.
func (s *Store) MarkPublished(ctx context.Context, id string) error {
	_, err := s.ext(ctx).ExecContext(ctx,
		"UPDATE outbox_events SET published_at = NOW() WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("mark outbox published: %w", err)
	}
	return nil
}
