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
	sessionColumns = `id, event_id, name, starts_at, ends_at, status, created_at`
	zoneColumns    = `id, session_id, name, total_capacity, sold_count, price, created_at, updated_at`
)

// GetSession retrieves a session by ID
func (s *Store) GetSession(ctx context.Context, id int64) (*models.Session, error) {
	var session models.Session
	err := sqlx.GetContext(ctx, s.ext(ctx), &session,
		"SELECT "+sessionColumns+" FROM sessions WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

// GetZone retrieves a zone by ID. SoldCount is a read snapshot; only the
// ledger mutates it.
func (s *Store) GetZone(ctx context.Context, id int64) (*models.Zone, error) {
	var zone models.Zone
	err := sqlx.GetContext(ctx, s.ext(ctx), &zone,
		"SELECT "+zoneColumns+" FROM zones WHERE id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("zone %d: %w", id, models.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get zone: %w", err)
	}
	return &zone, nil
}
