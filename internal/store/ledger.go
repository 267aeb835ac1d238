package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"ticket-service/internal/models"

	"github.com/jmoiron/sqlx"
)

// ReserveCapacity adds count to the zone's sold_count if it fits, in a single
// conditional UPDATE. The row lock it takes is held until the surrounding
// transaction ends, so concurrent reservations on the same zone serialize.
// On rejection nothing is written and the returned *models.Rejection carries
// the remaining capacity.
func (s *Store) ReserveCapacity(ctx context.Context, zoneID int64, count int) (int, error) {
	var sold int
	err := sqlx.GetContext(ctx, s.ext(ctx), &sold, `
		UPDATE zones
		SET sold_count = sold_count + $1, updated_at = NOW()
		WHERE id = $2 AND sold_count + $1 <= total_capacity
		RETURNING sold_count`,
		count, zoneID)
	if err == nil {
		return sold, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("reserve capacity: %w", err)
	}

	var remaining int
	err = sqlx.GetContext(ctx, s.ext(ctx), &remaining,
		"SELECT total_capacity - sold_count FROM zones WHERE id = $1", zoneID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("zone %d: %w", zoneID, models.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("read remaining capacity: %w", err)
	}

	return 0, &models.Rejection{Reason: models.ReasonInsufficientCapacity, Remaining: remaining}
}

// ReleaseCapacity undoes a reservation (compensation). It never drives
// sold_count below zero.
func (s *Store) ReleaseCapacity(ctx context.Context, zoneID int64, count int) error {
	res, err := s.ext(ctx).ExecContext(ctx, `
		UPDATE zones
		SET sold_count = sold_count - $1, updated_at = NOW()
		WHERE id = $2 AND sold_count >= $1`,
		count, zoneID)
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("release capacity: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("release %d from zone %d: %w", count, zoneID, models.ErrNotFound)
	}
	return nil
}
