package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ticket-service/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubCache struct {
	sessions map[int64]*models.Session
	zones    map[int64]*models.Zone
	readErr  error
	writes   int
}

func newStubCache() *stubCache {
	return &stubCache{sessions: map[int64]*models.Session{}, zones: map[int64]*models.Zone{}}
}

func (c *stubCache) GetCachedSession(ctx context.Context, id int64) (*models.Session, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.sessions[id], nil
}

func (c *stubCache) CacheSession(ctx context.Context, s *models.Session, ttl time.Duration) error {
	c.writes++
	cp := *s
	c.sessions[s.ID] = &cp
	return nil
}

func (c *stubCache) GetCachedZone(ctx context.Context, id int64) (*models.Zone, error) {
	if c.readErr != nil {
		return nil, c.readErr
	}
	return c.zones[id], nil
}

func (c *stubCache) CacheZone(ctx context.Context, z *models.Zone, ttl time.Duration) error {
	c.writes++
	cp := *z
	cp.SoldCount = 0
	c.zones[z.ID] = &cp
	return nil
}

func TestLookupZone(t *testing.T) {
	st := newMemStore()
	st.addSession(1, models.SessionStatusAvailable)
	st.addZone(10, 1, 100, 40, "299.00")
	cache := newStubCache()
	c := NewSessionZoneCatalog(st, cache, time.Minute)

	listing, err := c.LookupZone(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), listing.Session.ID)
	assert.Equal(t, 100, listing.Zone.TotalCapacity)
	assert.Zero(t, listing.Zone.SoldCount)
	assert.Equal(t, 2, cache.writes)

	// Served from the cache once the store forgets the rows.
	delete(st.sessions, 1)
	delete(st.zones, 10)
	listing, err = c.LookupZone(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), listing.Zone.ID)
}

func TestLookupZoneFallsThroughOnCacheError(t *testing.T) {
	st := newMemStore()
	st.addSession(1, models.SessionStatusAvailable)
	st.addZone(10, 1, 100, 0, "10")
	cache := newStubCache()
	cache.readErr = errors.New("redis down")
	c := NewSessionZoneCatalog(st, cache, time.Minute)

	listing, err := c.LookupZone(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(10), listing.Zone.ID)
}

func TestLookupZoneWithoutCache(t *testing.T) {
	st := newMemStore()
	st.addSession(1, models.SessionStatusAvailable)
	c := NewSessionZoneCatalog(st, nil, time.Minute)

	_, err := c.LookupZone(context.Background(), 2, 10)
	requireRejection(t, err, models.ReasonSessionNotFound)

	_, err = c.LookupZone(context.Background(), 1, 10)
	requireRejection(t, err, models.ReasonZoneNotFound)
}

func TestZoneBelongsToSession(t *testing.T) {
	c := NewSessionZoneCatalog(newMemStore(), nil, time.Minute)
	zone := &models.Zone{ID: 10, SessionID: 1}

	assert.True(t, c.ZoneBelongsToSession(zone, 1))
	assert.False(t, c.ZoneBelongsToSession(zone, 2))
	assert.False(t, c.ZoneBelongsToSession(nil, 1))
}

func TestAvailability(t *testing.T) {
	st := newMemStore()
	st.addSession(1, models.SessionStatusAvailable)
	st.addZone(10, 1, 100, 40, "299.00")
	cache := newStubCache()
	c := NewSessionZoneCatalog(st, cache, time.Minute)

	avail, err := c.Availability(context.Background(), 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 100, avail.TotalCapacity)
	assert.Equal(t, 40, avail.SoldCount)
	assert.Equal(t, 60, avail.Remaining)
	assert.Zero(t, cache.writes)

	_, err = c.Availability(context.Background(), 2, 10)
	requireRejection(t, err, models.ReasonZoneSessionMismatch)

	_, err = c.Availability(context.Background(), 1, 11)
	requireRejection(t, err, models.ReasonZoneNotFound)
}
