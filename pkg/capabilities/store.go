package capabilities

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/inesonic/speedsentry/internal/cache"
	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/telemetry"
)

const cacheName = "capabilities"

func capabilitiesID(c Capabilities) uint32 { return c.CustomerID }

// Store is C5.
type Store struct {
	mu     sync.Mutex
	cache  *cache.Cache[Capabilities, uint32]
	logger *slog.Logger
}

// NewStore creates a capabilities Store with the given cache depth.
func NewStore(cacheDepth uint64, logger *slog.Logger) *Store {
	return &Store{
		cache:  cache.New[Capabilities, uint32](cacheDepth, capabilitiesID),
		logger: logger,
	}
}

// Get returns a customer's capabilities, consulting the cache first.
func (s *Store) Get(ctx context.Context, db dbmux.DBTX, customerID uint32, noCacheUpdate bool) (Capabilities, bool) {
	s.mu.Lock()
	if cached, ok := s.cache.Get(customerID); ok {
		s.mu.Unlock()
		telemetry.CacheHitsTotal.WithLabelValues(cacheName).Inc()
		return cached, true
	}
	s.mu.Unlock()
	telemetry.CacheMissesTotal.WithLabelValues(cacheName).Inc()

	row, err := s.queryRow(ctx, db, customerID)
	if err != nil {
		s.logger.Debug("capabilities: no stored row", "customer_id", customerID, "error", err)
		return Capabilities{}, false
	}

	if !noCacheUpdate {
		s.mu.Lock()
		s.cache.AddOrUpdate(row)
		s.mu.Unlock()
	}
	return row, true
}

func (s *Store) queryRow(ctx context.Context, db dbmux.DBTX, customerID uint32) (Capabilities, error) {
	var (
		c                                  Capabilities
		maxMonitors, pollingInterval, flgs uint32
	)
	err := db.QueryRow(ctx, `
		SELECT customer_id, number_monitors, polling_interval, expiration_days, flags
		FROM customer_capabilities WHERE customer_id = $1
	`, customerID).Scan(&c.CustomerID, &maxMonitors, &pollingInterval, &c.ExpirationDays, &flgs)
	if err != nil {
		return Capabilities{}, err
	}
	if !valid(maxMonitors, pollingInterval, flgs) {
		return Capabilities{}, fmt.Errorf("capabilities: row for customer %d fails bounds check", customerID)
	}
	c.MaxMonitors = uint16(maxMonitors)
	c.PollingInterval = uint16(pollingInterval)
	c.Flags = Flag(flgs)
	return c, nil
}

// Update UPSERTs a capabilities row and publishes it to the cache.
func (s *Store) Update(ctx context.Context, db dbmux.DBTX, c Capabilities) error {
	_, err := db.Exec(ctx, `
		INSERT INTO customer_capabilities (customer_id, number_monitors, polling_interval, expiration_days, flags)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (customer_id) DO UPDATE SET
			number_monitors = EXCLUDED.number_monitors,
			polling_interval = EXCLUDED.polling_interval,
			expiration_days = EXCLUDED.expiration_days,
			flags = EXCLUDED.flags
	`, c.CustomerID, c.MaxMonitors, c.PollingInterval, c.ExpirationDays, uint16(c.Flags))
	if err != nil {
		return fmt.Errorf("capabilities: upserting customer %d: %w", c.CustomerID, err)
	}

	s.mu.Lock()
	s.cache.AddOrUpdate(c)
	s.mu.Unlock()
	return nil
}

// Delete removes one customer's capabilities row and evicts the cache entry.
func (s *Store) Delete(ctx context.Context, db dbmux.DBTX, customerID uint32) bool {
	_, err := db.Exec(ctx, `DELETE FROM customer_capabilities WHERE customer_id = $1`, customerID)
	if err != nil {
		s.logger.Error("capabilities: deleting row", "customer_id", customerID, "error", err)
		return false
	}
	s.mu.Lock()
	evicted := s.cache.Evict(customerID)
	s.mu.Unlock()
	if evicted {
		telemetry.CacheEvictionsTotal.WithLabelValues(cacheName, "delete").Inc()
	}
	return true
}

// Purge bulk-deletes capabilities for every customer ID in ids, holding the
// cache mutex across the DELETE per spec §4.5.
func (s *Store) Purge(ctx context.Context, db dbmux.DBTX, ids []uint32) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range ids {
		if s.cache.Evict(id) {
			telemetry.CacheEvictionsTotal.WithLabelValues(cacheName, "purge").Inc()
		}
	}

	_, err := db.Exec(ctx, `DELETE FROM customer_capabilities WHERE customer_id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("capabilities: purging %d customers: %w", len(ids), err)
	}
	return nil
}

// GetAll returns every capabilities row, skipping and logging rows that
// fail the §4.5 bounds check.
func (s *Store) GetAll(ctx context.Context, db dbmux.DBTX) ([]Capabilities, error) {
	rows, err := db.Query(ctx, `
		SELECT customer_id, number_monitors, polling_interval, expiration_days, flags
		FROM customer_capabilities
	`)
	if err != nil {
		return nil, fmt.Errorf("capabilities: listing rows: %w", err)
	}
	defer rows.Close()

	var out []Capabilities
	for rows.Next() {
		var (
			c                                  Capabilities
			maxMonitors, pollingInterval, flgs uint32
		)
		if err := rows.Scan(&c.CustomerID, &maxMonitors, &pollingInterval, &c.ExpirationDays, &flgs); err != nil {
			return nil, fmt.Errorf("capabilities: scanning row: %w", err)
		}
		if !valid(maxMonitors, pollingInterval, flgs) {
			s.logger.Warn("capabilities: skipping invalid row", "customer_id", c.CustomerID)
			continue
		}
		c.MaxMonitors = uint16(maxMonitors)
		c.PollingInterval = uint16(pollingInterval)
		c.Flags = Flag(flgs)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("capabilities: iterating rows: %w", err)
	}
	return out, nil
}
