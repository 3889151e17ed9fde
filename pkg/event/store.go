package event

import (
	"context"
	"fmt"

	"github.com/inesonic/speedsentry/internal/dbmux"
)

// Store persists and queries recent events. Grounded on
// pkg/latency/store.go's DBTX-parameterized query shape.
type Store struct{}

// NewStore creates an event Store.
func NewStore() *Store { return &Store{} }

// Record inserts a new event, returning its assigned ID.
func (s *Store) Record(ctx context.Context, db dbmux.DBTX, e Event) (uint64, error) {
	var id uint64
	err := db.QueryRow(ctx, `
		INSERT INTO events (customer_id, monitor_id, server_id, status, message, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING event_id
	`, e.CustomerID, e.MonitorID, e.ServerID, string(e.Status), e.Message, e.OccurredAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("event: recording event for monitor %d: %w", e.MonitorID, err)
	}
	return id, nil
}

// ByCustomer returns the most recent limit events for a customer, newest first.
func (s *Store) ByCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32, limit int) ([]Event, error) {
	rows, err := db.Query(ctx, `
		SELECT event_id, customer_id, monitor_id, server_id, status, message, occurred_at
		FROM events
		WHERE customer_id = $1
		ORDER BY occurred_at DESC
		LIMIT $2
	`, customerID, limit)
	if err != nil {
		return nil, fmt.Errorf("event: querying events for customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var status string
		if err := rows.Scan(&e.ID, &e.CustomerID, &e.MonitorID, &e.ServerID, &status, &e.Message, &e.OccurredAt); err != nil {
			return nil, fmt.Errorf("event: scanning row: %w", err)
		}
		e.Status = Status(status)
		events = append(events, e)
	}
	return events, rows.Err()
}

// DeleteByCustomer removes every event recorded for customerID, part of the
// cascade spec §9(a)'s customer purge performs.
func (s *Store) DeleteByCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32) error {
	_, err := db.Exec(ctx, `DELETE FROM events WHERE customer_id = $1`, customerID)
	if err != nil {
		return fmt.Errorf("event: deleting events for customer %d: %w", customerID, err)
	}
	return nil
}
