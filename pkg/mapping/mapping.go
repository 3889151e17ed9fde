// Package mapping implements C6: the customer↔polling-server mapping
// store. Updates replace a customer's mapping transactionally; reads
// reconcile duplicate "primary" flags by keeping the first one encountered
// and logging a warning, per spec §4.6.
//
// Grounded on dbc/include/customer_mapping_manager.h and
// dbc/source/customer_mapping.cpp (original_source) for the replace
// semantics, and pkg/alert/store.go (wisbric-nightowl) for the pgx.Tx
// usage pattern.
package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/inesonic/speedsentry/internal/dbmux"
)

// Mapping is a customer's {primary server, set of servers} per spec §3.
type Mapping struct {
	PrimaryServerID uint32
	Servers         map[uint32]struct{}
}

// NewMapping builds a Mapping from an ordered server-ID list, taking the
// first ID as primary per spec §9 open question (b): first-wins.
func NewMapping(serverIDs []uint32) Mapping {
	m := Mapping{Servers: make(map[uint32]struct{}, len(serverIDs))}
	for i, id := range serverIDs {
		if i == 0 {
			m.PrimaryServerID = id
		}
		m.Servers[id] = struct{}{}
	}
	return m
}

// Valid reports whether the primary server is a member of the set, or the
// mapping is empty (an empty mapping has no primary and is trivially valid).
func (m Mapping) Valid() bool {
	if len(m.Servers) == 0 {
		return true
	}
	_, ok := m.Servers[m.PrimaryServerID]
	return ok
}

// Store is C6.
type Store struct {
	logger *slog.Logger
}

// NewStore creates a mapping Store.
func NewStore(logger *slog.Logger) *Store {
	return &Store{logger: logger}
}

// beginner is implemented by *pgx.Conn; UpdateMapping needs to start a
// nested transaction, which a bare dbmux.DBTX handle cannot do.
type beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// UpdateMapping replaces a customer's mapping inside a transaction: DELETE
// every existing row, then INSERT one row per server with primary_server
// set true exactly for m.PrimaryServerID. Any failure rolls back.
func (s *Store) UpdateMapping(ctx context.Context, db beginner, customerID uint32, m Mapping) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("mapping: beginning transaction for customer %d: %w", customerID, err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM customer_mapping WHERE customer_id = $1`, customerID); err != nil {
		return fmt.Errorf("mapping: clearing customer %d: %w", customerID, err)
	}

	for serverID := range m.Servers {
		primary := serverID == m.PrimaryServerID
		if _, err := tx.Exec(ctx, `
			INSERT INTO customer_mapping (customer_id, server_id, primary_server)
			VALUES ($1, $2, $3)
		`, customerID, serverID, primary); err != nil {
			return fmt.Errorf("mapping: inserting server %d for customer %d: %w", serverID, customerID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("mapping: committing customer %d: %w", customerID, err)
	}
	return nil
}

// GetMapping loads a customer's mapping. If more than one row is flagged
// primary, the first encountered wins and a warning is logged (spec §4.6).
func (s *Store) GetMapping(ctx context.Context, db dbmux.DBTX, customerID uint32) (Mapping, error) {
	rows, err := db.Query(ctx, `
		SELECT server_id, primary_server FROM customer_mapping WHERE customer_id = $1
	`, customerID)
	if err != nil {
		return Mapping{}, fmt.Errorf("mapping: loading customer %d: %w", customerID, err)
	}
	defer rows.Close()

	m := Mapping{Servers: map[uint32]struct{}{}}
	primarySeen := false
	for rows.Next() {
		var serverID uint32
		var primary bool
		if err := rows.Scan(&serverID, &primary); err != nil {
			return Mapping{}, fmt.Errorf("mapping: scanning row for customer %d: %w", customerID, err)
		}
		m.Servers[serverID] = struct{}{}
		if primary {
			if primarySeen {
				s.logger.Warn("mapping: multiple primary rows, keeping the first", "customer_id", customerID)
				continue
			}
			primarySeen = true
			m.PrimaryServerID = serverID
		}
	}
	if err := rows.Err(); err != nil {
		return Mapping{}, fmt.Errorf("mapping: iterating customer %d: %w", customerID, err)
	}
	return m, nil
}

// ByCustomerID groups every mapping row, optionally filtered to one server,
// by customer ID (spec §4.6 "mappings").
func (s *Store) ByCustomerID(ctx context.Context, db dbmux.DBTX, serverID *uint32) (map[uint32]Mapping, error) {
	var (
		rows interface {
			Next() bool
			Scan(dest ...any) error
			Close()
			Err() error
		}
		err error
	)
	if serverID != nil {
		rows, err = db.Query(ctx, `
			SELECT customer_id, server_id, primary_server FROM customer_mapping WHERE server_id = $1
		`, *serverID)
	} else {
		rows, err = db.Query(ctx, `SELECT customer_id, server_id, primary_server FROM customer_mapping`)
	}
	if err != nil {
		return nil, fmt.Errorf("mapping: listing mappings: %w", err)
	}
	defer rows.Close()

	out := map[uint32]Mapping{}
	for rows.Next() {
		var customerID, thisServerID uint32
		var primary bool
		if err := rows.Scan(&customerID, &thisServerID, &primary); err != nil {
			return nil, fmt.Errorf("mapping: scanning row: %w", err)
		}
		m, ok := out[customerID]
		if !ok {
			m = Mapping{Servers: map[uint32]struct{}{}}
		}
		m.Servers[thisServerID] = struct{}{}
		if primary {
			m.PrimaryServerID = thisServerID
		}
		out[customerID] = m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mapping: iterating rows: %w", err)
	}
	return out, nil
}

// DeleteCustomer removes every mapping row for one customer (cascade path).
func (s *Store) DeleteCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32) error {
	_, err := db.Exec(ctx, `DELETE FROM customer_mapping WHERE customer_id = $1`, customerID)
	if err != nil {
		return fmt.Errorf("mapping: deleting customer %d: %w", customerID, err)
	}
	return nil
}
