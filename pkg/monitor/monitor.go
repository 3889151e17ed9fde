// Package monitor implements the supplemental monitor-CRUD module SPEC_FULL
// calls for: monitors are referenced throughout C8 ("the customer's ...
// current monitors" on customer/add) but never given their own module in
// spec.md. Modeled on dbc/include/customer_rest_api_v1.h's per-customer
// monitor record (original_source) and pkg/apikey/store.go
// (wisbric-nightowl) for the raw-pgx CRUD shape.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/inesonic/speedsentry/internal/dbmux"
)

// Monitor is one customer-registered check target.
type Monitor struct {
	ID                    uint32   `json:"id"`
	CustomerID            uint32   `json:"customer_id"`
	URL                   string   `json:"url"`
	Method                string   `json:"method"`
	ContentPattern        string   `json:"content_pattern,omitempty"`
	Keywords              []string `json:"keywords,omitempty"`
	CheckIntervalOverride uint32   `json:"check_interval_override,omitempty"`
}

// Store is the monitor CRUD store.
type Store struct{}

// NewStore creates a monitor Store.
func NewStore() *Store { return &Store{} }

// ByCustomer loads every monitor belonging to one customer.
func (s *Store) ByCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32) ([]Monitor, error) {
	rows, err := db.Query(ctx, `
		SELECT id, customer_id, url, method, content_pattern, keywords, check_interval_override
		FROM monitors WHERE customer_id = $1
	`, customerID)
	if err != nil {
		return nil, fmt.Errorf("monitor: listing customer %d: %w", customerID, err)
	}
	defer rows.Close()

	var out []Monitor
	for rows.Next() {
		var m Monitor
		var keywordsCSV string
		if err := rows.Scan(&m.ID, &m.CustomerID, &m.URL, &m.Method, &m.ContentPattern, &keywordsCSV, &m.CheckIntervalOverride); err != nil {
			return nil, fmt.Errorf("monitor: scanning row: %w", err)
		}
		if keywordsCSV != "" {
			m.Keywords = strings.Split(keywordsCSV, ",")
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("monitor: iterating rows: %w", err)
	}
	return out, nil
}

// ByID loads a single monitor, reporting false if it does not exist.
func (s *Store) ByID(ctx context.Context, db dbmux.DBTX, id uint32) (Monitor, bool, error) {
	var m Monitor
	var keywordsCSV string
	err := db.QueryRow(ctx, `
		SELECT id, customer_id, url, method, content_pattern, keywords, check_interval_override
		FROM monitors WHERE id = $1
	`, id).Scan(&m.ID, &m.CustomerID, &m.URL, &m.Method, &m.ContentPattern, &keywordsCSV, &m.CheckIntervalOverride)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Monitor{}, false, nil
		}
		return Monitor{}, false, fmt.Errorf("monitor: loading monitor %d: %w", id, err)
	}
	if keywordsCSV != "" {
		m.Keywords = strings.Split(keywordsCSV, ",")
	}
	return m, true, nil
}

// Create inserts a new monitor and returns its assigned ID.
func (s *Store) Create(ctx context.Context, db dbmux.DBTX, m Monitor) (uint32, error) {
	var id uint32
	err := db.QueryRow(ctx, `
		INSERT INTO monitors (customer_id, url, method, content_pattern, keywords, check_interval_override)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, m.CustomerID, m.URL, m.Method, m.ContentPattern, strings.Join(m.Keywords, ","), m.CheckIntervalOverride).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("monitor: creating monitor for customer %d: %w", m.CustomerID, err)
	}
	return id, nil
}

// Delete removes one monitor by ID.
func (s *Store) Delete(ctx context.Context, db dbmux.DBTX, id uint32) error {
	_, err := db.Exec(ctx, `DELETE FROM monitors WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("monitor: deleting monitor %d: %w", id, err)
	}
	return nil
}

// DeleteByCustomer removes every monitor belonging to a customer (cascade path).
func (s *Store) DeleteByCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32) error {
	_, err := db.Exec(ctx, `DELETE FROM monitors WHERE customer_id = $1`, customerID)
	if err != nil {
		return fmt.Errorf("monitor: deleting monitors for customer %d: %w", customerID, err)
	}
	return nil
}
