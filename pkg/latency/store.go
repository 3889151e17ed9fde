package latency

import (
	"context"
	"fmt"

	"github.com/inesonic/speedsentry/internal/dbmux"
)

// Store persists raw samples and upserts aggregate buckets.
type Store struct{}

// NewStore creates a latency Store.
func NewStore() *Store { return &Store{} }

// Record inserts the raw entries from one ingest payload, tagged with the
// reporting server's ID (derived by the caller from the header's identifier).
func (s *Store) Record(ctx context.Context, db dbmux.DBTX, serverID uint32, entries []Entry) error {
	for _, e := range entries {
		_, err := db.Exec(ctx, `
			INSERT INTO latency_raw (monitor_id, server_id, ts, latency_us)
			VALUES ($1, $2, $3, $4)
		`, e.MonitorID, serverID, e.Timestamp, e.LatencyMicroseconds)
		if err != nil {
			return fmt.Errorf("latency: recording sample for monitor %d: %w", e.MonitorID, err)
		}
	}
	return nil
}

// rawRow is one (monitorId, serverId, timestamp, latencyMicroseconds) tuple
// read back from the raw table during a tick.
type rawRow struct {
	monitorID uint32
	serverID  uint32
	timestamp uint32
	latencyUs uint32
}

// selectOlderThan returns every raw row with ts < cutoff.
func (s *Store) selectOlderThan(ctx context.Context, db dbmux.DBTX, cutoff uint32) ([]rawRow, error) {
	rows, err := db.Query(ctx, `
		SELECT monitor_id, server_id, ts, latency_us FROM latency_raw WHERE ts < $1
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("latency: selecting rows older than %d: %w", cutoff, err)
	}
	defer rows.Close()

	var out []rawRow
	for rows.Next() {
		var r rawRow
		if err := rows.Scan(&r.monitorID, &r.serverID, &r.timestamp, &r.latencyUs); err != nil {
			return nil, fmt.Errorf("latency: scanning raw row: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latency: iterating raw rows: %w", err)
	}
	return out, nil
}

// deleteOlderThan removes raw rows with ts < cutoff.
func (s *Store) deleteOlderThan(ctx context.Context, db dbmux.DBTX, cutoff uint32) error {
	_, err := db.Exec(ctx, `DELETE FROM latency_raw WHERE ts < $1`, cutoff)
	if err != nil {
		return fmt.Errorf("latency: deleting raw rows older than %d: %w", cutoff, err)
	}
	return nil
}

// upsertBucket merges b into the stored aggregate row for its key, or
// inserts a new one (spec §4.9 step 4: merge via Welford combine).
func (s *Store) upsertBucket(ctx context.Context, db dbmux.DBTX, b Bucket) error {
	var existing Bucket
	existing.MonitorID, existing.ServerID, existing.BucketStart = b.MonitorID, b.ServerID, b.BucketStart

	err := db.QueryRow(ctx, `
		SELECT count, mean, variance_sum, min_us, max_us FROM latency_aggregate
		WHERE monitor_id = $1 AND server_id = $2 AND bucket_start = $3
	`, b.MonitorID, b.ServerID, b.BucketStart).Scan(&existing.Count, &existing.Mean, &existing.M2, &existing.Min, &existing.Max)
	if err == nil {
		existing.Merge(b)
	} else {
		existing = b
	}

	_, err = db.Exec(ctx, `
		INSERT INTO latency_aggregate (monitor_id, server_id, bucket_start, count, mean, variance_sum, min_us, max_us)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (monitor_id, server_id, bucket_start) DO UPDATE SET
			count = EXCLUDED.count, mean = EXCLUDED.mean, variance_sum = EXCLUDED.variance_sum,
			min_us = EXCLUDED.min_us, max_us = EXCLUDED.max_us
	`, existing.MonitorID, existing.ServerID, existing.BucketStart, existing.Count, existing.Mean, existing.M2, existing.Min, existing.Max)
	if err != nil {
		return fmt.Errorf("latency: upserting bucket (%d,%d,%d): %w", b.MonitorID, b.ServerID, b.BucketStart, err)
	}
	return nil
}

// expungeOlderThan deletes aggregate rows with bucket_start < cutoff.
func (s *Store) expungeOlderThan(ctx context.Context, db dbmux.DBTX, cutoff uint32) (int64, error) {
	tag, err := db.Exec(ctx, `DELETE FROM latency_aggregate WHERE bucket_start < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("latency: expunging aggregate rows older than %d: %w", cutoff, err)
	}
	return tag.RowsAffected(), nil
}

// BucketsByMonitor loads every aggregate bucket for one monitor with
// bucket_start in [from, to], ascending by bucket_start — the data behind
// spec §4.10's resource/plot and resource/statistics endpoints (rendering
// itself stays out of scope per spec's Non-goals).
func (s *Store) BucketsByMonitor(ctx context.Context, db dbmux.DBTX, monitorID uint32, from, to uint32) ([]Bucket, error) {
	rows, err := db.Query(ctx, `
		SELECT monitor_id, server_id, bucket_start, count, mean, variance_sum, min_us, max_us
		FROM latency_aggregate
		WHERE monitor_id = $1 AND bucket_start >= $2 AND bucket_start <= $3
		ORDER BY bucket_start ASC
	`, monitorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("latency: selecting buckets for monitor %d: %w", monitorID, err)
	}
	defer rows.Close()

	var out []Bucket
	for rows.Next() {
		var b Bucket
		if err := rows.Scan(&b.MonitorID, &b.ServerID, &b.BucketStart, &b.Count, &b.Mean, &b.M2, &b.Min, &b.Max); err != nil {
			return nil, fmt.Errorf("latency: scanning bucket row: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("latency: iterating bucket rows: %w", err)
	}
	return out, nil
}

// DeleteByCustomerID removes all raw and aggregate rows for the given
// customers' monitors (spec §4.9 "deleteByCustomerId").
func (s *Store) DeleteByCustomerID(ctx context.Context, db dbmux.DBTX, customerIDs []uint32) error {
	if _, err := db.Exec(ctx, `
		DELETE FROM latency_raw WHERE monitor_id IN (SELECT id FROM monitors WHERE customer_id = ANY($1))
	`, customerIDs); err != nil {
		return fmt.Errorf("latency: deleting raw rows for %d customers: %w", len(customerIDs), err)
	}
	if _, err := db.Exec(ctx, `
		DELETE FROM latency_aggregate WHERE monitor_id IN (SELECT id FROM monitors WHERE customer_id = ANY($1))
	`, customerIDs); err != nil {
		return fmt.Errorf("latency: deleting aggregate rows for %d customers: %w", len(customerIDs), err)
	}
	return nil
}
