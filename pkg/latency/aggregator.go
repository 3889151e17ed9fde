package latency

import (
	"context"
	"log/slog"
	"time"

	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/telemetry"
)

// Leader arbitrates which of several running replicas may tick — see
// internal/leaderlock.Lock, the Redis-backed implementation this is
// satisfied by in production. Nil means "always tick" (single-replica
// deployments, and every existing test).
type Leader interface {
	TryAcquire(ctx context.Context) (bool, error)
	Renew(ctx context.Context) (bool, error)
}

// Aggregator runs C9's periodic rollup as a single background task; the
// REST path never blocks on it (spec §4.9 "Suspension"). When replicated,
// leader holds the Redis lock so only one replica actually ticks.
type Aggregator struct {
	mux                  *dbmux.Multiplexer
	store                *Store
	logger               *slog.Logger
	resamplePeriod       time.Duration
	inputTableMaximumAge time.Duration
	expungePeriod        time.Duration
	now                  func() time.Time
	leader               Leader
	isLeader             bool
}

// SetLeader installs the lock Run consults before each tick. Call before Run.
func (a *Aggregator) SetLeader(l Leader) { a.leader = l }

// Config holds the tunables spec §6's configuration file exposes for the
// aggregator: aggregation_sample_period, aggregation_age, expunge_age.
//
// Spec §4.9 step 4 also names an inputAggregated mode, where input rows
// are themselves pre-aggregated (monitorId, serverId, bucketStart, count,
// mean, varianceSum, min, max) tuples to Merge rather than individual
// samples to Add. No ingestion path in this system ever writes such rows
// — the wire format (spec §6) and latency.Store.Record only ever produce
// single-sample latency_raw rows — so there is nothing for that mode to
// switch on; it is dropped here rather than kept as a knob that can never
// take effect.
type Config struct {
	ResamplePeriod       time.Duration
	InputTableMaximumAge time.Duration
	ExpungePeriod        time.Duration
}

// NewAggregator creates an Aggregator. now defaults to time.Now.
func NewAggregator(mux *dbmux.Multiplexer, store *Store, cfg Config, logger *slog.Logger) *Aggregator {
	return &Aggregator{
		mux:                  mux,
		store:                store,
		logger:               logger,
		resamplePeriod:       cfg.ResamplePeriod,
		inputTableMaximumAge: cfg.InputTableMaximumAge,
		expungePeriod:        cfg.ExpungePeriod,
		now:                  time.Now,
	}
}

// Run starts the rollup loop, ticking every resamplePeriod until ctx is
// cancelled.
func (a *Aggregator) Run(ctx context.Context) error {
	a.logger.Info("latency aggregator started", "resample_period", a.resamplePeriod)

	ticker := time.NewTicker(a.resamplePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("latency aggregator stopped")
			return nil
		case <-ticker.C:
			if !a.acquireOrRenewLeadership(ctx) {
				continue
			}
			if err := a.Tick(ctx); err != nil {
				a.logger.Error("latency aggregator tick", "error", err)
			}
		}
	}
}

// acquireOrRenewLeadership reports whether this replica should tick this
// round. With no Leader installed it always returns true.
func (a *Aggregator) acquireOrRenewLeadership(ctx context.Context) bool {
	if a.leader == nil {
		return true
	}

	if a.isLeader {
		held, err := a.leader.Renew(ctx)
		if err != nil {
			a.logger.Error("latency aggregator: renewing leadership", "error", err)
			a.isLeader = false
			return false
		}
		a.isLeader = held
		return held
	}

	acquired, err := a.leader.TryAcquire(ctx)
	if err != nil {
		a.logger.Error("latency aggregator: acquiring leadership", "error", err)
		return false
	}
	a.isLeader = acquired
	return acquired
}

// Tick performs one rollup pass (spec §4.9 "Operation").
func (a *Aggregator) Tick(ctx context.Context) error {
	start := a.now()
	defer func() { telemetry.AggregatorTickDuration.Observe(time.Since(start).Seconds()) }()

	handle, err := a.mux.AcquireUnique(ctx)
	if err != nil {
		return err
	}
	defer handle.Release(ctx)
	db := handle.Conn()

	now := uint32(start.Unix())
	cutoff := now - uint32(a.inputTableMaximumAge.Seconds())

	rows, err := a.store.selectOlderThan(ctx, db, cutoff)
	if err != nil {
		return err
	}
	telemetry.AggregatorRowsIn.Add(float64(len(rows)))

	buckets := map[bucketKey]Bucket{}
	period := uint32(a.resamplePeriod.Seconds())
	for _, r := range rows {
		key := bucketKey{monitorID: r.monitorID, serverID: r.serverID, bucketStart: bucketStart(r.timestamp, period)}
		b := buckets[key]
		b.MonitorID, b.ServerID, b.BucketStart = key.monitorID, key.serverID, key.bucketStart
		b.Add(r.latencyUs)
		buckets[key] = b
	}

	for _, b := range buckets {
		if err := a.store.upsertBucket(ctx, db, b); err != nil {
			a.logger.Error("latency aggregator: upserting bucket", "monitor_id", b.MonitorID, "error", err)
		}
	}

	if err := a.store.deleteOlderThan(ctx, db, cutoff); err != nil {
		return err
	}

	expungeCutoff := now - uint32(a.expungePeriod.Seconds())
	expunged, err := a.store.expungeOlderThan(ctx, db, expungeCutoff)
	if err != nil {
		return err
	}
	telemetry.AggregatorRowsExpunged.Add(float64(expunged))

	return nil
}

type bucketKey struct {
	monitorID   uint32
	serverID    uint32
	bucketStart uint32
}
