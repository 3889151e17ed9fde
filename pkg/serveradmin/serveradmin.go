// Package serveradmin implements C8: assigning customers to polling
// servers, fanning out capability/monitor changes, and keeping the C6
// mapping store consistent with what the fleet believes.
//
// Grounded on dbc/include/customer_mapping_manager.h and
// dbc/source/customer_mapping.cpp (original_source) for the
// activate/deactivate/pause/go-active operations, and
// pkg/escalation/engine.go (wisbric-nightowl) for the retry-once-then-log
// degraded-node pattern.
package serveradmin

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/telemetry"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/fleet"
	"github.com/inesonic/speedsentry/pkg/mapping"
	"github.com/inesonic/speedsentry/pkg/monitor"
)

// Admin is C8.
type Admin struct {
	inventory    *fleet.Inventory
	client       *fleet.Client
	mappingStore *mapping.Store
	capsStore    *capabilities.Store
	monitors     *monitor.Store
	logger       *slog.Logger
}

// New creates a server Admin.
func New(inventory *fleet.Inventory, client *fleet.Client, mappingStore *mapping.Store, capsStore *capabilities.Store, monitors *monitor.Store, logger *slog.Logger) *Admin {
	return &Admin{
		inventory:    inventory,
		client:       client,
		mappingStore: mappingStore,
		capsStore:    capsStore,
		monitors:     monitors,
		logger:       logger,
	}
}

// placement picks the desired server set for a customer: every server in
// region 1 ("primary region") always, plus every other region's servers
// when the customer's capabilities grant multi-region checking.
func (a *Admin) placement(caps capabilities.Capabilities) []uint32 {
	const primaryRegion = 1
	ids := a.inventory.ServersInRegion(primaryRegion)
	if caps.Has(capabilities.MultiRegionChecking) {
		for _, id := range a.inventory.AllServerIDs() {
			already := false
			for _, p := range ids {
				if p == id {
					already = true
					break
				}
			}
			if !already {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

// callWithRetry calls path on server once, retries once on failure, and
// logs+counts a degraded node if the retry also fails (spec §4.8/§7).
func (a *Admin) callWithRetry(ctx context.Context, server fleet.Server, path string, body any) bool {
	if err := a.client.Call(ctx, server, path, body); err == nil {
		telemetry.FanoutTotal.WithLabelValues(path, "ok").Inc()
		return true
	}
	if err := a.client.Call(ctx, server, path, body); err != nil {
		a.logger.Error("serveradmin: node degraded after retry", "server_id", server.ID, "path", path, "error", err)
		telemetry.FanoutTotal.WithLabelValues(path, "degraded").Inc()
		return false
	}
	telemetry.FanoutTotal.WithLabelValues(path, "ok_after_retry").Inc()
	return true
}

// customerAddPayload is what customer/add sends (from ActivateCustomer and
// SendGoActive): the customer's capability snapshot and its monitors.
type customerAddPayload struct {
	CustomerID   uint32             `json:"customer_id"`
	Capabilities capabilities.Flag  `json:"capability_flags"`
	Monitors     []monitor.Monitor `json:"monitors"`
}

// ActivateCustomer computes the desired server set, writes it to C6, and
// sends customer/add to each affected server. Overall success requires the
// mapping write to succeed and the primary server to acknowledge.
func (a *Admin) ActivateCustomer(ctx context.Context, conn *pgx.Conn, customerID uint32) bool {
	var db dbmux.DBTX = conn
	caps, ok := a.capsStore.Get(ctx, db, customerID, false)
	if !ok {
		a.logger.Error("serveradmin: activating unknown customer", "customer_id", customerID)
		return false
	}

	serverIDs := a.placement(caps)
	m := mapping.NewMapping(serverIDs)
	if err := a.mappingStore.UpdateMapping(ctx, conn, customerID, m); err != nil {
		a.logger.Error("serveradmin: writing mapping", "customer_id", customerID, "error", err)
		return false
	}

	monitors, err := a.monitors.ByCustomer(ctx, db, customerID)
	if err != nil {
		a.logger.Error("serveradmin: loading monitors", "customer_id", customerID, "error", err)
		monitors = nil
	}
	payload := customerAddPayload{CustomerID: customerID, Capabilities: caps.Flags, Monitors: monitors}

	primaryOK := false
	for serverID := range m.Servers {
		server, ok := a.inventory.Server(serverID)
		if !ok {
			continue
		}
		ok = a.callWithRetry(ctx, server, "/customer/add", payload)
		if serverID == m.PrimaryServerID {
			primaryOK = ok
		}
	}
	return primaryOK
}

// DeactivateCustomer fans out customer/remove to every server recorded in
// C6. Best-effort across all servers; returns true when the primary acks.
func (a *Admin) DeactivateCustomer(ctx context.Context, db dbmux.DBTX, customerID uint32) bool {
	m, err := a.mappingStore.GetMapping(ctx, db, customerID)
	if err != nil {
		a.logger.Error("serveradmin: loading mapping", "customer_id", customerID, "error", err)
		return false
	}

	primaryOK := false
	for serverID := range m.Servers {
		server, ok := a.inventory.Server(serverID)
		if !ok {
			continue
		}
		ok = a.callWithRetry(ctx, server, "/customer/remove", map[string]uint32{"customer_id": customerID})
		if serverID == m.PrimaryServerID {
			primaryOK = ok
		}
	}
	return primaryOK
}

// SetPaused updates the paused flag in C5 and fans out customer/pause.
func (a *Admin) SetPaused(ctx context.Context, db dbmux.DBTX, customerID uint32, paused bool) bool {
	caps, ok := a.capsStore.Get(ctx, db, customerID, false)
	if !ok {
		return false
	}
	if paused {
		caps.Flags |= capabilities.Paused
	} else {
		caps.Flags &^= capabilities.Paused
	}
	if err := a.capsStore.Update(ctx, db, caps); err != nil {
		a.logger.Error("serveradmin: updating paused flag", "customer_id", customerID, "error", err)
		return false
	}

	m, err := a.mappingStore.GetMapping(ctx, db, customerID)
	if err != nil {
		a.logger.Error("serveradmin: loading mapping for pause", "customer_id", customerID, "error", err)
		return false
	}
	ok = true
	for serverID := range m.Servers {
		server, found := a.inventory.Server(serverID)
		if !found {
			continue
		}
		if !a.callWithRetry(ctx, server, "/customer/pause", map[string]any{"customer_id": customerID, "paused": paused}) {
			ok = false
		}
	}
	return ok
}

// SendGoActive is the one-shot startup broadcast: every active customer's
// mapping is replayed to its servers via customer/add, one customer after
// another. batchSize only sets how often progress is logged (every
// batchSize customers); sends are not grouped into batches.
func (a *Admin) SendGoActive(ctx context.Context, db dbmux.DBTX, batchSize int) {
	all, err := a.capsStore.GetAll(ctx, db)
	if err != nil {
		a.logger.Error("serveradmin: go-active: listing capabilities", "error", err)
		return
	}

	sent := 0
	for _, caps := range all {
		if !caps.Has(capabilities.CustomerActive) {
			continue
		}
		m, err := a.mappingStore.GetMapping(ctx, db, caps.CustomerID)
		if err != nil {
			a.logger.Error("serveradmin: go-active: loading mapping", "customer_id", caps.CustomerID, "error", err)
			continue
		}
		monitors, err := a.monitors.ByCustomer(ctx, db, caps.CustomerID)
		if err != nil {
			monitors = nil
		}
		payload := customerAddPayload{CustomerID: caps.CustomerID, Capabilities: caps.Flags, Monitors: monitors}
		for serverID := range m.Servers {
			server, ok := a.inventory.Server(serverID)
			if !ok {
				continue
			}
			a.callWithRetry(ctx, server, "/customer/add", payload)
		}

		sent++
		if batchSize > 0 && sent%batchSize == 0 {
			a.logger.Info("serveradmin: go-active progress", "sent", sent)
		}
	}
}
