package adminapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inesonic/speedsentry/internal/httpserver"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/fleet"
	"github.com/inesonic/speedsentry/pkg/latency"
	"github.com/inesonic/speedsentry/pkg/mapping"
	"github.com/inesonic/speedsentry/pkg/monitor"
)

// acquireConn pulls one connection off the pool, writing the spec §7
// "storage" failure envelope itself on error so handlers can early-return.
func (a *API) acquireConn(ctx context.Context, w http.ResponseWriter) (*pgxpool.Conn, bool) {
	conn, err := a.pool.Acquire(ctx)
	if err != nil {
		a.logger.Error("adminapi: acquiring connection", "error", err)
		respondFailed(w, http.StatusOK, "database unavailable")
		return nil, false
	}
	return conn, true
}

// --- customer -------------------------------------------------------------

type customerCreateRequest struct {
	CustomerID      uint32 `json:"customer_id" validate:"required"`
	MaxMonitors     uint16 `json:"maximum_number_monitors"`
	PollingInterval uint16 `json:"polling_interval"`
	ExpirationDays  uint32 `json:"expiration_days"`
	Active          bool   `json:"active"`
	MultiRegion     bool   `json:"multi_region_checking"`
}

func (a *API) handleCustomerCreate(w http.ResponseWriter, r *http.Request) {
	var req customerCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	var flags capabilities.Flag
	if req.Active {
		flags |= capabilities.CustomerActive
	}
	if req.MultiRegion {
		flags |= capabilities.MultiRegionChecking
	}

	c := capabilities.Capabilities{
		CustomerID:      req.CustomerID,
		MaxMonitors:     req.MaxMonitors,
		PollingInterval: req.PollingInterval,
		ExpirationDays:  req.ExpirationDays,
		Flags:           flags,
	}
	if err := a.capabilities.Update(r.Context(), conn, c); err != nil {
		a.logger.Error("adminapi: creating customer", "customer_id", req.CustomerID, "error", err)
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]uint32{"customer_id": req.CustomerID})
}

type customerIDRequest struct {
	CustomerID uint32 `json:"customer_id" validate:"required"`
}

func (a *API) handleCustomerGet(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	c, found := a.capabilities.Get(r.Context(), conn, req.CustomerID, false)
	if !found {
		respondFailed(w, http.StatusOK, "unknown customer")
		return
	}
	respondOK(w, c)
}

func (a *API) handleCustomerDelete(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if !a.admin.DeactivateCustomer(r.Context(), conn, req.CustomerID) {
		a.logger.Warn("adminapi: deleting customer without primary acknowledgement", "customer_id", req.CustomerID)
	}
	if err := a.monitors.DeleteByCustomer(r.Context(), conn, req.CustomerID); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if err := a.latency.DeleteByCustomerID(r.Context(), conn, []uint32{req.CustomerID}); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if err := a.mappings.DeleteCustomer(r.Context(), conn, req.CustomerID); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if err := a.events.DeleteByCustomer(r.Context(), conn, req.CustomerID); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if !a.capabilities.Delete(r.Context(), conn, req.CustomerID) {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if !a.secrets.Delete(r.Context(), conn, req.CustomerID) {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, nil)
}

// handleCustomerList returns every customer's capabilities row (spec
// §4.10's abridged "/customer/list").
func (a *API) handleCustomerList(w http.ResponseWriter, r *http.Request) {
	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	all, err := a.capabilities.GetAll(r.Context(), conn)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, all)
}

type customerPurgeRequest struct {
	CustomerIDs []uint32 `json:"customer_ids" validate:"required,min=1"`
}

// handleCustomerPurge bulk-deletes several customers' latency data,
// monitors, mappings, events, secrets, and capabilities in one call (spec §4.5's bulk-purge path, reused here
// for §4.10's "/customer/purge").
func (a *API) handleCustomerPurge(w http.ResponseWriter, r *http.Request) {
	var req customerPurgeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if err := a.latency.DeleteByCustomerID(r.Context(), conn, req.CustomerIDs); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	for _, id := range req.CustomerIDs {
		_ = a.monitors.DeleteByCustomer(r.Context(), conn, id)
		_ = a.mappings.DeleteCustomer(r.Context(), conn, id)
		_ = a.events.DeleteByCustomer(r.Context(), conn, id)
		_ = a.secrets.Delete(r.Context(), conn, id)
	}
	if err := a.capabilities.Purge(r.Context(), conn, req.CustomerIDs); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]int{"purged": len(req.CustomerIDs)})
}

type customerPauseRequest struct {
	CustomerID uint32 `json:"customer_id" validate:"required"`
	Paused     bool   `json:"paused"`
}

func (a *API) handleCustomerPause(w http.ResponseWriter, r *http.Request) {
	var req customerPauseRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if !a.admin.SetPaused(r.Context(), conn, req.CustomerID, req.Paused) {
		respondFailed(w, http.StatusOK, "unknown customer or fan-out failure")
		return
	}
	respondOK(w, nil)
}

func (a *API) handleCustomerGetSecret(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	secret, found := a.secrets.Get(r.Context(), conn, req.CustomerID, false)
	if !found {
		respondFailed(w, http.StatusOK, "unknown customer")
		return
	}
	respondOK(w, map[string]string{"secret": hex.EncodeToString(secret.External())})
}

func (a *API) handleCustomerResetSecret(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	secret, rotated := a.secrets.Rotate(r.Context(), conn, req.CustomerID)
	if !rotated {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]string{"secret": hex.EncodeToString(secret.External())})
}

// --- mapping ---------------------------------------------------------------

func (a *API) handleMappingGet(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	m, err := a.mappings.GetMapping(r.Context(), conn, req.CustomerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "unknown customer")
		return
	}
	respondOK(w, mappingResponse(m))
}

func mappingResponse(m mapping.Mapping) map[string]any {
	servers := make([]uint32, 0, len(m.Servers))
	for id := range m.Servers {
		servers = append(servers, id)
	}
	return map[string]any{
		"primary_server_id": m.PrimaryServerID,
		"servers":           servers,
	}
}

// handleMappingList returns every stored customer-to-server mapping,
// optionally filtered to one server (spec §4.10's abridged "/mapping/list").
func (a *API) handleMappingList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerID *uint32 `json:"server_id"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	byCustomer, err := a.mappings.ByCustomerID(r.Context(), conn, req.ServerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}

	out := make(map[uint32]map[string]any, len(byCustomer))
	for customerID, m := range byCustomer {
		out[customerID] = mappingResponse(m)
	}
	respondOK(w, out)
}

func (a *API) handleMappingActivate(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if !a.admin.ActivateCustomer(r.Context(), conn.Conn(), req.CustomerID) {
		respondFailed(w, http.StatusOK, "activation failed")
		return
	}
	respondOK(w, nil)
}

func (a *API) handleMappingDeactivate(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if !a.admin.DeactivateCustomer(r.Context(), conn, req.CustomerID) {
		respondFailed(w, http.StatusOK, "deactivation failed")
		return
	}
	respondOK(w, nil)
}

// --- monitor -----------------------------------------------------------------

func (a *API) handleMonitorList(w http.ResponseWriter, r *http.Request) {
	var req customerIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	monitors, err := a.monitors.ByCustomer(r.Context(), conn, req.CustomerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, monitors)
}

type monitorCreateRequest struct {
	CustomerID            uint32   `json:"customer_id" validate:"required"`
	URL                   string   `json:"url" validate:"required,url"`
	Method                string   `json:"method" validate:"required,oneof=HEAD GET POST PUT"`
	ContentPattern        string   `json:"content_pattern"`
	Keywords              []string `json:"keywords"`
	CheckIntervalOverride uint32   `json:"check_interval_override"`
}

func (a *API) handleMonitorCreate(w http.ResponseWriter, r *http.Request) {
	var req monitorCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	id, err := a.monitors.Create(r.Context(), conn, monitor.Monitor{
		CustomerID:            req.CustomerID,
		URL:                   req.URL,
		Method:                req.Method,
		ContentPattern:        req.ContentPattern,
		Keywords:              req.Keywords,
		CheckIntervalOverride: req.CheckIntervalOverride,
	})
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]uint32{"monitor_id": id})
}

type monitorIDRequest struct {
	MonitorID uint32 `json:"monitor_id" validate:"required"`
}

func (a *API) handleMonitorDelete(w http.ResponseWriter, r *http.Request) {
	var req monitorIDRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if err := a.monitors.Delete(r.Context(), conn, req.MonitorID); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, nil)
}

// --- latency -----------------------------------------------------------------

// handleLatencyRecord accepts the binary wire payload (spec §6) rather than
// JSON; the identifier[48] header field is the reporting polling server's
// registered fleet name (resolved via Inventory.ServerByName), not a
// customer identifier — C9 has no notion of customer scoping at ingest time.
func (a *API) handleLatencyRecord(w http.ResponseWriter, r *http.Request) {
	body, err := httpserver.ReadBody(r)
	if err != nil {
		respondFailed(w, http.StatusBadRequest, "failed to read body")
		return
	}

	header, entries, err := latency.ParsePayload(body)
	if err != nil {
		respondFailed(w, http.StatusBadRequest, err.Error())
		return
	}

	name := string(bytes.TrimRight(header.Identifier[:], "\x00"))
	server, found := a.inventory.ServerByName(name)
	if !found {
		respondFailed(w, http.StatusUnauthorized, "unknown reporting server")
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if err := a.latency.Record(r.Context(), conn, server.ID, entries); err != nil {
		a.logger.Error("adminapi: recording latency samples", "server_id", server.ID, "error", err)
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]int{"recorded": len(entries)})
}

type latencyRangeRequest struct {
	MonitorID uint32 `json:"monitor_id" validate:"required"`
	From      uint32 `json:"from"`
	To        uint32 `json:"to" validate:"required,gtfield=From"`
}

// handleLatencyPlot returns the raw aggregate buckets for a monitor and
// time range; rendering itself is out of scope (spec's Non-goals).
func (a *API) handleLatencyPlot(w http.ResponseWriter, r *http.Request) {
	var req latencyRangeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	buckets, err := a.latency.BucketsByMonitor(r.Context(), conn, req.MonitorID, req.From, req.To)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, buckets)
}

// handleLatencyStatistics folds every bucket in range into one summary via
// Bucket.Merge, the same parallel Welford combine the aggregator's upsert
// uses to fold a freshly built bucket into a stored row (spec §4.9).
func (a *API) handleLatencyStatistics(w http.ResponseWriter, r *http.Request) {
	var req latencyRangeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	buckets, err := a.latency.BucketsByMonitor(r.Context(), conn, req.MonitorID, req.From, req.To)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}

	var summary latency.Bucket
	summary.MonitorID = req.MonitorID
	for _, b := range buckets {
		summary.Merge(b)
	}
	respondOK(w, summary)
}

// handleLatencyPurge deletes raw and aggregate latency rows for a set of
// customers (spec §4.9's deleteByCustomerId, exposed administratively).
func (a *API) handleLatencyPurge(w http.ResponseWriter, r *http.Request) {
	var req customerPurgeRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	if err := a.latency.DeleteByCustomerID(r.Context(), conn, req.CustomerIDs); err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, nil)
}

// --- events -------------------------------------------------------------------

func (a *API) handleEventList(w http.ResponseWriter, r *http.Request) {
	var req struct {
		CustomerID uint32 `json:"customer_id" validate:"required"`
		Limit      int    `json:"limit"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	conn, ok := a.acquireConn(r.Context(), w)
	if !ok {
		return
	}
	defer conn.Release()

	events, err := a.events.ByCustomer(r.Context(), conn, req.CustomerID, req.Limit)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, events)
}

// --- fleet (region/server) ----------------------------------------------------

func (a *API) handleRegionList(w http.ResponseWriter, r *http.Request) {
	respondOK(w, a.inventory.AllRegions())
}

type regionCreateRequest struct {
	Name string `json:"name" validate:"required"`
}

func (a *API) handleRegionCreate(w http.ResponseWriter, r *http.Request) {
	var req regionCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	region := fleet.Region{ID: a.inventory.NextRegionID(), Name: req.Name}
	a.inventory.PutRegion(region)
	respondOK(w, region)
}

func (a *API) handleServerList(w http.ResponseWriter, r *http.Request) {
	ids := a.inventory.AllServerIDs()
	out := make([]fleet.Server, 0, len(ids))
	for _, id := range ids {
		if s, ok := a.inventory.Server(id); ok {
			out = append(out, s)
		}
	}
	respondOK(w, out)
}

type serverCreateRequest struct {
	Name     string `json:"name" validate:"required"`
	RegionID uint32 `json:"region_id" validate:"required"`
	Host     string `json:"host" validate:"required"`
	Scheme   string `json:"scheme" validate:"required,oneof=http https"`
	Port     int    `json:"port"`
}

func (a *API) handleServerCreate(w http.ResponseWriter, r *http.Request) {
	var req serverCreateRequest
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	server := fleet.Server{
		ID:       a.inventory.NextServerID(),
		Name:     req.Name,
		RegionID: req.RegionID,
		Host:     req.Host,
		Scheme:   req.Scheme,
		Port:     req.Port,
	}
	a.inventory.PutServer(server)
	respondOK(w, server)
}

func (a *API) handleServerDelete(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ServerID uint32 `json:"server_id" validate:"required"`
	}
	if !httpserver.DecodeAndValidate(w, r, &req) {
		return
	}

	a.inventory.RemoveServer(req.ServerID)
	respondOK(w, nil)
}
