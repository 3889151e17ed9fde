// Package adminapi implements C10's admin regime: HMAC-signed JSON
// endpoints over customers, mappings, monitors, and latency data.
//
// Adapted from internal/httpserver/server.go's route-group shape
// (wisbric-nightowl); the response envelope (status:"OK"/"failed, <reason>")
// and the HTTP-200-on-storage/not-found-failure rule follow spec §7.
package adminapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inesonic/speedsentry/internal/httpserver"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/event"
	"github.com/inesonic/speedsentry/pkg/fleet"
	"github.com/inesonic/speedsentry/pkg/latency"
	"github.com/inesonic/speedsentry/pkg/mapping"
	"github.com/inesonic/speedsentry/pkg/monitor"
	"github.com/inesonic/speedsentry/pkg/secrets"
	"github.com/inesonic/speedsentry/pkg/serveradmin"
)

// API holds the collaborators the admin handlers dispatch to. Requests are
// not identified by a worker threadId the way the polling-server protocol's
// calls are, so handlers acquire a pooled connection per request rather
// than going through C3's per-thread dbmux.
type API struct {
	capabilities *capabilities.Store
	secrets      *secrets.Store
	mappings     *mapping.Store
	monitors     *monitor.Store
	latency      *latency.Store
	events       *event.Store
	admin        *serveradmin.Admin
	inventory    *fleet.Inventory
	pool         *pgxpool.Pool
	logger       *slog.Logger
}

// New creates the admin API handlers.
func New(caps *capabilities.Store, sec *secrets.Store, maps *mapping.Store, mons *monitor.Store, lat *latency.Store, events *event.Store, admin *serveradmin.Admin, inventory *fleet.Inventory, pool *pgxpool.Pool, logger *slog.Logger) *API {
	return &API{
		capabilities: caps,
		secrets:      sec,
		mappings:     maps,
		monitors:     mons,
		latency:      lat,
		events:       events,
		admin:        admin,
		inventory:    inventory,
		pool:         pool,
		logger:       logger,
	}
}

// statusOK and statusFailed are the spec §4.10 response envelope's two shapes.
type statusOK struct {
	Status string `json:"status"`
	Data   any    `json:"data,omitempty"`
}

type statusFailed struct {
	Status string `json:"status"`
}

func respondOK(w http.ResponseWriter, data any) {
	httpserver.Respond(w, http.StatusOK, statusOK{Status: "OK", Data: data})
}

// respondFailed writes the spec §7 failure envelope. httpStatus is 400 for
// validation failures and 200 for not-found/storage failures — callers pick
// per spec's error-kind table, this helper does not guess.
func respondFailed(w http.ResponseWriter, httpStatus int, reason string) {
	httpserver.Respond(w, httpStatus, statusFailed{Status: "failed, " + reason})
}

// Mount wires every admin endpoint onto r under the HMAC-signature
// middleware (spec §4.10 "Admin regime").
func (a *API) Mount(r chi.Router, inboundAPIKey []byte) {
	r.Group(func(r chi.Router) {
		r.Use(httpserver.AdminAuth(inboundAPIKey))

		r.Post("/customer/create", a.handleCustomerCreate)
		r.Post("/customer/get", a.handleCustomerGet)
		r.Post("/customer/list", a.handleCustomerList)
		r.Post("/customer/delete", a.handleCustomerDelete)
		r.Post("/customer/purge", a.handleCustomerPurge)
		r.Post("/customer/pause", a.handleCustomerPause)
		r.Post("/customer/get_secret", a.handleCustomerGetSecret)
		r.Post("/customer/reset_secret", a.handleCustomerResetSecret)

		r.Post("/mapping/get", a.handleMappingGet)
		r.Post("/mapping/list", a.handleMappingList)
		r.Post("/mapping/customer/activate", a.handleMappingActivate)
		r.Post("/mapping/customer/deactivate", a.handleMappingDeactivate)

		r.Post("/monitor/create", a.handleMonitorCreate)
		r.Post("/monitor/delete", a.handleMonitorDelete)
		r.Post("/monitor/list", a.handleMonitorList)

		r.Post("/latency/record", a.handleLatencyRecord)
		r.Post("/latency/plot", a.handleLatencyPlot)
		r.Post("/latency/statistics", a.handleLatencyStatistics)
		r.Post("/latency/purge", a.handleLatencyPurge)

		r.Post("/event/list", a.handleEventList)

		r.Post("/region/list", a.handleRegionList)
		r.Post("/region/create", a.handleRegionCreate)
		r.Post("/server/list", a.handleServerList)
		r.Post("/server/create", a.handleServerCreate)
		r.Post("/server/delete", a.handleServerDelete)
	})
}
