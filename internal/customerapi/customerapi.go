// Package customerapi implements the customer-facing half of C10: the
// "/v1/..." endpoints a customer's own tooling calls directly, guarded by
// the REST-only Authenticator and each signed with the customer's own secret rather than the
// admin regime's single inboundApiKey.
//
// spec §4.10's abridged inventory names "/v1/customer/pause" plus
// "/v1/resource/{available,create,list,plot}" and "/v1/multiple/list"
// without defining what a "resource" is; dbc/include/customer_rest_api_v1.h
// (original_source) resolves this: a "resource" there is exactly a
// customer's registered monitor (pkg/monitor.Monitor), and "multiple" is
// the batch variant that answers for several resource IDs in one call
// instead of every resource a customer owns.
//
// Adapted from internal/adminapi's route-group and response-envelope shape;
// unlike the admin regime this cannot run a single blanket HMAC middleware,
// since the key to verify against is only known after C7 resolves the
// identifier carried inside the body (see resolveCustomer).
package customerapi

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inesonic/speedsentry/internal/httpserver"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/customerauth"
	"github.com/inesonic/speedsentry/pkg/latency"
	"github.com/inesonic/speedsentry/pkg/monitor"
	"github.com/inesonic/speedsentry/pkg/serveradmin"
)

// API holds the collaborators the customer handlers dispatch to.
type API struct {
	auth         *customerauth.Authenticator
	capabilities *capabilities.Store
	monitors     *monitor.Store
	latency      *latency.Store
	admin        *serveradmin.Admin
	pool         *pgxpool.Pool
	logger       *slog.Logger
}

// New creates the customer API handlers. auth should be the REST-only
// Authenticator (spec §4.7); the WordPress-permissive instance is for the
// plugin's own call paths, not this REST surface.
func New(auth *customerauth.Authenticator, caps *capabilities.Store, mons *monitor.Store, lat *latency.Store, admin *serveradmin.Admin, pool *pgxpool.Pool, logger *slog.Logger) *API {
	return &API{
		auth:         auth,
		capabilities: caps,
		monitors:     mons,
		latency:      lat,
		admin:        admin,
		pool:         pool,
		logger:       logger,
	}
}

// statusOK and statusFailed mirror internal/adminapi's spec §7 envelope.
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

func respondFailed(w http.ResponseWriter, httpStatus int, reason string) {
	httpserver.Respond(w, httpStatus, statusFailed{Status: "failed, " + reason})
}

// Mount wires every customer endpoint onto r under its own path prefix;
// the caller decides where "/v1" lives in the overall router.
func (a *API) Mount(r chi.Router) {
	r.Post("/v1/customer/pause", a.handleCustomerPause)
	r.Post("/v1/resource/available", a.handleResourceAvailable)
	r.Post("/v1/resource/create", a.handleResourceCreate)
	r.Post("/v1/resource/list", a.handleResourceList)
	r.Post("/v1/resource/plot", a.handleResourcePlot)
	r.Post("/v1/multiple/list", a.handleMultipleList)
}
