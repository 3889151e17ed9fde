package customerapi

import (
	"net/http"

	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/pkg/monitor"
)

// --- customer ---------------------------------------------------------------

type customerPauseRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	Paused     bool   `json:"paused"`
}

func (a *API) handleCustomerPause(w http.ResponseWriter, r *http.Request) {
	conn, customerID, body, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	var req customerPauseRequest
	if !decodeValidated(w, body, &req) {
		return
	}

	if !a.admin.SetPaused(r.Context(), conn, customerID, req.Paused) {
		respondFailed(w, http.StatusOK, "unknown customer or fan-out failure")
		return
	}
	respondOK(w, nil)
}

// --- resource (= monitor) -----------------------------------------------------

// handleResourceAvailable answers how many more monitors this customer may
// register before hitting their capabilities.MaxMonitors quota.
func (a *API) handleResourceAvailable(w http.ResponseWriter, r *http.Request) {
	conn, customerID, _, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	caps, found := a.capabilities.Get(r.Context(), conn, customerID, false)
	if !found {
		respondFailed(w, http.StatusOK, "unknown customer")
		return
	}

	existing, err := a.monitors.ByCustomer(r.Context(), conn, customerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}

	used := len(existing)
	available := int(caps.MaxMonitors) - used
	if available < 0 {
		available = 0
	}
	respondOK(w, map[string]int{
		"maximum_number_monitors": int(caps.MaxMonitors),
		"used":                    used,
		"available":               available,
	})
}

type resourceCreateRequest struct {
	Identifier            string   `json:"identifier" validate:"required"`
	URL                   string   `json:"url" validate:"required,url"`
	Method                string   `json:"method" validate:"required,oneof=HEAD GET POST PUT"`
	ContentPattern        string   `json:"content_pattern"`
	Keywords              []string `json:"keywords"`
	CheckIntervalOverride uint32   `json:"check_interval_override"`
}

func (a *API) handleResourceCreate(w http.ResponseWriter, r *http.Request) {
	conn, customerID, body, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	var req resourceCreateRequest
	if !decodeValidated(w, body, &req) {
		return
	}

	caps, found := a.capabilities.Get(r.Context(), conn, customerID, false)
	if !found {
		respondFailed(w, http.StatusOK, "unknown customer")
		return
	}
	existing, err := a.monitors.ByCustomer(r.Context(), conn, customerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	if len(existing) >= int(caps.MaxMonitors) {
		respondFailed(w, http.StatusOK, "monitor quota exhausted")
		return
	}

	m := monitor.Monitor{
		CustomerID:            customerID,
		URL:                   req.URL,
		Method:                req.Method,
		ContentPattern:        req.ContentPattern,
		Keywords:              req.Keywords,
		CheckIntervalOverride: req.CheckIntervalOverride,
	}
	id, err := a.monitors.Create(r.Context(), conn, m)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, map[string]uint32{"resource_id": id})
}

func (a *API) handleResourceList(w http.ResponseWriter, r *http.Request) {
	conn, customerID, _, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	monitors, err := a.monitors.ByCustomer(r.Context(), conn, customerID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, monitors)
}

type resourcePlotRequest struct {
	Identifier string `json:"identifier" validate:"required"`
	ResourceID uint32 `json:"resource_id" validate:"required"`
	From       uint32 `json:"from"`
	To         uint32 `json:"to" validate:"required,gtfield=From"`
}

// ownsResource loads a monitor and confirms it belongs to customerID,
// writing the spec §7 failure response and returning ok=false otherwise.
func (a *API) ownsResource(w http.ResponseWriter, r *http.Request, conn dbmux.DBTX, customerID, resourceID uint32) (monitor.Monitor, bool) {
	m, found, err := a.monitors.ByID(r.Context(), conn, resourceID)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return monitor.Monitor{}, false
	}
	if !found || m.CustomerID != customerID {
		respondFailed(w, http.StatusOK, "unknown resource")
		return monitor.Monitor{}, false
	}
	return m, true
}

func (a *API) handleResourcePlot(w http.ResponseWriter, r *http.Request) {
	conn, customerID, body, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	var req resourcePlotRequest
	if !decodeValidated(w, body, &req) {
		return
	}

	if _, ok := a.ownsResource(w, r, conn, customerID, req.ResourceID); !ok {
		return
	}

	buckets, err := a.latency.BucketsByMonitor(r.Context(), conn, req.ResourceID, req.From, req.To)
	if err != nil {
		respondFailed(w, http.StatusOK, "storage error")
		return
	}
	respondOK(w, buckets)
}

// --- multiple -----------------------------------------------------------------

type multipleListRequest struct {
	Identifier  string   `json:"identifier" validate:"required"`
	ResourceIDs []uint32 `json:"resource_ids" validate:"required,min=1"`
}

// handleMultipleList answers resource/list for a caller-chosen subset of
// resource IDs instead of the customer's full inventory; IDs the customer
// does not own are silently omitted rather than failing the whole call.
func (a *API) handleMultipleList(w http.ResponseWriter, r *http.Request) {
	conn, customerID, body, ok := a.resolveCustomer(w, r)
	if !ok {
		return
	}
	defer conn.Release()

	var req multipleListRequest
	if !decodeValidated(w, body, &req) {
		return
	}

	out := make([]monitor.Monitor, 0, len(req.ResourceIDs))
	for _, id := range req.ResourceIDs {
		m, found, err := a.monitors.ByID(r.Context(), conn, id)
		if err != nil {
			respondFailed(w, http.StatusOK, "storage error")
			return
		}
		if found && m.CustomerID == customerID {
			out = append(out, m)
		}
	}
	respondOK(w, out)
}
