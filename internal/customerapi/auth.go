package customerapi

import (
	"encoding/json"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/inesonic/speedsentry/internal/httpserver"
)

// identifierEnvelope extracts the hex identifier every customer-regime
// request carries, without committing to the rest of that request's shape.
type identifierEnvelope struct {
	Identifier string `json:"identifier"`
}

// resolveCustomer buffers the body, resolves the identifier to a customer
// ID, verifies the body's signature against that customer's own secret,
// and returns a connection the handler owns until it calls conn.Release.
// Writes the appropriate failure response itself on any rejection.
func (a *API) resolveCustomer(w http.ResponseWriter, r *http.Request) (conn *pgxpool.Conn, customerID uint32, body []byte, ok bool) {
	_, body, err := httpserver.BufferedBody(r)
	if err != nil {
		respondFailed(w, http.StatusBadRequest, "failed to read body")
		return nil, 0, nil, false
	}

	var env identifierEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		respondFailed(w, http.StatusBadRequest, "malformed request")
		return nil, 0, nil, false
	}

	conn, err = a.pool.Acquire(r.Context())
	if err != nil {
		a.logger.Error("customerapi: acquiring connection", "error", err)
		respondFailed(w, http.StatusOK, "database unavailable")
		return nil, 0, nil, false
	}

	customerID = a.auth.CustomerID(r.Context(), conn, env.Identifier)
	if customerID == 0 {
		conn.Release()
		respondFailed(w, http.StatusUnauthorized, "unauthorized")
		return nil, 0, nil, false
	}

	secret := a.auth.CustomerSecret(r.Context(), conn, customerID)
	if !httpserver.VerifyCustomerSignature(secret, body, r.Header.Get(httpserver.SignatureHeader)) {
		conn.Release()
		respondFailed(w, http.StatusUnauthorized, "unauthorized")
		return nil, 0, nil, false
	}

	return conn, customerID, body, true
}

// decodeValidated unmarshals body into dst and runs struct-tag validation,
// writing the spec §7 "failed, ..." envelope on either failure. Separate
// from httpserver.DecodeAndValidate because the body here is already
// buffered (resolveCustomer needed the raw bytes for signature
// verification before a handler's specific request shape is known).
func decodeValidated(w http.ResponseWriter, body []byte, dst any) bool {
	if err := json.Unmarshal(body, dst); err != nil {
		respondFailed(w, http.StatusBadRequest, "malformed request")
		return false
	}
	if errs := httpserver.Validate(dst); len(errs) > 0 {
		respondFailed(w, http.StatusBadRequest, "invalid request")
		return false
	}
	return true
}
