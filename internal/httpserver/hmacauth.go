package httpserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
)

// SignatureHeader carries the hex-encoded HMAC-SHA256 of the request body,
// keyed by inboundApiKey (admin regime) or the customer's padded secret
// (customer regime) — spec §6 "Inbound admin"/"Inbound customer".
const SignatureHeader = "X-Speedsentry-Signature"

type contextKey int

const bodyContextKey contextKey = iota

// Sign computes the hex HMAC-SHA256 signature a caller would send for body
// under key. Used by tests and by any in-process client constructing
// signed requests.
func Sign(key, body []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verify reports whether sig (hex) is the correct HMAC-SHA256 of body under
// key, without leaking timing information about where a mismatch occurs.
func verify(key, body []byte, sig string) bool {
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return hmac.Equal(want, mac.Sum(nil))
}

// AdminAuth verifies the admin regime's process-wide inboundApiKey
// signature (spec §4.10). The request body is buffered, verified, then
// replaced so downstream handlers can still read it.
func AdminAuth(inboundAPIKey []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, err := io.ReadAll(r.Body)
			if err != nil {
				RespondError(w, http.StatusBadRequest, "bad_request", "failed to read body")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			if !verify(inboundAPIKey, body, r.Header.Get(SignatureHeader)) {
				RespondError(w, http.StatusUnauthorized, "unauthorized", "invalid signature")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// BufferedBody reads and buffers the request body, making the raw bytes
// available to VerifyCustomerSignature (a handler checks them against the
// customer's secret once it has resolved the customer) and to the eventual
// JSON decode. Call once per request, outermost.
func BufferedBody(r *http.Request) (*http.Request, []byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return r, nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	return r.WithContext(context.WithValue(r.Context(), bodyContextKey, body)), body, nil
}

// BodyFromContext returns the body buffered by BufferedBody, if any.
func BodyFromContext(ctx context.Context) ([]byte, bool) {
	b, ok := ctx.Value(bodyContextKey).([]byte)
	return b, ok
}

// ReadBody reads the full request body without assuming it is JSON, for
// endpoints with a binary wire format (spec §6 "Latency ingest").
func ReadBody(r *http.Request) ([]byte, error) {
	defer func() { _ = r.Body.Close() }()
	return io.ReadAll(r.Body)
}

// VerifyCustomerSignature checks a customer-regime request's signature
// against the given padded secret (spec §6 "Inbound customer"). Unlike the
// admin regime this cannot run as a blanket middleware, since the secret to
// verify against is only known after C7 resolves the identifier carried in
// the same request.
func VerifyCustomerSignature(secret, body []byte, sig string) bool {
	if len(secret) == 0 {
		return false
	}
	return verify(secret, body, sig)
}
