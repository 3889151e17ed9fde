package httpserver

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAdminAuth_AcceptsValidSignature(t *testing.T) {
	key := []byte("test-inbound-api-key")
	body := []byte(`{"customer_id":42}`)

	var called bool
	handler := AdminAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		got, _ := io.ReadAll(r.Body)
		if !bytes.Equal(got, body) {
			t.Errorf("expected body to be replayable to handler, got %q", got)
		}
	}))

	req := httptest.NewRequest(http.MethodPost, "/customer/get", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign(key, body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatal("expected handler to be invoked")
	}
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestAdminAuth_RejectsBadSignature(t *testing.T) {
	key := []byte("test-inbound-api-key")
	body := []byte(`{"customer_id":42}`)

	handler := AdminAuth(key)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be invoked on bad signature")
	}))

	req := httptest.NewRequest(http.MethodPost, "/customer/get", bytes.NewReader(body))
	req.Header.Set(SignatureHeader, Sign([]byte("wrong-key"), body))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

func TestVerifyCustomerSignature_RejectsEmptySecret(t *testing.T) {
	if VerifyCustomerSignature(nil, []byte("body"), Sign([]byte("k"), []byte("body"))) {
		t.Fatal("expected empty secret to never verify")
	}
}

func TestVerifyCustomerSignature_AcceptsMatchingSecret(t *testing.T) {
	secret := []byte("a-64-byte-padded-secret-goes-here-but-any-bytes-work-for-this-test")
	body := []byte(`{"monitor_id":7}`)
	if !VerifyCustomerSignature(secret, body, Sign(secret, body)) {
		t.Fatal("expected matching secret to verify")
	}
}
