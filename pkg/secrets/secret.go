// Package secrets implements C4: the per-customer secret store. Secrets are
// generated from a CSPRNG, stored AES-CBC-encrypted at rest with a
// per-row IV, and cached in front of the database via internal/cache.
//
// Grounded on dbc/include/customer_secret.h and dbc/source/customer_secret.cpp
// (original_source) for the padded/external secret split, and
// dbc/source/customer_secrets.cpp for the store's cache-then-database shape.
package secrets

import (
	"crypto/rand"
	"fmt"
	"runtime"
)

// PaddedLen is the fixed on-the-wire secret length. ExternalLen is the
// prefix presented to customers; the remaining bytes pad the value the
// request-signature HMAC actually consumes.
const (
	PaddedLen   = 64
	ExternalLen = 56
)

// Secret holds a customer's padded HMAC key. Callers that no longer need
// the value should call Scrub explicitly; a finalizer is also registered as
// a backstop since Go has no deterministic destructors.
type Secret struct {
	padded [PaddedLen]byte
}

// newSecret fills a fresh Secret from a cryptographic RNG.
func newSecret() (*Secret, error) {
	s := &Secret{}
	if _, err := rand.Read(s.padded[:]); err != nil {
		return nil, fmt.Errorf("secrets: reading random secret: %w", err)
	}
	runtime.SetFinalizer(s, func(s *Secret) { s.Scrub() })
	return s, nil
}

// External returns the 56-byte prefix presented to customers.
func (s *Secret) External() []byte { return s.padded[:ExternalLen] }

// Padded returns the full 64-byte value used to verify request signatures.
func (s *Secret) Padded() []byte { return s.padded[:] }

// Scrub zeroes the secret's backing bytes in place.
func (s *Secret) Scrub() {
	for i := range s.padded {
		s.padded[i] = 0
	}
}

func secretFromBytes(b []byte) (*Secret, error) {
	if len(b) != PaddedLen {
		return nil, fmt.Errorf("secrets: decrypted secret has length %d, want %d", len(b), PaddedLen)
	}
	s := &Secret{}
	copy(s.padded[:], b)
	runtime.SetFinalizer(s, func(s *Secret) { s.Scrub() })
	return s, nil
}
