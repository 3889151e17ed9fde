// Package customerauth implements C7: resolving an opaque hex identifier
// presented by a customer-facing request into a numeric customer ID, gated
// by which capability flags the endpoint's policy requires.
//
// Grounded on dbc/include/customer_authenticator.h (original_source) for
// the two-instance (WordPress-permissive vs REST-only) policy split.
package customerauth

import (
	"context"
	"log/slog"

	"github.com/inesonic/speedsentry/internal/dbmux"
	"github.com/inesonic/speedsentry/internal/identity"
	"github.com/inesonic/speedsentry/pkg/capabilities"
	"github.com/inesonic/speedsentry/pkg/secrets"
)

// Authenticator resolves customer identifiers under one access policy.
type Authenticator struct {
	allowWordPress bool
	allowRest      bool
	secrets        *secrets.Store
	capabilities   *capabilities.Store
	logger         *slog.Logger
}

// New creates an Authenticator. Use NewRestOnly/NewPermissive for the two
// standard instances spec §4.7 calls for.
func New(allowWordPress, allowRest bool, secretsStore *secrets.Store, capabilitiesStore *capabilities.Store, logger *slog.Logger) *Authenticator {
	return &Authenticator{
		allowWordPress: allowWordPress,
		allowRest:      allowRest,
		secrets:        secretsStore,
		capabilities:   capabilitiesStore,
		logger:         logger,
	}
}

// NewRestOnly creates the restrictive authenticator (REST endpoints only).
func NewRestOnly(secretsStore *secrets.Store, capabilitiesStore *capabilities.Store, logger *slog.Logger) *Authenticator {
	return New(false, true, secretsStore, capabilitiesStore, logger)
}

// NewPermissive creates the permissive authenticator (WordPress plugin + REST).
func NewPermissive(secretsStore *secrets.Store, capabilitiesStore *capabilities.Store, logger *slog.Logger) *Authenticator {
	return New(true, true, secretsStore, capabilitiesStore, logger)
}

// CustomerID resolves a 16-hex-digit identifier to a numeric customer ID,
// returning 0 on any parse failure, unknown identifier, or capability gate
// rejection (spec §4.7).
func (a *Authenticator) CustomerID(ctx context.Context, db dbmux.DBTX, identifierHex string) uint32 {
	identifier, err := identity.ParseHex(identifierHex)
	if err != nil {
		return 0
	}

	customerID := a.secrets.ToCustomerID(identifier)
	if customerID == 0 {
		return 0
	}

	caps, ok := a.capabilities.Get(ctx, db, customerID, false)
	if !ok {
		return 0
	}

	granted := (a.allowWordPress && caps.Has(capabilities.SupportsWordPress)) ||
		(a.allowRest && caps.Has(capabilities.SupportsRestAPI))
	if !granted {
		return 0
	}
	return customerID
}

// CustomerSecret returns the customer's 64-byte padded secret for
// signature verification, or nil if none is stored.
func (a *Authenticator) CustomerSecret(ctx context.Context, db dbmux.DBTX, customerID uint32) []byte {
	secret, ok := a.secrets.Get(ctx, db, customerID, false)
	if !ok {
		return nil
	}
	return secret.Padded()
}
