// Package capabilities implements C5: the per-customer capabilities store.
// Capability rows are cached the same way secrets are (internal/cache
// wrapped by a single store mutex); bulk purge evicts the cache under that
// mutex held across the DELETE, per spec §4.5.
//
// Grounded on dbc/include/customer_capabilities_manager.h and
// dbc/source/customers_capabilities.cpp (original_source) for the flag
// bitset and validation rules, and pkg/apikey/store.go (wisbric-nightowl)
// for the raw-pgx CRUD shape.
package capabilities

// Flag is one bit of CustomerCapabilities.flags.
type Flag uint16

const (
	CustomerActive Flag = 1 << iota
	MultiRegionChecking
	SupportsWordPress
	SupportsRestAPI
	SupportsContentChecking
	SupportsKeywordChecking
	SupportsPostMethod
	SupportsLatencyTracking
	SupportsSSLExpirationChecking
	SupportsPingBasedPolling
	SupportsBlacklistChecking
	SupportsDomainExpirationChecking
	SupportsMaintenanceMode
	SupportsRollups
	Paused
)

// maxUint16 bounds every numeric field per spec §4.5's validation rule.
const maxUint16 = 0xFFFF

// Capabilities is the CustomerCapabilities record (spec §3).
type Capabilities struct {
	CustomerID      uint32
	MaxMonitors     uint16
	PollingInterval uint16
	ExpirationDays  uint32
	Flags           Flag
}

// Has reports whether every bit in want is set.
func (c Capabilities) Has(want Flag) bool { return c.Flags&want == want }

// valid reports whether a loaded row passes the §4.5 bounds check. In
// practice MaxMonitors/PollingInterval/Flags are already uint16 so this can
// only fail for rows constructed directly from raw integers (e.g. a
// corrupted column read as a wider type); kept for parity with the source's
// defensive load-time check.
func valid(maxMonitors, pollingInterval uint32, flags uint32) bool {
	return maxMonitors <= maxUint16 && pollingInterval <= maxUint16 && flags <= maxUint16
}
