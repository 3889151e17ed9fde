// Package event stores the "recent events" spec §1 lists as authoritative
// state owned by the control plane (monitor status transitions reported by
// polling servers), plus a thin outbound-notification collaborator — the
// "event-processor's outbound-notification side effects" spec §1's
// Out-of-scope line names as a collaborator contract only, kept
// engineering-thin per that note.
package event

import "time"

// Status is the monitor state an event reports a transition into.
type Status string

const (
	StatusWorking  Status = "working"
	StatusFailed   Status = "failed"
	StatusSSLError Status = "ssl_error"
)

// Event is one status transition reported for a monitor by the polling
// server that observed it.
type Event struct {
	ID         uint64
	CustomerID uint32
	MonitorID  uint32
	ServerID   uint32
	Status     Status
	Message    string
	OccurredAt time.Time
}
