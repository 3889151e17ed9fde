// Package latency implements C9: ingest of the polling servers' binary
// latency wire format and the periodic rollup that downsamples the raw
// table into the aggregate table.
//
// Grounded on dbc/include/latency_manager.h and dbc/source/sql_helpers.cpp
// (original_source) for the raw/aggregate schema and Welford combine, and
// pkg/escalation/engine.go (wisbric-nightowl) for the ticker-driven Run/tick
// background-task shape.
package latency

import (
	"encoding/binary"
	"fmt"
)

// HeaderLen and EntryLen are the binary wire-format sizes (spec §6).
const (
	HeaderLen = 64
	EntryLen  = 12
)

// Header is the 64-byte latency-ingest header.
type Header struct {
	Version            uint16
	Identifier         [48]byte
	MonitorsPerSecond  uint32 // 24.8 fixed point
	CPULoading         uint16 // 0..65535 ≡ 0..1600%
	MemoryLoading      uint16 // 0..65535 ≡ 0..100%
	ServerStatusCode   uint8
}

// Entry is one 12-byte raw latency sample.
type Entry struct {
	MonitorID           uint32
	Timestamp           uint32
	LatencyMicroseconds uint32
}

// ParsePayload decodes a latency-ingest payload into its header and
// entries. Returns an error if the payload is shorter than one header or
// not an integral number of entries past the header.
func ParsePayload(payload []byte) (Header, []Entry, error) {
	if len(payload) < HeaderLen {
		return Header{}, nil, fmt.Errorf("latency: payload of %d bytes shorter than %d-byte header", len(payload), HeaderLen)
	}

	h := Header{}
	h.Version = binary.LittleEndian.Uint16(payload[0:2])
	copy(h.Identifier[:], payload[2:50])
	h.MonitorsPerSecond = binary.LittleEndian.Uint32(payload[50:54])
	h.CPULoading = binary.LittleEndian.Uint16(payload[54:56])
	h.MemoryLoading = binary.LittleEndian.Uint16(payload[56:58])
	h.ServerStatusCode = payload[58]
	// payload[59:64] is spare.

	rest := payload[HeaderLen:]
	if len(rest)%EntryLen != 0 {
		return Header{}, nil, fmt.Errorf("latency: %d trailing bytes is not a multiple of %d", len(rest), EntryLen)
	}

	entries := make([]Entry, len(rest)/EntryLen)
	for i := range entries {
		b := rest[i*EntryLen : (i+1)*EntryLen]
		entries[i] = Entry{
			MonitorID:           binary.LittleEndian.Uint32(b[0:4]),
			Timestamp:           binary.LittleEndian.Uint32(b[4:8]),
			LatencyMicroseconds: binary.LittleEndian.Uint32(b[8:12]),
		}
	}
	return h, entries, nil
}

// Bucket is one aggregate row: (monitorId, serverId, bucketStart) keyed
// statistics accumulated via Welford's online algorithm.
type Bucket struct {
	MonitorID   uint32
	ServerID    uint32
	BucketStart uint32
	Count       uint64
	Mean        float64
	M2          float64 // sum of squared deviations from the mean (Welford)
	Min         uint32
	Max         uint32
}

// Add folds one raw sample into the bucket using Welford's online update.
func (b *Bucket) Add(latencyMicroseconds uint32) {
	x := float64(latencyMicroseconds)
	b.Count++
	delta := x - b.Mean
	b.Mean += delta / float64(b.Count)
	delta2 := x - b.Mean
	b.M2 += delta * delta2

	if b.Count == 1 || latencyMicroseconds < b.Min {
		b.Min = latencyMicroseconds
	}
	if b.Count == 1 || latencyMicroseconds > b.Max {
		b.Max = latencyMicroseconds
	}
}

// Merge combines another bucket's statistics into b (Chan et al.'s
// parallel Welford combine). Used by Aggregator.Tick to fold a freshly
// built bucket into an existing output row, and by adminapi's
// latency/statistics handler to fold several buckets into one summary.
func (b *Bucket) Merge(other Bucket) {
	if other.Count == 0 {
		return
	}
	if b.Count == 0 {
		*b = other
		return
	}

	total := b.Count + other.Count
	delta := other.Mean - b.Mean
	newMean := b.Mean + delta*float64(other.Count)/float64(total)
	newM2 := b.M2 + other.M2 + delta*delta*float64(b.Count)*float64(other.Count)/float64(total)

	if other.Min < b.Min {
		b.Min = other.Min
	}
	if other.Max > b.Max {
		b.Max = other.Max
	}
	b.Count = total
	b.Mean = newMean
	b.M2 = newM2
}

// VarianceSum is the accumulated sum of squared deviations (M2), the form
// stored and merged; divide by Count for the population variance.
func (b Bucket) VarianceSum() float64 { return b.M2 }

// bucketStart floors a Unix-second timestamp to its resamplePeriod boundary.
func bucketStart(timestamp, resamplePeriod uint32) uint32 {
	if resamplePeriod == 0 {
		return timestamp
	}
	return (timestamp / resamplePeriod) * resamplePeriod
}
