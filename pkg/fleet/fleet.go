// Package fleet supplies the polling-server inventory (regions, servers,
// host/scheme pairs) C8 consults for placement decisions, plus the
// outbound REST client C8 uses to reach each server. Neither is separately
// specced by spec.md (§4.10's abridged endpoint inventory names
// /region/…, /server/…, /host_scheme/… without detail); modeled on
// dbc/include/customer_mapping_manager.h's notion of a server registry.
//
// The outbound client is grounded on pkg/bookowl/client.go
// (wisbric-nightowl)'s http.Client-with-timeout pattern.
package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Region is a named placement zone ("us-east", "eu-west", ...).
type Region struct {
	ID   uint32
	Name string
}

// Server is one polling-server fleet member. Name is the identifier a
// polling server presents in the latency-ingest header (spec §6's
// identifier[48] field) so C9 can resolve which server reported a batch.
type Server struct {
	ID       uint32
	Name     string
	RegionID uint32
	Host     string
	Scheme   string // "http" or "https"
	Port     int    // 0 => scheme default
}

// Inventory is an in-memory, mutex-guarded registry of regions and servers.
// It is not persisted: its contents live only for the life of the process.
type Inventory struct {
	mu      sync.RWMutex
	regions map[uint32]Region
	servers map[uint32]Server
	logger  *slog.Logger
}

// NewInventory creates an empty fleet Inventory.
func NewInventory(logger *slog.Logger) *Inventory {
	return &Inventory{
		regions: map[uint32]Region{},
		servers: map[uint32]Server{},
		logger:  logger,
	}
}

// PutRegion inserts or replaces a region.
func (inv *Inventory) PutRegion(r Region) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.regions[r.ID] = r
}

// PutServer inserts or replaces a server.
func (inv *Inventory) PutServer(s Server) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.servers[s.ID] = s
}

// RemoveServer removes a server from the inventory.
func (inv *Inventory) RemoveServer(id uint32) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	delete(inv.servers, id)
}

// AllRegions returns every registered region, in ascending ID order.
func (inv *Inventory) AllRegions() []Region {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	out := make([]Region, 0, len(inv.regions))
	for _, r := range inv.regions {
		out = append(out, r)
	}
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].ID > out[j].ID; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// NextRegionID returns one higher than the largest registered region ID,
// for admin-driven region creation (spec §4.10's abridged "/region/..."
// inventory, undetailed beyond the path names).
func (inv *Inventory) NextRegionID() uint32 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var max uint32
	for id := range inv.regions {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// NextServerID returns one higher than the largest registered server ID.
func (inv *Inventory) NextServerID() uint32 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var max uint32
	for id := range inv.servers {
		if id > max {
			max = id
		}
	}
	return max + 1
}

// Server returns one server by ID.
func (inv *Inventory) Server(id uint32) (Server, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	s, ok := inv.servers[id]
	return s, ok
}

// ServerByName resolves a server by the name it presents on the wire.
func (inv *Inventory) ServerByName(name string) (Server, bool) {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	for _, s := range inv.servers {
		if s.Name == name {
			return s, true
		}
	}
	return Server{}, false
}

// ServersInRegion returns every server ID belonging to a region, in
// ascending ID order (so placement policy is deterministic).
func (inv *Inventory) ServersInRegion(regionID uint32) []uint32 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	var ids []uint32
	for id, s := range inv.servers {
		if s.RegionID == regionID {
			ids = append(ids, id)
		}
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

// AllServerIDs returns every server ID in the fleet, ascending.
func (inv *Inventory) AllServerIDs() []uint32 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()

	ids := make([]uint32, 0, len(inv.servers))
	for id := range inv.servers {
		ids = append(ids, id)
	}
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0 && ids[j-1] > ids[j]; j-- {
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
	return ids
}

func (s Server) baseURL() string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "http"
	}
	if s.Port == 0 {
		return fmt.Sprintf("%s://%s", scheme, s.Host)
	}
	return fmt.Sprintf("%s://%s:%d", scheme, s.Host, s.Port)
}

// Client issues outbound REST calls to polling servers, with a per-call
// deadline (spec §5: default 10s).
type Client struct {
	httpClient *http.Client
	apiKey     string
}

// NewClient creates a fleet Client with the spec's default 10s timeout.
func NewClient(apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		apiKey:     apiKey,
	}
}

// Call POSTs a JSON body to path on the given server and discards the
// response body beyond a 2xx status check.
func (c *Client) Call(ctx context.Context, server Server, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("fleet: marshalling request for server %d: %w", server.ID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server.baseURL()+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("fleet: building request for server %d: %w", server.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Polling-Server-Api-Key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("fleet: calling server %d at %s: %w", server.ID, path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("fleet: server %d returned HTTP %d for %s", server.ID, resp.StatusCode, path)
	}
	return nil
}
