// Package dbmux implements the per-thread database connection multiplexer
// (C3): many in-flight REST workers, each identified by a small opaque
// threadId, share one driver configuration without cross-talk.
//
// Grounded on dbc/include/database_manager.h and dbc/source/database_manager.cpp
// (original_source), which hand out one named QSqlDatabase connection per
// thread. Ported onto github.com/jackc/pgx/v5 the way the teacher uses pgx
// everywhere else, but — per spec §4.3 — each acquire opens a genuinely
// fresh connection rather than drawing from a pgxpool.Pool; callers that
// want pooling reuse Handle.Conn() with their own *pgxpool.Pool instead.
package dbmux

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DBTX is the minimal query surface a store needs; both *pgx.Conn and
// pgx.Tx satisfy it.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Settings configures how new connections are dialed.
type Settings struct {
	User     string
	Password string
	DBName   string
	Host     string
	Port     int
	Driver   string // informational; only "postgres" is supported
}

func (s Settings) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s", s.User, s.Password, s.Host, s.Port, s.DBName)
}

// Multiplexer hands out named, single-owner database connections.
type Multiplexer struct {
	mu       sync.Mutex
	settings Settings
	named    map[string]*Handle
	unique   uint64
	logger   *slog.Logger
}

// New creates a Multiplexer. Call Configure before the first Acquire.
func New(logger *slog.Logger) *Multiplexer {
	return &Multiplexer{
		named:  make(map[string]*Handle),
		logger: logger,
	}
}

// Configure updates the connection settings. Already-open handles are
// unaffected; new settings take effect on the next Acquire.
func (m *Multiplexer) Configure(s Settings) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings = s
	if s.Driver != "" && s.Driver != "postgres" {
		m.logger.Warn("dbmux: unsupported driver requested, using postgres wire protocol anyway", "driver", s.Driver)
	}
}

// Handle is a single-owner database connection. Release must be called
// exactly once.
type Handle struct {
	conn *pgx.Conn
	name string
	mux  *Multiplexer
}

// Conn returns the underlying connection for use as a DBTX.
func (h *Handle) Conn() *pgx.Conn { return h.conn }

// Acquire returns the connection named by threadID, opening a fresh one. If
// a connection already exists under that name it is closed and replaced,
// guaranteeing the caller never observes another goroutine's in-flight
// state on the same name.
func (m *Multiplexer) Acquire(ctx context.Context, threadID int) (*Handle, error) {
	return m.acquireNamed(ctx, fmt.Sprintf("thread-%d", threadID))
}

// AcquireUnique mints a connection under a monotonically increasing,
// never-reused name. Used for background tasks (the aggregator, fan-out
// workers) that are not tied to a REST worker's threadId.
func (m *Multiplexer) AcquireUnique(ctx context.Context) (*Handle, error) {
	m.mu.Lock()
	m.unique++
	name := fmt.Sprintf("unique-%d", m.unique)
	m.mu.Unlock()
	return m.acquireNamed(ctx, name)
}

func (m *Multiplexer) acquireNamed(ctx context.Context, name string) (*Handle, error) {
	m.mu.Lock()
	dsn := m.settings.dsn()
	old, existed := m.named[name]
	delete(m.named, name)
	m.mu.Unlock()

	if existed {
		if err := old.conn.Close(context.Background()); err != nil {
			m.logger.Warn("dbmux: closing stale connection", "name", name, "error", err)
		}
	}

	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("dbmux: opening connection %q: %w", name, err)
	}

	h := &Handle{conn: conn, name: name, mux: m}
	m.mu.Lock()
	m.named[name] = h
	m.mu.Unlock()
	return h, nil
}

// Release closes the connection and removes it from the multiplexer if it
// is still the live connection for its name.
func (h *Handle) Release(ctx context.Context) error {
	h.mux.mu.Lock()
	if cur, ok := h.mux.named[h.name]; ok && cur == h {
		delete(h.mux.named, h.name)
	}
	h.mux.mu.Unlock()
	return h.conn.Close(ctx)
}
