package capabilities

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

// fakeDB is a minimal dbmux.DBTX backed by an in-memory map.
type fakeDB struct {
	rows map[uint32]Capabilities
}

func newFakeDB() *fakeDB { return &fakeDB{rows: map[uint32]Capabilities{}} }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	trimmed := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(trimmed, "DELETE FROM customer_capabilities WHERE customer_id = ANY"):
		for _, id := range args[0].([]uint32) {
			delete(f.rows, id)
		}
	case strings.HasPrefix(trimmed, "DELETE"):
		delete(f.rows, args[0].(uint32))
	case strings.HasPrefix(trimmed, "INSERT"):
		f.rows[args[0].(uint32)] = Capabilities{
			CustomerID:      args[0].(uint32),
			MaxMonitors:     args[1].(uint16),
			PollingInterval: args[2].(uint16),
			ExpirationDays:  args[3].(uint32),
			Flags:           Flag(args[4].(uint16)),
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return &fakeRows{all: f.all(), idx: -1}, nil
}

func (f *fakeDB) all() []Capabilities {
	out := make([]Capabilities, 0, len(f.rows))
	for _, c := range f.rows {
		out = append(out, c)
	}
	return out
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	c, ok := f.rows[args[0].(uint32)]
	return &fakeRow{c: c, ok: ok}
}

type fakeRow struct {
	c  Capabilities
	ok bool
}

func (r *fakeRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*dest[0].(*uint32) = r.c.CustomerID
	*dest[1].(*uint32) = uint32(r.c.MaxMonitors)
	*dest[2].(*uint32) = uint32(r.c.PollingInterval)
	*dest[3].(*uint32) = r.c.ExpirationDays
	*dest[4].(*uint32) = uint32(r.c.Flags)
	return nil
}

type fakeRows struct {
	all []Capabilities
	idx int
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                    { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *fakeRows) Values() ([]any, error)                        { return nil, errors.New("unsupported") }
func (r *fakeRows) RawValues() [][]byte                           { return nil }
func (r *fakeRows) Conn() *pgx.Conn                                { return nil }
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.all)
}
func (r *fakeRows) Scan(dest ...any) error {
	c := r.all[r.idx]
	*dest[0].(*uint32) = c.CustomerID
	*dest[1].(*uint32) = uint32(c.MaxMonitors)
	*dest[2].(*uint32) = uint32(c.PollingInterval)
	*dest[3].(*uint32) = c.ExpirationDays
	*dest[4].(*uint32) = uint32(c.Flags)
	return nil
}

func TestUpdate_ThenGet_ReturnsRow(t *testing.T) {
	s := NewStore(16, discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	c := Capabilities{CustomerID: 42, MaxMonitors: 10, PollingInterval: 60, ExpirationDays: 30, Flags: SupportsRestAPI | CustomerActive}
	if err := s.Update(ctx, db, c); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, ok := s.Get(ctx, db, 42, false)
	if !ok {
		t.Fatal("Get failed")
	}
	if !got.Has(SupportsRestAPI) || !got.Has(CustomerActive) {
		t.Fatalf("unexpected flags: %v", got.Flags)
	}
}

func TestDelete_ThenGet_IsAbsent(t *testing.T) {
	s := NewStore(16, discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	c := Capabilities{CustomerID: 5, Flags: CustomerActive}
	if err := s.Update(ctx, db, c); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if !s.Delete(ctx, db, 5) {
		t.Fatal("Delete failed")
	}
	if _, ok := s.Get(ctx, db, 5, false); ok {
		t.Fatal("Get returned a row after Delete")
	}
}

func TestPurge_EvictsCacheAndDeletesRows(t *testing.T) {
	s := NewStore(16, discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	for _, id := range []uint32{1, 2, 3} {
		if err := s.Update(ctx, db, Capabilities{CustomerID: id, Flags: CustomerActive}); err != nil {
			t.Fatalf("Update(%d): %v", id, err)
		}
	}

	if err := s.Purge(ctx, db, []uint32{1, 2}); err != nil {
		t.Fatalf("Purge: %v", err)
	}

	for _, id := range []uint32{1, 2} {
		if _, ok := s.Get(ctx, db, id, true); ok {
			t.Fatalf("customer %d still present after purge", id)
		}
	}
	if _, ok := s.Get(ctx, db, 3, false); !ok {
		t.Fatal("customer 3 should remain after purging 1 and 2")
	}
}

func TestGetAll_ReturnsEveryStoredRow(t *testing.T) {
	s := NewStore(16, discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	db.rows[1] = Capabilities{CustomerID: 1, Flags: CustomerActive}
	db.rows[2] = Capabilities{CustomerID: 2, Flags: SupportsRestAPI}

	all, err := s.GetAll(ctx, db)
	if err != nil {
		t.Fatalf("GetAll: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(all))
	}
}
