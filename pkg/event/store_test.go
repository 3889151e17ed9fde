package event

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB backs the events table for these tests.
type fakeDB struct {
	rows   []Event
	nextID uint64
}

func newFakeDB() *fakeDB { return &fakeDB{nextID: 1} }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	customerID := args[0].(uint32)
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.CustomerID != customerID {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	customerID := args[0].(uint32)
	limit := args[1].(int)

	var matched []Event
	for _, r := range f.rows {
		if r.CustomerID == customerID {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].OccurredAt.After(matched[j].OccurredAt) })
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return &eventRowsFake{rows: matched, idx: -1}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	e := Event{
		CustomerID: args[0].(uint32),
		MonitorID:  args[1].(uint32),
		ServerID:   args[2].(uint32),
		Status:     Status(args[3].(string)),
		Message:    args[4].(string),
		OccurredAt: args[5].(time.Time),
		ID:         f.nextID,
	}
	e.ID = f.nextID
	f.nextID++
	f.rows = append(f.rows, e)
	return &insertedIDFake{id: e.ID}
}

type insertedIDFake struct{ id uint64 }

func (r *insertedIDFake) Scan(dest ...any) error {
	*dest[0].(*uint64) = r.id
	return nil
}

type eventRowsFake struct {
	rows []Event
	idx  int
}

func (r *eventRowsFake) Close()                                      {}
func (r *eventRowsFake) Err() error                                  { return nil }
func (r *eventRowsFake) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *eventRowsFake) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *eventRowsFake) Values() ([]any, error)                       { return nil, errors.New("unsupported") }
func (r *eventRowsFake) RawValues() [][]byte                          { return nil }
func (r *eventRowsFake) Conn() *pgx.Conn                               { return nil }
func (r *eventRowsFake) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}
func (r *eventRowsFake) Scan(dest ...any) error {
	row := r.rows[r.idx]
	*dest[0].(*uint64) = row.ID
	*dest[1].(*uint32) = row.CustomerID
	*dest[2].(*uint32) = row.MonitorID
	*dest[3].(*uint32) = row.ServerID
	*dest[4].(*string) = string(row.Status)
	*dest[5].(*string) = row.Message
	*dest[6].(*time.Time) = row.OccurredAt
	return nil
}

func TestRecord_ThenByCustomer_ReturnsNewestFirst(t *testing.T) {
	db := newFakeDB()
	store := NewStore()
	ctx := context.Background()
	now := time.Unix(1700000000, 0).UTC()

	if _, err := store.Record(ctx, db, Event{CustomerID: 1, MonitorID: 1, Status: StatusFailed, OccurredAt: now}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Record(ctx, db, Event{CustomerID: 1, MonitorID: 1, Status: StatusWorking, OccurredAt: now.Add(time.Minute)}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	events, err := store.ByCustomer(ctx, db, 1, 10)
	if err != nil {
		t.Fatalf("ByCustomer: %v", err)
	}
	if len(events) != 2 || events[0].Status != StatusWorking {
		t.Fatalf("expected newest-first [working, failed], got %+v", events)
	}
}

func TestDeleteByCustomer_RemovesOnlyThatCustomersEvents(t *testing.T) {
	db := newFakeDB()
	store := NewStore()
	ctx := context.Background()

	if _, err := store.Record(ctx, db, Event{CustomerID: 1, MonitorID: 1, Status: StatusFailed}); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if _, err := store.Record(ctx, db, Event{CustomerID: 2, MonitorID: 2, Status: StatusFailed}); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if err := store.DeleteByCustomer(ctx, db, 1); err != nil {
		t.Fatalf("DeleteByCustomer: %v", err)
	}

	remaining, err := store.ByCustomer(ctx, db, 2, 10)
	if err != nil {
		t.Fatalf("ByCustomer: %v", err)
	}
	if len(remaining) != 1 {
		t.Fatalf("expected customer 2's event to survive, got %+v", remaining)
	}
	if got, _ := store.ByCustomer(ctx, db, 1, 10); len(got) != 0 {
		t.Fatalf("expected customer 1's events to be gone, got %+v", got)
	}
}
