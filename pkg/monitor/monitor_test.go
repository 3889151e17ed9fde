package monitor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeDB struct {
	rows   []Monitor
	nextID uint32
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if strings.Contains(sql, "DELETE FROM monitors WHERE customer_id") {
		customerID := args[0].(uint32)
		kept := f.rows[:0]
		for _, m := range f.rows {
			if m.CustomerID != customerID {
				kept = append(kept, m)
			}
		}
		f.rows = kept
		return pgconn.CommandTag{}, nil
	}
	if strings.Contains(sql, "DELETE FROM monitors WHERE id") {
		id := args[0].(uint32)
		kept := f.rows[:0]
		for _, m := range f.rows {
			if m.ID != id {
				kept = append(kept, m)
			}
		}
		f.rows = kept
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	customerID := args[0].(uint32)
	var filtered []Monitor
	for _, m := range f.rows {
		if m.CustomerID == customerID {
			filtered = append(filtered, m)
		}
	}
	return &fakeRows{rows: filtered, idx: -1}, nil
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.nextID++
	return &fakeIDRow{id: f.nextID}
}

type fakeIDRow struct{ id uint32 }

func (r *fakeIDRow) Scan(dest ...any) error {
	*dest[0].(*uint32) = r.id
	return nil
}

type fakeRows struct {
	rows []Monitor
	idx  int
}

func (r *fakeRows) Close()                                      {}
func (r *fakeRows) Err() error                                  { return nil }
func (r *fakeRows) CommandTag() pgconn.CommandTag                { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *fakeRows) Values() ([]any, error)                       { return nil, errors.New("unsupported") }
func (r *fakeRows) RawValues() [][]byte                          { return nil }
func (r *fakeRows) Conn() *pgx.Conn                              { return nil }
func (r *fakeRows) Next() bool {
	r.idx++
	return r.idx < len(r.rows)
}
func (r *fakeRows) Scan(dest ...any) error {
	m := r.rows[r.idx]
	*dest[0].(*uint32) = m.ID
	*dest[1].(*uint32) = m.CustomerID
	*dest[2].(*string) = m.URL
	*dest[3].(*string) = m.Method
	*dest[4].(*string) = m.ContentPattern
	*dest[5].(*string) = strings.Join(m.Keywords, ",")
	*dest[6].(*uint32) = m.CheckIntervalOverride
	return nil
}

func TestByCustomer_FiltersAndSplitsKeywords(t *testing.T) {
	db := &fakeDB{rows: []Monitor{
		{ID: 1, CustomerID: 42, URL: "https://example.com", Method: "GET", Keywords: []string{"a", "b"}},
		{ID: 2, CustomerID: 7, URL: "https://other.com", Method: "GET"},
	}}
	s := NewStore()

	got, err := s.ByCustomer(context.Background(), db, 42)
	if err != nil {
		t.Fatalf("ByCustomer: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("expected one monitor for customer 42, got %v", got)
	}
	if len(got[0].Keywords) != 2 {
		t.Fatalf("expected 2 keywords, got %v", got[0].Keywords)
	}
}

func TestDeleteByCustomer_RemovesOnlyThatCustomer(t *testing.T) {
	db := &fakeDB{rows: []Monitor{
		{ID: 1, CustomerID: 42},
		{ID: 2, CustomerID: 7},
	}}
	s := NewStore()

	if err := s.DeleteByCustomer(context.Background(), db, 42); err != nil {
		t.Fatalf("DeleteByCustomer: %v", err)
	}
	if len(db.rows) != 1 || db.rows[0].CustomerID != 7 {
		t.Fatalf("expected only customer 7's monitor left, got %v", db.rows)
	}
}
