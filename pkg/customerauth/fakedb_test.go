package customerauth

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeDB is a minimal dbmux.DBTX backed by in-memory maps, covering both
// the customer_secrets and customer_capabilities table shapes so a single
// fake can back both stores in these authenticator tests.
type fakeDB struct {
	secretBlobs  map[uint32][]byte
	capsRows     map[uint32][4]uint32 // maxMonitors, pollingInterval, expirationDays, flags
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		secretBlobs: map[uint32][]byte{},
		capsRows:    map[uint32][4]uint32{},
	}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	trimmed := strings.TrimSpace(sql)
	switch {
	case strings.Contains(trimmed, "customer_secrets") && strings.HasPrefix(trimmed, "DELETE"):
		delete(f.secretBlobs, args[0].(uint32))
	case strings.Contains(trimmed, "customer_secrets"):
		f.secretBlobs[args[0].(uint32)] = args[1].([]byte)
	case strings.Contains(trimmed, "customer_capabilities") && strings.HasPrefix(trimmed, "DELETE"):
		delete(f.capsRows, args[0].(uint32))
	case strings.Contains(trimmed, "customer_capabilities"):
		f.capsRows[args[0].(uint32)] = [4]uint32{
			uint32(args[1].(uint16)), uint32(args[2].(uint16)), args[3].(uint32), uint32(args[4].(uint16)),
		}
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	trimmed := strings.TrimSpace(sql)
	customerID := args[0].(uint32)
	if strings.Contains(trimmed, "customer_secrets") {
		blob, ok := f.secretBlobs[customerID]
		return &secretRow{blob: blob, ok: ok}
	}
	row, ok := f.capsRows[customerID]
	return &capsRow{customerID: customerID, row: row, ok: ok}
}

type secretRow struct {
	blob []byte
	ok   bool
}

func (r *secretRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*dest[0].(*[]byte) = r.blob
	return nil
}

type capsRow struct {
	customerID uint32
	row        [4]uint32
	ok         bool
}

func (r *capsRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	*dest[0].(*uint32) = r.customerID
	*dest[1].(*uint32) = r.row[0]
	*dest[2].(*uint32) = r.row[1]
	*dest[3].(*uint32) = r.row[2]
	*dest[4].(*uint32) = r.row[3]
	return nil
}
