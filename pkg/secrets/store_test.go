package secrets

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/inesonic/speedsentry/internal/identity"
)

func testKey(t *testing.T) [32]byte {
	t.Helper()
	var key [32]byte
	for i := range key {
		key[i] = byte(i*7 + 1)
	}
	return key
}

func testCodec(t *testing.T) *identity.Codec {
	t.Helper()
	key := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	c, err := identity.NewCodec(key)
	if err != nil {
		t.Fatalf("identity.NewCodec: %v", err)
	}
	return c
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDB is a minimal dbmux.DBTX backed by an in-memory map, enough to
// exercise Store's Get/Delete/Rotate without a real Postgres connection.
type fakeDB struct {
	rows map[uint32][]byte
}

func newFakeDB() *fakeDB { return &fakeDB{rows: map[uint32][]byte{}} }

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	trimmed := strings.TrimSpace(sql)
	switch {
	case strings.HasPrefix(trimmed, "DELETE"):
		f.rows[args[0].(uint32)] = nil
		delete(f.rows, args[0].(uint32))
	case strings.Contains(trimmed, "INSERT INTO customer_secrets"):
		f.rows[args[0].(uint32)] = args[1].([]byte)
	}
	return pgconn.CommandTag{}, nil
}

func (f *fakeDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakeDB: Query not supported")
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	blob, ok := f.rows[args[0].(uint32)]
	return &fakeRow{blob: blob, ok: ok}
}

type fakeRow struct {
	blob []byte
	ok   bool
}

func (r *fakeRow) Scan(dest ...any) error {
	if !r.ok {
		return pgx.ErrNoRows
	}
	ptr, ok := dest[0].(*[]byte)
	if !ok {
		return errors.New("fakeRow: unsupported scan destination")
	}
	*ptr = r.blob
	return nil
}

func TestRotate_ThenGet_ReturnsNewSecret(t *testing.T) {
	store := NewStore(16, testKey(t), testCodec(t), discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	first, ok := store.Rotate(ctx, db, 1)
	if !ok {
		t.Fatal("Rotate failed")
	}
	got, ok := store.Get(ctx, db, 1, false)
	if !ok {
		t.Fatal("Get after Rotate failed")
	}
	if string(got.Padded()) != string(first.Padded()) {
		t.Fatal("Get after Rotate did not return the rotated secret")
	}

	second, ok := store.Rotate(ctx, db, 1)
	if !ok {
		t.Fatal("second Rotate failed")
	}
	if string(second.Padded()) == string(first.Padded()) {
		t.Fatal("rotate produced the same secret twice")
	}
}

func TestRotate_StorageBlobChangesEveryTime(t *testing.T) {
	store := NewStore(16, testKey(t), testCodec(t), discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	if _, ok := store.Rotate(ctx, db, 7); !ok {
		t.Fatal("first Rotate failed")
	}
	blobA := append([]byte(nil), db.rows[7]...)

	if _, ok := store.Rotate(ctx, db, 7); !ok {
		t.Fatal("second Rotate failed")
	}
	blobB := db.rows[7]

	if string(blobA) == string(blobB) {
		t.Fatal("rotated storage blob is identical across rotations (IV should differ)")
	}
	if len(blobA) != ivLen+PaddedLen || len(blobB) != ivLen+PaddedLen {
		t.Fatalf("unexpected blob length: %d, %d", len(blobA), len(blobB))
	}
}

func TestDelete_ThenGet_IsAbsent(t *testing.T) {
	store := NewStore(16, testKey(t), testCodec(t), discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	if _, ok := store.Rotate(ctx, db, 3); !ok {
		t.Fatal("Rotate failed")
	}
	if !store.Delete(ctx, db, 3) {
		t.Fatal("Delete failed")
	}
	if _, ok := store.Get(ctx, db, 3, false); ok {
		t.Fatal("Get returned a secret after Delete")
	}
}

func TestGet_CachePopulatedOnMiss_UnlessSuppressed(t *testing.T) {
	store := NewStore(16, testKey(t), testCodec(t), discardLogger())
	db := newFakeDB()
	ctx := context.Background()

	if _, ok := store.Rotate(ctx, db, 9); !ok {
		t.Fatal("Rotate failed")
	}
	// Evict from the cache to force a database read on the next Get.
	store.mu.Lock()
	store.cache.Evict(9)
	store.mu.Unlock()

	if _, ok := store.Get(ctx, db, 9, true); !ok {
		t.Fatal("Get (noCacheUpdate) failed")
	}
	store.mu.Lock()
	_, cached := store.cache.Get(9)
	store.mu.Unlock()
	if cached {
		t.Fatal("Get with noCacheUpdate populated the cache")
	}

	if _, ok := store.Get(ctx, db, 9, false); !ok {
		t.Fatal("Get failed")
	}
	store.mu.Lock()
	_, cached = store.cache.Get(9)
	store.mu.Unlock()
	if !cached {
		t.Fatal("Get did not populate the cache on a miss")
	}
}
