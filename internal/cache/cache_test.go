package cache

import "testing"

type cacheRow struct {
	id    uint32
	value string
}

func rowID(r cacheRow) uint32 { return r.id }

func TestAddOrUpdate_CountNeverExceedsMaxDepth(t *testing.T) {
	c := New[cacheRow, uint32](16, rowID)

	for i := uint32(1); i <= 160; i++ {
		c.AddOrUpdate(cacheRow{id: i, value: "v"})
		if c.Count() > c.Depth() {
			t.Fatalf("count %d exceeds max depth %d after inserting id %d", c.Count(), c.Depth(), i)
		}
	}
}

func TestGet_ReturnsWhatWasAdded(t *testing.T) {
	c := New[cacheRow, uint32](16, rowID)
	c.AddOrUpdate(cacheRow{id: 42, value: "hello"})

	got, ok := c.Get(42)
	if !ok {
		t.Fatal("expected entry to be present")
	}
	if got.value != "hello" {
		t.Fatalf("got value %q, want %q", got.value, "hello")
	}
}

func TestEvict_RemovesEntry(t *testing.T) {
	c := New[cacheRow, uint32](16, rowID)
	c.AddOrUpdate(cacheRow{id: 7, value: "x"})

	if !c.Evict(7) {
		t.Fatal("expected evict to succeed")
	}
	if _, ok := c.Get(7); ok {
		t.Fatal("expected entry to be absent after evict")
	}
	if c.Evict(7) {
		t.Fatal("expected second evict to report false")
	}
}

func TestUpdate_OverwritesInPlace(t *testing.T) {
	c := New[cacheRow, uint32](16, rowID)
	c.AddOrUpdate(cacheRow{id: 1, value: "first"})
	before := c.Count()
	c.AddOrUpdate(cacheRow{id: 1, value: "second"})

	if c.Count() != before {
		t.Fatalf("count changed on update: before=%d after=%d", before, c.Count())
	}
	got, _ := c.Get(1)
	if got.value != "second" {
		t.Fatalf("got %q, want %q", got.value, "second")
	}
}

func TestMaxDistance_BoundsProbeLength(t *testing.T) {
	c := New[cacheRow, uint32](64, rowID)
	for i := uint32(1); i <= 64; i++ {
		c.AddOrUpdate(cacheRow{id: i * 97, value: "v"})
	}

	for j := uint64(0); j < c.tableSize; j++ {
		if !c.table[j].occupied {
			continue
		}
		id := c.idFromValue(c.table[j].value)
		h := c.initialHash(id)
		d := (j + c.tableSize - h) % c.tableSize
		// This occupant's own probe distance from its home bucket h must not
		// exceed the maxDistance recorded for h.
		if d > c.maxDistance[h] {
			t.Fatalf("bucket %d: occupant at distance %d exceeds recorded maxDistance %d", h, d, c.maxDistance[h])
		}
	}
}

func TestResize_EmptiesAndStaysUsable(t *testing.T) {
	c := New[cacheRow, uint32](16, rowID)
	for i := uint32(1); i <= 10; i++ {
		c.AddOrUpdate(cacheRow{id: i, value: "v"})
	}

	c.Resize(32)
	if c.Count() != 0 {
		t.Fatalf("expected count 0 after resize, got %d", c.Count())
	}
	if _, ok := c.Get(1); ok {
		t.Fatal("expected entries to be dropped after resize")
	}

	c.AddOrUpdate(cacheRow{id: 1, value: "after-resize"})
	got, ok := c.Get(1)
	if !ok || got.value != "after-resize" {
		t.Fatal("cache not usable after resize")
	}
}

func TestEvictionPolicy_CacheNeverOverfills(t *testing.T) {
	const depth = 16
	c := New[cacheRow, uint32](depth, rowID)

	for i := uint32(1); i <= 20; i++ {
		c.AddOrUpdate(cacheRow{id: i, value: "v"})
		if c.Count() > depth {
			t.Fatalf("count %d exceeds depth %d", c.Count(), depth)
		}
	}

	present := 0
	for i := uint32(1); i <= 20; i++ {
		if _, ok := c.Get(i); ok {
			present++
		}
	}
	if present < 0 || present > depth {
		t.Fatalf("present=%d, want between 0 and %d", present, depth)
	}
}
