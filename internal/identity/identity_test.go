package identity

import (
	"encoding/binary"
	"math/rand"
	"testing"
)

func testCodec(t *testing.T) *Codec {
	t.Helper()
	key := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	c, err := NewCodec(key)
	if err != nil {
		t.Fatalf("NewCodec: %v", err)
	}
	return c
}

func TestRoundTrip(t *testing.T) {
	c := testCodec(t)

	ids := []uint32{1, 2, 1 << 31, 1<<32 - 1, 0xdeadbeef}
	for _, id := range ids {
		identifier := c.ToIdentifier(id)
		got := c.ToCustomerID(identifier)
		if got != id {
			t.Errorf("round trip failed for %d: got %d", id, got)
		}
	}
}

func TestRandomIdentifiersMostlyInvalid(t *testing.T) {
	c := testCodec(t)

	r := rand.New(rand.NewSource(1))
	valid := 0
	const trials = 200000
	for i := 0; i < trials; i++ {
		var b [8]byte
		r.Read(b[:])
		identifier := binary.LittleEndian.Uint64(b[:])
		if c.ToCustomerID(identifier) != 0 {
			valid++
		}
	}

	// Expected validity rate is ~2^-32; over 200k trials we expect ~0 hits.
	if valid > 5 {
		t.Errorf("unexpectedly many random identifiers decoded as valid: %d/%d", valid, trials)
	}
}

func TestKeyChangeChangesIdentifiers(t *testing.T) {
	key1 := [16]byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}
	key2 := [16]byte{16, 15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1}

	c1, _ := NewCodec(key1)
	c2, _ := NewCodec(key2)

	differences := 0
	for id := uint32(1); id <= 1000; id++ {
		if c1.ToIdentifier(id) != c2.ToIdentifier(id) {
			differences++
		}
	}
	if differences < 990 {
		t.Errorf("expected nearly all identifiers to differ across keys, only %d/1000 did", differences)
	}
}

func TestFormatParseHex(t *testing.T) {
	c := testCodec(t)
	identifier := c.ToIdentifier(42)

	s := FormatHex(identifier)
	if len(s) != 16 {
		t.Fatalf("expected 16 hex digits, got %q", s)
	}

	got, err := ParseHex(s)
	if err != nil {
		t.Fatalf("ParseHex: %v", err)
	}
	if got != identifier {
		t.Errorf("ParseHex(FormatHex(x)) = %d, want %d", got, identifier)
	}

	if _, err := ParseHex("zz"); err == nil {
		t.Error("expected error for malformed identifier")
	}
}
