// Package identity implements the reversible customer-identifier codec:
// a bijection between a 32-bit CustomerId and the 64-bit opaque identifier
// exchanged with clients, built on an XTEA block cipher keyed by a
// process-wide 128-bit secret.
//
// Grounded on dbc/include/customer_secret.h and dbc/source/customer_secrets.cpp
// (original_source), which derive the wire identifier from the customer ID
// via a 64-bit-block Feistel cipher; golang.org/x/crypto/xtea is the
// ecosystem implementation of exactly that cipher family (64-bit block,
// 128-bit key, 64-round Feistel), so round constants and schedule match any
// other XTEA implementation bit-for-bit.
package identity

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"

	"golang.org/x/crypto/xtea"
)

// Codec converts between numeric CustomerId and the opaque 64-bit
// identifier exchanged with clients. It is safe for concurrent use: XTEA
// encrypt/decrypt hold no mutable state beyond the expanded key schedule,
// which is fixed at construction.
type Codec struct {
	cipher *xtea.Cipher
}

// NewCodec creates a Codec from a 16-byte (128-bit) key.
func NewCodec(key [16]byte) (*Codec, error) {
	c, err := xtea.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("identity: constructing XTEA cipher: %w", err)
	}
	return &Codec{cipher: c}, nil
}

// ToIdentifier encrypts the 64-bit block (customerID, 0) into the opaque
// identifier exchanged with clients.
func (c *Codec) ToIdentifier(customerID uint32) uint64 {
	var plain, cipherText [8]byte
	binary.LittleEndian.PutUint32(plain[0:4], customerID)
	// plain[4:8] stays zero.
	c.cipher.Encrypt(cipherText[:], plain[:])
	return binary.LittleEndian.Uint64(cipherText[:])
}

// ToCustomerID decrypts identifier and returns the CustomerId encoded in its
// low 32 bits. It returns 0 if the identifier's high 32 bits are non-zero,
// which is the sole validity predicate spec'd for this codec — any other
// 64-bit value decodes to *some* block, but is rejected here.
func (c *Codec) ToCustomerID(identifier uint64) uint32 {
	var cipherText, plain [8]byte
	binary.LittleEndian.PutUint64(cipherText[:], identifier)
	c.cipher.Decrypt(plain[:], cipherText[:])

	high := binary.LittleEndian.Uint32(plain[4:8])
	if high != 0 {
		return 0
	}
	return binary.LittleEndian.Uint32(plain[0:4])
}

// FormatHex renders an identifier as 16 lowercase zero-padded hex digits,
// the wire format spec'd for the customer identifier.
func FormatHex(identifier uint64) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], identifier)
	return hex.EncodeToString(b[:])
}

// ParseHex parses the 16-hex-digit wire form back into a uint64. It returns
// an error (never a panic) on malformed input, matching C7's "parse
// failure returns CustomerId 0" contract at the caller.
func ParseHex(s string) (uint64, error) {
	if len(s) != 16 {
		return 0, fmt.Errorf("identity: identifier must be 16 hex digits, got %d", len(s))
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return 0, fmt.Errorf("identity: invalid hex identifier: %w", err)
	}
	return binary.BigEndian.Uint64(b), nil
}
