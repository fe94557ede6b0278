// Package crypto provides the hashing and signing primitives used to build
// and verify units.
package crypto

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// HashSize is the length of a hash in bytes.
const HashSize = 32

// Hash is a 256-bit BLAKE3 digest.
type Hash [HashSize]byte

// IsZero reports whether the hash is all zeros.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// String returns the hex-encoded hash.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Bytes returns a copy of the hash as a byte slice.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashSize)
	copy(b, h[:])
	return b
}

// Short returns the first 8 hex characters, used in log lines.
func (h Hash) Short() string {
	return h.String()[:8]
}

// SumHash computes the BLAKE3-256 hash of data.
func SumHash(data []byte) Hash {
	return blake3.Sum256(data)
}

// HashConcat hashes the concatenation of two hashes. Used by the poset's
// tie-break permutation of creator ids (permutationSeededBy).
func HashConcat(a, b Hash) Hash {
	var buf [2 * HashSize]byte
	copy(buf[:HashSize], a[:])
	copy(buf[HashSize:], b[:])
	return SumHash(buf[:])
}

// HexToHash parses a hex string into a Hash. Returns an error if the string
// is not exactly 64 hex characters.
func HexToHash(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		return Hash{}, fmt.Errorf("invalid hex: %w", err)
	}
	if len(b) != HashSize {
		return Hash{}, fmt.Errorf("hash must be %d bytes, got %d", HashSize, len(b))
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}
