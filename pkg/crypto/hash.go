// Package crypto provides the cryptographic primitives used by notes,
// keys and transactions.
package crypto

import (
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/zeebo/blake3"
)

// Hash computes a BLAKE3-256 hash of the input data.
func Hash(data []byte) types.Hash {
	return blake3.Sum256(data)
}

// DomainHash hashes the concatenation of parts under a BLAKE3 key-derivation
// context. Distinct domains never collide, so one input can safely feed
// several derivations.
func DomainHash(domain string, parts ...[]byte) types.Hash {
	h := blake3.NewDeriveKey(domain)
	for _, p := range parts {
		h.Write(p)
	}
	var out types.Hash
	copy(out[:], h.Sum(nil))
	return out
}

// HashConcat hashes the concatenation of two hashes.
// Used for folding note commitments into tree frontiers.
func HashConcat(a, b types.Hash) types.Hash {
	var buf [64]byte
	copy(buf[:32], a[:])
	copy(buf[32:], b[:])
	return Hash(buf[:])
}
