package types

import (
	"encoding/hex"
	"fmt"
)

// AddressKeySize is the length of a shielded transmission key.
const AddressKeySize = 32

// Address is a shielded payment address: the pool that receives the note
// and the recipient's transmission key. Rendering as text needs network
// HRPs and lives in the config package.
type Address struct {
	Pool Pool
	Key  [AddressKeySize]byte
}

// IsZero returns true if the address key is all zeros.
func (a Address) IsZero() bool {
	return a.Key == [AddressKeySize]byte{}
}

// Encoding returns the checksum variant used for the pool: bech32 for
// Sapling, bech32m for unified (Orchard) addresses.
func (a Address) Encoding() Encoding {
	if a.Pool == PoolOrchard {
		return Bech32m
	}
	return Bech32
}

// Encode renders the address under hrp.
func (a Address) Encode(hrp string) (string, error) {
	if !a.Pool.Valid() {
		return "", fmt.Errorf("address has invalid pool %d", a.Pool)
	}
	return EncodeBech32(a.Encoding(), hrp, a.Key[:])
}

// Hex returns the raw hex-encoded key, for logs.
func (a Address) Hex() string {
	return hex.EncodeToString(a.Key[:])
}

// DecodeAddressPayload checks the checksum variant and payload length of
// a decoded address for pool p.
func DecodeAddressPayload(p Pool, enc Encoding, data []byte) (Address, error) {
	want := Address{Pool: p}
	if enc != want.Encoding() {
		return Address{}, fmt.Errorf("%s address has wrong checksum variant", p)
	}
	if len(data) != AddressKeySize {
		return Address{}, fmt.Errorf("address key must be %d bytes, got %d", AddressKeySize, len(data))
	}
	copy(want.Key[:], data)
	return want, nil
}
