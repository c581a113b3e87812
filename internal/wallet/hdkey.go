package wallet

import (
	"fmt"

	"github.com/tyler-smith/go-bip32"
)

// Account key paths are m/32'/coin_type'/account', all hardened.
const (
	// PurposeShielded is the purpose level of shielded account paths.
	PurposeShielded = bip32.FirstHardenedChild + 32

	// MaxAccountIndex is the largest account index that can be hardened.
	MaxAccountIndex = bip32.FirstHardenedChild - 1
)

// HDKey represents a hierarchical deterministic key (BIP-32).
type HDKey struct {
	key *bip32.Key
}

// NewMasterKey creates a master HD key from a 64-byte seed.
func NewMasterKey(seed []byte) (*HDKey, error) {
	if len(seed) != SeedSize {
		return nil, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(seed))
	}
	master, err := bip32.NewMasterKey(seed)
	if err != nil {
		return nil, fmt.Errorf("create master key: %w", err)
	}
	return &HDKey{key: master}, nil
}

// DeriveChild derives a child key at the given index.
// For hardened derivation, add bip32.FirstHardenedChild to the index.
func (k *HDKey) DeriveChild(index uint32) (*HDKey, error) {
	child, err := k.key.NewChildKey(index)
	if err != nil {
		return nil, fmt.Errorf("derive child %d: %w", index, err)
	}
	return &HDKey{key: child}, nil
}

// wipeIntermediate zeroes a key DerivePath no longer needs.
var wipeIntermediate = (*HDKey).Zero

// DerivePath derives a key along a sequence of indices. Keys between k and
// the result are zeroed once their child exists, and on failure.
func (k *HDKey) DerivePath(indices ...uint32) (*HDKey, error) {
	current := k
	for _, idx := range indices {
		child, err := current.DeriveChild(idx)
		if current != k {
			wipeIntermediate(current)
		}
		if err != nil {
			return nil, err
		}
		current = child
	}
	return current, nil
}

// DeriveAccount derives the key at m/32'/coinType'/account'.
func (k *HDKey) DeriveAccount(coinType, account uint32) (*HDKey, error) {
	if account > MaxAccountIndex {
		return nil, fmt.Errorf("account index %d out of range", account)
	}
	return k.DerivePath(
		PurposeShielded,
		bip32.FirstHardenedChild+coinType,
		bip32.FirstHardenedChild+account,
	)
}

// PrivateKeyBytes returns the raw 32-byte private key.
// Returns nil if this is a public-only key.
func (k *HDKey) PrivateKeyBytes() []byte {
	if !k.key.IsPrivate {
		return nil
	}
	// bip32 Key.Key is 33 bytes with a leading 0x00 for private keys.
	raw := k.key.Key
	if len(raw) == 33 && raw[0] == 0 {
		return raw[1:]
	}
	return raw
}

// Depth returns the derivation depth (0 for master).
func (k *HDKey) Depth() uint8 {
	return k.key.Depth
}

// Zero wipes the private key and chain code.
func (k *HDKey) Zero() {
	clear(k.key.Key)
	clear(k.key.ChainCode)
}
