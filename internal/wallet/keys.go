package wallet

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Key derivation domains.
const (
	domainAsk = "webz 2024 spend authorizing key"
	domainNk  = "webz 2024 nullifier deriving key"
	domainOvk = "webz 2024 outgoing viewing key"
	domainIvk = "webz 2024 incoming viewing key"
)

// FullViewingKeySize is the encoded length of a full viewing key:
// ak(33) | nk(32) | ovk(32).
const FullViewingKeySize = crypto.PublicKeySize + 32 + 32

// ErrInvalidViewingKey is returned when a viewing key fails to decode.
var ErrInvalidViewingKey = errors.New("invalid viewing key")

// SpendingKey authorizes spends from one account.
type SpendingKey struct {
	account uint32
	ask     *crypto.PrivateKey
	nk      [32]byte
	ovk     [32]byte
}

// SpendingKeyFromSeed derives the spending key of account under coinType.
func SpendingKeyFromSeed(seed []byte, coinType, account uint32) (*SpendingKey, error) {
	master, err := NewMasterKey(seed)
	if err != nil {
		return nil, err
	}
	defer master.Zero()
	child, err := master.DeriveAccount(coinType, account)
	if err != nil {
		return nil, err
	}
	defer child.Zero()

	material := child.PrivateKeyBytes()
	askBytes := crypto.DomainHash(domainAsk, material)
	ask, err := crypto.PrivateKeyFromBytes(askBytes[:])
	clear(askBytes[:])
	if err != nil {
		return nil, fmt.Errorf("derive spend authorizing key: %w", err)
	}
	return &SpendingKey{
		account: account,
		ask:     ask,
		nk:      crypto.DomainHash(domainNk, material),
		ovk:     crypto.DomainHash(domainOvk, material),
	}, nil
}

// Account returns the derivation index of the key.
func (sk *SpendingKey) Account() uint32 {
	return sk.account
}

// AuthKey returns the spend-authorizing signing key.
func (sk *SpendingKey) AuthKey() *crypto.PrivateKey {
	return sk.ask
}

// FullViewingKey returns the viewing key that detects the account's
// incoming notes, their spends, and its outgoing notes.
func (sk *SpendingKey) FullViewingKey() *FullViewingKey {
	fvk := &FullViewingKey{NK: sk.nk, OVK: sk.ovk}
	copy(fvk.AK[:], sk.ask.PublicKey())
	return fvk
}

// Zero wipes the key.
func (sk *SpendingKey) Zero() {
	sk.ask.Zero()
	clear(sk.nk[:])
	clear(sk.ovk[:])
}

// FullViewingKey is the public half of a spending key.
type FullViewingKey struct {
	AK  [crypto.PublicKeySize]byte
	NK  [32]byte
	OVK [32]byte
}

// IVK returns the incoming viewing key used for trial decryption.
func (fvk *FullViewingKey) IVK() [32]byte {
	return crypto.DomainHash(domainIvk, fvk.AK[:], fvk.NK[:])
}

// Address returns the account's default address in pool.
func (fvk *FullViewingKey) Address(pool types.Pool) (types.Address, error) {
	if !pool.Valid() {
		return types.Address{}, fmt.Errorf("invalid pool %d", pool)
	}
	pk, err := crypto.ScalarBaseMult(fvk.IVK())
	if err != nil {
		return types.Address{}, fmt.Errorf("derive address: %w", err)
	}
	return types.Address{Pool: pool, Key: pk}, nil
}

// Bytes returns the raw ak | nk | ovk encoding.
func (fvk *FullViewingKey) Bytes() []byte {
	b := make([]byte, 0, FullViewingKeySize)
	b = append(b, fvk.AK[:]...)
	b = append(b, fvk.NK[:]...)
	return append(b, fvk.OVK[:]...)
}

// Equal reports whether two viewing keys are identical.
func (fvk *FullViewingKey) Equal(other *FullViewingKey) bool {
	return other != nil && bytes.Equal(fvk.Bytes(), other.Bytes())
}

// Encode renders the key as bech32m under hrp.
func (fvk *FullViewingKey) Encode(hrp string) (string, error) {
	return types.Bech32mEncode(hrp, fvk.Bytes())
}

// DecodeFullViewingKey parses a bech32m viewing key and checks its prefix.
func DecodeFullViewingKey(s, hrp string) (*FullViewingKey, error) {
	gotHRP, data, enc, err := types.DecodeBech32(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidViewingKey, err)
	}
	if gotHRP != hrp {
		return nil, fmt.Errorf("%w: prefix %q, want %q", ErrInvalidViewingKey, gotHRP, hrp)
	}
	if enc != types.Bech32m {
		return nil, fmt.Errorf("%w: not bech32m", ErrInvalidViewingKey)
	}
	return FullViewingKeyFromBytes(data)
}

// FullViewingKeyFromBytes parses the raw encoding returned by Bytes.
func FullViewingKeyFromBytes(data []byte) (*FullViewingKey, error) {
	if len(data) != FullViewingKeySize {
		return nil, fmt.Errorf("%w: %d bytes, want %d", ErrInvalidViewingKey, len(data), FullViewingKeySize)
	}
	fvk := &FullViewingKey{}
	copy(fvk.AK[:], data[:crypto.PublicKeySize])
	copy(fvk.NK[:], data[crypto.PublicKeySize:crypto.PublicKeySize+32])
	copy(fvk.OVK[:], data[crypto.PublicKeySize+32:])
	if err := crypto.ValidatePublicKey(fvk.AK[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidViewingKey, err)
	}
	return fvk, nil
}

// KeyProvider derives spending keys for one network.
type KeyProvider struct {
	CoinType uint32
}

// DeriveSpendingKey derives the key of account from a recovery phrase.
// Seed material never outlives the call.
func (p KeyProvider) DeriveSpendingKey(phrase string, account uint32) (*SpendingKey, error) {
	if account > MaxAccountIndex {
		return nil, fmt.Errorf("account index %d out of range", account)
	}
	var sk *SpendingKey
	err := WithSeed(phrase, "", func(seed []byte) error {
		var err error
		sk, err = SpendingKeyFromSeed(seed, p.CoinType, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return sk, nil
}
