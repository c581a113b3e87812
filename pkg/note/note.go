// Package note defines shielded notes: their commitments, nullifiers and
// the in-band encryption that lets recipients find them by trial
// decryption.
package note

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Derivation domains.
const (
	domainCommitment = "webz 2024 note commitment"
	domainNullifier  = "webz 2024 nullifier"
)

// Note is a unit of shielded value owned by the holder of the recipient
// address's incoming viewing key.
type Note struct {
	Recipient types.Address `json:"recipient"`
	Value     uint64        `json:"value"`
	// Rseed randomizes the commitment so equal-valued notes to the same
	// address are unlinkable.
	Rseed [32]byte `json:"rseed"`
}

// New creates a note with fresh randomness from r.
func New(recipient types.Address, value uint64, r io.Reader) (Note, error) {
	n := Note{Recipient: recipient, Value: value}
	if !recipient.Pool.Valid() {
		return n, fmt.Errorf("recipient has invalid pool %d", recipient.Pool)
	}
	if _, err := io.ReadFull(r, n.Rseed[:]); err != nil {
		return n, fmt.Errorf("read rseed: %w", err)
	}
	return n, nil
}

// Pool returns the pool holding the note.
func (n *Note) Pool() types.Pool {
	return n.Recipient.Pool
}

// Commitment returns the note commitment that appears on chain.
func (n *Note) Commitment() types.Hash {
	var v [8]byte
	binary.LittleEndian.PutUint64(v[:], n.Value)
	return crypto.DomainHash(domainCommitment,
		[]byte{byte(n.Recipient.Pool)}, n.Recipient.Key[:], v[:], n.Rseed[:])
}

// Nullifier derives the nullifier revealed when the note committed as cm
// at tree position is spent. Only the holder of nk can compute it.
func Nullifier(nk [32]byte, cm types.Hash, position uint64) types.Hash {
	var pos [8]byte
	binary.LittleEndian.PutUint64(pos[:], position)
	return crypto.DomainHash(domainNullifier, nk[:], cm[:], pos[:])
}
