package tx

import (
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Builder constructs transactions incrementally.
type Builder struct {
	tx *Transaction
}

// NewBuilder creates a new transaction builder.
func NewBuilder() *Builder {
	return &Builder{
		tx: &Transaction{Version: CurrentVersion},
	}
}

// AddSpend adds a spend revealing the nullifier of a note in pool.
func (b *Builder) AddSpend(pool types.Pool, nullifier types.Hash) *Builder {
	b.tx.Spends = append(b.tx.Spends, Spend{Pool: pool, Nullifier: nullifier})
	return b
}

// AddOutput adds an encrypted output to pool.
func (b *Builder) AddOutput(pool types.Pool, enc *note.EncryptedNote) *Builder {
	b.tx.Outputs = append(b.tx.Outputs, Output{
		Pool:          pool,
		Commitment:    enc.Commitment,
		EphemeralKey:  types.Hash(enc.EphemeralKey),
		Ciphertext:    enc.Ciphertext,
		OutCiphertext: enc.OutCiphertext,
	})
	return b
}

// SetFee sets the transaction fee.
func (b *Builder) SetFee(fee uint64) *Builder {
	b.tx.Fee = fee
	return b
}

// SetExpiry sets the last height at which the transaction may be mined.
func (b *Builder) SetExpiry(height types.BlockHeight) *Builder {
	b.tx.ExpiryHeight = height
	return b
}

// SetAnchor sets the tree root that spends from pool are proven against.
func (b *Builder) SetAnchor(pool types.Pool, root types.Hash) *Builder {
	if pool == types.PoolOrchard {
		b.tx.OrchardAnchor = root
	} else {
		b.tx.SaplingAnchor = root
	}
	return b
}

// Sign authorizes every spend with key. The auth key is committed to by
// the transaction ID, so it is set on all spends before hashing.
func (b *Builder) Sign(key *crypto.PrivateKey) error {
	pubKey := key.PublicKey()
	for i := range b.tx.Spends {
		b.tx.Spends[i].AuthKey = pubKey
	}
	id := b.tx.ID()
	sig, err := key.Sign(id[:])
	if err != nil {
		return fmt.Errorf("sign tx: %w", err)
	}
	for i := range b.tx.Spends {
		b.tx.Spends[i].Signature = sig
	}
	return nil
}

// Build returns the constructed transaction.
func (b *Builder) Build() *Transaction {
	return b.tx
}
