// Package tx defines shielded transactions, their canonical encoding,
// construction and structural validation.
package tx

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// CurrentVersion is the transaction version produced by this software.
const CurrentVersion = 5

// Transaction is a fully shielded transaction. Value moves between notes;
// the only public amount is the fee.
type Transaction struct {
	Version       uint32            `json:"version"`
	ExpiryHeight  types.BlockHeight `json:"expiryHeight"`
	Fee           uint64            `json:"fee"`
	SaplingAnchor types.Hash        `json:"saplingAnchor"`
	OrchardAnchor types.Hash        `json:"orchardAnchor"`
	Spends        []Spend           `json:"spends"`
	Outputs       []Output          `json:"outputs"`
}

// Spend consumes a note by revealing its nullifier. AuthKey and Signature
// prove the spender controls the note's spend-authorizing key.
type Spend struct {
	Pool      types.Pool `json:"pool"`
	Nullifier types.Hash `json:"nullifier"`
	AuthKey   []byte     `json:"authKey"`
	Signature []byte     `json:"signature"`
}

// Output creates a note.
type Output struct {
	Pool          types.Pool `json:"pool"`
	Commitment    types.Hash `json:"cmx"`
	EphemeralKey  types.Hash `json:"epk"`
	Ciphertext    []byte     `json:"ciphertext"`
	OutCiphertext []byte     `json:"outCiphertext"`
}

// Anchor returns the commitment tree root the spends of pool prove
// membership against.
func (tx *Transaction) Anchor(pool types.Pool) types.Hash {
	if pool == types.PoolOrchard {
		return tx.OrchardAnchor
	}
	return tx.SaplingAnchor
}

// ID computes the transaction ID (BLAKE3 hash of the signing data).
// Signatures are excluded to avoid a circular dependency.
func (tx *Transaction) ID() types.Hash {
	return crypto.Hash(tx.SigningBytes())
}

// SigningBytes returns the canonical encoding without signatures.
func (tx *Transaction) SigningBytes() []byte {
	return tx.encode(false)
}

// Serialize returns the full canonical encoding, as submitted to the
// network.
//
// Format: version(4) | expiry(4) | fee(8) | sapling_anchor(32) |
// orchard_anchor(32) | spend_count(4) | [pool(1) nf(32) authkey(var)
// sig(var)]... | output_count(4) | [pool(1) cmx(32) epk(32) ct(var)
// outct(var)]...
// Variable fields carry a 4-byte length prefix.
func (tx *Transaction) Serialize() []byte {
	return tx.encode(true)
}

func (tx *Transaction) encode(withSigs bool) []byte {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, tx.Version)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(tx.ExpiryHeight))
	buf = binary.LittleEndian.AppendUint64(buf, tx.Fee)
	buf = append(buf, tx.SaplingAnchor[:]...)
	buf = append(buf, tx.OrchardAnchor[:]...)

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Spends)))
	for _, sp := range tx.Spends {
		buf = append(buf, byte(sp.Pool))
		buf = append(buf, sp.Nullifier[:]...)
		buf = appendBytes(buf, sp.AuthKey)
		if withSigs {
			buf = appendBytes(buf, sp.Signature)
		}
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(tx.Outputs)))
	for _, out := range tx.Outputs {
		buf = append(buf, byte(out.Pool))
		buf = append(buf, out.Commitment[:]...)
		buf = append(buf, out.EphemeralKey[:]...)
		buf = appendBytes(buf, out.Ciphertext)
		buf = appendBytes(buf, out.OutCiphertext)
	}
	return buf
}

func appendBytes(buf, b []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// ErrTruncated is returned when Deserialize runs out of input.
var ErrTruncated = errors.New("transaction encoding truncated")

// maxFieldLen bounds variable-length fields so a corrupt length prefix
// cannot force a huge allocation.
const maxFieldLen = 1 << 16

// Deserialize parses the output of Serialize.
func Deserialize(b []byte) (*Transaction, error) {
	r := reader{b: b}
	tx := &Transaction{}
	tx.Version = r.uint32()
	tx.ExpiryHeight = types.BlockHeight(r.uint32())
	tx.Fee = r.uint64()
	r.hash(&tx.SaplingAnchor)
	r.hash(&tx.OrchardAnchor)

	nSpends := r.count()
	for i := 0; i < nSpends && r.err == nil; i++ {
		var sp Spend
		sp.Pool = types.Pool(r.byte())
		r.hash(&sp.Nullifier)
		sp.AuthKey = r.bytes()
		sp.Signature = r.bytes()
		tx.Spends = append(tx.Spends, sp)
	}

	nOutputs := r.count()
	for i := 0; i < nOutputs && r.err == nil; i++ {
		var out Output
		out.Pool = types.Pool(r.byte())
		r.hash(&out.Commitment)
		r.hash(&out.EphemeralKey)
		out.Ciphertext = r.bytes()
		out.OutCiphertext = r.bytes()
		tx.Outputs = append(tx.Outputs, out)
	}

	if r.err != nil {
		return nil, r.err
	}
	if len(r.b) != 0 {
		return nil, fmt.Errorf("transaction encoding has %d trailing bytes", len(r.b))
	}
	return tx, nil
}

type reader struct {
	b   []byte
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if len(r.b) < n {
		r.err = ErrTruncated
		return nil
	}
	out := r.b[:n]
	r.b = r.b[n:]
	return out
}

func (r *reader) byte() byte {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) uint32() uint32 {
	if b := r.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (r *reader) uint64() uint64 {
	if b := r.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (r *reader) hash(h *types.Hash) {
	if b := r.take(types.HashSize); b != nil {
		copy(h[:], b)
	}
}

func (r *reader) count() int {
	n := r.uint32()
	if r.err == nil && n > MaxActions {
		r.err = fmt.Errorf("count %d exceeds %d", n, MaxActions)
	}
	return int(n)
}

func (r *reader) bytes() []byte {
	n := r.uint32()
	if r.err == nil && n > maxFieldLen {
		r.err = fmt.Errorf("field length %d exceeds %d", n, maxFieldLen)
		return nil
	}
	b := r.take(int(n))
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Compact returns the compact-block form of the transaction at index in
// its block.
func (tx *Transaction) Compact(index uint64) *block.CompactTx {
	ctx := &block.CompactTx{Index: index, TxID: tx.ID()}
	for _, sp := range tx.Spends {
		ctx.Spends = append(ctx.Spends, block.CompactSpend{Pool: sp.Pool, Nullifier: sp.Nullifier})
	}
	for _, out := range tx.Outputs {
		ctx.Outputs = append(ctx.Outputs, block.CompactOutput{
			Pool:         out.Pool,
			Commitment:   out.Commitment,
			EphemeralKey: out.EphemeralKey,
			Ciphertext:   out.Ciphertext,
		})
	}
	return ctx
}
