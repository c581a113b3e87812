// Package block defines the compact block format streamed by the chain
// source, its validation, and the note commitment tree states the wallet
// anchors scanning to.
package block

import (
	"encoding/binary"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// CompactBlock carries only what a light wallet needs from a block:
// per-transaction nullifiers and encrypted outputs.
type CompactBlock struct {
	Height   types.BlockHeight `json:"height"`
	Hash     types.Hash        `json:"hash"`
	PrevHash types.Hash        `json:"prevHash"`
	Time     uint32            `json:"time"`
	Txs      []*CompactTx      `json:"vtx"`
	// Metadata reports tree sizes after this block.
	Metadata ChainMetadata `json:"chainMetadata"`
}

// ChainMetadata holds the note commitment tree sizes at the end of a block.
type ChainMetadata struct {
	SaplingTreeSize uint64 `json:"saplingCommitmentTreeSize"`
	OrchardTreeSize uint64 `json:"orchardCommitmentTreeSize"`
}

// TreeSize returns the end-of-block tree size for pool.
func (m ChainMetadata) TreeSize(pool types.Pool) uint64 {
	if pool == types.PoolOrchard {
		return m.OrchardTreeSize
	}
	return m.SaplingTreeSize
}

// CompactTx is the shielded part of one transaction.
type CompactTx struct {
	// Index is the transaction's position in the full block.
	Index   uint64          `json:"index"`
	TxID    types.Hash      `json:"txid"`
	Spends  []CompactSpend  `json:"spends"`
	Outputs []CompactOutput `json:"outputs"`
}

// CompactSpend reveals the nullifier of a spent note.
type CompactSpend struct {
	Pool      types.Pool `json:"pool"`
	Nullifier types.Hash `json:"nf"`
}

// CompactOutput is a new note: its commitment plus what the recipient
// needs for trial decryption.
type CompactOutput struct {
	Pool         types.Pool `json:"pool"`
	Commitment   types.Hash `json:"cmx"`
	EphemeralKey types.Hash `json:"epk"`
	Ciphertext   []byte     `json:"ciphertext"`
}

// ComputeHash derives the block hash from the height, parent, time and
// transaction IDs.
func (b *CompactBlock) ComputeHash() types.Hash {
	buf := make([]byte, 0, 4+32+4+len(b.Txs)*32)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(b.Height))
	buf = append(buf, b.PrevHash[:]...)
	buf = binary.LittleEndian.AppendUint32(buf, b.Time)
	for _, tx := range b.Txs {
		buf = append(buf, tx.TxID[:]...)
	}
	return crypto.Hash(buf)
}

// OutputCount returns how many outputs of pool the block contains.
func (b *CompactBlock) OutputCount(pool types.Pool) uint64 {
	var n uint64
	for _, tx := range b.Txs {
		for _, out := range tx.Outputs {
			if out.Pool == pool {
				n++
			}
		}
	}
	return n
}
