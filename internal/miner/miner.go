// Package miner produces compact blocks for the simulated chain.
package miner

import (
	"bytes"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// DefaultMaxBlockTxs bounds the transactions in one produced block.
const DefaultMaxBlockTxs = 1000

// ChainState provides read-only access to the current chain tip.
type ChainState interface {
	Height() types.BlockHeight
	TipHash() types.Hash
	TipTime() uint32
	TreeSize(pool types.Pool) uint64
}

// MempoolSelector selects transactions for block inclusion.
type MempoolSelector interface {
	SelectForBlock(limit int) []*tx.Transaction
}

// Block is a produced block: its compact form plus the full transactions
// it contains, in block order.
type Block struct {
	Compact *block.CompactBlock
	Txs     []*tx.Transaction
}

// Miner produces new blocks.
type Miner struct {
	chain       ChainState
	pool        MempoolSelector
	maxBlockTxs int
}

// New creates a new block producer.
func New(chain ChainState, pool MempoolSelector) *Miner {
	return &Miner{
		chain:       chain,
		pool:        pool,
		maxBlockTxs: DefaultMaxBlockTxs,
	}
}

// ProduceBlock builds the next block at the current time. Funding
// transactions come first, followed by mempool transactions. The block is
// NOT applied to the chain; the caller does that.
func (m *Miner) ProduceBlock(funding ...*tx.Transaction) *Block {
	return m.ProduceBlockAt(uint32(time.Now().Unix()), funding...)
}

// ProduceBlockAt builds the next block with the given timestamp, bumped to
// at least the parent's timestamp plus one.
func (m *Miner) ProduceBlockAt(timestamp uint32, funding ...*tx.Transaction) *Block {
	if parent := m.chain.TipTime(); timestamp <= parent {
		timestamp = parent + 1
	}

	var selected []*tx.Transaction
	if m.pool != nil {
		selected = m.pool.SelectForBlock(max(m.maxBlockTxs-len(funding), 0))
	}
	// Mempool transactions go in canonical txid order.
	sort.Slice(selected, func(i, j int) bool {
		hi, hj := selected[i].ID(), selected[j].ID()
		return bytes.Compare(hi[:], hj[:]) < 0
	})

	txs := make([]*tx.Transaction, 0, len(funding)+len(selected))
	txs = append(txs, funding...)
	txs = append(txs, selected...)

	cb := &block.CompactBlock{
		Height:   m.chain.Height() + 1,
		PrevHash: m.chain.TipHash(),
		Time:     timestamp,
		Metadata: block.ChainMetadata{
			SaplingTreeSize: m.chain.TreeSize(types.PoolSapling),
			OrchardTreeSize: m.chain.TreeSize(types.PoolOrchard),
		},
	}
	for i, t := range txs {
		cb.Txs = append(cb.Txs, t.Compact(uint64(i)))
	}
	cb.Metadata.SaplingTreeSize += cb.OutputCount(types.PoolSapling)
	cb.Metadata.OrchardTreeSize += cb.OutputCount(types.PoolOrchard)
	cb.Hash = cb.ComputeHash()

	return &Block{Compact: cb, Txs: txs}
}

// BuildFunding creates a transaction with no spends paying value to addr.
// It plays the role of a coinbase: it is mined without validation.
func BuildFunding(addr types.Address, value uint64, r io.Reader) (*tx.Transaction, error) {
	n, err := note.New(addr, value, r)
	if err != nil {
		return nil, fmt.Errorf("funding note: %w", err)
	}
	var ovk [32]byte
	if _, err := io.ReadFull(r, ovk[:]); err != nil {
		return nil, fmt.Errorf("funding ovk: %w", err)
	}
	enc, err := note.Encrypt(n, ovk, r)
	if err != nil {
		return nil, fmt.Errorf("encrypt funding note: %w", err)
	}
	return tx.NewBuilder().AddOutput(addr.Pool, enc).Build(), nil
}
