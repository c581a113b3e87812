package scan

import (
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Scan errors. Any of them aborts the batch being scanned.
var (
	ErrInvalidBlock     = errors.New("invalid block")
	ErrContinuity       = errors.New("block does not connect to previous block")
	ErrNotActivated     = errors.New("shielded pool not active at height")
	ErrTreeSizeMismatch = errors.New("tree size does not follow previous block")
)

// Network supplies the consensus heights the scanner enforces.
type Network interface {
	ActivationHeight(pool types.Pool) types.BlockHeight
}

// AccountKeys are the viewing keys of one account needed for scanning.
type AccountKeys struct {
	Account types.AccountID
	IVK     [32]byte
	NK      [32]byte
}

// ScanningKeys holds the keys of every account in the wallet.
type ScanningKeys struct {
	Accounts []AccountKeys
}

// Nullifiers maps the nullifiers of the wallet's unspent notes to their
// accounts, per pool.
type Nullifiers struct {
	sets map[types.Pool]map[types.Hash]types.AccountID
}

// NewNullifiers returns an empty set.
func NewNullifiers() *Nullifiers {
	return &Nullifiers{sets: make(map[types.Pool]map[types.Hash]types.AccountID)}
}

// Add records nf in pool as belonging to account.
func (n *Nullifiers) Add(pool types.Pool, nf types.Hash, account types.AccountID) {
	set, ok := n.sets[pool]
	if !ok {
		set = make(map[types.Hash]types.AccountID)
		n.sets[pool] = set
	}
	set[nf] = account
}

// Lookup returns the account owning nf in pool.
func (n *Nullifiers) Lookup(pool types.Pool, nf types.Hash) (types.AccountID, bool) {
	account, ok := n.sets[pool][nf]
	return account, ok
}

// Len returns the number of nullifiers tracked in pool.
func (n *Nullifiers) Len(pool types.Pool) int {
	return len(n.sets[pool])
}

// BlockMeta summarizes a scanned block for continuity checks.
type BlockMeta struct {
	Height          types.BlockHeight `json:"height"`
	Hash            types.Hash        `json:"hash"`
	Time            uint32            `json:"time"`
	SaplingTreeSize uint64            `json:"saplingTreeSize"`
	OrchardTreeSize uint64            `json:"orchardTreeSize"`
}

// TreeSize returns the end-of-block tree size of pool.
func (m *BlockMeta) TreeSize(pool types.Pool) uint64 {
	if pool == types.PoolOrchard {
		return m.OrchardTreeSize
	}
	return m.SaplingTreeSize
}

// ReceivedNote is an output decrypted by one of the wallet's keys.
type ReceivedNote struct {
	Account     types.AccountID `json:"account"`
	OutputIndex int             `json:"outputIndex"`
	// Position is the note's index in its pool's commitment tree.
	Position  uint64     `json:"position"`
	Nullifier types.Hash `json:"nullifier"`
	Note      note.Note  `json:"note"`
}

// SpentNote is a wallet note whose nullifier appeared in a block.
type SpentNote struct {
	Account   types.AccountID `json:"account"`
	Pool      types.Pool      `json:"pool"`
	Nullifier types.Hash      `json:"nullifier"`
}

// WalletTx is a transaction that touches the wallet.
type WalletTx struct {
	TxID     types.Hash     `json:"txid"`
	Index    uint64         `json:"index"`
	Received []ReceivedNote `json:"received,omitempty"`
	Spent    []SpentNote    `json:"spent,omitempty"`
}

// ScannedBlock is the wallet-relevant content of one block plus every note
// commitment it adds, in tree order, so the store can advance its trees.
type ScannedBlock struct {
	Meta        BlockMeta                   `json:"meta"`
	Txs         []WalletTx                  `json:"txs"`
	Commitments map[types.Pool][]types.Hash `json:"commitments"`
}

// Scanner trial-decrypts compact blocks.
type Scanner struct {
	net Network
}

// NewScanner returns a scanner enforcing net's activation heights.
func NewScanner(net Network) *Scanner {
	return &Scanner{net: net}
}

// ScanBlock validates b, checks that it follows prior (if known), and
// extracts the notes received by keys and the spends of notes in nfs.
// Nullifiers of received notes are added to nfs so spends later in the
// same batch are detected.
func (s *Scanner) ScanBlock(b *block.CompactBlock, keys *ScanningKeys, nfs *Nullifiers, prior *BlockMeta) (*ScannedBlock, error) {
	if err := b.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidBlock, err)
	}

	if prior != nil {
		if b.Height != prior.Height+1 {
			return nil, fmt.Errorf("%w: height %d after %d", ErrContinuity, b.Height, prior.Height)
		}
		if b.PrevHash != prior.Hash {
			return nil, fmt.Errorf("%w: height %d prev hash %s, want %s",
				ErrContinuity, b.Height, b.PrevHash.Short(), prior.Hash.Short())
		}
	}

	next := make(map[types.Pool]uint64, len(types.ShieldedPools))
	for _, pool := range types.ShieldedPools {
		count := b.OutputCount(pool)
		start := b.Metadata.TreeSize(pool) - count
		if prior != nil && start != prior.TreeSize(pool) {
			return nil, fmt.Errorf("%w: %s at height %d starts at %d, previous block ended at %d",
				ErrTreeSizeMismatch, pool, b.Height, start, prior.TreeSize(pool))
		}
		if count > 0 && b.Height < s.net.ActivationHeight(pool) {
			return nil, fmt.Errorf("%w: %s output at %d", ErrNotActivated, pool, b.Height)
		}
		next[pool] = start
	}

	sb := &ScannedBlock{
		Meta: BlockMeta{
			Height:          b.Height,
			Hash:            b.Hash,
			Time:            b.Time,
			SaplingTreeSize: b.Metadata.SaplingTreeSize,
			OrchardTreeSize: b.Metadata.OrchardTreeSize,
		},
		Commitments: make(map[types.Pool][]types.Hash),
	}

	for _, ctx := range b.Txs {
		wtx := WalletTx{TxID: ctx.TxID, Index: ctx.Index}

		for _, sp := range ctx.Spends {
			if b.Height < s.net.ActivationHeight(sp.Pool) {
				return nil, fmt.Errorf("%w: %s spend at %d", ErrNotActivated, sp.Pool, b.Height)
			}
			if account, ok := nfs.Lookup(sp.Pool, sp.Nullifier); ok {
				wtx.Spent = append(wtx.Spent, SpentNote{Account: account, Pool: sp.Pool, Nullifier: sp.Nullifier})
			}
		}

		for i, out := range ctx.Outputs {
			position := next[out.Pool]
			next[out.Pool]++
			sb.Commitments[out.Pool] = append(sb.Commitments[out.Pool], out.Commitment)

			for _, ak := range keys.Accounts {
				n, ok := note.TryDecrypt(ak.IVK, out.Pool, out.Commitment, out.EphemeralKey, out.Ciphertext)
				if !ok {
					continue
				}
				nf := note.Nullifier(ak.NK, out.Commitment, position)
				wtx.Received = append(wtx.Received, ReceivedNote{
					Account:     ak.Account,
					OutputIndex: i,
					Position:    position,
					Nullifier:   nf,
					Note:        *n,
				})
				nfs.Add(out.Pool, nf, ak.Account)
				break
			}
		}

		if len(wtx.Received) > 0 || len(wtx.Spent) > 0 {
			sb.Txs = append(sb.Txs, wtx)
		}
	}
	return sb, nil
}
