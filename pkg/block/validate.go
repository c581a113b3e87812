package block

import (
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Validation errors.
var (
	ErrNilBlock           = errors.New("block is nil")
	ErrBadHash            = errors.New("block hash does not match contents")
	ErrBadTxOrder         = errors.New("transactions not in ascending index order")
	ErrNilTx              = errors.New("block has nil transaction")
	ErrBadPool            = errors.New("unknown shielded pool")
	ErrBadCiphertext      = errors.New("output ciphertext has wrong size")
	ErrDuplicateNullifier = errors.New("nullifier revealed twice in block")
	ErrTreeSize           = errors.New("tree size smaller than outputs in block")
)

// Validate checks block structure and internal consistency. Continuity
// with the previous block is checked by the scanner.
func (b *CompactBlock) Validate() error {
	if b == nil {
		return ErrNilBlock
	}
	if b.Hash != b.ComputeHash() {
		return fmt.Errorf("%w at height %d", ErrBadHash, b.Height)
	}

	seen := make(map[types.Hash]struct{})
	for i, tx := range b.Txs {
		if tx == nil {
			return fmt.Errorf("tx %d: %w", i, ErrNilTx)
		}
		if i > 0 && tx.Index <= b.Txs[i-1].Index {
			return fmt.Errorf("tx %d: %w", i, ErrBadTxOrder)
		}
		for _, sp := range tx.Spends {
			if !sp.Pool.Valid() {
				return fmt.Errorf("tx %d spend: %w", i, ErrBadPool)
			}
			if _, dup := seen[sp.Nullifier]; dup {
				return fmt.Errorf("tx %d: %w: %s", i, ErrDuplicateNullifier, sp.Nullifier)
			}
			seen[sp.Nullifier] = struct{}{}
		}
		for j, out := range tx.Outputs {
			if !out.Pool.Valid() {
				return fmt.Errorf("tx %d output %d: %w", i, j, ErrBadPool)
			}
			if len(out.Ciphertext) != note.CiphertextSize {
				return fmt.Errorf("tx %d output %d: %w: %d bytes", i, j, ErrBadCiphertext, len(out.Ciphertext))
			}
		}
	}

	for _, pool := range types.ShieldedPools {
		if b.Metadata.TreeSize(pool) < b.OutputCount(pool) {
			return fmt.Errorf("%s: %w", pool, ErrTreeSize)
		}
	}
	return nil
}
