package walletdb

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// blockRecord is the commitment tree state after a scanned block.
type blockRecord struct {
	State block.ChainState `json:"state"`
	Time  uint32           `json:"time"`
}

// PutBlocks stores consecutive scanned blocks that follow cs, in one
// atomic write: tree states, received notes, detected spends, mined
// wallet transactions and the extended scan coverage. Nothing is written
// if any block fails to continue the trees.
func (s *Store) PutBlocks(cs *block.ChainState, blocks []*scan.ScannedBlock) error {
	if len(blocks) == 0 {
		return nil
	}
	if cs == nil {
		return fmt.Errorf("%w: no chain state", ErrDiscontinuous)
	}

	batch := s.newBatch()
	blockTable := s.blocks.Prefix(batch)
	w := newNoteWriter(s)
	mined := make(map[types.Hash]types.BlockHeight)

	state := *cs
	for _, sb := range blocks {
		if sb.Meta.Height != state.Height+1 {
			return fmt.Errorf("%w: block %d after state %d", ErrDiscontinuous, sb.Meta.Height, state.Height)
		}
		for _, pool := range types.ShieldedPools {
			f := state.Frontier(pool)
			for _, cm := range sb.Commitments[pool] {
				f.Append(cm)
			}
			if f.Size != sb.Meta.TreeSize(pool) {
				return fmt.Errorf("%w: %s tree size %d at height %d, block reports %d",
					ErrDiscontinuous, pool, f.Size, sb.Meta.Height, sb.Meta.TreeSize(pool))
			}
		}
		state.Height = sb.Meta.Height
		state.BlockHash = sb.Meta.Hash

		if err := putJSON(blockTable, heightKey(state.Height), &blockRecord{State: state, Time: sb.Meta.Time}); err != nil {
			return fmt.Errorf("put block %d: %w", state.Height, err)
		}

		for _, wtx := range sb.Txs {
			for _, rn := range wtx.Received {
				if err := w.receive(wtx.TxID, sb.Meta.Height, rn); err != nil {
					return err
				}
			}
			for _, sp := range wtx.Spent {
				if err := w.spend(sp.Pool, sp.Nullifier, wtx.TxID, sb.Meta.Height); err != nil {
					return err
				}
			}
			mined[wtx.TxID] = sb.Meta.Height
		}
	}

	if err := w.flush(batch); err != nil {
		return err
	}
	if err := s.markMined(batch, mined); err != nil {
		return err
	}

	intervals, err := s.scannedIntervals()
	if err != nil {
		return err
	}
	first, last := blocks[0].Meta.Height, state.Height
	if err := s.writeIntervals(batch, intervals, merge(intervals, interval{start: first, end: last + 1})); err != nil {
		return err
	}
	if err := s.prune(blockTable, first, last); err != nil {
		return err
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit blocks %d-%d: %w", first, last, err)
	}
	return nil
}

// markMined sets the mined height of wallet-built transactions seen in
// scanned blocks.
func (s *Store) markMined(batch storage.Batch, mined map[types.Hash]types.BlockHeight) error {
	txTable := s.txs.Prefix(batch)
	for txid, height := range mined {
		rec, err := s.Transaction(txid)
		if errors.Is(err, ErrTxNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		rec.MinedHeight = height
		if err := putJSON(txTable, txid[:], rec); err != nil {
			return fmt.Errorf("put transaction: %w", err)
		}
	}
	return nil
}

// prune drops block records more than PruningDepth below last, except
// those written by this batch.
func (s *Store) prune(blockTable storage.Batch, first, last types.BlockHeight) error {
	if last <= PruningDepth {
		return nil
	}
	cutoff := last - PruningDepth
	err := s.blocks.ForEach(nil, func(key, _ []byte) error {
		if len(key) != 4 {
			return nil
		}
		h := types.BlockHeight(binary.BigEndian.Uint32(key))
		if h >= cutoff || (h >= first && h <= last) {
			return nil
		}
		return blockTable.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("prune blocks: %w", err)
	}
	return nil
}

// ChainStateAt returns the tree state after the scanned block at height.
func (s *Store) ChainStateAt(height types.BlockHeight) (*block.ChainState, error) {
	var rec blockRecord
	err := getJSON(s.blocks, heightKey(height), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, err)
	}
	return &rec.State, nil
}

// BlockMeta returns the scan metadata of the block at height.
func (s *Store) BlockMeta(height types.BlockHeight) (*scan.BlockMeta, error) {
	var rec blockRecord
	err := getJSON(s.blocks, heightKey(height), &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, height)
	}
	if err != nil {
		return nil, fmt.Errorf("get block %d: %w", height, err)
	}
	return &scan.BlockMeta{
		Height:          rec.State.Height,
		Hash:            rec.State.BlockHash,
		Time:            rec.Time,
		SaplingTreeSize: rec.State.Sapling.Size,
		OrchardTreeSize: rec.State.Orchard.Size,
	}, nil
}

// MaxScannedHeight returns the highest scanned block, or false if none.
func (s *Store) MaxScannedHeight() (types.BlockHeight, bool, error) {
	intervals, err := s.scannedIntervals()
	if err != nil || len(intervals) == 0 {
		return 0, false, err
	}
	return intervals[len(intervals)-1].end - 1, true, nil
}
