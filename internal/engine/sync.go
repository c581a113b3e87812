package engine

import (
	"context"
	"fmt"

	"github.com/Lykhoyda/WebZjs/internal/errors"
	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// SyncState is the stage a sync is in.
type SyncState int32

const (
	Idle SyncState = iota
	RefreshingTip
	EnumeratingRanges
	FetchingTreeState
	StreamingBlocks
	Scanning
	Persisting
)

func (s SyncState) String() string {
	switch s {
	case Idle:
		return "idle"
	case RefreshingTip:
		return "refreshing-tip"
	case EnumeratingRanges:
		return "enumerating-ranges"
	case FetchingTreeState:
		return "fetching-tree-state"
	case StreamingBlocks:
		return "streaming-blocks"
	case Scanning:
		return "scanning"
	case Persisting:
		return "persisting"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// ProgressFunc is called after each batch is persisted with the end of
// the batch (exclusive) and the chain tip the sync is working toward.
type ProgressFunc func(scannedTo, tip types.BlockHeight)

// Progress is one ProgressFunc call delivered over a channel.
type Progress struct {
	ScannedTo types.BlockHeight
	Tip       types.BlockHeight
}

// ProgressChannel returns a ProgressFunc sending every report on ch.
// Sends block, so the sync advances no faster than ch is drained.
func ProgressChannel(ch chan<- Progress) ProgressFunc {
	return func(scannedTo, tip types.BlockHeight) {
		ch <- Progress{ScannedTo: scannedTo, Tip: tip}
	}
}

// SyncState returns the current stage. It is safe to call while a sync
// runs on another goroutine.
func (w *Wallet) SyncState() SyncState {
	return SyncState(w.state.Load())
}

func (w *Wallet) setState(s SyncState) {
	w.state.Store(int32(s))
}

// UpdateChainTip asks the chain source for its latest height and records
// it in the store.
func (w *Wallet) UpdateChainTip(ctx context.Context) (types.BlockHeight, error) {
	const op errors.Op = "wallet.UpdateChainTip"
	return w.updateChainTip(ctx, op)
}

func (w *Wallet) updateChainTip(ctx context.Context, op errors.Op) (types.BlockHeight, error) {
	tip, err := w.source.LatestHeight(ctx)
	if err != nil {
		return 0, errors.E(op, errors.Transport, err)
	}
	if err := w.store.UpdateChainTip(tip); err != nil {
		return 0, errors.E(op, errors.Store, err)
	}
	w.logger.Debug().Uint32("tip", uint32(tip)).Msg("Chain tip updated")
	return tip, nil
}

// SuggestScanRanges returns the block ranges the wallet has yet to scan.
func (w *Wallet) SuggestScanRanges() ([]scan.Range, error) {
	const op errors.Op = "wallet.SuggestScanRanges"
	ranges, err := w.store.SuggestScanRanges()
	if err != nil {
		return nil, errors.E(op, errors.Store, err)
	}
	return ranges, nil
}

// Sync scans every unscanned block up to the current chain tip, one batch
// at a time. progress may be nil. The first failure ends the sync;
// batches persisted before it stay persisted, so calling Sync again
// resumes where it stopped.
func (w *Wallet) Sync(ctx context.Context, progress ProgressFunc) error {
	const op errors.Op = "wallet.Sync"
	defer w.setState(Idle)

	w.setState(RefreshingTip)
	tip, err := w.updateChainTip(ctx, op)
	if err != nil {
		return err
	}

	w.setState(EnumeratingRanges)
	ranges, err := w.store.SuggestScanRanges()
	if err != nil {
		return errors.E(op, errors.Store, err)
	}
	if len(ranges) == 0 {
		w.logger.Debug().Uint32("tip", uint32(tip)).Msg("Wallet up to date")
		return nil
	}

	var scanned uint32
	for r := range scan.Batches(ranges, w.batchSize) {
		if err := ctx.Err(); err != nil {
			return errors.E(op, errors.Transport, err)
		}
		if err := w.fetchAndScan(ctx, op, r.Start, r.End); err != nil {
			w.logger.Warn().Err(err).Stringer("range", r).Msg("Sync aborted")
			return err
		}
		scanned += r.Len()
		if progress != nil {
			progress(r.End, tip)
		}
	}

	w.logger.Info().
		Uint32("tip", uint32(tip)).
		Uint32("blocks", scanned).
		Msg("Sync complete")
	return nil
}

// FetchAndScanRange scans the blocks [start, end) against the chain state
// at start-1 and persists them in one write. If any block fails to fetch
// or scan, nothing from the range is stored.
func (w *Wallet) FetchAndScanRange(ctx context.Context, start, end types.BlockHeight) error {
	const op errors.Op = "wallet.FetchAndScanRange"
	defer w.setState(Idle)
	return w.fetchAndScan(ctx, op, start, end)
}

func (w *Wallet) fetchAndScan(ctx context.Context, op errors.Op, start, end types.BlockHeight) error {
	if start == 0 || end <= start {
		return errors.E(op, errors.Invalid, errors.Errorf("invalid scan range [%d, %d)", start, end))
	}

	w.setState(FetchingTreeState)
	ts, err := w.source.TreeState(ctx, start-1)
	if err != nil {
		return errors.E(op, errors.Transport, err)
	}
	cs, err := ts.ChainState()
	if err != nil {
		return errors.E(op, errors.Transport, err)
	}
	if cs.Height != start-1 {
		return errors.E(op, errors.Transport, errors.Errorf("tree state for %d reports height %d", start-1, cs.Height))
	}

	keys, err := w.store.ScanningKeys()
	if err != nil {
		return errors.E(op, errors.Store, err)
	}
	nfs := scan.NewNullifiers()
	for _, pool := range types.ShieldedPools {
		set, err := w.store.UnspentNullifiers(pool)
		if err != nil {
			return errors.E(op, errors.Store, err)
		}
		for nf, account := range set {
			nfs.Add(pool, nf, account)
		}
	}

	prior := &scan.BlockMeta{
		Height:          cs.Height,
		Hash:            cs.BlockHash,
		SaplingTreeSize: cs.Sapling.Size,
		OrchardTreeSize: cs.Orchard.Size,
	}
	want := int(end - start)
	blocks := make([]*scan.ScannedBlock, 0, want)

	w.setState(StreamingBlocks)
	for b, err := range w.source.BlockRange(ctx, start, end-1) {
		if err != nil {
			return errors.E(op, errors.Transport, err)
		}
		if len(blocks) == want {
			return errors.E(op, errors.Transport, errors.Errorf("block stream overran [%d, %d)", start, end))
		}
		w.setState(Scanning)
		sb, err := w.scanner.ScanBlock(b, keys, nfs, prior)
		if err != nil {
			return errors.E(op, errors.Scan, err)
		}
		blocks = append(blocks, sb)
		prior = &sb.Meta
		w.setState(StreamingBlocks)
	}
	if len(blocks) != want {
		return errors.E(op, errors.Transport,
			errors.Errorf("block stream ended after %d of %d blocks", len(blocks), want))
	}

	w.setState(Persisting)
	if err := w.store.PutBlocks(cs, blocks); err != nil {
		return errors.E(op, errors.Store, err)
	}

	found := 0
	for _, sb := range blocks {
		found += len(sb.Txs)
	}
	w.logger.Debug().
		Uint32("start", uint32(start)).
		Uint32("end", uint32(end)).
		Int("wallet_txs", found).
		Msg("Range scanned")
	return nil
}
