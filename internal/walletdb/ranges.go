package walletdb

import (
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"

	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// interval is a scanned half-open height range.
type interval struct {
	start, end types.BlockHeight
}

func (s *Store) scannedIntervals() ([]interval, error) {
	var out []interval
	err := s.scanned.ForEach(nil, func(key, value []byte) error {
		if len(key) != 4 || len(value) != 4 {
			return fmt.Errorf("malformed scan record")
		}
		out = append(out, interval{
			start: types.BlockHeight(binary.BigEndian.Uint32(key)),
			end:   types.BlockHeight(binary.BigEndian.Uint32(value)),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list scanned ranges: %w", err)
	}
	return out, nil
}

// writeIntervals replaces the stored intervals old with updated in batch.
func (s *Store) writeIntervals(batch storage.Batch, old, updated []interval) error {
	b := s.scanned.Prefix(batch)
	for _, iv := range old {
		if err := b.Delete(heightKey(iv.start)); err != nil {
			return fmt.Errorf("delete scanned range: %w", err)
		}
	}
	for _, iv := range updated {
		if err := b.Put(heightKey(iv.start), heightKey(iv.end)); err != nil {
			return fmt.Errorf("put scanned range: %w", err)
		}
	}
	return nil
}

// merge adds [start, end) to sorted, disjoint intervals, joining any it
// touches.
func merge(intervals []interval, add interval) []interval {
	out := make([]interval, 0, len(intervals)+1)
	for _, iv := range intervals {
		if iv.end < add.start || iv.start > add.end {
			out = append(out, iv)
			continue
		}
		add.start = min(add.start, iv.start)
		add.end = max(add.end, iv.end)
	}
	out = append(out, add)
	slices.SortFunc(out, func(a, b interval) int { return cmp.Compare(a.start, b.start) })
	return out
}

// truncate drops coverage at and above h.
func truncate(intervals []interval, h types.BlockHeight) []interval {
	var out []interval
	for _, iv := range intervals {
		if iv.start >= h {
			continue
		}
		iv.end = min(iv.end, h)
		out = append(out, iv)
	}
	return out
}

// SuggestScanRanges returns the unscanned parts of [lowest birthday,
// tip+1). The range reaching the tip is ChainTip priority and comes first;
// gaps behind scanned blocks follow in ascending order.
func (s *Store) SuggestScanRanges() ([]scan.Range, error) {
	tip, err := s.ChainHeight()
	if errors.Is(err, ErrNoChainTip) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	accounts, err := s.allAccounts()
	if err != nil {
		return nil, err
	}
	if len(accounts) == 0 {
		return nil, nil
	}
	from := accounts[0].Birthday.Height
	for _, a := range accounts[1:] {
		from = min(from, a.Birthday.Height)
	}
	to := tip + 1
	if from >= to {
		return nil, nil
	}

	intervals, err := s.scannedIntervals()
	if err != nil {
		return nil, err
	}

	var ranges []scan.Range
	next := from
	gap := func(end types.BlockHeight) {
		if end > next {
			ranges = append(ranges, scan.Range{Start: next, End: end, Priority: scan.PriorityHistoric})
		}
	}
	for _, iv := range intervals {
		if iv.end <= next {
			continue
		}
		if iv.start >= to {
			break
		}
		gap(iv.start)
		next = max(next, iv.end)
	}
	gap(to)

	for i := range ranges {
		if ranges[i].End == to {
			ranges[i].Priority = scan.PriorityChainTip
		}
	}
	slices.SortStableFunc(ranges, func(a, b scan.Range) int {
		if a.Priority != b.Priority {
			return cmp.Compare(b.Priority, a.Priority)
		}
		return cmp.Compare(a.Start, b.Start)
	})
	return ranges, nil
}

// FullyScannedHeight returns the top of the contiguous scanned coverage
// starting at the lowest birthday, or the block before it if nothing is
// scanned.
func (s *Store) FullyScannedHeight() (types.BlockHeight, error) {
	accounts, err := s.allAccounts()
	if err != nil || len(accounts) == 0 {
		return 0, err
	}
	from := accounts[0].Birthday.Height
	for _, a := range accounts[1:] {
		from = min(from, a.Birthday.Height)
	}
	intervals, err := s.scannedIntervals()
	if err != nil {
		return 0, err
	}
	reached := from
	for _, iv := range intervals {
		if iv.start <= reached && iv.end > reached {
			reached = iv.end
		}
	}
	return reached - 1, nil
}
