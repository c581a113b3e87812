// Package scan splits the wallet's scan queue into bounded batches and
// scans compact blocks for the wallet's notes and spends.
package scan

import (
	"fmt"
	"iter"

	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Priority orders suggested ranges. Higher values are scanned first.
type Priority uint8

const (
	// PriorityHistoric covers gaps behind already-scanned blocks.
	PriorityHistoric Priority = 10
	// PriorityChainTip covers blocks up to the current chain tip.
	PriorityChainTip Priority = 50
)

// String returns the priority name.
func (p Priority) String() string {
	switch p {
	case PriorityHistoric:
		return "historic"
	case PriorityChainTip:
		return "chaintip"
	default:
		return fmt.Sprintf("priority(%d)", uint8(p))
	}
}

// Range is the half-open block interval [Start, End).
type Range struct {
	Start    types.BlockHeight `json:"start"`
	End      types.BlockHeight `json:"end"`
	Priority Priority          `json:"priority"`
}

// Len returns the number of blocks in the range.
func (r Range) Len() uint32 {
	if r.End <= r.Start {
		return 0
	}
	return uint32(r.End - r.Start)
}

// IsEmpty reports whether the range holds no blocks.
func (r Range) IsEmpty() bool {
	return r.Len() == 0
}

// String formats the range as [start, end).
func (r Range) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End)
}

// Batches yields the ranges in order, each cut into consecutive pieces of
// at most batchSize blocks. The pieces of one range concatenate back to it
// exactly; empty ranges yield nothing. A batchSize of zero disables
// splitting.
func Batches(ranges []Range, batchSize uint32) iter.Seq[Range] {
	return func(yield func(Range) bool) {
		for _, r := range ranges {
			for start := r.Start; start < r.End; {
				end := r.End
				if batchSize > 0 && uint32(end-start) > batchSize {
					end = start + types.BlockHeight(batchSize)
				}
				if !yield(Range{Start: start, End: end, Priority: r.Priority}) {
					return
				}
				start = end
			}
		}
	}
}
