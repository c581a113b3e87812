package types

import "strconv"

// BlockHeight is the height of a block in the chain. The genesis block is
// at height 0.
type BlockHeight uint32

// String returns the decimal height.
func (h BlockHeight) String() string {
	return strconv.FormatUint(uint64(h), 10)
}

// SaturatingSub returns h - n, or 0 when n > h.
func (h BlockHeight) SaturatingSub(n uint32) BlockHeight {
	if uint32(h) < n {
		return 0
	}
	return h - BlockHeight(n)
}

// AccountID identifies an account inside one wallet store. IDs are
// assigned by the store in import order, starting from zero.
type AccountID uint32

// String returns the decimal account ID.
func (a AccountID) String() string {
	return strconv.FormatUint(uint64(a), 10)
}
