package block

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

const domainFrontier = "webz 2024 commitment tree"

// frontierSize is the encoded length of a Frontier.
const frontierSize = 8 + types.HashSize

// ErrMalformedTree is returned when a tree state cannot be decoded.
var ErrMalformedTree = errors.New("malformed tree state")

// Frontier summarizes an append-only note commitment tree: how many
// commitments it holds and a root committing to all of them in order.
type Frontier struct {
	Size uint64     `json:"size"`
	Root types.Hash `json:"root"`
}

// Append adds cm at position f.Size and returns that position.
func (f *Frontier) Append(cm types.Hash) uint64 {
	pos := f.Size
	f.Root = crypto.DomainHash(domainFrontier, f.Root[:], cm[:])
	f.Size++
	return pos
}

// Encode returns the hex form used in tree states. The empty tree encodes
// as the empty string.
func (f Frontier) Encode() string {
	if f.Size == 0 {
		return ""
	}
	buf := make([]byte, frontierSize)
	binary.LittleEndian.PutUint64(buf[:8], f.Size)
	copy(buf[8:], f.Root[:])
	return hex.EncodeToString(buf)
}

// DecodeFrontier parses the output of Encode.
func DecodeFrontier(s string) (Frontier, error) {
	var f Frontier
	if s == "" {
		return f, nil
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return f, fmt.Errorf("%w: %v", ErrMalformedTree, err)
	}
	if len(b) != frontierSize {
		return f, fmt.Errorf("%w: frontier is %d bytes, want %d", ErrMalformedTree, len(b), frontierSize)
	}
	f.Size = binary.LittleEndian.Uint64(b[:8])
	copy(f.Root[:], b[8:])
	if f.Size == 0 {
		return f, fmt.Errorf("%w: encoded empty frontier", ErrMalformedTree)
	}
	return f, nil
}

// ChainState is the commitment tree state of both pools as of the end of
// one block. Scanning a range needs the state at the block just before it.
type ChainState struct {
	Height    types.BlockHeight `json:"height"`
	BlockHash types.Hash        `json:"blockHash"`
	Sapling   Frontier          `json:"sapling"`
	Orchard   Frontier          `json:"orchard"`
}

// Frontier returns a pointer to the frontier of pool.
func (cs *ChainState) Frontier(pool types.Pool) *Frontier {
	if pool == types.PoolOrchard {
		return &cs.Orchard
	}
	return &cs.Sapling
}

// TreeState is the chain source's wire form of a ChainState.
type TreeState struct {
	Network     string            `json:"network"`
	Height      types.BlockHeight `json:"height"`
	Hash        string            `json:"hash"`
	Time        uint32            `json:"time"`
	SaplingTree string            `json:"saplingTree"`
	OrchardTree string            `json:"orchardTree"`
}

// NewTreeState renders cs for the wire.
func NewTreeState(network string, cs *ChainState, time uint32) *TreeState {
	return &TreeState{
		Network:     network,
		Height:      cs.Height,
		Hash:        cs.BlockHash.String(),
		Time:        time,
		SaplingTree: cs.Sapling.Encode(),
		OrchardTree: cs.Orchard.Encode(),
	}
}

// ChainState converts a tree state into the form the wallet store
// consumes. Any undecodable field yields ErrMalformedTree.
func (ts *TreeState) ChainState() (*ChainState, error) {
	hash, err := types.HexToHash(ts.Hash)
	if err != nil {
		return nil, fmt.Errorf("%w: block hash: %v", ErrMalformedTree, err)
	}
	sapling, err := DecodeFrontier(ts.SaplingTree)
	if err != nil {
		return nil, fmt.Errorf("sapling: %w", err)
	}
	orchard, err := DecodeFrontier(ts.OrchardTree)
	if err != nil {
		return nil, fmt.Errorf("orchard: %w", err)
	}
	return &ChainState{
		Height:    ts.Height,
		BlockHash: hash,
		Sapling:   sapling,
		Orchard:   orchard,
	}, nil
}
