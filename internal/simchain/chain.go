// Package simchain is an in-memory shielded chain that serves the
// chain-source API. It validates submitted transactions, mines them into
// compact blocks on demand, and can inject failures for tests.
package simchain

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"iter"
	"sync"
	"time"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/internal/mempool"
	"github.com/Lykhoyda/WebZjs/internal/miner"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/rs/zerolog"
)

// Response codes for rejected submissions.
const (
	CodeRejected     int32 = -26
	CodeDecodeFailed int32 = -22
	CodeAlreadyKnown int32 = -27
)

// ErrBlockNotFound is returned for heights above the tip.
var ErrBlockNotFound = errors.New("block not found")

// DefaultMempoolSize is used when Config.MempoolSize is zero.
const DefaultMempoolSize = 100

// Config configures a simulated chain.
type Config struct {
	Params      *config.Params
	MempoolSize int
	Logger      *zerolog.Logger
}

// Chain is a simulated chain. It is safe for concurrent use.
type Chain struct {
	mu      sync.Mutex
	params  *config.Params
	blocks  []*block.CompactBlock // index is height
	states  []block.ChainState    // state after each block
	anchors map[types.Pool]map[types.Hash]bool
	spent   map[types.Pool]map[types.Hash]bool
	pool    *mempool.Pool
	miner   *miner.Miner
	funding []*tx.Transaction
	logger  zerolog.Logger

	submitOverride *chainsource.SendResponse
	failNext       map[string]error
	failAt         map[types.BlockHeight]error
	treeStateCalls []types.BlockHeight
	rangeCalls     []chainsource.RangeParam
}

var _ chainsource.Source = (*Chain)(nil)

// New creates a chain holding only a genesis block at height 0.
func New(cfg Config) *Chain {
	params := cfg.Params
	if params == nil {
		params = config.RegtestParams()
	}
	size := cfg.MempoolSize
	if size <= 0 {
		size = DefaultMempoolSize
	}
	logger := klog.Sim
	if cfg.Logger != nil {
		logger = *cfg.Logger
	}

	genesis := &block.CompactBlock{Time: uint32(time.Now().Unix())}
	genesis.Hash = genesis.ComputeHash()

	c := &Chain{
		params:   params,
		blocks:   []*block.CompactBlock{genesis},
		states:   []block.ChainState{{BlockHash: genesis.Hash}},
		anchors:  make(map[types.Pool]map[types.Hash]bool),
		spent:    make(map[types.Pool]map[types.Hash]bool),
		logger:   logger,
		failNext: make(map[string]error),
		failAt:   make(map[types.BlockHeight]error),
	}
	for _, pool := range types.ShieldedPools {
		c.anchors[pool] = make(map[types.Hash]bool)
		c.spent[pool] = make(map[types.Hash]bool)
	}
	c.pool = mempool.New(view{c}, size)
	c.miner = miner.New(view{c}, c.pool)
	return c
}

// view exposes chain state to the mempool and miner. Its methods do not
// lock; they are only called while c.mu is held.
type view struct{ c *Chain }

func (v view) tip() *block.ChainState { return &v.c.states[len(v.c.states)-1] }

func (v view) Height() types.BlockHeight { return v.tip().Height }

func (v view) TipHash() types.Hash { return v.tip().BlockHash }

func (v view) TipTime() uint32 { return v.c.blocks[len(v.c.blocks)-1].Time }

func (v view) TreeSize(pool types.Pool) uint64 { return v.tip().Frontier(pool).Size }

func (v view) KnownAnchor(pool types.Pool, root types.Hash) bool {
	return v.c.anchors[pool][root]
}

func (v view) IsSpent(pool types.Pool, nf types.Hash) bool {
	return v.c.spent[pool][nf]
}

// Tip returns the current chain height.
func (c *Chain) Tip() types.BlockHeight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return view{c}.Height()
}

// Fund queues a payment of each value to addr; they are mined in the next
// block.
func (c *Chain) Fund(addr types.Address, values ...uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, v := range values {
		f, err := miner.BuildFunding(addr, v, rand.Reader)
		if err != nil {
			return err
		}
		c.funding = append(c.funding, f)
	}
	return nil
}

// MineBlock mines queued funding and the mempool into a new block.
func (c *Chain) MineBlock() *block.CompactBlock {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mineLocked()
}

// MineBlocks mines n blocks and returns the new tip.
func (c *Chain) MineBlocks(n int) types.BlockHeight {
	c.mu.Lock()
	defer c.mu.Unlock()
	for range n {
		c.mineLocked()
	}
	return view{c}.Height()
}

func (c *Chain) mineLocked() *block.CompactBlock {
	blk := c.miner.ProduceBlock(c.funding...)
	c.funding = nil

	state := *view{c}.tip()
	state.Height = blk.Compact.Height
	state.BlockHash = blk.Compact.Hash
	for _, t := range blk.Txs {
		for _, out := range t.Outputs {
			state.Frontier(out.Pool).Append(out.Commitment)
		}
		for _, sp := range t.Spends {
			c.spent[sp.Pool][sp.Nullifier] = true
		}
	}
	for _, pool := range types.ShieldedPools {
		if f := state.Frontier(pool); f.Size > 0 {
			c.anchors[pool][f.Root] = true
		}
	}

	c.blocks = append(c.blocks, blk.Compact)
	c.states = append(c.states, state)
	c.pool.RemoveConfirmed(blk.Txs)
	if n := c.pool.RemoveExpired(state.Height); n > 0 {
		c.logger.Debug().Int("count", n).Msg("Expired transactions dropped")
	}

	c.logger.Debug().
		Uint32("height", uint32(state.Height)).
		Int("txs", len(blk.Txs)).
		Msg("Block mined")
	return blk.Compact
}

// Run mines a block every interval until ctx is done.
func (c *Chain) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			c.MineBlock()
		}
	}
}

// Mempool returns the IDs of unmined transactions.
func (c *Chain) Mempool() []types.Hash {
	return c.pool.IDs()
}

// InMempool reports whether txid is waiting to be mined.
func (c *Chain) InMempool(txid types.Hash) bool {
	return c.pool.Has(txid)
}

// IsMined reports whether a block contains txid.
func (c *Chain) IsMined(txid types.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, b := range c.blocks {
		for _, t := range b.Txs {
			if t.TxID == txid {
				return true
			}
		}
	}
	return false
}

// SetSubmitResponse makes every later submission return resp without
// touching the mempool. Nil restores normal handling.
func (c *Chain) SetSubmitResponse(resp *chainsource.SendResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.submitOverride = resp
}

// FailNext makes the next call of method (a chainsource Method* name)
// fail with err.
func (c *Chain) FailNext(method string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failNext[method] = err
}

// FailBlockAt makes block streams fail with err when they reach height h,
// after yielding the blocks below it.
func (c *Chain) FailBlockAt(h types.BlockHeight, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failAt[h] = err
}

// TreeStateRequests returns the heights of every TreeState call so far.
func (c *Chain) TreeStateRequests() []types.BlockHeight {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.BlockHeight(nil), c.treeStateCalls...)
}

// BlockRangeRequests returns every requested block range so far.
func (c *Chain) BlockRangeRequests() []chainsource.RangeParam {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]chainsource.RangeParam(nil), c.rangeCalls...)
}

// takeFailure returns and clears an injected failure. Called with c.mu
// held.
func (c *Chain) takeFailure(method string) error {
	err, ok := c.failNext[method]
	if !ok {
		return nil
	}
	delete(c.failNext, method)
	return fmt.Errorf("%s: %w", method, err)
}

// LatestHeight returns the tip height.
func (c *Chain) LatestHeight(ctx context.Context) (types.BlockHeight, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(chainsource.MethodGetLatestBlock); err != nil {
		return 0, err
	}
	return view{c}.Height(), nil
}

// TreeState returns the tree state after the block at height.
func (c *Chain) TreeState(ctx context.Context, height types.BlockHeight) (*block.TreeState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.treeStateCalls = append(c.treeStateCalls, height)
	if err := c.takeFailure(chainsource.MethodGetTreeState); err != nil {
		return nil, err
	}
	if int(height) >= len(c.states) {
		return nil, fmt.Errorf("%w: height %d above tip %d", ErrBlockNotFound, height, view{c}.Height())
	}
	return block.NewTreeState(string(c.params.Name), &c.states[height], c.blocks[height].Time), nil
}

// BlockRange streams blocks start..end inclusive. Blocks are read under
// the lock one at a time, so mining may continue during a stream.
func (c *Chain) BlockRange(ctx context.Context, start, end types.BlockHeight) iter.Seq2[*block.CompactBlock, error] {
	return func(yield func(*block.CompactBlock, error) bool) {
		c.mu.Lock()
		c.rangeCalls = append(c.rangeCalls, chainsource.RangeParam{Start: start, End: end})
		err := c.takeFailure(chainsource.MethodGetBlockRange)
		c.mu.Unlock()
		if err != nil {
			yield(nil, err)
			return
		}
		if end < start {
			yield(nil, fmt.Errorf("end %d below start %d", end, start))
			return
		}

		for h := start; h <= end; h++ {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}
			b, err := c.blockAt(h)
			if err != nil {
				yield(nil, err)
				return
			}
			if !yield(b, nil) {
				return
			}
		}
	}
}

func (c *Chain) blockAt(h types.BlockHeight) (*block.CompactBlock, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err, ok := c.failAt[h]; ok {
		delete(c.failAt, h)
		return nil, fmt.Errorf("block %d: %w", h, err)
	}
	if int(h) >= len(c.blocks) {
		return nil, fmt.Errorf("%w: height %d", ErrBlockNotFound, h)
	}
	return c.blocks[h], nil
}

// SubmitTransaction decodes, validates and queues raw for mining.
// Rejections are reported in the response.
func (c *Chain) SubmitTransaction(ctx context.Context, raw []byte) (*chainsource.SendResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.takeFailure(chainsource.MethodSendTransaction); err != nil {
		return nil, err
	}
	if c.submitOverride != nil {
		resp := *c.submitOverride
		return &resp, nil
	}

	transaction, err := tx.Deserialize(raw)
	if err != nil {
		return &chainsource.SendResponse{ErrorCode: CodeDecodeFailed, ErrorMessage: err.Error()}, nil
	}
	if err := c.pool.Add(transaction); err != nil {
		code := CodeRejected
		if errors.Is(err, mempool.ErrAlreadyExists) {
			code = CodeAlreadyKnown
		}
		c.logger.Debug().Err(err).Str("txid", transaction.ID().String()).Msg("Transaction rejected")
		return &chainsource.SendResponse{ErrorCode: code, ErrorMessage: err.Error()}, nil
	}
	c.logger.Info().Str("txid", transaction.ID().String()).Msg("Transaction accepted")
	return &chainsource.SendResponse{}, nil
}
