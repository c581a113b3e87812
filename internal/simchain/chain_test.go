package simchain

import (
	"context"
	"crypto/rand"
	"errors"
	"testing"

	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

func testAddress(t *testing.T, pool types.Pool) types.Address {
	t.Helper()
	sk, err := crypto.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pk, err := crypto.ScalarBaseMult(sk)
	if err != nil {
		t.Fatal(err)
	}
	return types.Address{Pool: pool, Key: pk}
}

func chainState(t *testing.T, c *Chain, h types.BlockHeight) *block.ChainState {
	t.Helper()
	ts, err := c.TreeState(context.Background(), h)
	if err != nil {
		t.Fatalf("TreeState(%d) error: %v", h, err)
	}
	cs, err := ts.ChainState()
	if err != nil {
		t.Fatalf("ChainState() error: %v", err)
	}
	return cs
}

// spendTx builds a signed transaction revealing nf against anchor.
func spendTx(t *testing.T, nf types.Hash, anchor types.Hash, expiry types.BlockHeight) *tx.Transaction {
	t.Helper()
	n, err := note.New(testAddress(t, types.PoolOrchard), 1000, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := note.Encrypt(n, [32]byte{}, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatal(err)
	}
	b := tx.NewBuilder().
		AddSpend(types.PoolOrchard, nf).
		AddOutput(types.PoolOrchard, enc).
		SetAnchor(types.PoolOrchard, anchor).
		SetExpiry(expiry).
		SetFee(10_000)
	if err := b.Sign(key); err != nil {
		t.Fatalf("Sign() error: %v", err)
	}
	return b.Build()
}

func TestChain_Genesis(t *testing.T) {
	c := New(Config{})
	if c.Tip() != 0 {
		t.Errorf("tip = %d, want 0", c.Tip())
	}
	cs := chainState(t, c, 0)
	if cs.Height != 0 || cs.Orchard.Size != 0 || cs.Sapling.Size != 0 {
		t.Errorf("genesis state = %+v", cs)
	}
	if _, err := c.TreeState(context.Background(), 1); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("TreeState(1) error = %v, want ErrBlockNotFound", err)
	}
}

func TestChain_FundAndMine(t *testing.T) {
	c := New(Config{})
	addr := testAddress(t, types.PoolOrchard)
	if err := c.Fund(addr, 1000, 2000); err != nil {
		t.Fatalf("Fund() error: %v", err)
	}
	if err := c.Fund(testAddress(t, types.PoolSapling), 500); err != nil {
		t.Fatalf("Fund() error: %v", err)
	}
	b := c.MineBlock()
	if b.Height != 1 || len(b.Txs) != 3 {
		t.Fatalf("block = height %d with %d txs", b.Height, len(b.Txs))
	}
	if err := b.Validate(); err != nil {
		t.Errorf("mined block invalid: %v", err)
	}

	cs := chainState(t, c, 1)
	if cs.Orchard.Size != 2 || cs.Sapling.Size != 1 {
		t.Errorf("tree sizes = %d/%d, want 1/2", cs.Sapling.Size, cs.Orchard.Size)
	}
	if cs.BlockHash != b.Hash {
		t.Error("tree state hash differs from block hash")
	}

	if tip := c.MineBlocks(3); tip != 4 {
		t.Errorf("tip = %d, want 4", tip)
	}
	if got := chainState(t, c, 4); got.Orchard != cs.Orchard {
		t.Error("empty blocks changed the orchard frontier")
	}
}

func TestChain_BlockRange(t *testing.T) {
	c := New(Config{})
	c.MineBlocks(5)

	var prev *block.CompactBlock
	n := 0
	for b, err := range c.BlockRange(context.Background(), 1, 5) {
		if err != nil {
			t.Fatalf("BlockRange() error: %v", err)
		}
		if prev != nil && b.PrevHash != prev.Hash {
			t.Errorf("block %d does not link to %d", b.Height, prev.Height)
		}
		prev = b
		n++
	}
	if n != 5 {
		t.Errorf("streamed %d blocks, want 5", n)
	}

	t.Run("above tip", func(t *testing.T) {
		var errs int
		for _, err := range c.BlockRange(context.Background(), 4, 7) {
			if err != nil {
				errs++
				if !errors.Is(err, ErrBlockNotFound) {
					t.Errorf("error = %v, want ErrBlockNotFound", err)
				}
			}
		}
		if errs != 1 {
			t.Errorf("errors = %d, want 1", errs)
		}
	})

	t.Run("failure injection", func(t *testing.T) {
		boom := errors.New("connection reset")
		c.FailBlockAt(3, boom)
		blocks := 0
		var gotErr error
		for _, err := range c.BlockRange(context.Background(), 1, 5) {
			if err != nil {
				gotErr = err
				continue
			}
			blocks++
		}
		if blocks != 2 || !errors.Is(gotErr, boom) {
			t.Errorf("blocks = %d, err = %v; want 2 and injected error", blocks, gotErr)
		}

		c.FailNext(chainsource.MethodGetBlockRange, boom)
		for b, err := range c.BlockRange(context.Background(), 1, 5) {
			if b != nil || !errors.Is(err, boom) {
				t.Fatalf("got block %v, err %v; want immediate failure", b, err)
			}
		}
	})

	if got := len(c.BlockRangeRequests()); got != 4 {
		t.Errorf("recorded %d range requests, want 4", got)
	}
}

func TestChain_SubmitTransaction(t *testing.T) {
	ctx := context.Background()
	c := New(Config{})
	if err := c.Fund(testAddress(t, types.PoolOrchard), 50_000); err != nil {
		t.Fatal(err)
	}
	c.MineBlock()
	anchor := chainState(t, c, 1).Orchard.Root

	transaction := spendTx(t, types.Hash{0x01}, anchor, 40)
	resp, err := c.SubmitTransaction(ctx, transaction.Serialize())
	if err != nil {
		t.Fatalf("SubmitTransaction() error: %v", err)
	}
	if !resp.Accepted() {
		t.Fatalf("rejected: %d %s", resp.ErrorCode, resp.ErrorMessage)
	}
	if !c.InMempool(transaction.ID()) {
		t.Error("accepted tx not in mempool")
	}

	resp, _ = c.SubmitTransaction(ctx, transaction.Serialize())
	if resp.ErrorCode != CodeAlreadyKnown {
		t.Errorf("resubmit code = %d, want %d", resp.ErrorCode, CodeAlreadyKnown)
	}

	c.MineBlock()
	if !c.IsMined(transaction.ID()) || len(c.Mempool()) != 0 {
		t.Error("tx not mined")
	}

	// The nullifier is now spent on chain.
	resp, _ = c.SubmitTransaction(ctx, spendTx(t, types.Hash{0x01}, anchor, 40).Serialize())
	if resp.ErrorCode != CodeRejected {
		t.Errorf("double spend code = %d, want %d", resp.ErrorCode, CodeRejected)
	}

	resp, _ = c.SubmitTransaction(ctx, spendTx(t, types.Hash{0x02}, types.Hash{0x99}, 40).Serialize())
	if resp.ErrorCode != CodeRejected {
		t.Errorf("unknown anchor code = %d, want %d", resp.ErrorCode, CodeRejected)
	}

	resp, _ = c.SubmitTransaction(ctx, []byte{1, 2, 3})
	if resp.ErrorCode != CodeDecodeFailed {
		t.Errorf("garbage code = %d, want %d", resp.ErrorCode, CodeDecodeFailed)
	}
}

func TestChain_SubmitOverride(t *testing.T) {
	c := New(Config{})
	c.SetSubmitResponse(&chainsource.SendResponse{ErrorCode: 1, ErrorMessage: "mempool full"})
	resp, err := c.SubmitTransaction(context.Background(), []byte{1})
	if err != nil {
		t.Fatalf("SubmitTransaction() error: %v", err)
	}
	if resp.ErrorCode != 1 || resp.ErrorMessage != "mempool full" {
		t.Errorf("response = %+v", resp)
	}

	c.SetSubmitResponse(nil)
	resp, _ = c.SubmitTransaction(context.Background(), []byte{1})
	if resp.ErrorCode != CodeDecodeFailed {
		t.Errorf("code after reset = %d, want %d", resp.ErrorCode, CodeDecodeFailed)
	}
}

func TestChain_FailNext(t *testing.T) {
	ctx := context.Background()
	c := New(Config{})
	boom := errors.New("unavailable")

	c.FailNext(chainsource.MethodGetLatestBlock, boom)
	if _, err := c.LatestHeight(ctx); !errors.Is(err, boom) {
		t.Errorf("LatestHeight() error = %v, want injected", err)
	}
	if _, err := c.LatestHeight(ctx); err != nil {
		t.Errorf("second LatestHeight() error: %v", err)
	}

	c.FailNext(chainsource.MethodGetTreeState, boom)
	if _, err := c.TreeState(ctx, 0); !errors.Is(err, boom) {
		t.Errorf("TreeState() error = %v, want injected", err)
	}
	if got := c.TreeStateRequests(); len(got) != 1 || got[0] != 0 {
		t.Errorf("TreeStateRequests() = %v, want [0]", got)
	}

	c.FailNext(chainsource.MethodSendTransaction, boom)
	if _, err := c.SubmitTransaction(ctx, nil); !errors.Is(err, boom) {
		t.Errorf("SubmitTransaction() error = %v, want injected", err)
	}
}
