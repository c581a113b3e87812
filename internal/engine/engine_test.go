package engine

import (
	"context"
	"iter"
	"slices"
	"testing"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	"github.com/Lykhoyda/WebZjs/internal/errors"
	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/simchain"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/internal/walletdb"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/rs/zerolog"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

var errBoom = errors.New("boom")

// fataler is the part of testing.T the harness needs, so rapid.T can
// drive it too.
type fataler interface {
	Helper()
	Fatalf(format string, args ...any)
}

type harness struct {
	chain *simchain.Chain
	store *walletdb.Store
	w     *Wallet
}

// newHarness mines a simulated chain to tip and opens an empty wallet
// over it.
func newHarness(t fataler, tip int, cfg Config) *harness {
	t.Helper()
	nop := zerolog.Nop()
	chain := simchain.New(simchain.Config{Logger: &nop})
	chain.MineBlocks(tip)
	return newHarnessOn(t, chain, chain, cfg)
}

func newHarnessOn(t fataler, chain *simchain.Chain, source chainsource.Source, cfg Config) *harness {
	t.Helper()
	nop := zerolog.Nop()
	if cfg.Params == nil {
		cfg.Params = config.RegtestParams()
	}
	if cfg.MinConfirmations == 0 {
		cfg.MinConfirmations = 1
	}
	cfg.Logger = &nop
	store := walletdb.New(storage.NewMemory())
	w, err := New(cfg, source, store)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return &harness{chain: chain, store: store, w: w}
}

func height(h types.BlockHeight) *types.BlockHeight { return &h }

// account creates the spending account of key index on the test phrase.
func (h *harness) account(t fataler, index uint32, birthday types.BlockHeight) types.AccountID {
	t.Helper()
	id, err := h.w.CreateAccount(context.Background(), testPhrase, index, &birthday)
	if err != nil {
		t.Fatalf("CreateAccount(%d) error: %v", index, err)
	}
	return id
}

// address returns the raw Orchard address of key index.
func address(t fataler, index uint32) types.Address {
	t.Helper()
	sk, err := wallet.KeyProvider{CoinType: 1}.DeriveSpendingKey(testPhrase, index)
	if err != nil {
		t.Fatalf("DeriveSpendingKey() error: %v", err)
	}
	defer sk.Zero()
	addr, err := sk.FullViewingKey().Address(types.PoolOrchard)
	if err != nil {
		t.Fatalf("Address() error: %v", err)
	}
	return addr
}

func (h *harness) sync(t fataler) {
	t.Helper()
	if err := h.w.Sync(context.Background(), nil); err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
}

func (h *harness) balance(t fataler, id types.AccountID) walletdb.AccountBalance {
	t.Helper()
	s, err := h.w.WalletSummary()
	if err != nil {
		t.Fatalf("WalletSummary() error: %v", err)
	}
	for _, b := range s.Accounts {
		if b.Account == id {
			return b
		}
	}
	t.Fatalf("account %d missing from summary", id)
	return walletdb.AccountBalance{}
}

// faultySource alters what the simulated chain serves.
type faultySource struct {
	*simchain.Chain
	corruptAt  types.BlockHeight
	truncateAt types.BlockHeight
	badTree    bool
}

func (s *faultySource) TreeState(ctx context.Context, h types.BlockHeight) (*block.TreeState, error) {
	ts, err := s.Chain.TreeState(ctx, h)
	if err != nil || !s.badTree {
		return ts, err
	}
	bad := *ts
	bad.OrchardTree = "zz"
	return &bad, nil
}

func (s *faultySource) BlockRange(ctx context.Context, start, end types.BlockHeight) iter.Seq2[*block.CompactBlock, error] {
	return func(yield func(*block.CompactBlock, error) bool) {
		for b, err := range s.Chain.BlockRange(ctx, start, end) {
			if err == nil && b.Height == s.truncateAt {
				return
			}
			if err == nil && b.Height == s.corruptAt {
				cp := *b
				cp.PrevHash = types.Hash{0xff}
				b = &cp
			}
			if !yield(b, err) {
				return
			}
		}
	}
}

func TestNew_Validates(t *testing.T) {
	chain := simchain.New(simchain.Config{})
	store := walletdb.New(storage.NewMemory())
	tests := []struct {
		name string
		cfg  Config
	}{
		{"no params", Config{MinConfirmations: 1}},
		{"zero confirmations", Config{Params: config.RegtestParams()}},
		{"confirmations past pruning depth", Config{Params: config.RegtestParams(), MinConfirmations: config.MaxMinConfirmations + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg, chain, store)
			if !errors.Is(errors.Invalid, err) {
				t.Fatalf("New() error = %v, want Invalid", err)
			}
		})
	}

	w, err := New(Config{Params: config.RegtestParams(), MinConfirmations: 1}, chain, store)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if w.batchSize != DefaultBatchSize {
		t.Errorf("batch size = %d, want %d", w.batchSize, DefaultBatchSize)
	}
}

func TestCreateAccount_DefaultBirthday(t *testing.T) {
	h := newHarness(t, 500, Config{})

	id, err := h.w.CreateAccount(context.Background(), testPhrase, 0, nil)
	if err != nil {
		t.Fatalf("CreateAccount() error: %v", err)
	}
	acct, err := h.store.Account(id)
	if err != nil {
		t.Fatalf("Account() error: %v", err)
	}
	if acct.Birthday.Height != 400 {
		t.Errorf("birthday = %d, want 400", acct.Birthday.Height)
	}
	if acct.Purpose != walletdb.PurposeSpending {
		t.Errorf("purpose = %s, want spending", acct.Purpose)
	}
	if got := h.chain.TreeStateRequests(); !slices.Equal(got, []types.BlockHeight{399}) {
		t.Errorf("tree state requests = %v, want [399]", got)
	}
}

func TestCreateAccount_Errors(t *testing.T) {
	ctx := context.Background()

	t.Run("tip too low for default", func(t *testing.T) {
		h := newHarness(t, 50, Config{})
		_, err := h.w.CreateAccount(ctx, testPhrase, 0, nil)
		if !errors.Is(errors.Birthday, err) {
			t.Fatalf("CreateAccount() error = %v, want Birthday", err)
		}
	})

	t.Run("zero birthday", func(t *testing.T) {
		h := newHarness(t, 50, Config{})
		_, err := h.w.CreateAccount(ctx, testPhrase, 0, height(0))
		if !errors.Is(errors.Birthday, err) {
			t.Fatalf("CreateAccount() error = %v, want Birthday", err)
		}
	})

	t.Run("birthday above tip", func(t *testing.T) {
		h := newHarness(t, 50, Config{})
		_, err := h.w.CreateAccount(ctx, testPhrase, 0, height(1000))
		if !errors.Is(errors.Transport, err) {
			t.Fatalf("CreateAccount() error = %v, want Transport", err)
		}
	})

	t.Run("malformed tree state", func(t *testing.T) {
		nop := zerolog.Nop()
		chain := simchain.New(simchain.Config{Logger: &nop})
		chain.MineBlocks(50)
		h := newHarnessOn(t, chain, &faultySource{Chain: chain, badTree: true}, Config{})
		_, err := h.w.CreateAccount(ctx, testPhrase, 0, height(20))
		if !errors.Is(errors.Birthday, err) {
			t.Fatalf("CreateAccount() error = %v, want Birthday", err)
		}
		var be *errors.BirthdayError
		if !errors.As(err, &be) || be.Height != 20 {
			t.Errorf("birthday error = %v, want height 20", be)
		}
	})

	t.Run("bad phrase", func(t *testing.T) {
		h := newHarness(t, 50, Config{})
		_, err := h.w.CreateAccount(ctx, "not a phrase", 0, height(1))
		if !errors.Is(errors.KeyDerivation, err) {
			t.Fatalf("CreateAccount() error = %v, want KeyDerivation", err)
		}
	})

	t.Run("duplicate", func(t *testing.T) {
		h := newHarness(t, 50, Config{})
		h.account(t, 0, 1)
		_, err := h.w.CreateAccount(ctx, testPhrase, 0, height(1))
		if !errors.Is(errors.Store, err) {
			t.Fatalf("CreateAccount() error = %v, want Store", err)
		}
		if !errors.Cause(err, walletdb.ErrDuplicateAccount) {
			t.Errorf("error does not wrap ErrDuplicateAccount: %v", err)
		}
	})
}

func TestImportViewingKey(t *testing.T) {
	h := newHarness(t, 20, Config{})
	params := config.RegtestParams()

	sk, err := wallet.KeyProvider{CoinType: params.CoinType}.DeriveSpendingKey(testPhrase, 3)
	if err != nil {
		t.Fatalf("DeriveSpendingKey() error: %v", err)
	}
	encoded, err := sk.FullViewingKey().Encode(params.ViewingKeyHRP)
	sk.Zero()
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	id, err := h.w.ImportViewingKey(context.Background(), encoded, height(5))
	if err != nil {
		t.Fatalf("ImportViewingKey() error: %v", err)
	}
	acct, err := h.store.Account(id)
	if err != nil {
		t.Fatalf("Account() error: %v", err)
	}
	if acct.Purpose != walletdb.PurposeViewOnly {
		t.Errorf("purpose = %s, want view-only", acct.Purpose)
	}

	got, err := h.w.Address(0, types.PoolOrchard)
	if err != nil {
		t.Fatalf("Address() error: %v", err)
	}
	want, _ := params.EncodeAddress(address(t, 3))
	if got != want {
		t.Errorf("Address() = %s, want %s", got, want)
	}

	if _, err := h.w.ImportViewingKey(context.Background(), "uview1garbage", height(5)); !errors.Is(errors.Invalid, err) {
		t.Errorf("ImportViewingKey(garbage) error = %v, want Invalid", err)
	}
	if _, err := h.w.Address(1, types.PoolOrchard); !errors.Is(errors.AccountNotFound, err) {
		t.Errorf("Address(1) error = %v, want AccountNotFound", err)
	}
}

func TestUpdateChainTip(t *testing.T) {
	h := newHarness(t, 42, Config{})
	tip, err := h.w.UpdateChainTip(context.Background())
	if err != nil {
		t.Fatalf("UpdateChainTip() error: %v", err)
	}
	if tip != 42 {
		t.Errorf("tip = %d, want 42", tip)
	}
	stored, err := h.store.ChainHeight()
	if err != nil {
		t.Fatalf("ChainHeight() error: %v", err)
	}
	if stored != 42 {
		t.Errorf("stored tip = %d, want 42", stored)
	}

	h.chain.FailNext(chainsource.MethodGetLatestBlock, errBoom)
	if _, err := h.w.UpdateChainTip(context.Background()); !errors.Is(errors.Transport, err) {
		t.Errorf("UpdateChainTip() error = %v, want Transport", err)
	}
}

func TestSync_TwoBatches(t *testing.T) {
	h := newHarness(t, 3499, Config{})
	h.account(t, 0, 100)

	if tip, err := h.w.UpdateChainTip(context.Background()); err != nil || tip != 3499 {
		t.Fatalf("UpdateChainTip() = %d, %v, want 3499", tip, err)
	}
	ranges, err := h.w.SuggestScanRanges()
	if err != nil {
		t.Fatalf("SuggestScanRanges() error: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Start != 100 || ranges[0].End != 3500 {
		t.Fatalf("ranges = %v, want [[100, 3500)]", ranges)
	}

	var calls []Progress
	err = h.w.Sync(context.Background(), func(scannedTo, tip types.BlockHeight) {
		calls = append(calls, Progress{ScannedTo: scannedTo, Tip: tip})
	})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}

	wantCalls := []Progress{{3100, 3499}, {3500, 3499}}
	if !slices.Equal(calls, wantCalls) {
		t.Errorf("progress = %v, want %v", calls, wantCalls)
	}
	wantRanges := []chainsource.RangeParam{{Start: 100, End: 3099}, {Start: 3100, End: 3499}}
	if got := h.chain.BlockRangeRequests(); !slices.Equal(got, wantRanges) {
		t.Errorf("block range requests = %v, want %v", got, wantRanges)
	}
	// Birthday, then one per batch.
	wantTrees := []types.BlockHeight{99, 99, 3099}
	if got := h.chain.TreeStateRequests(); !slices.Equal(got, wantTrees) {
		t.Errorf("tree state requests = %v, want %v", got, wantTrees)
	}
	if h.w.SyncState() != Idle {
		t.Errorf("state after sync = %s, want idle", h.w.SyncState())
	}
}

func TestSync_Idempotent(t *testing.T) {
	h := newHarness(t, 10, Config{})
	id := h.account(t, 0, 1)
	if err := h.chain.Fund(address(t, 0), 25_000, 5_000); err != nil {
		t.Fatalf("Fund() error: %v", err)
	}
	h.chain.MineBlock()
	h.sync(t)

	before := h.balance(t, id)
	if before.Spendable != 30_000 {
		t.Fatalf("spendable = %d, want 30000", before.Spendable)
	}
	requests := len(h.chain.BlockRangeRequests())

	called := false
	if err := h.w.Sync(context.Background(), func(_, _ types.BlockHeight) { called = true }); err != nil {
		t.Fatalf("second Sync() error: %v", err)
	}
	if called {
		t.Error("progress reported with nothing to scan")
	}
	if got := len(h.chain.BlockRangeRequests()); got != requests {
		t.Errorf("block range requests = %d, want %d", got, requests)
	}
	if after := h.balance(t, id); after != before {
		t.Errorf("balance after resync = %+v, want %+v", after, before)
	}
}

func TestSync_ResumesAfterTransportFailure(t *testing.T) {
	h := newHarness(t, 20, Config{BatchSize: 5})
	h.account(t, 0, 1)
	h.chain.FailBlockAt(8, errBoom)

	var calls []Progress
	err := h.w.Sync(context.Background(), func(scannedTo, tip types.BlockHeight) {
		calls = append(calls, Progress{ScannedTo: scannedTo, Tip: tip})
	})
	if !errors.Is(errors.Transport, err) {
		t.Fatalf("Sync() error = %v, want Transport", err)
	}
	if !errors.Cause(err, errBoom) {
		t.Errorf("error does not wrap cause: %v", err)
	}
	if !slices.Equal(calls, []Progress{{6, 20}}) {
		t.Errorf("progress = %v, want [{6 20}]", calls)
	}

	ranges, err := h.w.SuggestScanRanges()
	if err != nil {
		t.Fatalf("SuggestScanRanges() error: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Start != 6 || ranges[0].End != 21 {
		t.Errorf("ranges = %v, want [[6, 21)]", ranges)
	}

	h.sync(t)
	ranges, _ = h.w.SuggestScanRanges()
	if len(ranges) != 0 {
		t.Errorf("ranges after resync = %v, want none", ranges)
	}
}

func TestFetchAndScanRange_Aborts(t *testing.T) {
	nop := zerolog.Nop()
	tests := []struct {
		name   string
		source func(*simchain.Chain) *faultySource
		kind   errors.Kind
	}{
		{"invalid block", func(c *simchain.Chain) *faultySource { return &faultySource{Chain: c, corruptAt: 4} }, errors.Scan},
		{"short stream", func(c *simchain.Chain) *faultySource { return &faultySource{Chain: c, truncateAt: 4} }, errors.Transport},
		{"bad tree state", func(c *simchain.Chain) *faultySource { return &faultySource{Chain: c, badTree: true} }, errors.Transport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain := simchain.New(simchain.Config{Logger: &nop})
			chain.MineBlocks(2)
			if err := chain.Fund(address(t, 0), 10_000); err != nil {
				t.Fatalf("Fund() error: %v", err)
			}
			chain.MineBlocks(10)

			// The account is created against the honest chain.
			h := newHarnessOn(t, chain, chain, Config{})
			id := h.account(t, 0, 1)
			if _, err := h.w.UpdateChainTip(context.Background()); err != nil {
				t.Fatalf("UpdateChainTip() error: %v", err)
			}

			w, err := New(Config{Params: config.RegtestParams(), MinConfirmations: 1, Logger: &nop}, tt.source(chain), h.store)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			err = w.FetchAndScanRange(context.Background(), 1, 8)
			if !errors.Is(tt.kind, err) {
				t.Fatalf("FetchAndScanRange() error = %v, want %s", err, tt.kind)
			}

			// Nothing from the batch is stored, including the note at 3.
			if _, ok, err := h.store.MaxScannedHeight(); err != nil || ok {
				t.Errorf("MaxScannedHeight() = %v, %v, want nothing scanned", ok, err)
			}
			if b := h.balance(t, id); b.Total() != 0 {
				t.Errorf("balance = %+v, want empty", b)
			}
		})
	}
}

func TestFetchAndScanRange_InvalidRange(t *testing.T) {
	h := newHarness(t, 10, Config{})
	for _, r := range []scan.Range{{Start: 0, End: 5}, {Start: 5, End: 5}, {Start: 6, End: 5}} {
		if err := h.w.FetchAndScanRange(context.Background(), r.Start, r.End); !errors.Is(errors.Invalid, err) {
			t.Errorf("FetchAndScanRange(%s) error = %v, want Invalid", r, err)
		}
	}
}

func TestSync_ProgressChannel(t *testing.T) {
	h := newHarness(t, 20, Config{BatchSize: 10})
	h.account(t, 0, 1)

	ch := make(chan Progress, 4)
	states := make(chan SyncState, 4)
	progress := ProgressChannel(ch)
	err := h.w.Sync(context.Background(), func(scannedTo, tip types.BlockHeight) {
		states <- h.w.SyncState()
		progress(scannedTo, tip)
	})
	if err != nil {
		t.Fatalf("Sync() error: %v", err)
	}
	close(ch)
	close(states)

	var got []Progress
	for p := range ch {
		got = append(got, p)
	}
	want := []Progress{{11, 20}, {21, 20}}
	if !slices.Equal(got, want) {
		t.Errorf("progress = %v, want %v", got, want)
	}
	for s := range states {
		if s != Persisting {
			t.Errorf("state during progress = %s, want persisting", s)
		}
	}
}

func TestSync_Canceled(t *testing.T) {
	h := newHarness(t, 20, Config{})
	h.account(t, 0, 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := h.w.Sync(ctx, nil); !errors.Is(errors.Transport, err) {
		t.Fatalf("Sync() error = %v, want Transport", err)
	}
	if h.w.SyncState() != Idle {
		t.Errorf("state = %s, want idle", h.w.SyncState())
	}
}
