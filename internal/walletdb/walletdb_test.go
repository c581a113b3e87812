package walletdb

import (
	"errors"
	"slices"
	"testing"

	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

const testPhrase = "abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon abandon art"

func testFVK(t *testing.T, account uint32) *wallet.FullViewingKey {
	t.Helper()
	sk, err := wallet.KeyProvider{CoinType: 1}.DeriveSpendingKey(testPhrase, account)
	if err != nil {
		t.Fatalf("DeriveSpendingKey() error: %v", err)
	}
	defer sk.Zero()
	return sk.FullViewingKey()
}

// newTestStore returns a store with one account born at height 100 and
// the chain tip at tip.
func newTestStore(t *testing.T, tip types.BlockHeight) (*Store, types.AccountID) {
	t.Helper()
	s := New(storage.NewMemory())
	bd, err := NewBirthday(100, &block.ChainState{Height: 99})
	if err != nil {
		t.Fatalf("NewBirthday() error: %v", err)
	}
	id, err := s.ImportAccount(testFVK(t, 0), PurposeSpending, bd)
	if err != nil {
		t.Fatalf("ImportAccount() error: %v", err)
	}
	if err := s.UpdateChainTip(tip); err != nil {
		t.Fatalf("UpdateChainTip() error: %v", err)
	}
	return s, id
}

// blockGen produces scanned blocks whose tree sizes and positions follow
// on from a chain state.
type blockGen struct {
	state block.ChainState
}

func (g *blockGen) next(txs ...scan.WalletTx) *scan.ScannedBlock {
	g.state.Height++
	h := g.state.Height
	sb := &scan.ScannedBlock{
		Meta:        scan.BlockMeta{Height: h, Hash: types.Hash{byte(h), byte(h >> 8), 0xbb}},
		Txs:         txs,
		Commitments: map[types.Pool][]types.Hash{},
	}
	for i := range txs {
		for j := range txs[i].Received {
			rn := &txs[i].Received[j]
			pool := rn.Note.Pool()
			rn.Position = g.state.Frontier(pool).Append(rn.Note.Commitment())
			sb.Commitments[pool] = append(sb.Commitments[pool], rn.Note.Commitment())
		}
	}
	sb.Meta.SaplingTreeSize = g.state.Sapling.Size
	sb.Meta.OrchardTreeSize = g.state.Orchard.Size
	return sb
}

// empty returns n blocks with no wallet activity.
func (g *blockGen) empty(n int) []*scan.ScannedBlock {
	out := make([]*scan.ScannedBlock, n)
	for i := range out {
		out[i] = g.next()
	}
	return out
}

func received(account types.AccountID, value uint64, nf byte) scan.ReceivedNote {
	return scan.ReceivedNote{
		Account:   account,
		Nullifier: types.Hash{nf},
		Note:      note.Note{Recipient: types.Address{Pool: types.PoolOrchard}, Value: value},
	}
}

func TestImportAccount(t *testing.T) {
	s, id := newTestStore(t, 500)
	if id != 0 {
		t.Errorf("first account id = %d, want 0", id)
	}

	bd, _ := NewBirthday(200, &block.ChainState{Height: 199})
	id2, err := s.ImportAccount(testFVK(t, 1), PurposeViewOnly, bd)
	if err != nil {
		t.Fatalf("ImportAccount() error: %v", err)
	}
	if id2 != 1 {
		t.Errorf("second account id = %d, want 1", id2)
	}

	if _, err := s.ImportAccount(testFVK(t, 0), PurposeSpending, bd); !errors.Is(err, ErrDuplicateAccount) {
		t.Errorf("duplicate import error = %v, want ErrDuplicateAccount", err)
	}

	ids, err := s.AccountIDs()
	if err != nil {
		t.Fatalf("AccountIDs() error: %v", err)
	}
	if !slices.Equal(ids, []types.AccountID{0, 1}) {
		t.Errorf("AccountIDs() = %v, want [0 1]", ids)
	}

	acct, err := s.Account(1)
	if err != nil {
		t.Fatalf("Account() error: %v", err)
	}
	if acct.Purpose != PurposeViewOnly || acct.Birthday.Height != 200 {
		t.Errorf("account = %+v", acct)
	}
	fvk, err := acct.FullViewingKey()
	if err != nil {
		t.Fatalf("FullViewingKey() error: %v", err)
	}
	if !fvk.Equal(testFVK(t, 1)) {
		t.Error("stored viewing key differs")
	}

	if _, err := s.Account(9); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("missing account error = %v, want ErrAccountNotFound", err)
	}

	keys, err := s.ScanningKeys()
	if err != nil {
		t.Fatalf("ScanningKeys() error: %v", err)
	}
	if len(keys.Accounts) != 2 || keys.Accounts[1].IVK != fvk.IVK() {
		t.Errorf("ScanningKeys() = %+v", keys.Accounts)
	}
}

func TestNewBirthday(t *testing.T) {
	if _, err := NewBirthday(0, &block.ChainState{}); err == nil {
		t.Error("expected error for birthday 0")
	}
	if _, err := NewBirthday(10, &block.ChainState{Height: 5}); err == nil {
		t.Error("expected error for chain state at the wrong height")
	}
	if _, err := NewBirthday(10, nil); err == nil {
		t.Error("expected error for nil chain state")
	}
}

func TestSuggestScanRanges(t *testing.T) {
	t.Run("no tip", func(t *testing.T) {
		s := New(storage.NewMemory())
		ranges, err := s.SuggestScanRanges()
		if err != nil || len(ranges) != 0 {
			t.Errorf("SuggestScanRanges() = %v, %v; want empty", ranges, err)
		}
	})

	t.Run("fresh account", func(t *testing.T) {
		s, _ := newTestStore(t, 3499)
		ranges, err := s.SuggestScanRanges()
		if err != nil {
			t.Fatalf("SuggestScanRanges() error: %v", err)
		}
		want := []scan.Range{{Start: 100, End: 3500, Priority: scan.PriorityChainTip}}
		if !slices.Equal(ranges, want) {
			t.Errorf("SuggestScanRanges() = %v, want %v", ranges, want)
		}
	})

	t.Run("gap behind scanned blocks", func(t *testing.T) {
		s, _ := newTestStore(t, 3499)
		g := &blockGen{state: block.ChainState{Height: 199}}
		if err := s.PutBlocks(&block.ChainState{Height: 199}, g.empty(10)); err != nil {
			t.Fatalf("PutBlocks() error: %v", err)
		}
		ranges, err := s.SuggestScanRanges()
		if err != nil {
			t.Fatalf("SuggestScanRanges() error: %v", err)
		}
		want := []scan.Range{
			{Start: 210, End: 3500, Priority: scan.PriorityChainTip},
			{Start: 100, End: 200, Priority: scan.PriorityHistoric},
		}
		if !slices.Equal(ranges, want) {
			t.Errorf("SuggestScanRanges() = %v, want %v", ranges, want)
		}
	})

	t.Run("fully scanned", func(t *testing.T) {
		s, _ := newTestStore(t, 109)
		g := &blockGen{state: block.ChainState{Height: 99}}
		if err := s.PutBlocks(&block.ChainState{Height: 99}, g.empty(10)); err != nil {
			t.Fatalf("PutBlocks() error: %v", err)
		}
		ranges, err := s.SuggestScanRanges()
		if err != nil || len(ranges) != 0 {
			t.Errorf("SuggestScanRanges() = %v, %v; want empty", ranges, err)
		}
		h, err := s.FullyScannedHeight()
		if err != nil || h != 109 {
			t.Errorf("FullyScannedHeight() = %d, %v; want 109", h, err)
		}
	})

	t.Run("import resets coverage above birthday", func(t *testing.T) {
		s, _ := newTestStore(t, 109)
		g := &blockGen{state: block.ChainState{Height: 99}}
		if err := s.PutBlocks(&block.ChainState{Height: 99}, g.empty(10)); err != nil {
			t.Fatalf("PutBlocks() error: %v", err)
		}
		bd, _ := NewBirthday(105, &block.ChainState{Height: 104})
		if _, err := s.ImportAccount(testFVK(t, 1), PurposeViewOnly, bd); err != nil {
			t.Fatalf("ImportAccount() error: %v", err)
		}
		ranges, err := s.SuggestScanRanges()
		if err != nil {
			t.Fatalf("SuggestScanRanges() error: %v", err)
		}
		want := []scan.Range{{Start: 105, End: 110, Priority: scan.PriorityChainTip}}
		if !slices.Equal(ranges, want) {
			t.Errorf("SuggestScanRanges() = %v, want %v", ranges, want)
		}
	})
}

func TestPutBlocks_ReceiveAndSpend(t *testing.T) {
	s, id := newTestStore(t, 120)
	cs := &block.ChainState{Height: 99}
	g := &blockGen{state: *cs}

	// Block 100 receives two notes; block 101 spends the first.
	b100 := g.next(scan.WalletTx{TxID: types.Hash{0x10}, Received: []scan.ReceivedNote{received(id, 1000, 1), received(id, 2500, 2)}})
	b101 := g.next(scan.WalletTx{TxID: types.Hash{0x11}, Spent: []scan.SpentNote{{Account: id, Pool: types.PoolOrchard, Nullifier: types.Hash{1}}}})
	if err := s.PutBlocks(cs, []*scan.ScannedBlock{b100, b101}); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}

	nfs, err := s.UnspentNullifiers(types.PoolOrchard)
	if err != nil {
		t.Fatalf("UnspentNullifiers() error: %v", err)
	}
	if len(nfs) != 1 {
		t.Fatalf("unspent nullifiers = %d, want 1", len(nfs))
	}
	if acct, ok := nfs[types.Hash{2}]; !ok || acct != id {
		t.Errorf("unspent nullifiers = %v", nfs)
	}
	if sapling, _ := s.UnspentNullifiers(types.PoolSapling); len(sapling) != 0 {
		t.Errorf("sapling nullifiers = %d, want 0", len(sapling))
	}

	notes, err := s.SpendableNotes(id, 120)
	if err != nil {
		t.Fatalf("SpendableNotes() error: %v", err)
	}
	if len(notes) != 1 || notes[0].Value() != 2500 || notes[0].Position != 1 {
		t.Errorf("SpendableNotes() = %+v", notes)
	}

	cs101, err := s.ChainStateAt(101)
	if err != nil {
		t.Fatalf("ChainStateAt() error: %v", err)
	}
	if cs101.Orchard.Size != 2 || cs101.Orchard.Root != g.state.Orchard.Root {
		t.Errorf("ChainStateAt(101) = %+v", cs101)
	}
	meta, err := s.BlockMeta(100)
	if err != nil {
		t.Fatalf("BlockMeta() error: %v", err)
	}
	if meta.Hash != b100.Meta.Hash || meta.OrchardTreeSize != 2 {
		t.Errorf("BlockMeta(100) = %+v", meta)
	}
}

func TestPutBlocks_Atomic(t *testing.T) {
	s, id := newTestStore(t, 120)
	cs := &block.ChainState{Height: 99}
	g := &blockGen{state: *cs}

	good := g.next(scan.WalletTx{TxID: types.Hash{1}, Received: []scan.ReceivedNote{received(id, 1000, 1)}})
	bad := g.next()
	bad.Meta.OrchardTreeSize = 7

	if err := s.PutBlocks(cs, []*scan.ScannedBlock{good, bad}); !errors.Is(err, ErrDiscontinuous) {
		t.Fatalf("PutBlocks() error = %v, want ErrDiscontinuous", err)
	}
	if nfs, _ := s.UnspentNullifiers(types.PoolOrchard); len(nfs) != 0 {
		t.Errorf("notes written by failed batch: %v", nfs)
	}
	if _, err := s.BlockMeta(100); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("BlockMeta(100) error = %v, want ErrBlockNotFound", err)
	}
	if ranges, _ := s.SuggestScanRanges(); len(ranges) != 1 || ranges[0].Start != 100 {
		t.Errorf("coverage changed by failed batch: %v", ranges)
	}

	gap := &blockGen{state: block.ChainState{Height: 150}}
	if err := s.PutBlocks(cs, gap.empty(1)); !errors.Is(err, ErrDiscontinuous) {
		t.Errorf("gap error = %v, want ErrDiscontinuous", err)
	}
}

func TestPutBlocks_Prunes(t *testing.T) {
	s, _ := newTestStore(t, 400)
	cs := &block.ChainState{Height: 99}
	g := &blockGen{state: *cs}
	if err := s.PutBlocks(cs, g.empty(50)); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}
	next := g.state
	if err := s.PutBlocks(&next, g.empty(200)); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}
	if _, err := s.BlockMeta(120); !errors.Is(err, ErrBlockNotFound) {
		t.Errorf("BlockMeta(120) error = %v, want ErrBlockNotFound", err)
	}
	if _, err := s.BlockMeta(349); err != nil {
		t.Errorf("BlockMeta(349) error: %v", err)
	}
}

func TestTargetAndAnchorHeights(t *testing.T) {
	s, _ := newTestStore(t, 200)
	if _, _, err := s.TargetAndAnchorHeights(0); err == nil {
		t.Error("expected error for zero confirmations")
	}
	if _, _, err := s.TargetAndAnchorHeights(PruningDepth + 1); err == nil {
		t.Error("expected error for confirmations past the pruning depth")
	}

	g := &blockGen{state: block.ChainState{Height: 99}}
	if err := s.PutBlocks(&block.ChainState{Height: 99}, g.empty(101)); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}
	target, anchor, err := s.TargetAndAnchorHeights(10)
	if err != nil {
		t.Fatalf("TargetAndAnchorHeights() error: %v", err)
	}
	if target != 201 || anchor != 191 {
		t.Errorf("target/anchor = %d/%d, want 201/191", target, anchor)
	}

	// The anchor never passes the scanned height.
	if err := s.UpdateChainTip(1000); err != nil {
		t.Fatal(err)
	}
	_, anchor, err = s.TargetAndAnchorHeights(10)
	if err != nil {
		t.Fatalf("TargetAndAnchorHeights() error: %v", err)
	}
	if anchor != 200 {
		t.Errorf("anchor = %d, want 200", anchor)
	}
}

func TestPutTransactions(t *testing.T) {
	s, id := newTestStore(t, 120)
	cs := &block.ChainState{Height: 99}
	g := &blockGen{state: *cs}
	b := g.next(scan.WalletTx{TxID: types.Hash{1}, Received: []scan.ReceivedNote{received(id, 1000, 1), received(id, 2000, 2)}})
	if err := s.PutBlocks(cs, []*scan.ScannedBlock{b}); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}

	rec := &TransactionRecord{
		TxID:         types.Hash{0xaa},
		Account:      id,
		Raw:          []byte{1, 2, 3},
		Fee:          10_000,
		TargetHeight: 121,
		ExpiryHeight: 161,
		Spent:        []NoteRef{{Pool: types.PoolOrchard, Nullifier: types.Hash{1}}},
	}
	if err := s.PutTransactions([]*TransactionRecord{rec}); err != nil {
		t.Fatalf("PutTransactions() error: %v", err)
	}

	got, err := s.Transaction(rec.TxID)
	if err != nil {
		t.Fatalf("Transaction() error: %v", err)
	}
	if got.Fee != 10_000 || string(got.Raw) != string(rec.Raw) {
		t.Errorf("Transaction() = %+v", got)
	}
	if _, err := s.Transaction(types.Hash{0xbb}); !errors.Is(err, ErrTxNotFound) {
		t.Errorf("missing tx error = %v, want ErrTxNotFound", err)
	}

	notes, err := s.SpendableNotes(id, 120)
	if err != nil {
		t.Fatalf("SpendableNotes() error: %v", err)
	}
	if len(notes) != 1 || notes[0].Value() != 2000 {
		t.Errorf("SpendableNotes() after reserve = %+v", notes)
	}

	// Reserving a reserved note fails and writes nothing, including the
	// record whose other note was still free.
	clash := &TransactionRecord{
		TxID: types.Hash{0xcc},
		Spent: []NoteRef{
			{Pool: types.PoolOrchard, Nullifier: types.Hash{2}},
			{Pool: types.PoolOrchard, Nullifier: types.Hash{1}},
		},
	}
	if err := s.PutTransactions([]*TransactionRecord{clash}); !errors.Is(err, ErrNoteUnavailable) {
		t.Fatalf("PutTransactions() error = %v, want ErrNoteUnavailable", err)
	}
	if _, err := s.Transaction(clash.TxID); !errors.Is(err, ErrTxNotFound) {
		t.Error("failed batch stored its transaction")
	}
	if notes, _ := s.SpendableNotes(id, 120); len(notes) != 1 {
		t.Errorf("failed batch reserved notes: %+v", notes)
	}

	missing := &TransactionRecord{TxID: types.Hash{0xdd}, Spent: []NoteRef{{Pool: types.PoolOrchard, Nullifier: types.Hash{9}}}}
	if err := s.PutTransactions([]*TransactionRecord{missing}); !errors.Is(err, ErrNoteNotFound) {
		t.Errorf("missing note error = %v, want ErrNoteNotFound", err)
	}

	summary, err := s.WalletSummary(1)
	if err != nil {
		t.Fatalf("WalletSummary() error: %v", err)
	}
	bal := summary.Accounts[0]
	if bal.Spendable != 2000 || bal.Pending != 1000 || bal.Total() != 3000 {
		t.Errorf("balance = %+v", bal)
	}

	// Once the reservation expires unmined, the note is spendable again.
	if err := s.UpdateChainTip(200); err != nil {
		t.Fatal(err)
	}
	if notes, _ := s.SpendableNotes(id, 120); len(notes) != 2 {
		t.Errorf("SpendableNotes() after expiry = %d notes, want 2", len(notes))
	}
}

func TestPutBlocks_MarksMined(t *testing.T) {
	s, id := newTestStore(t, 120)
	cs := &block.ChainState{Height: 99}
	g := &blockGen{state: *cs}
	b := g.next(scan.WalletTx{TxID: types.Hash{1}, Received: []scan.ReceivedNote{received(id, 5000, 1)}})
	if err := s.PutBlocks(cs, []*scan.ScannedBlock{b}); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}
	rec := &TransactionRecord{
		TxID:         types.Hash{0xaa},
		ExpiryHeight: 160,
		Spent:        []NoteRef{{Pool: types.PoolOrchard, Nullifier: types.Hash{1}}},
	}
	if err := s.PutTransactions([]*TransactionRecord{rec}); err != nil {
		t.Fatalf("PutTransactions() error: %v", err)
	}

	next := g.state
	mined := g.next(scan.WalletTx{
		TxID:     rec.TxID,
		Spent:    []scan.SpentNote{{Account: id, Pool: types.PoolOrchard, Nullifier: types.Hash{1}}},
		Received: []scan.ReceivedNote{received(id, 3000, 3)},
	})
	if err := s.PutBlocks(&next, []*scan.ScannedBlock{mined}); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}

	got, err := s.Transaction(rec.TxID)
	if err != nil {
		t.Fatalf("Transaction() error: %v", err)
	}
	if got.MinedHeight != 101 {
		t.Errorf("MinedHeight = %d, want 101", got.MinedHeight)
	}
	summary, err := s.WalletSummary(1)
	if err != nil {
		t.Fatalf("WalletSummary() error: %v", err)
	}
	if summary.Accounts[0].Total() != 3000 || summary.Accounts[0].Pending != 0 {
		t.Errorf("balance = %+v, want 3000 total", summary.Accounts[0])
	}
}

func TestSealedPhrase(t *testing.T) {
	s, id := newTestStore(t, 100)
	if err := s.PutSealedPhrase(id, []byte("sealed")); err != nil {
		t.Fatalf("PutSealedPhrase() error: %v", err)
	}
	got, err := s.SealedPhrase(id)
	if err != nil || string(got) != "sealed" {
		t.Errorf("SealedPhrase() = %q, %v", got, err)
	}
	if err := s.PutSealedPhrase(5, []byte("x")); !errors.Is(err, ErrAccountNotFound) {
		t.Errorf("unknown account error = %v, want ErrAccountNotFound", err)
	}
	if _, err := s.SealedPhrase(5); err == nil {
		t.Error("expected error for missing phrase")
	}
}

func TestStore_Badger(t *testing.T) {
	db, err := storage.NewBadgerInMemory()
	if err != nil {
		t.Fatalf("NewBadgerInMemory() error: %v", err)
	}
	s := New(db)
	defer s.Close()

	bd, _ := NewBirthday(100, &block.ChainState{Height: 99})
	id, err := s.ImportAccount(testFVK(t, 0), PurposeSpending, bd)
	if err != nil {
		t.Fatalf("ImportAccount() error: %v", err)
	}
	if err := s.UpdateChainTip(150); err != nil {
		t.Fatal(err)
	}
	g := &blockGen{state: block.ChainState{Height: 99}}
	b := g.next(scan.WalletTx{TxID: types.Hash{1}, Received: []scan.ReceivedNote{received(id, 700, 1)}})
	if err := s.PutBlocks(&block.ChainState{Height: 99}, append([]*scan.ScannedBlock{b}, g.empty(9)...)); err != nil {
		t.Fatalf("PutBlocks() error: %v", err)
	}
	summary, err := s.WalletSummary(1)
	if err != nil {
		t.Fatalf("WalletSummary() error: %v", err)
	}
	if summary.Accounts[0].Spendable != 700 || summary.FullyScanned != 109 {
		t.Errorf("summary = %+v", summary)
	}
}
