package walletdb

import (
	"cmp"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// noteRecord is a received note and its spend state.
type noteRecord struct {
	Account     types.AccountID   `json:"account"`
	TxID        types.Hash        `json:"txid"`
	Height      types.BlockHeight `json:"height"`
	OutputIndex int               `json:"outputIndex"`
	Position    uint64            `json:"position"`
	Nullifier   types.Hash        `json:"nullifier"`
	Note        note.Note         `json:"note"`

	// SpentTxID is set once a block revealing the nullifier is scanned.
	SpentTxID   *types.Hash       `json:"spentTxid,omitempty"`
	SpentHeight types.BlockHeight `json:"spentHeight,omitempty"`
	// PendingTxID is set when a built transaction spends the note.
	PendingTxID *types.Hash `json:"pendingTxid,omitempty"`
}

func (r *noteRecord) spendable() wallet.SpendableNote {
	return wallet.SpendableNote{
		Account:   r.Account,
		TxID:      r.TxID,
		Height:    r.Height,
		Position:  r.Position,
		Nullifier: r.Nullifier,
		Note:      r.Note,
	}
}

// noteWriter stages note updates for one batch. Reads see earlier staged
// writes, so a note received and spent in the same batch is handled.
type noteWriter struct {
	s      *Store
	staged map[string]*noteRecord
	order  []string
}

func newNoteWriter(s *Store) *noteWriter {
	return &noteWriter{s: s, staged: make(map[string]*noteRecord)}
}

func (w *noteWriter) load(pool types.Pool, nf types.Hash) (*noteRecord, error) {
	key := noteKey(pool, nf)
	if rec, ok := w.staged[string(key)]; ok {
		return rec, nil
	}
	var rec noteRecord
	err := getJSON(w.s.notes, key, &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get note: %w", err)
	}
	return &rec, nil
}

func (w *noteWriter) stage(rec *noteRecord) {
	key := string(noteKey(rec.Note.Pool(), rec.Nullifier))
	if _, ok := w.staged[key]; !ok {
		w.order = append(w.order, key)
	}
	w.staged[key] = rec
}

// receive records a decrypted note. A note seen again on rescan keeps its
// spend state.
func (w *noteWriter) receive(txid types.Hash, height types.BlockHeight, rn scan.ReceivedNote) error {
	rec := &noteRecord{
		Account:     rn.Account,
		TxID:        txid,
		Height:      height,
		OutputIndex: rn.OutputIndex,
		Position:    rn.Position,
		Nullifier:   rn.Nullifier,
		Note:        rn.Note,
	}
	existing, err := w.load(rn.Note.Pool(), rn.Nullifier)
	if err != nil {
		return err
	}
	if existing != nil {
		rec.SpentTxID = existing.SpentTxID
		rec.SpentHeight = existing.SpentHeight
		rec.PendingTxID = existing.PendingTxID
	}
	w.stage(rec)
	return nil
}

// spend marks a note as spent on chain by txid.
func (w *noteWriter) spend(pool types.Pool, nf, txid types.Hash, height types.BlockHeight) error {
	rec, err := w.load(pool, nf)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s %s", ErrNoteNotFound, pool, nf.Short())
	}
	spent := txid
	rec.SpentTxID = &spent
	rec.SpentHeight = height
	rec.PendingTxID = nil
	w.stage(rec)
	return nil
}

// reserve marks a note as spent by a built, unmined transaction.
func (w *noteWriter) reserve(pool types.Pool, nf, txid types.Hash, available func(*noteRecord) bool) error {
	rec, err := w.load(pool, nf)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("%w: %s %s", ErrNoteNotFound, pool, nf.Short())
	}
	if !available(rec) {
		return fmt.Errorf("%w: %s %s", ErrNoteUnavailable, pool, nf.Short())
	}
	pending := txid
	rec.PendingTxID = &pending
	w.stage(rec)
	return nil
}

func (w *noteWriter) flush(batch storage.Batch) error {
	table := w.s.notes.Prefix(batch)
	for _, key := range w.order {
		if err := putJSON(table, []byte(key), w.staged[key]); err != nil {
			return fmt.Errorf("put note: %w", err)
		}
	}
	return nil
}

func (s *Store) allNotes() ([]*noteRecord, error) {
	var out []*noteRecord
	err := s.notes.ForEach(nil, func(_, value []byte) error {
		var rec noteRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list notes: %w", err)
	}
	return out, nil
}

// UnspentNullifiers returns the nullifiers of notes in pool that no
// scanned block has spent, mapped to their accounts. Notes spent only by
// unmined transactions are included.
func (s *Store) UnspentNullifiers(pool types.Pool) (map[types.Hash]types.AccountID, error) {
	out := make(map[types.Hash]types.AccountID)
	err := s.notes.ForEach([]byte{byte(pool)}, func(_, value []byte) error {
		var rec noteRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		if rec.SpentTxID == nil {
			out[rec.Nullifier] = rec.Account
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s nullifiers: %w", pool, err)
	}
	return out, nil
}

// available reports whether a note can fund a new transaction at tip: it
// is unspent and any transaction that reserved it has expired unmined.
func (s *Store) available(tip types.BlockHeight) func(*noteRecord) bool {
	return func(rec *noteRecord) bool {
		if rec.SpentTxID != nil {
			return false
		}
		if rec.PendingTxID == nil {
			return true
		}
		pending, err := s.Transaction(*rec.PendingTxID)
		if err != nil {
			return false
		}
		return pending.MinedHeight == 0 && pending.ExpiryHeight < tip+1
	}
}

// SpendableNotes returns the account's available notes mined at or below
// anchor, ordered by height then tree position.
func (s *Store) SpendableNotes(account types.AccountID, anchor types.BlockHeight) ([]wallet.SpendableNote, error) {
	tip, err := s.ChainHeight()
	if err != nil {
		return nil, err
	}
	notes, err := s.allNotes()
	if err != nil {
		return nil, err
	}
	available := s.available(tip)

	var out []wallet.SpendableNote
	for _, rec := range notes {
		if rec.Account != account || rec.Height > anchor || !available(rec) {
			continue
		}
		out = append(out, rec.spendable())
	}
	slices.SortFunc(out, func(a, b wallet.SpendableNote) int {
		if c := cmp.Compare(a.Height, b.Height); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Pool(), b.Pool()); c != 0 {
			return c
		}
		return cmp.Compare(a.Position, b.Position)
	})
	return out, nil
}

// TargetAndAnchorHeights returns the height a new transaction targets
// (tip+1) and the anchor minConfirmations below it, capped at the highest
// scanned block.
func (s *Store) TargetAndAnchorHeights(minConfirmations uint32) (target, anchor types.BlockHeight, err error) {
	if minConfirmations == 0 {
		return 0, 0, fmt.Errorf("minimum confirmations must be positive")
	}
	if minConfirmations > PruningDepth {
		return 0, 0, fmt.Errorf("minimum confirmations %d exceed retained depth %d", minConfirmations, PruningDepth)
	}
	tip, err := s.ChainHeight()
	if err != nil {
		return 0, 0, err
	}
	target = tip + 1
	anchor = target.SaturatingSub(minConfirmations)
	if scanned, ok, err := s.MaxScannedHeight(); err != nil {
		return 0, 0, err
	} else if ok {
		anchor = min(anchor, scanned)
	}
	return target, anchor, nil
}

// AccountBalance is one account's share of a wallet summary.
type AccountBalance struct {
	Account types.AccountID `json:"account"`
	// Spendable notes are confirmed at the anchor and not reserved.
	Spendable uint64 `json:"spendable"`
	// Unconfirmed notes are above the anchor and not reserved.
	Unconfirmed uint64 `json:"unconfirmed"`
	// Pending notes are reserved by unmined wallet transactions.
	Pending uint64 `json:"pending"`
}

// Total returns all value the account still holds on chain.
func (b AccountBalance) Total() uint64 {
	return b.Spendable + b.Unconfirmed + b.Pending
}

// Summary is a point-in-time view of wallet balances and sync progress.
type Summary struct {
	ChainTip     types.BlockHeight `json:"chainTip"`
	FullyScanned types.BlockHeight `json:"fullyScanned"`
	Accounts     []AccountBalance  `json:"accounts"`
}

// WalletSummary computes balances for minConfirmations. It is derived
// from stored notes on every call.
func (s *Store) WalletSummary(minConfirmations uint32) (*Summary, error) {
	target, anchor, err := s.TargetAndAnchorHeights(minConfirmations)
	if err != nil {
		return nil, err
	}
	ids, err := s.AccountIDs()
	if err != nil {
		return nil, err
	}
	scanned, err := s.FullyScannedHeight()
	if err != nil {
		return nil, err
	}
	notes, err := s.allNotes()
	if err != nil {
		return nil, err
	}

	summary := &Summary{ChainTip: target - 1, FullyScanned: scanned}
	balances := make(map[types.AccountID]*AccountBalance, len(ids))
	for _, id := range ids {
		summary.Accounts = append(summary.Accounts, AccountBalance{Account: id})
	}
	for i := range summary.Accounts {
		balances[summary.Accounts[i].Account] = &summary.Accounts[i]
	}

	available := s.available(target - 1)
	for _, rec := range notes {
		bal, ok := balances[rec.Account]
		if !ok || rec.SpentTxID != nil {
			continue
		}
		switch {
		case !available(rec):
			bal.Pending += rec.Note.Value
		case rec.Height > anchor:
			bal.Unconfirmed += rec.Note.Value
		default:
			bal.Spendable += rec.Note.Value
		}
	}
	return summary, nil
}
