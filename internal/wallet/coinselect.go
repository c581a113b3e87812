package wallet

import (
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Note selection errors.
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoNotes           = errors.New("no spendable notes")
)

// ChangePool receives change outputs.
const ChangePool = types.PoolOrchard

// SpendableNote is a received, unspent note mined at or below the anchor.
type SpendableNote struct {
	Account   types.AccountID   `json:"account"`
	TxID      types.Hash        `json:"txid"`
	Height    types.BlockHeight `json:"height"`
	Position  uint64            `json:"position"`
	Nullifier types.Hash        `json:"nullifier"`
	Note      note.Note         `json:"note"`
}

// Pool returns the pool holding the note.
func (n *SpendableNote) Pool() types.Pool {
	return n.Note.Pool()
}

// Value returns the note value.
func (n *SpendableNote) Value() uint64 {
	return n.Note.Value
}

// NoteSelection holds the result of note selection.
type NoteSelection struct {
	Inputs []SpendableNote // Selected notes to spend.
	Total  uint64          // Sum of selected note values.
	Fee    uint64
	Change uint64 // Change = Total - amount - Fee, paid to ChangePool.
}

// SelectNotes picks notes first-fit, in the order given, until they cover
// amount plus the fee of the resulting transaction. One payment goes to
// recipientPool; change, if any, goes to ChangePool.
//
// When the selected notes pay amount plus fee exactly, no change output is
// created. When they pay exactly the fee with a change output, the change
// output is dropped and the fee stays at that amount.
func SelectNotes(notes []SpendableNote, amount uint64, recipientPool types.Pool, rule tx.FeeRule) (*NoteSelection, error) {
	if amount == 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	candidates := make([]SpendableNote, 0, len(notes))
	for _, n := range notes {
		if n.Value() > 0 {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoNotes
	}

	counts := map[types.Pool]tx.PoolActions{}
	var selected []SpendableNote
	var total uint64
	for _, n := range candidates {
		selected = append(selected, n)
		total += n.Value()
		c := counts[n.Pool()]
		c.Spends++
		counts[n.Pool()] = c

		noChange := rule.Fee(withOutputs(counts, recipientPool))
		if total == amount+noChange {
			return &NoteSelection{Inputs: selected, Total: total, Fee: noChange}, nil
		}
		fee := rule.Fee(withOutputs(counts, recipientPool, ChangePool))
		if total >= amount+fee {
			return &NoteSelection{Inputs: selected, Total: total, Fee: fee, Change: total - amount - fee}, nil
		}
	}

	need := amount + rule.Fee(withOutputs(counts, recipientPool, ChangePool))
	return nil, fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, total, need)
}

func withOutputs(spends map[types.Pool]tx.PoolActions, pools ...types.Pool) map[types.Pool]tx.PoolActions {
	counts := make(map[types.Pool]tx.PoolActions, len(spends)+len(pools))
	for p, c := range spends {
		counts[p] = c
	}
	for _, p := range pools {
		c := counts[p]
		c.Outputs++
		counts[p] = c
	}
	return counts
}
