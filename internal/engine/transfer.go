package engine

import (
	"context"

	"github.com/Lykhoyda/WebZjs/internal/errors"
	"github.com/Lykhoyda/WebZjs/internal/proposal"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/internal/walletdb"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// ProposeTransfer plans a payment of amount to the encoded address to from
// the account at accountIndex. Inputs are chosen first-fit from notes
// confirmed at the anchor; change returns to the account's Orchard
// address. Nothing is written.
func (w *Wallet) ProposeTransfer(ctx context.Context, accountIndex int, to string, amount uint64) (*proposal.Proposal, error) {
	const op errors.Op = "wallet.ProposeTransfer"

	acct, err := w.accountAt(op, accountIndex)
	if err != nil {
		return nil, err
	}
	if err := types.ValidateAmount(amount); err != nil {
		return nil, errors.E(op, errors.Proposal, err)
	}
	recipient, err := w.params.DecodeAddress(to)
	if err != nil {
		return nil, errors.E(op, errors.Invalid, err)
	}

	target, anchor, err := w.store.TargetAndAnchorHeights(w.minConf)
	if err != nil {
		return nil, errors.E(op, errors.Store, err)
	}
	notes, err := w.store.SpendableNotes(acct.ID, anchor)
	if err != nil {
		return nil, errors.E(op, errors.Store, err)
	}

	rule := tx.StandardFeeRule()
	sel, err := wallet.SelectNotes(notes, amount, recipient.Pool, rule)
	if err != nil {
		return nil, errors.E(op, errors.Proposal, err)
	}
	step := proposal.Step{
		Inputs:   sel.Inputs,
		Payments: []proposal.Payment{{Recipient: recipient, Amount: amount}},
		Fee:      sel.Fee,
	}
	if sel.Change > 0 {
		step.Change = []proposal.Change{{Pool: wallet.ChangePool, Value: sel.Change}}
	}
	p, err := proposal.New(acct.ID, rule, target, anchor, []proposal.Step{step})
	if err != nil {
		return nil, errors.E(op, errors.Proposal, err)
	}

	w.logger.Debug().
		Uint32("account", uint32(acct.ID)).
		Uint64("amount", amount).
		Uint64("fee", p.TotalFee()).
		Int("inputs", len(step.Inputs)).
		Uint32("anchor", uint32(anchor)).
		Msg("Transfer proposed")
	return p, nil
}

// CreateProposedTransactions builds and signs every step of p with sk and
// stores the results, reserving the notes they spend. It returns the
// transaction IDs in step order. On failure nothing is stored.
func (w *Wallet) CreateProposedTransactions(ctx context.Context, p *proposal.Proposal, sk *wallet.SpendingKey) ([]types.Hash, error) {
	const op errors.Op = "wallet.CreateProposedTransactions"

	if err := w.checkControls(op, errors.Build, p.Account, sk); err != nil {
		return nil, err
	}

	records := make([]*walletdb.TransactionRecord, 0, len(p.Steps))
	txids := make([]types.Hash, 0, len(p.Steps))
	for i := range p.Steps {
		if err := ctx.Err(); err != nil {
			return nil, errors.E(op, errors.Build, err)
		}
		built, err := w.prover.Build(p, i, sk)
		if err != nil {
			return nil, errors.E(op, errors.Build, errors.Errorf("step %d: %w", i, err))
		}
		rec := &walletdb.TransactionRecord{
			TxID:         built.Tx.ID(),
			Account:      p.Account,
			Raw:          built.Tx.Serialize(),
			Fee:          built.Tx.Fee,
			TargetHeight: p.TargetHeight,
			ExpiryHeight: built.Tx.ExpiryHeight,
		}
		for _, in := range p.Steps[i].Inputs {
			rec.Spent = append(rec.Spent, walletdb.NoteRef{Pool: in.Pool(), Nullifier: in.Nullifier})
		}
		for _, out := range built.Outputs {
			rec.Sent = append(rec.Sent, walletdb.SentOutput{
				Pool:      out.Recipient.Pool,
				Recipient: out.Recipient,
				Value:     out.Value,
				Change:    out.Change,
			})
		}
		records = append(records, rec)
		txids = append(txids, rec.TxID)
	}

	if err := w.store.PutTransactions(records); err != nil {
		return nil, errors.E(op, errors.Store, err)
	}
	for _, rec := range records {
		w.logger.Info().
			Str("txid", rec.TxID.String()).
			Uint32("account", uint32(rec.Account)).
			Uint64("fee", rec.Fee).
			Msg("Transaction created")
	}
	return txids, nil
}

// checkControls fails with kind unless sk derives the viewing key of
// account.
func (w *Wallet) checkControls(op errors.Op, kind errors.Kind, account types.AccountID, sk *wallet.SpendingKey) error {
	acct, err := w.store.Account(account)
	if err != nil {
		return storeErr(op, err)
	}
	fvk, err := acct.FullViewingKey()
	if err != nil {
		return errors.E(op, errors.Store, err)
	}
	if !fvk.Equal(sk.FullViewingKey()) {
		return errors.E(op, kind, errors.Errorf("key for account index %d does not control account %d", sk.Account(), account))
	}
	return nil
}

// Submit sends a stored transaction to the chain source. A rejection is
// a SendFailed error carrying the server's code and message; the
// transaction stays stored either way.
func (w *Wallet) Submit(ctx context.Context, txid types.Hash) error {
	const op errors.Op = "wallet.Submit"

	rec, err := w.store.Transaction(txid)
	if err != nil {
		return errors.E(op, errors.Store, err)
	}
	decoded, err := tx.Deserialize(rec.Raw)
	if err != nil {
		return errors.E(op, errors.Store, errors.Errorf("stored transaction %s: %w", txid.Short(), err))
	}
	if decoded.ID() != txid {
		return errors.E(op, errors.Store, errors.Errorf("stored transaction %s decodes to %s", txid.Short(), decoded.ID().Short()))
	}

	resp, err := w.source.SubmitTransaction(ctx, rec.Raw)
	if err != nil {
		return errors.E(op, errors.Transport, err)
	}
	if !resp.Accepted() {
		w.logger.Warn().
			Str("txid", txid.String()).
			Int32("code", resp.ErrorCode).
			Str("reason", resp.ErrorMessage).
			Msg("Transaction rejected")
		return errors.SendFailedError(op, resp.ErrorCode, resp.ErrorMessage)
	}
	w.logger.Info().Str("txid", txid.String()).Msg("Transaction submitted")
	return nil
}

// TransferRequest is a one-shot payment. KeyIndex selects the spending
// key derived from Phrase; FromAccount selects the funding account by
// position. Both must name the same account.
type TransferRequest struct {
	Phrase      string
	KeyIndex    uint32
	FromAccount int
	To          string
	Amount      uint64
}

// Transfer proposes, builds and submits a payment, and returns the ID of
// the submitted transaction. If the build succeeded the ID is returned
// even when submission fails, since the transaction is stored and can be
// submitted again.
func (w *Wallet) Transfer(ctx context.Context, req TransferRequest) (types.Hash, error) {
	const op errors.Op = "wallet.Transfer"

	sk, err := w.keys.DeriveSpendingKey(req.Phrase, req.KeyIndex)
	if err != nil {
		return types.Hash{}, errors.E(op, errors.KeyDerivation, err)
	}
	defer sk.Zero()

	p, err := w.ProposeTransfer(ctx, req.FromAccount, req.To, req.Amount)
	if err != nil {
		return types.Hash{}, errors.E(op, err)
	}
	if err := w.checkControls(op, errors.KeyDerivation, p.Account, sk); err != nil {
		return types.Hash{}, err
	}
	txids, err := w.CreateProposedTransactions(ctx, p, sk)
	if err != nil {
		return types.Hash{}, errors.E(op, err)
	}
	if err := w.Submit(ctx, txids[0]); err != nil {
		return txids[0], errors.E(op, err)
	}
	return txids[0], nil
}

// WalletSummary returns balances at the configured confirmation depth.
func (w *Wallet) WalletSummary() (*walletdb.Summary, error) {
	const op errors.Op = "wallet.WalletSummary"
	summary, err := w.store.WalletSummary(w.minConf)
	if err != nil {
		return nil, errors.E(op, errors.Store, err)
	}
	return summary, nil
}
