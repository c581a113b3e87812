package walletdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// NoteRef identifies a note by pool and nullifier.
type NoteRef struct {
	Pool      types.Pool `json:"pool"`
	Nullifier types.Hash `json:"nullifier"`
}

// SentOutput is the sender's record of one output it created.
type SentOutput struct {
	Pool      types.Pool    `json:"pool"`
	Recipient types.Address `json:"recipient"`
	Value     uint64        `json:"value"`
	Change    bool          `json:"change,omitempty"`
}

// TransactionRecord is a transaction built by the wallet.
type TransactionRecord struct {
	TxID         types.Hash        `json:"txid"`
	Account      types.AccountID   `json:"account"`
	Raw          []byte            `json:"raw"`
	Fee          uint64            `json:"fee"`
	TargetHeight types.BlockHeight `json:"targetHeight"`
	ExpiryHeight types.BlockHeight `json:"expiryHeight"`
	// MinedHeight is zero until a scanned block contains the transaction.
	MinedHeight types.BlockHeight `json:"minedHeight,omitempty"`
	Spent       []NoteRef         `json:"spent"`
	Sent        []SentOutput      `json:"sent"`
}

// PutTransactions stores built transactions and reserves the notes they
// spend, in one atomic write. If any note is missing or already reserved,
// nothing is written.
func (s *Store) PutTransactions(records []*TransactionRecord) error {
	if len(records) == 0 {
		return nil
	}
	tip, err := s.ChainHeight()
	if err != nil {
		return err
	}

	batch := s.newBatch()
	txTable := s.txs.Prefix(batch)
	w := newNoteWriter(s)
	available := s.available(tip)
	for _, rec := range records {
		for _, ref := range rec.Spent {
			if err := w.reserve(ref.Pool, ref.Nullifier, rec.TxID, available); err != nil {
				return fmt.Errorf("transaction %s: %w", rec.TxID.Short(), err)
			}
		}
		if err := putJSON(txTable, rec.TxID[:], rec); err != nil {
			return fmt.Errorf("put transaction: %w", err)
		}
	}
	if err := w.flush(batch); err != nil {
		return err
	}
	if err := batch.Commit(); err != nil {
		return fmt.Errorf("commit transactions: %w", err)
	}
	return nil
}

// Transaction loads a built transaction by ID.
func (s *Store) Transaction(txid types.Hash) (*TransactionRecord, error) {
	var rec TransactionRecord
	err := getJSON(s.txs, txid[:], &rec)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrTxNotFound, txid)
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &rec, nil
}

// Transactions lists every built transaction.
func (s *Store) Transactions() ([]*TransactionRecord, error) {
	var out []*TransactionRecord
	err := s.txs.ForEach(nil, func(_, value []byte) error {
		var rec TransactionRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			return err
		}
		out = append(out, &rec)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return out, nil
}
