package walletdb

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Purpose records whether the wallet can spend from an account.
type Purpose uint8

const (
	PurposeSpending Purpose = iota
	PurposeViewOnly
)

// String returns the purpose name.
func (p Purpose) String() string {
	if p == PurposeViewOnly {
		return "view-only"
	}
	return "spending"
}

// Birthday is the first height that can hold an account's notes, with the
// chain state at the block before it.
type Birthday struct {
	Height     types.BlockHeight `json:"height"`
	PriorState *block.ChainState `json:"priorState"`
}

// NewBirthday checks that state is the chain state just below height.
func NewBirthday(height types.BlockHeight, state *block.ChainState) (Birthday, error) {
	if height == 0 {
		return Birthday{}, fmt.Errorf("birthday height must be positive")
	}
	if state == nil || state.Height+1 != height {
		return Birthday{}, fmt.Errorf("chain state is not at height %d", height-1)
	}
	return Birthday{Height: height, PriorState: state}, nil
}

// Account is an imported viewing key.
type Account struct {
	ID         types.AccountID `json:"id"`
	ViewingKey []byte          `json:"viewingKey"`
	Purpose    Purpose         `json:"purpose"`
	Birthday   Birthday        `json:"birthday"`
}

// FullViewingKey decodes the account's viewing key.
func (a *Account) FullViewingKey() (*wallet.FullViewingKey, error) {
	return wallet.FullViewingKeyFromBytes(a.ViewingKey)
}

// ImportAccount stores a new account and returns its sequential ID.
// Importing a key twice fails with ErrDuplicateAccount. Scan coverage at
// and above the birthday is dropped so those blocks are scanned again with
// the new key.
func (s *Store) ImportAccount(fvk *wallet.FullViewingKey, purpose Purpose, birthday Birthday) (types.AccountID, error) {
	if birthday.PriorState == nil || birthday.PriorState.Height+1 != birthday.Height {
		return 0, fmt.Errorf("birthday %d has no prior chain state", birthday.Height)
	}
	accounts, err := s.allAccounts()
	if err != nil {
		return 0, err
	}
	for _, a := range accounts {
		if string(a.ViewingKey) == string(fvk.Bytes()) {
			return 0, fmt.Errorf("%w: account %d", ErrDuplicateAccount, a.ID)
		}
	}

	acct := Account{
		ID:         types.AccountID(len(accounts)),
		ViewingKey: fvk.Bytes(),
		Purpose:    purpose,
		Birthday:   birthday,
	}

	batch := s.newBatch()
	if err := putJSON(s.accounts.Prefix(batch), accountKey(acct.ID), &acct); err != nil {
		return 0, fmt.Errorf("put account: %w", err)
	}
	intervals, err := s.scannedIntervals()
	if err != nil {
		return 0, err
	}
	if err := s.writeIntervals(batch, intervals, truncate(intervals, birthday.Height)); err != nil {
		return 0, err
	}
	if err := batch.Commit(); err != nil {
		return 0, fmt.Errorf("commit account: %w", err)
	}
	return acct.ID, nil
}

// AccountIDs returns every account ID in ascending order.
func (s *Store) AccountIDs() ([]types.AccountID, error) {
	accounts, err := s.allAccounts()
	if err != nil {
		return nil, err
	}
	ids := make([]types.AccountID, len(accounts))
	for i, a := range accounts {
		ids[i] = a.ID
	}
	return ids, nil
}

// Account loads one account.
func (s *Store) Account(id types.AccountID) (*Account, error) {
	var acct Account
	err := getJSON(s.accounts, accountKey(id), &acct)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("%w: %d", ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get account %d: %w", id, err)
	}
	return &acct, nil
}

func (s *Store) allAccounts() ([]Account, error) {
	var accounts []Account
	err := s.accounts.ForEach(nil, func(_, value []byte) error {
		var a Account
		if err := json.Unmarshal(value, &a); err != nil {
			return err
		}
		accounts = append(accounts, a)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// ScanningKeys returns the incoming viewing and nullifier keys of every
// account.
func (s *Store) ScanningKeys() (*scan.ScanningKeys, error) {
	accounts, err := s.allAccounts()
	if err != nil {
		return nil, err
	}
	keys := &scan.ScanningKeys{}
	for _, a := range accounts {
		fvk, err := a.FullViewingKey()
		if err != nil {
			return nil, fmt.Errorf("account %d: %w", a.ID, err)
		}
		keys.Accounts = append(keys.Accounts, scan.AccountKeys{Account: a.ID, IVK: fvk.IVK(), NK: fvk.NK})
	}
	return keys, nil
}

// PutSealedPhrase stores an encrypted recovery phrase for an account.
func (s *Store) PutSealedPhrase(id types.AccountID, sealed []byte) error {
	if _, err := s.Account(id); err != nil {
		return err
	}
	if err := s.vault.Put(accountKey(id), sealed); err != nil {
		return fmt.Errorf("put sealed phrase: %w", err)
	}
	return nil
}

// SealedPhrase loads the encrypted recovery phrase of an account.
func (s *Store) SealedPhrase(id types.AccountID) ([]byte, error) {
	data, err := s.vault.Get(accountKey(id))
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("no recovery phrase stored for account %d", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get sealed phrase: %w", err)
	}
	return data, nil
}
