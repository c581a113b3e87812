package engine

import (
	"context"

	"github.com/Lykhoyda/WebZjs/internal/errors"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/internal/walletdb"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// CreateAccount derives the spending key of accountIndex from phrase and
// imports its viewing key as a spending account. The key itself is not
// kept. With a nil birthday the account is born BirthdayOffset blocks
// below the chain tip.
func (w *Wallet) CreateAccount(ctx context.Context, phrase string, accountIndex uint32, birthday *types.BlockHeight) (types.AccountID, error) {
	const op errors.Op = "wallet.CreateAccount"

	sk, err := w.keys.DeriveSpendingKey(phrase, accountIndex)
	if err != nil {
		return 0, errors.E(op, errors.KeyDerivation, err)
	}
	fvk := sk.FullViewingKey()
	sk.Zero()

	return w.importAccount(ctx, op, fvk, walletdb.PurposeSpending, birthday)
}

// ImportViewingKey imports an encoded full viewing key as a view-only
// account.
func (w *Wallet) ImportViewingKey(ctx context.Context, ufvk string, birthday *types.BlockHeight) (types.AccountID, error) {
	const op errors.Op = "wallet.ImportViewingKey"

	fvk, err := wallet.DecodeFullViewingKey(ufvk, w.params.ViewingKeyHRP)
	if err != nil {
		return 0, errors.E(op, errors.Invalid, err)
	}
	return w.importAccount(ctx, op, fvk, walletdb.PurposeViewOnly, birthday)
}

func (w *Wallet) importAccount(ctx context.Context, op errors.Op, fvk *wallet.FullViewingKey,
	purpose walletdb.Purpose, birthday *types.BlockHeight) (types.AccountID, error) {

	bd, err := w.resolveBirthday(ctx, op, birthday)
	if err != nil {
		return 0, err
	}
	id, err := w.store.ImportAccount(fvk, purpose, bd)
	if err != nil {
		return 0, errors.E(op, errors.Store, err)
	}
	w.logger.Info().
		Uint32("account", uint32(id)).
		Stringer("purpose", purpose).
		Uint32("birthday", uint32(bd.Height)).
		Msg("Account imported")
	return id, nil
}

// resolveBirthday fetches the tree state just below the birthday. The
// request reveals the birthday to the chain source.
func (w *Wallet) resolveBirthday(ctx context.Context, op errors.Op, birthday *types.BlockHeight) (walletdb.Birthday, error) {
	var height types.BlockHeight
	if birthday != nil {
		height = *birthday
	} else {
		tip, err := w.source.LatestHeight(ctx)
		if err != nil {
			return walletdb.Birthday{}, errors.E(op, errors.Transport, err)
		}
		if tip <= BirthdayOffset {
			return walletdb.Birthday{}, errors.E(op, errors.Birthday,
				&errors.BirthdayError{Height: uint32(tip), Err: errors.Errorf("chain tip too low to default a birthday")})
		}
		height = tip - BirthdayOffset
	}
	if height == 0 {
		return walletdb.Birthday{}, errors.E(op, errors.Birthday,
			&errors.BirthdayError{Err: errors.New("birthday must be positive")})
	}

	ts, err := w.source.TreeState(ctx, height-1)
	if err != nil {
		return walletdb.Birthday{}, errors.E(op, errors.Transport, err)
	}
	cs, err := ts.ChainState()
	if err != nil {
		return walletdb.Birthday{}, errors.E(op, errors.Birthday, &errors.BirthdayError{Height: uint32(height), Err: err})
	}
	bd, err := walletdb.NewBirthday(height, cs)
	if err != nil {
		return walletdb.Birthday{}, errors.E(op, errors.Birthday, &errors.BirthdayError{Height: uint32(height), Err: err})
	}
	return bd, nil
}

// Address returns the default address in pool of the account at
// accountIndex, in AccountIDs order.
func (w *Wallet) Address(accountIndex int, pool types.Pool) (string, error) {
	const op errors.Op = "wallet.Address"

	acct, err := w.accountAt(op, accountIndex)
	if err != nil {
		return "", err
	}
	fvk, err := acct.FullViewingKey()
	if err != nil {
		return "", errors.E(op, errors.Store, err)
	}
	addr, err := fvk.Address(pool)
	if err != nil {
		return "", errors.E(op, errors.Invalid, err)
	}
	s, err := w.params.EncodeAddress(addr)
	if err != nil {
		return "", errors.E(op, errors.Invalid, err)
	}
	return s, nil
}

// accountAt resolves a positional account index.
func (w *Wallet) accountAt(op errors.Op, index int) (*walletdb.Account, error) {
	ids, err := w.store.AccountIDs()
	if err != nil {
		return nil, errors.E(op, errors.Store, err)
	}
	if index < 0 || index >= len(ids) {
		return nil, errors.E(op, errors.AccountNotFound, errors.Errorf("no account at index %d (have %d)", index, len(ids)))
	}
	acct, err := w.store.Account(ids[index])
	if err != nil {
		return nil, storeErr(op, err)
	}
	return acct, nil
}
