// Package engine is the wallet's synchronization and transaction pipeline.
// A Wallet keeps the store in step with a chain source, proposes
// transfers from the notes it found, builds and signs them, and submits
// them.
//
// Every method returns nil or an *errors.Error whose Kind tells the
// caller which stage failed. Nothing is retried.
package engine

import (
	"sync/atomic"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	"github.com/Lykhoyda/WebZjs/internal/errors"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/internal/proposal"
	"github.com/Lykhoyda/WebZjs/internal/prover"
	"github.com/Lykhoyda/WebZjs/internal/scan"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/internal/walletdb"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultBatchSize is the number of blocks fetched and scanned at once.
const DefaultBatchSize = config.DefaultBatchSize

// BirthdayOffset is how far below the chain tip a new account's birthday
// is placed when the caller gives none.
const BirthdayOffset = 100

// Store is the persistent wallet state the engine reads and writes.
// PutBlocks and PutTransactions must be atomic.
type Store interface {
	ImportAccount(fvk *wallet.FullViewingKey, purpose walletdb.Purpose, birthday walletdb.Birthday) (types.AccountID, error)
	AccountIDs() ([]types.AccountID, error)
	Account(id types.AccountID) (*walletdb.Account, error)

	UpdateChainTip(height types.BlockHeight) error
	ChainHeight() (types.BlockHeight, error)
	SuggestScanRanges() ([]scan.Range, error)
	ScanningKeys() (*scan.ScanningKeys, error)
	UnspentNullifiers(pool types.Pool) (map[types.Hash]types.AccountID, error)
	PutBlocks(cs *block.ChainState, blocks []*scan.ScannedBlock) error
	ChainStateAt(height types.BlockHeight) (*block.ChainState, error)

	TargetAndAnchorHeights(minConfirmations uint32) (target, anchor types.BlockHeight, err error)
	SpendableNotes(account types.AccountID, anchor types.BlockHeight) ([]wallet.SpendableNote, error)
	WalletSummary(minConfirmations uint32) (*walletdb.Summary, error)

	PutTransactions(records []*walletdb.TransactionRecord) error
	Transaction(txid types.Hash) (*walletdb.TransactionRecord, error)
}

// KeyProvider derives spending keys from a recovery phrase.
type KeyProvider interface {
	DeriveSpendingKey(phrase string, account uint32) (*wallet.SpendingKey, error)
}

// Prover builds and signs the transaction for one proposal step.
type Prover interface {
	Build(p *proposal.Proposal, step int, sk *wallet.SpendingKey) (*prover.Built, error)
}

var (
	_ Store       = (*walletdb.Store)(nil)
	_ KeyProvider = wallet.KeyProvider{}
	_ Prover      = (*prover.LocalProver)(nil)
)

// Config configures a Wallet.
type Config struct {
	Params *config.Params

	// MinConfirmations is the depth a note needs before it is spent.
	MinConfirmations uint32
	// BatchSize caps the blocks per fetch-and-scan. Zero means
	// DefaultBatchSize.
	BatchSize uint32

	// Keys defaults to wallet.KeyProvider for Params.
	Keys KeyProvider
	// Prover defaults to a prover.LocalProver anchored on the store.
	Prover Prover
	Logger *zerolog.Logger
}

// Wallet drives one store against one chain source. Its methods must not
// be called concurrently, except SyncState.
type Wallet struct {
	params    *config.Params
	minConf   uint32
	batchSize uint32

	source  chainsource.Source
	store   Store
	keys    KeyProvider
	prover  Prover
	scanner *scan.Scanner
	logger  zerolog.Logger

	state atomic.Int32
}

// New creates a wallet over store, reading the chain from source.
func New(cfg Config, source chainsource.Source, store Store) (*Wallet, error) {
	const op errors.Op = "wallet.New"
	if cfg.Params == nil {
		return nil, errors.E(op, errors.Invalid, "network parameters required")
	}
	if cfg.MinConfirmations == 0 {
		return nil, errors.E(op, errors.Invalid, "minimum confirmations must be positive")
	}
	if cfg.MinConfirmations > config.MaxMinConfirmations {
		return nil, errors.E(op, errors.Invalid,
			errors.Errorf("minimum confirmations %d exceed %d", cfg.MinConfirmations, config.MaxMinConfirmations))
	}
	if source == nil || store == nil {
		return nil, errors.E(op, errors.Invalid, "chain source and store required")
	}

	w := &Wallet{
		params:    cfg.Params,
		minConf:   cfg.MinConfirmations,
		batchSize: cfg.BatchSize,
		source:    source,
		store:     store,
		keys:      cfg.Keys,
		prover:    cfg.Prover,
		scanner:   scan.NewScanner(cfg.Params),
		logger:    klog.Sync,
	}
	if w.batchSize == 0 {
		w.batchSize = DefaultBatchSize
	}
	if w.keys == nil {
		w.keys = wallet.KeyProvider{CoinType: cfg.Params.CoinType}
	}
	if w.prover == nil {
		w.prover = prover.New(store)
	}
	if cfg.Logger != nil {
		w.logger = *cfg.Logger
	}
	return w, nil
}

// Params returns the network parameters the wallet was created with.
func (w *Wallet) Params() *config.Params {
	return w.params
}

// storeErr classifies a store failure.
func storeErr(op errors.Op, err error) error {
	if errors.Cause(err, walletdb.ErrAccountNotFound) {
		return errors.E(op, errors.AccountNotFound, err)
	}
	return errors.E(op, errors.Store, err)
}
