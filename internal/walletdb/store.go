// Package walletdb is the persistent wallet store: accounts, scan
// coverage, received notes, block metadata and built transactions, kept in
// namespaced tables over a storage.DB.
package walletdb

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Store errors.
var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrDuplicateAccount = errors.New("viewing key already imported")
	ErrNoChainTip       = errors.New("chain tip not known")
	ErrBlockNotFound    = errors.New("block not scanned")
	ErrTxNotFound       = errors.New("transaction not found")
	ErrNoteNotFound     = errors.New("note not found")
	ErrNoteUnavailable  = errors.New("note already spent or pending")
	ErrDiscontinuous    = errors.New("blocks do not continue the chain state")
)

// PruningDepth is how many blocks of metadata are retained below the most
// recently scanned block. Every anchor TargetAndAnchorHeights can pick for
// an accepted confirmation depth stays within it.
const PruningDepth = config.MaxMinConfirmations

// Table prefixes.
var (
	prefixAccounts = []byte("a/") // a/<id BE> -> Account JSON
	prefixNotes    = []byte("n/") // n/<pool><nullifier> -> noteRecord JSON
	prefixScanned  = []byte("s/") // s/<start BE> -> <end BE>
	prefixBlocks   = []byte("b/") // b/<height BE> -> blockRecord JSON
	prefixTxs      = []byte("t/") // t/<txid> -> TransactionRecord JSON
	prefixMeta     = []byte("m/") // m/tip -> height BE
	prefixVault    = []byte("v/") // v/<id BE> -> sealed phrase
)

var keyTip = []byte("tip")

// Store implements the wallet store on a storage.DB.
type Store struct {
	db       storage.DB
	accounts *storage.PrefixDB
	notes    *storage.PrefixDB
	scanned  *storage.PrefixDB
	blocks   *storage.PrefixDB
	txs      *storage.PrefixDB
	meta     *storage.PrefixDB
	vault    *storage.PrefixDB
}

// New creates a wallet store backed by db.
func New(db storage.DB) *Store {
	return &Store{
		db:       db,
		accounts: storage.NewPrefixDB(db, prefixAccounts),
		notes:    storage.NewPrefixDB(db, prefixNotes),
		scanned:  storage.NewPrefixDB(db, prefixScanned),
		blocks:   storage.NewPrefixDB(db, prefixBlocks),
		txs:      storage.NewPrefixDB(db, prefixTxs),
		meta:     storage.NewPrefixDB(db, prefixMeta),
		vault:    storage.NewPrefixDB(db, prefixVault),
	}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpdateChainTip records the latest height reported by the network.
func (s *Store) UpdateChainTip(height types.BlockHeight) error {
	if err := s.meta.Put(keyTip, heightKey(height)); err != nil {
		return fmt.Errorf("put chain tip: %w", err)
	}
	return nil
}

// ChainHeight returns the last recorded chain tip.
func (s *Store) ChainHeight() (types.BlockHeight, error) {
	data, err := s.meta.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrNoChainTip
	}
	if err != nil {
		return 0, fmt.Errorf("get chain tip: %w", err)
	}
	if len(data) != 4 {
		return 0, fmt.Errorf("chain tip record has %d bytes", len(data))
	}
	return types.BlockHeight(binary.BigEndian.Uint32(data)), nil
}

func heightKey(h types.BlockHeight) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(h))
}

func accountKey(id types.AccountID) []byte {
	return binary.BigEndian.AppendUint32(nil, uint32(id))
}

func noteKey(pool types.Pool, nf types.Hash) []byte {
	key := make([]byte, 1+types.HashSize)
	key[0] = byte(pool)
	copy(key[1:], nf[:])
	return key
}

func getJSON(db storage.DB, key []byte, v any) error {
	data, err := db.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func putJSON(b storage.Batch, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put(key, data)
}

// newBatch starts one atomic batch over the whole store. Table writes go
// through table.Prefix(batch).
func (s *Store) newBatch() storage.Batch {
	return storage.NewBatch(s.db)
}
