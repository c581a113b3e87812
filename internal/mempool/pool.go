// Package mempool holds shielded transactions waiting for inclusion in a
// simulated block.
package mempool

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Mempool errors.
var (
	ErrAlreadyExists = errors.New("transaction already in mempool")
	ErrConflict      = errors.New("transaction conflicts with existing mempool entry")
	ErrPoolFull      = errors.New("mempool full")
	ErrValidation    = errors.New("transaction failed validation")
	ErrUnknownAnchor = errors.New("anchor is not a known tree root")
	ErrSpent         = errors.New("nullifier already revealed on chain")
	ErrExpired       = errors.New("transaction expired")
)

// ChainView answers the chain-dependent questions asked of a transaction.
type ChainView interface {
	Height() types.BlockHeight
	KnownAnchor(pool types.Pool, root types.Hash) bool
	IsSpent(pool types.Pool, nf types.Hash) bool
}

// spendKey identifies a revealed nullifier.
type spendKey struct {
	pool types.Pool
	nf   types.Hash
}

// entry wraps a transaction with its fee and metadata.
type entry struct {
	tx      *tx.Transaction
	txID    types.Hash
	feeRate float64 // fee per logical action
}

// Pool holds unconfirmed transactions.
type Pool struct {
	mu      sync.RWMutex
	txs     map[types.Hash]*entry
	spends  map[spendKey]types.Hash // conflict index
	maxSize int
	chain   ChainView
	policy  *Policy
}

// New creates a mempool validating against chain and holding at most
// maxSize transactions.
func New(chain ChainView, maxSize int) *Pool {
	if maxSize <= 0 {
		maxSize = 5000
	}
	return &Pool{
		txs:     make(map[types.Hash]*entry),
		spends:  make(map[spendKey]types.Hash),
		maxSize: maxSize,
		chain:   chain,
		policy:  DefaultPolicy(),
	}
}

// SetPolicy replaces the acceptance policy.
func (p *Pool) SetPolicy(policy *Policy) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.policy = policy
}

// Add validates and adds a transaction to the mempool. Rejects duplicates,
// double spends against the pool or the chain, and unknown anchors.
func (p *Pool) Add(transaction *tx.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	txID := transaction.ID()
	if _, exists := p.txs[txID]; exists {
		return ErrAlreadyExists
	}

	if err := p.policy.Check(transaction); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := transaction.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if err := transaction.VerifySignatures(); err != nil {
		return fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if transaction.ExpiryHeight != 0 && transaction.ExpiryHeight <= p.chain.Height() {
		return fmt.Errorf("%w: expiry %d at height %d", ErrExpired, transaction.ExpiryHeight, p.chain.Height())
	}
	for pool, c := range transaction.Actions() {
		if c.Spends == 0 {
			continue
		}
		if root := transaction.Anchor(pool); !p.chain.KnownAnchor(pool, root) {
			return fmt.Errorf("%w: %s %s", ErrUnknownAnchor, pool, root.Short())
		}
	}
	for _, sp := range transaction.Spends {
		if p.chain.IsSpent(sp.Pool, sp.Nullifier) {
			return fmt.Errorf("%w: %s", ErrSpent, sp.Nullifier.Short())
		}
		if other, exists := p.spends[spendKey{sp.Pool, sp.Nullifier}]; exists {
			return fmt.Errorf("%w: nullifier %s already spent by %s", ErrConflict, sp.Nullifier.Short(), other.Short())
		}
	}

	feeRate := float64(transaction.Fee) / float64(max(tx.LogicalActions(transaction.Actions()), 1))

	// Evict the lowest fee-rate entry if the new transaction pays more.
	if len(p.txs) >= p.maxSize {
		lowestID, lowestRate := p.findLowestFeeRate()
		if feeRate <= lowestRate {
			return ErrPoolFull
		}
		p.removeLocked(lowestID)
	}

	p.txs[txID] = &entry{tx: transaction, txID: txID, feeRate: feeRate}
	for _, sp := range transaction.Spends {
		p.spends[spendKey{sp.Pool, sp.Nullifier}] = txID
	}
	return nil
}

// Remove removes a transaction from the mempool by ID.
func (p *Pool) Remove(txID types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.removeLocked(txID)
}

func (p *Pool) removeLocked(txID types.Hash) {
	e, exists := p.txs[txID]
	if !exists {
		return
	}
	for _, sp := range e.tx.Spends {
		delete(p.spends, spendKey{sp.Pool, sp.Nullifier})
	}
	delete(p.txs, txID)
}

// RemoveConfirmed removes all transactions that were included in a block.
func (p *Pool) RemoveConfirmed(transactions []*tx.Transaction) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, t := range transactions {
		p.removeLocked(t.ID())
	}
}

// RemoveExpired drops transactions that can no longer be mined above
// height and returns how many were removed.
func (p *Pool) RemoveExpired(height types.BlockHeight) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for id, e := range p.txs {
		if e.tx.ExpiryHeight != 0 && e.tx.ExpiryHeight <= height {
			p.removeLocked(id)
			n++
		}
	}
	return n
}

// Has checks if a transaction exists in the mempool.
func (p *Pool) Has(txID types.Hash) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, exists := p.txs[txID]
	return exists
}

// Get retrieves a transaction from the mempool.
func (p *Pool) Get(txID types.Hash) *tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, exists := p.txs[txID]
	if !exists {
		return nil
	}
	return e.tx
}

// Count returns the number of transactions in the mempool.
func (p *Pool) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.txs)
}

// IDs returns the IDs of all transactions in the mempool.
func (p *Pool) IDs() []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ids := make([]types.Hash, 0, len(p.txs))
	for id := range p.txs {
		ids = append(ids, id)
	}
	return ids
}

// findLowestFeeRate returns the ID and fee rate of the lowest fee-rate
// entry. Must be called with p.mu held.
func (p *Pool) findLowestFeeRate() (types.Hash, float64) {
	var lowestID types.Hash
	lowestRate := math.MaxFloat64
	for id, e := range p.txs {
		if e.feeRate < lowestRate {
			lowestRate = e.feeRate
			lowestID = id
		}
	}
	return lowestID, lowestRate
}

// SelectForBlock returns up to limit transactions ordered by fee rate,
// highest first.
func (p *Pool) SelectForBlock(limit int) []*tx.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	entries := make([]*entry, 0, len(p.txs))
	for _, e := range p.txs {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].feeRate > entries[j].feeRate
	})

	limit = min(limit, len(entries))
	result := make([]*tx.Transaction, limit)
	for i := range limit {
		result[i] = entries[i].tx
	}
	return result
}
