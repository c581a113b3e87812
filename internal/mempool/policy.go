package mempool

import (
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/tx"
)

// DefaultMaxTxSize is the maximum serialized transaction size in bytes.
const DefaultMaxTxSize = 100_000

// Policy defines transaction acceptance rules.
type Policy struct {
	MaxTxSize int // Maximum serialized size.
}

// DefaultPolicy returns a policy with sensible defaults.
func DefaultPolicy() *Policy {
	return &Policy{
		MaxTxSize: DefaultMaxTxSize,
	}
}

// Check validates a transaction against policy rules. Policy can vary per
// server; consensus validation happens separately.
func (p *Policy) Check(transaction *tx.Transaction) error {
	size := len(transaction.Serialize())
	if p.MaxTxSize > 0 && size > p.MaxTxSize {
		return fmt.Errorf("transaction too large: %d bytes, max %d", size, p.MaxTxSize)
	}
	if n := len(transaction.Spends) + len(transaction.Outputs); n > tx.MaxActions {
		return fmt.Errorf("too many actions: %d, max %d", n, tx.MaxActions)
	}
	return nil
}
