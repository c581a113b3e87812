package tx

import "github.com/Lykhoyda/WebZjs/pkg/types"

// Standard ZIP-317 parameters.
const (
	MarginalFee  = 5000
	GraceActions = 2
)

// FeeRule computes conventional fees from the number of logical actions.
type FeeRule struct {
	MarginalFee  uint64
	GraceActions uint64
}

// StandardFeeRule returns the ZIP-317 rule used by the network.
func StandardFeeRule() FeeRule {
	return FeeRule{MarginalFee: MarginalFee, GraceActions: GraceActions}
}

// PoolActions counts the spends and outputs a transaction has in a pool.
type PoolActions struct {
	Spends  int
	Outputs int
}

// LogicalActions sums max(spends, outputs) over pools.
func LogicalActions(counts map[types.Pool]PoolActions) uint64 {
	var n uint64
	for _, c := range counts {
		n += uint64(max(c.Spends, c.Outputs))
	}
	return n
}

// Fee returns marginal_fee * max(grace_actions, logical_actions).
func (r FeeRule) Fee(counts map[types.Pool]PoolActions) uint64 {
	return r.MarginalFee * max(r.GraceActions, LogicalActions(counts))
}

// Actions tallies the spends and outputs of a built transaction by pool.
func (tx *Transaction) Actions() map[types.Pool]PoolActions {
	counts := make(map[types.Pool]PoolActions)
	for _, sp := range tx.Spends {
		c := counts[sp.Pool]
		c.Spends++
		counts[sp.Pool] = c
	}
	for _, out := range tx.Outputs {
		c := counts[out.Pool]
		c.Outputs++
		counts[out.Pool] = c
	}
	return counts
}

// RequiredFee returns the fee rule's minimum for a built transaction.
func RequiredFee(transaction *Transaction, rule FeeRule) uint64 {
	return rule.Fee(transaction.Actions())
}
