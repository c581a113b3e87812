// Package proposal describes planned spends: the notes to consume, the
// payments to make, change and fee, before anything is built or signed.
package proposal

import (
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// ErrUnbalanced is returned when a step's inputs do not equal its
// payments, change and fee.
var ErrUnbalanced = errors.New("proposal step does not balance")

// OvkPolicy selects who can recover outgoing notes.
type OvkPolicy uint8

const (
	// OvkSender encrypts outgoing records to the sender's outgoing
	// viewing key.
	OvkSender OvkPolicy = iota
	// OvkDiscard makes outgoing records unrecoverable.
	OvkDiscard
)

// String returns the policy name.
func (p OvkPolicy) String() string {
	switch p {
	case OvkSender:
		return "sender"
	case OvkDiscard:
		return "discard"
	default:
		return fmt.Sprintf("ovk(%d)", uint8(p))
	}
}

// Payment is one requested output.
type Payment struct {
	Recipient types.Address `json:"recipient"`
	Amount    uint64        `json:"amount"`
}

// Change is an output returning value to the proposing account.
type Change struct {
	Pool  types.Pool `json:"pool"`
	Value uint64     `json:"value"`
}

// Step is the plan for one transaction.
type Step struct {
	Inputs   []wallet.SpendableNote `json:"inputs"`
	Payments []Payment              `json:"payments"`
	Change   []Change               `json:"change,omitempty"`
	Fee      uint64                 `json:"fee"`
}

// InputTotal sums the values of the step's inputs.
func (s *Step) InputTotal() uint64 {
	var total uint64
	for _, n := range s.Inputs {
		total += n.Value()
	}
	return total
}

// PaymentTotal sums the step's payments.
func (s *Step) PaymentTotal() uint64 {
	var total uint64
	for _, p := range s.Payments {
		total += p.Amount
	}
	return total
}

// ChangeTotal sums the step's change outputs.
func (s *Step) ChangeTotal() uint64 {
	var total uint64
	for _, c := range s.Change {
		total += c.Value
	}
	return total
}

// Balanced reports whether inputs == payments + change + fee.
func (s *Step) Balanced() bool {
	return s.InputTotal() == s.PaymentTotal()+s.ChangeTotal()+s.Fee
}

// Proposal is an immutable plan for one or more transactions from a
// single account.
type Proposal struct {
	Account      types.AccountID   `json:"account"`
	FeeRule      tx.FeeRule        `json:"feeRule"`
	TargetHeight types.BlockHeight `json:"targetHeight"`
	AnchorHeight types.BlockHeight `json:"anchorHeight"`
	OvkPolicy    OvkPolicy         `json:"ovkPolicy"`
	Steps        []Step            `json:"steps"`
}

// New checks that every step balances and that the anchor precedes the
// target height.
func New(account types.AccountID, rule tx.FeeRule, target, anchor types.BlockHeight, steps []Step) (*Proposal, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("proposal has no steps")
	}
	if anchor >= target {
		return nil, fmt.Errorf("anchor height %d not below target %d", anchor, target)
	}
	for i := range steps {
		if !steps[i].Balanced() {
			return nil, fmt.Errorf("step %d: %w: inputs %d, payments %d, change %d, fee %d", i, ErrUnbalanced,
				steps[i].InputTotal(), steps[i].PaymentTotal(), steps[i].ChangeTotal(), steps[i].Fee)
		}
		for _, n := range steps[i].Inputs {
			if n.Height > anchor {
				return nil, fmt.Errorf("step %d: note at height %d above anchor %d", i, n.Height, anchor)
			}
		}
	}
	return &Proposal{
		Account:      account,
		FeeRule:      rule,
		TargetHeight: target,
		AnchorHeight: anchor,
		OvkPolicy:    OvkSender,
		Steps:        steps,
	}, nil
}

// TotalFee sums the fees of every step.
func (p *Proposal) TotalFee() uint64 {
	var total uint64
	for i := range p.Steps {
		total += p.Steps[i].Fee
	}
	return total
}

// ExpiryDelta is how many blocks past the target height a built
// transaction stays valid.
const ExpiryDelta = 40

// ExpiryHeight returns the expiry for transactions built from p.
func (p *Proposal) ExpiryHeight() types.BlockHeight {
	return p.TargetHeight + ExpiryDelta
}
