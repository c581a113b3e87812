// Package prover turns proposal steps into signed shielded transactions.
package prover

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/internal/proposal"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/block"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"github.com/rs/zerolog"
)

// ErrNoteNotInTree is returned when an input is not in the anchor's tree.
var ErrNoteNotInTree = errors.New("note not in anchor tree")

// AnchorSource supplies the tree state spends are proven against.
type AnchorSource interface {
	ChainStateAt(height types.BlockHeight) (*block.ChainState, error)
}

// Output is the sender's record of one output it created.
type Output struct {
	Recipient types.Address
	Value     uint64
	Change    bool
}

// Built is a signed transaction and the outputs it pays.
type Built struct {
	Tx      *tx.Transaction
	Outputs []Output
}

// LocalProver builds transactions in-process.
type LocalProver struct {
	anchors AnchorSource
	rand    io.Reader
	logger  zerolog.Logger
}

// New creates a prover reading anchors from anchors.
func New(anchors AnchorSource) *LocalProver {
	return &LocalProver{anchors: anchors, rand: rand.Reader, logger: klog.Prover}
}

// SetLogger replaces the prover's logger.
func (p *LocalProver) SetLogger(l zerolog.Logger) {
	p.logger = l
}

// Build creates the transaction for step i of prop, spending with sk.
// Payments come first, then change. Every spend is signed with the
// spend-authorizing key of sk.
func (p *LocalProver) Build(prop *proposal.Proposal, i int, sk *wallet.SpendingKey) (*Built, error) {
	if i < 0 || i >= len(prop.Steps) {
		return nil, fmt.Errorf("step %d out of range", i)
	}
	step := &prop.Steps[i]

	anchor, err := p.anchors.ChainStateAt(prop.AnchorHeight)
	if err != nil {
		return nil, fmt.Errorf("anchor at %d: %w", prop.AnchorHeight, err)
	}

	ovk, err := p.outgoingKey(prop.OvkPolicy, sk)
	if err != nil {
		return nil, err
	}

	b := tx.NewBuilder().
		SetFee(step.Fee).
		SetExpiry(prop.ExpiryHeight())

	spendPools := make(map[types.Pool]bool)
	for _, in := range step.Inputs {
		pool := in.Pool()
		if in.Position >= anchor.Frontier(pool).Size {
			return nil, fmt.Errorf("%w: %s position %d, tree size %d at %d",
				ErrNoteNotInTree, pool, in.Position, anchor.Frontier(pool).Size, prop.AnchorHeight)
		}
		b.AddSpend(pool, in.Nullifier)
		spendPools[pool] = true
	}
	for pool := range spendPools {
		b.SetAnchor(pool, anchor.Frontier(pool).Root)
	}

	var outputs []Output
	addOutput := func(to types.Address, value uint64, change bool) error {
		n, err := note.New(to, value, p.rand)
		if err != nil {
			return err
		}
		enc, err := note.Encrypt(n, ovk, p.rand)
		if err != nil {
			return fmt.Errorf("encrypt output: %w", err)
		}
		b.AddOutput(to.Pool, enc)
		outputs = append(outputs, Output{Recipient: to, Value: value, Change: change})
		return nil
	}
	for _, pay := range step.Payments {
		if err := addOutput(pay.Recipient, pay.Amount, false); err != nil {
			return nil, err
		}
	}
	fvk := sk.FullViewingKey()
	for _, c := range step.Change {
		if c.Value == 0 {
			continue
		}
		addr, err := fvk.Address(c.Pool)
		if err != nil {
			return nil, fmt.Errorf("change address: %w", err)
		}
		if err := addOutput(addr, c.Value, true); err != nil {
			return nil, err
		}
	}

	if err := b.Sign(sk.AuthKey()); err != nil {
		return nil, err
	}
	built := b.Build()
	if err := built.Validate(); err != nil {
		return nil, fmt.Errorf("built transaction invalid: %w", err)
	}

	p.logger.Debug().
		Str("txid", built.ID().String()).
		Int("spends", len(built.Spends)).
		Int("outputs", len(built.Outputs)).
		Uint64("fee", built.Fee).
		Msg("Transaction built")
	return &Built{Tx: built, Outputs: outputs}, nil
}

func (p *LocalProver) outgoingKey(policy proposal.OvkPolicy, sk *wallet.SpendingKey) ([32]byte, error) {
	var ovk [32]byte
	switch policy {
	case proposal.OvkSender:
		ovk = sk.FullViewingKey().OVK
	case proposal.OvkDiscard:
		if _, err := io.ReadFull(p.rand, ovk[:]); err != nil {
			return ovk, fmt.Errorf("random ovk: %w", err)
		}
	default:
		return ovk, fmt.Errorf("unknown ovk policy %s", policy)
	}
	return ovk, nil
}
