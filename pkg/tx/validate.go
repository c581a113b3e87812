package tx

import (
	"errors"
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// MaxActions bounds the spends or outputs in one transaction.
const MaxActions = 1000

// Validation errors.
var (
	ErrNoOutputs          = errors.New("transaction has no outputs")
	ErrTooManyActions     = errors.New("transaction has too many actions")
	ErrBadVersion         = errors.New("unsupported transaction version")
	ErrBadPool            = errors.New("invalid pool")
	ErrDuplicateNullifier = errors.New("duplicate nullifier")
	ErrBadCiphertext      = errors.New("malformed note ciphertext")
	ErrMissingAnchor      = errors.New("spend without anchor")
	ErrFeeTooLow          = errors.New("fee below conventional minimum")
	ErrMissingSignature   = errors.New("spend is not signed")
	ErrBadSignature       = errors.New("invalid spend signature")
)

// Validate performs structural checks that need no chain state.
func (tx *Transaction) Validate() error {
	if tx.Version != CurrentVersion {
		return fmt.Errorf("%w: %d", ErrBadVersion, tx.Version)
	}
	if len(tx.Outputs) == 0 {
		return ErrNoOutputs
	}
	if len(tx.Spends) > MaxActions || len(tx.Outputs) > MaxActions {
		return ErrTooManyActions
	}

	seen := make(map[types.Hash]struct{}, len(tx.Spends))
	for i, sp := range tx.Spends {
		if !sp.Pool.Valid() {
			return fmt.Errorf("spend %d: %w", i, ErrBadPool)
		}
		if tx.Anchor(sp.Pool).IsZero() {
			return fmt.Errorf("spend %d: %w", i, ErrMissingAnchor)
		}
		if _, dup := seen[sp.Nullifier]; dup {
			return fmt.Errorf("spend %d: %w: %s", i, ErrDuplicateNullifier, sp.Nullifier.Short())
		}
		seen[sp.Nullifier] = struct{}{}
	}

	for i, out := range tx.Outputs {
		if !out.Pool.Valid() {
			return fmt.Errorf("output %d: %w", i, ErrBadPool)
		}
		if len(out.Ciphertext) != note.CiphertextSize || len(out.OutCiphertext) != note.OutCiphertextSize {
			return fmt.Errorf("output %d: %w", i, ErrBadCiphertext)
		}
	}

	if required := RequiredFee(tx, StandardFeeRule()); tx.Fee < required {
		return fmt.Errorf("%w: %d < %d", ErrFeeTooLow, tx.Fee, required)
	}
	return nil
}

// VerifySignatures checks every spend's signature over the transaction ID.
func (tx *Transaction) VerifySignatures() error {
	id := tx.ID()
	for i, sp := range tx.Spends {
		if len(sp.AuthKey) == 0 || len(sp.Signature) == 0 {
			return fmt.Errorf("spend %d: %w", i, ErrMissingSignature)
		}
		if err := crypto.ValidatePublicKey(sp.AuthKey); err != nil {
			return fmt.Errorf("spend %d: %w", i, err)
		}
		if !crypto.VerifySignature(id[:], sp.Signature, sp.AuthKey) {
			return fmt.Errorf("spend %d: %w", i, ErrBadSignature)
		}
	}
	return nil
}
