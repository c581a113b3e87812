package proposal

import (
	"errors"
	"testing"

	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/tx"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

func input(value uint64, height types.BlockHeight) wallet.SpendableNote {
	return wallet.SpendableNote{
		Height: height,
		Note:   note.Note{Recipient: types.Address{Pool: types.PoolOrchard}, Value: value},
	}
}

func TestNew(t *testing.T) {
	step := Step{
		Inputs:   []wallet.SpendableNote{input(20_000, 90)},
		Payments: []Payment{{Recipient: types.Address{Pool: types.PoolSapling}, Amount: 1000}},
		Change:   []Change{{Pool: types.PoolOrchard, Value: 9000}},
		Fee:      10_000,
	}
	p, err := New(3, tx.StandardFeeRule(), 101, 100, []Step{step})
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if p.OvkPolicy != OvkSender {
		t.Errorf("OvkPolicy = %s, want sender", p.OvkPolicy)
	}
	if p.TotalFee() != 10_000 {
		t.Errorf("TotalFee() = %d, want 10000", p.TotalFee())
	}
	if p.ExpiryHeight() != 141 {
		t.Errorf("ExpiryHeight() = %d, want 141", p.ExpiryHeight())
	}
}

func TestNew_Rejects(t *testing.T) {
	balanced := Step{
		Inputs:   []wallet.SpendableNote{input(11_000, 90)},
		Payments: []Payment{{Amount: 1000}},
		Fee:      10_000,
	}
	rule := tx.StandardFeeRule()

	if _, err := New(0, rule, 101, 100, nil); err == nil {
		t.Error("expected error for no steps")
	}
	if _, err := New(0, rule, 100, 100, []Step{balanced}); err == nil {
		t.Error("expected error for anchor at target")
	}

	unbalanced := balanced
	unbalanced.Fee = 9000
	if _, err := New(0, rule, 101, 100, []Step{unbalanced}); !errors.Is(err, ErrUnbalanced) {
		t.Errorf("unbalanced error = %v, want ErrUnbalanced", err)
	}

	young := balanced
	young.Inputs = []wallet.SpendableNote{input(11_000, 101)}
	if _, err := New(0, rule, 102, 100, []Step{young}); err == nil {
		t.Error("expected error for note above anchor")
	}
}
