package block

import (
	"errors"
	"testing"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/note"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

func makeBlock(height types.BlockHeight, txs ...*CompactTx) *CompactBlock {
	b := &CompactBlock{
		Height:   height,
		PrevHash: crypto.Hash([]byte{byte(height - 1)}),
		Time:     1_700_000_000,
		Txs:      txs,
	}
	b.Metadata = ChainMetadata{
		SaplingTreeSize: b.OutputCount(types.PoolSapling),
		OrchardTreeSize: b.OutputCount(types.PoolOrchard),
	}
	b.Hash = b.ComputeHash()
	return b
}

func makeOutput(pool types.Pool, seed byte) CompactOutput {
	return CompactOutput{
		Pool:       pool,
		Commitment: crypto.Hash([]byte{seed}),
		Ciphertext: make([]byte, note.CiphertextSize),
	}
}

func TestValidate_OK(t *testing.T) {
	b := makeBlock(10,
		&CompactTx{Index: 0, TxID: crypto.Hash([]byte("a")), Outputs: []CompactOutput{makeOutput(types.PoolSapling, 1)}},
		&CompactTx{Index: 3, TxID: crypto.Hash([]byte("b")),
			Spends:  []CompactSpend{{Pool: types.PoolOrchard, Nullifier: crypto.Hash([]byte("nf"))}},
			Outputs: []CompactOutput{makeOutput(types.PoolOrchard, 2)}},
	)
	if err := b.Validate(); err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
}

func TestValidate_Errors(t *testing.T) {
	nf := crypto.Hash([]byte("nf"))
	tests := []struct {
		name  string
		block func() *CompactBlock
		want  error
	}{
		{"nil", func() *CompactBlock { return nil }, ErrNilBlock},
		{"bad hash", func() *CompactBlock {
			b := makeBlock(5)
			b.Hash[0] ^= 1
			return b
		}, ErrBadHash},
		{"tx order", func() *CompactBlock {
			return makeBlock(5, &CompactTx{Index: 2}, &CompactTx{Index: 2})
		}, ErrBadTxOrder},
		{"bad pool", func() *CompactBlock {
			return makeBlock(5, &CompactTx{Outputs: []CompactOutput{makeOutput(7, 1)}})
		}, ErrBadPool},
		{"short ciphertext", func() *CompactBlock {
			out := makeOutput(types.PoolSapling, 1)
			out.Ciphertext = out.Ciphertext[:5]
			return makeBlock(5, &CompactTx{Outputs: []CompactOutput{out}})
		}, ErrBadCiphertext},
		{"duplicate nullifier", func() *CompactBlock {
			return makeBlock(5,
				&CompactTx{Index: 0, Spends: []CompactSpend{{Pool: types.PoolSapling, Nullifier: nf}}},
				&CompactTx{Index: 1, Spends: []CompactSpend{{Pool: types.PoolSapling, Nullifier: nf}}},
			)
		}, ErrDuplicateNullifier},
		{"tree size", func() *CompactBlock {
			b := makeBlock(5, &CompactTx{Outputs: []CompactOutput{makeOutput(types.PoolOrchard, 1)}})
			b.Metadata.OrchardTreeSize = 0
			return b
		}, ErrTreeSize},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.block().Validate()
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestFrontier_Append(t *testing.T) {
	var f Frontier
	if f.Encode() != "" {
		t.Error("empty frontier should encode as empty string")
	}

	a := crypto.Hash([]byte("a"))
	b := crypto.Hash([]byte("b"))
	if pos := f.Append(a); pos != 0 {
		t.Errorf("first position = %d, want 0", pos)
	}
	if pos := f.Append(b); pos != 1 {
		t.Errorf("second position = %d, want 1", pos)
	}

	var g Frontier
	g.Append(b)
	g.Append(a)
	if f.Root == g.Root {
		t.Error("frontier root ignores commitment order")
	}

	decoded, err := DecodeFrontier(f.Encode())
	if err != nil {
		t.Fatalf("DecodeFrontier: %v", err)
	}
	if decoded != f {
		t.Errorf("decoded = %+v, want %+v", decoded, f)
	}
}

func TestTreeState_ChainState(t *testing.T) {
	cs := &ChainState{Height: 399, BlockHash: crypto.Hash([]byte("399"))}
	cs.Orchard.Append(crypto.Hash([]byte("cm")))

	got, err := NewTreeState("regtest", cs, 1).ChainState()
	if err != nil {
		t.Fatalf("ChainState: %v", err)
	}
	if *got != *cs {
		t.Errorf("ChainState = %+v, want %+v", got, cs)
	}
}

func TestTreeState_Malformed(t *testing.T) {
	good := NewTreeState("regtest", &ChainState{Height: 1, BlockHash: crypto.Hash(nil)}, 1)
	tests := []struct {
		name   string
		mutate func(*TreeState)
	}{
		{"bad hash", func(ts *TreeState) { ts.Hash = "zz" }},
		{"odd hex tree", func(ts *TreeState) { ts.SaplingTree = "abc" }},
		{"short tree", func(ts *TreeState) { ts.OrchardTree = "0011" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := *good
			tt.mutate(&ts)
			if _, err := ts.ChainState(); !errors.Is(err, ErrMalformedTree) {
				t.Errorf("ChainState() error = %v, want ErrMalformedTree", err)
			}
		})
	}
}
