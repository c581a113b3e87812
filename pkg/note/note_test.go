package note

import (
	"crypto/rand"
	"testing"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// testRecipient returns an incoming viewing key and the address it
// controls.
func testRecipient(t *testing.T, pool types.Pool) ([32]byte, types.Address) {
	t.Helper()
	ivk, err := crypto.RandomScalar(rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	pk, err := crypto.ScalarBaseMult(ivk)
	if err != nil {
		t.Fatal(err)
	}
	return ivk, types.Address{Pool: pool, Key: pk}
}

func TestCommitment_BindsFields(t *testing.T) {
	_, addr := testRecipient(t, types.PoolOrchard)
	n, err := New(addr, 1000, rand.Reader)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	cm := n.Commitment()

	other := n
	other.Value = 1001
	if other.Commitment() == cm {
		t.Error("commitment ignores value")
	}
	other = n
	other.Recipient.Pool = types.PoolSapling
	if other.Commitment() == cm {
		t.Error("commitment ignores pool")
	}
	other = n
	other.Rseed[0] ^= 1
	if other.Commitment() == cm {
		t.Error("commitment ignores rseed")
	}
}

func TestNullifier_DependsOnPosition(t *testing.T) {
	nk := crypto.Hash([]byte("nk"))
	cm := crypto.Hash([]byte("cm"))
	if Nullifier(nk, cm, 1) == Nullifier(nk, cm, 2) {
		t.Error("nullifier ignores position")
	}
	if Nullifier(nk, cm, 1) != Nullifier(nk, cm, 1) {
		t.Error("nullifier is not deterministic")
	}
}

func TestNew_InvalidPool(t *testing.T) {
	if _, err := New(types.Address{}, 1, rand.Reader); err == nil {
		t.Error("expected error for address without pool")
	}
}

func TestEncrypt_TryDecrypt(t *testing.T) {
	ivk, addr := testRecipient(t, types.PoolSapling)
	ovk := crypto.Hash([]byte("ovk"))

	n, err := New(addr, 5000, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	enc, err := Encrypt(n, ovk, rand.Reader)
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if len(enc.Ciphertext) != CiphertextSize {
		t.Errorf("ciphertext size = %d, want %d", len(enc.Ciphertext), CiphertextSize)
	}
	if len(enc.OutCiphertext) != OutCiphertextSize {
		t.Errorf("out ciphertext size = %d, want %d", len(enc.OutCiphertext), OutCiphertextSize)
	}

	got, ok := TryDecrypt(ivk, types.PoolSapling, enc.Commitment, enc.EphemeralKey, enc.Ciphertext)
	if !ok {
		t.Fatal("recipient failed to decrypt")
	}
	if *got != n {
		t.Errorf("decrypted = %+v, want %+v", got, n)
	}

	otherIvk, _ := testRecipient(t, types.PoolSapling)
	if _, ok := TryDecrypt(otherIvk, types.PoolSapling, enc.Commitment, enc.EphemeralKey, enc.Ciphertext); ok {
		t.Error("foreign key decrypted the note")
	}
	if _, ok := TryDecrypt(ivk, types.PoolOrchard, enc.Commitment, enc.EphemeralKey, enc.Ciphertext); ok {
		t.Error("note decrypted under the wrong pool")
	}
	if _, ok := TryDecrypt(ivk, types.PoolSapling, enc.Commitment, enc.EphemeralKey, enc.Ciphertext[:10]); ok {
		t.Error("truncated ciphertext decrypted")
	}
}

func TestRecoverOutgoing(t *testing.T) {
	_, addr := testRecipient(t, types.PoolOrchard)
	ovk := crypto.Hash([]byte("sender ovk"))

	n, _ := New(addr, 42, rand.Reader)
	enc, err := Encrypt(n, ovk, rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	got, ok := RecoverOutgoing(ovk, types.PoolOrchard, enc)
	if !ok {
		t.Fatal("sender failed to recover the output")
	}
	if *got != n {
		t.Errorf("recovered = %+v, want %+v", got, n)
	}

	if _, ok := RecoverOutgoing(crypto.Hash([]byte("other")), types.PoolOrchard, enc); ok {
		t.Error("wrong outgoing key recovered the output")
	}
}
