package note

import (
	"encoding/binary"
	"io"

	"github.com/Lykhoyda/WebZjs/pkg/crypto"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

const (
	domainNoteKey     = "webz 2024 note encryption key"
	domainOutgoingKey = "webz 2024 outgoing cipher key"
)

// Sizes of the encrypted note fields.
const (
	PlaintextSize     = 8 + 32
	CiphertextSize    = PlaintextSize + crypto.AEADOverhead
	OutPlaintextSize  = types.AddressKeySize + crypto.KeySize
	OutCiphertextSize = OutPlaintextSize + crypto.AEADOverhead
)

// EncryptedNote is the on-chain form of an output.
type EncryptedNote struct {
	Commitment   types.Hash
	EphemeralKey [crypto.KeySize]byte
	// Ciphertext is readable by the recipient's incoming viewing key.
	Ciphertext []byte
	// OutCiphertext is readable by the sender's outgoing viewing key.
	OutCiphertext []byte
}

// Encrypt encrypts n to its recipient and records the ephemeral secret
// under ovk so the sender can recover what was sent.
func Encrypt(n Note, ovk [32]byte, r io.Reader) (*EncryptedNote, error) {
	esk, err := crypto.RandomScalar(r)
	if err != nil {
		return nil, err
	}
	epk, err := crypto.ScalarBaseMult(esk)
	if err != nil {
		return nil, err
	}
	shared, err := crypto.SharedSecret(esk, n.Recipient.Key)
	if err != nil {
		return nil, err
	}

	ct, err := crypto.Seal(noteKey(shared, epk), marshalPlaintext(&n))
	if err != nil {
		return nil, err
	}

	cm := n.Commitment()
	out := make([]byte, 0, OutPlaintextSize)
	out = append(out, n.Recipient.Key[:]...)
	out = append(out, esk[:]...)
	outCt, err := crypto.Seal(outgoingKey(ovk, cm, epk), out)
	if err != nil {
		return nil, err
	}

	return &EncryptedNote{
		Commitment:    cm,
		EphemeralKey:  epk,
		Ciphertext:    ct,
		OutCiphertext: outCt,
	}, nil
}

// TryDecrypt attempts to decrypt an output with an incoming viewing key.
// It reports false for outputs addressed to anyone else, and for
// ciphertexts whose plaintext does not open the commitment cm.
func TryDecrypt(ivk [32]byte, pool types.Pool, cm types.Hash, epk [32]byte, ciphertext []byte) (*Note, bool) {
	if len(ciphertext) != CiphertextSize {
		return nil, false
	}
	shared, err := crypto.SharedSecret(ivk, epk)
	if err != nil {
		return nil, false
	}
	pt, err := crypto.Open(noteKey(shared, epk), ciphertext)
	if err != nil {
		return nil, false
	}
	pk, err := crypto.ScalarBaseMult(ivk)
	if err != nil {
		return nil, false
	}
	n := unmarshalPlaintext(pt, types.Address{Pool: pool, Key: pk})
	if n.Commitment() != cm {
		return nil, false
	}
	return n, true
}

// RecoverOutgoing decrypts an output the holder of ovk sent.
func RecoverOutgoing(ovk [32]byte, pool types.Pool, enc *EncryptedNote) (*Note, bool) {
	if len(enc.OutCiphertext) != OutCiphertextSize || len(enc.Ciphertext) != CiphertextSize {
		return nil, false
	}
	out, err := crypto.Open(outgoingKey(ovk, enc.Commitment, enc.EphemeralKey), enc.OutCiphertext)
	if err != nil {
		return nil, false
	}
	var pk, esk [32]byte
	copy(pk[:], out[:types.AddressKeySize])
	copy(esk[:], out[types.AddressKeySize:])

	shared, err := crypto.SharedSecret(esk, pk)
	if err != nil {
		return nil, false
	}
	pt, err := crypto.Open(noteKey(shared, enc.EphemeralKey), enc.Ciphertext)
	if err != nil {
		return nil, false
	}
	n := unmarshalPlaintext(pt, types.Address{Pool: pool, Key: pk})
	if n.Commitment() != enc.Commitment {
		return nil, false
	}
	return n, true
}

func noteKey(shared, epk [32]byte) [32]byte {
	return crypto.DomainHash(domainNoteKey, shared[:], epk[:])
}

func outgoingKey(ovk [32]byte, cm types.Hash, epk [32]byte) [32]byte {
	return crypto.DomainHash(domainOutgoingKey, ovk[:], cm[:], epk[:])
}

func marshalPlaintext(n *Note) []byte {
	buf := make([]byte, PlaintextSize)
	binary.LittleEndian.PutUint64(buf[:8], n.Value)
	copy(buf[8:], n.Rseed[:])
	return buf
}

func unmarshalPlaintext(pt []byte, recipient types.Address) *Note {
	n := &Note{Recipient: recipient, Value: binary.LittleEndian.Uint64(pt[:8])}
	copy(n.Rseed[:], pt[8:])
	return n
}
