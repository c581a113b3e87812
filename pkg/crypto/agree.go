package crypto

import (
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
)

// KeySize is the length of X25519 scalars, points and symmetric keys.
const KeySize = 32

// AEADOverhead is the tag length added by Seal.
const AEADOverhead = chacha20poly1305.Overhead

// ScalarBaseMult returns the X25519 public point for scalar.
func ScalarBaseMult(scalar [KeySize]byte) ([KeySize]byte, error) {
	return SharedSecret(scalar, basepoint())
}

// SharedSecret performs X25519 key agreement. Low-order points are
// rejected.
func SharedSecret(scalar, point [KeySize]byte) ([KeySize]byte, error) {
	var out [KeySize]byte
	s, err := curve25519.X25519(scalar[:], point[:])
	if err != nil {
		return out, fmt.Errorf("x25519: %w", err)
	}
	copy(out[:], s)
	return out, nil
}

// RandomScalar reads a fresh X25519 scalar from r.
func RandomScalar(r io.Reader) ([KeySize]byte, error) {
	var s [KeySize]byte
	if _, err := io.ReadFull(r, s[:]); err != nil {
		return s, fmt.Errorf("read randomness: %w", err)
	}
	return s, nil
}

// Seal encrypts plaintext with ChaCha20-Poly1305. Every key is used for a
// single message, so the nonce is fixed at zero.
func Seal(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Open decrypts and authenticates a ciphertext produced by Seal.
func Open(key [KeySize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	var nonce [chacha20poly1305.NonceSize]byte
	return aead.Open(nil, nonce[:], ciphertext, nil)
}

func basepoint() [KeySize]byte {
	var b [KeySize]byte
	copy(b[:], curve25519.Basepoint)
	return b
}
