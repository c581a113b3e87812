package wallet

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// Sealed phrase format: salt(32) | memory(4) | iterations(4) |
// parallelism(1) | nonce(24) | ciphertext.
const (
	SaltSize   = 32
	headerSize = SaltSize + 4 + 4 + 1
)

// ErrWrongPassword is returned when a sealed phrase fails to open.
var ErrWrongPassword = errors.New("wrong password or corrupt vault")

// VaultParams holds Argon2id parameters.
type VaultParams struct {
	Memory      uint32 // in KiB
	Iterations  uint32
	Parallelism uint8
}

// DefaultVaultParams returns recommended Argon2id parameters.
func DefaultVaultParams() VaultParams {
	return VaultParams{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 4,
	}
}

func deriveVaultKey(password, salt []byte, params VaultParams) *Secret {
	return NewSecret(argon2.IDKey(
		password,
		salt,
		params.Iterations,
		params.Memory,
		params.Parallelism,
		chacha20poly1305.KeySize,
	))
}

// SealPhrase encrypts a recovery phrase under password with Argon2id and
// XChaCha20-Poly1305.
func SealPhrase(phrase string, password []byte, params VaultParams) ([]byte, error) {
	if !ValidateMnemonic(phrase) {
		return nil, ErrInvalidMnemonic
	}
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}

	key := deriveVaultKey(password, salt, params)
	defer key.Wipe()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	plaintext := []byte(NormalizeMnemonic(phrase))
	defer clear(plaintext)
	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, headerSize+len(nonce)+len(ciphertext))
	out = append(out, salt...)
	out = binary.LittleEndian.AppendUint32(out, params.Memory)
	out = binary.LittleEndian.AppendUint32(out, params.Iterations)
	out = append(out, params.Parallelism)
	out = append(out, nonce...)
	return append(out, ciphertext...), nil
}

// OpenPhrase decrypts a phrase sealed by SealPhrase.
func OpenPhrase(sealed, password []byte) (string, error) {
	nonceSize := chacha20poly1305.NonceSizeX
	minSize := headerSize + nonceSize + chacha20poly1305.Overhead
	if len(sealed) < minSize {
		return "", fmt.Errorf("sealed phrase too short: %d bytes, need at least %d", len(sealed), minSize)
	}

	salt := sealed[:SaltSize]
	params := VaultParams{
		Memory:      binary.LittleEndian.Uint32(sealed[SaltSize:]),
		Iterations:  binary.LittleEndian.Uint32(sealed[SaltSize+4:]),
		Parallelism: sealed[SaltSize+8],
	}
	nonce := sealed[headerSize : headerSize+nonceSize]
	ciphertext := sealed[headerSize+nonceSize:]

	key := deriveVaultKey(password, salt, params)
	defer key.Wipe()

	aead, err := chacha20poly1305.NewX(key.Bytes())
	if err != nil {
		return "", fmt.Errorf("create cipher: %w", err)
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrWrongPassword
	}
	defer clear(plaintext)
	return string(plaintext), nil
}
