// Package wallet derives shielded account keys from recovery phrases and
// selects notes to fund payments.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

// MnemonicEntropyBits is the entropy size for 24-word recovery phrases.
const MnemonicEntropyBits = 256

// SeedSize is the length of a derived seed in bytes (512 bits).
const SeedSize = 64

// ErrInvalidMnemonic is returned for phrases that fail BIP-39 checks.
var ErrInvalidMnemonic = errors.New("invalid recovery phrase")

// GenerateMnemonic creates a new 24-word BIP-39 recovery phrase.
func GenerateMnemonic() (string, error) {
	entropy, err := bip39.NewEntropy(MnemonicEntropyBits)
	if err != nil {
		return "", fmt.Errorf("generate entropy: %w", err)
	}
	defer clear(entropy)
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("generate mnemonic: %w", err)
	}
	return mnemonic, nil
}

// NormalizeMnemonic collapses whitespace and lowercases the words, so
// phrases pasted with line breaks still validate.
func NormalizeMnemonic(phrase string) string {
	return strings.ToLower(strings.Join(strings.Fields(phrase), " "))
}

// ValidateMnemonic checks word count, word list membership and checksum.
func ValidateMnemonic(phrase string) bool {
	return bip39.IsMnemonicValid(NormalizeMnemonic(phrase))
}

// WithSeed derives the BIP-39 seed for phrase and passes it to fn. The
// seed is wiped when WithSeed returns, whether fn succeeded, failed or
// panicked. fn must not retain the slice.
func WithSeed(phrase, passphrase string, fn func(seed []byte) error) error {
	phrase = NormalizeMnemonic(phrase)
	if !bip39.IsMnemonicValid(phrase) {
		return ErrInvalidMnemonic
	}
	raw, err := bip39.NewSeedWithErrorChecking(phrase, passphrase)
	if err != nil {
		return fmt.Errorf("derive seed: %w", err)
	}
	seed := NewSecret(raw)
	defer seed.Wipe()
	return fn(seed.Bytes())
}
