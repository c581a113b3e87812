package types

import (
	"fmt"
	"strconv"
	"strings"
)

// Coin is the number of zatoshis in one coin.
const Coin uint64 = 100_000_000

// MaxMoney is the largest value any single amount may carry.
const MaxMoney = 21_000_000 * Coin

// ValidateAmount rejects zero and anything above MaxMoney.
func ValidateAmount(v uint64) error {
	if v == 0 {
		return fmt.Errorf("amount must be positive")
	}
	if v > MaxMoney {
		return fmt.Errorf("amount %d exceeds maximum %d", v, MaxMoney)
	}
	return nil
}

// FormatAmount renders zatoshis as a decimal coin string with 8 places.
func FormatAmount(v uint64) string {
	return fmt.Sprintf("%d.%08d", v/Coin, v%Coin)
}

// ParseAmount parses a decimal coin string ("1.5", "0.00001") into
// zatoshis.
func ParseAmount(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	whole, frac, _ := strings.Cut(s, ".")
	if len(frac) > 8 {
		return 0, fmt.Errorf("amount %q has more than 8 decimal places", s)
	}
	w, err := strconv.ParseUint(whole, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	var f uint64
	if frac != "" {
		f, err = strconv.ParseUint(frac+strings.Repeat("0", 8-len(frac)), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid amount %q: %w", s, err)
		}
	}
	if w > MaxMoney/Coin {
		return 0, fmt.Errorf("amount %q exceeds maximum", s)
	}
	return w*Coin + f, nil
}
