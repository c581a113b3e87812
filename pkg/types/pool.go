package types

import "fmt"

// Pool identifies a shielded value pool.
type Pool uint8

const (
	// PoolSapling is the older shielded pool.
	PoolSapling Pool = 1
	// PoolOrchard is the newer shielded pool and receives all change.
	PoolOrchard Pool = 2
)

// ShieldedPools lists every pool the wallet scans, in scan order.
var ShieldedPools = []Pool{PoolSapling, PoolOrchard}

// Valid reports whether p is a known pool.
func (p Pool) Valid() bool {
	return p == PoolSapling || p == PoolOrchard
}

// String returns the lowercase pool name.
func (p Pool) String() string {
	switch p {
	case PoolSapling:
		return "sapling"
	case PoolOrchard:
		return "orchard"
	default:
		return fmt.Sprintf("pool(%d)", uint8(p))
	}
}

// ParsePool parses a pool name as printed by String.
func ParsePool(s string) (Pool, error) {
	switch s {
	case "sapling":
		return PoolSapling, nil
	case "orchard":
		return PoolOrchard, nil
	default:
		return 0, fmt.Errorf("unknown pool %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Pool) MarshalText() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("invalid pool %d", uint8(p))
	}
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Pool) UnmarshalText(b []byte) error {
	v, err := ParsePool(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}
