package config

import (
	"fmt"

	"github.com/Lykhoyda/WebZjs/pkg/types"
)

// Params are the fixed per-network constants the wallet needs: key
// derivation coin type, shielded activation heights and the
// human-readable prefixes of every encoding.
type Params struct {
	Name NetworkType

	// CoinType is the hardened coin-type level of account key paths.
	CoinType uint32

	SaplingActivationHeight types.BlockHeight
	OrchardActivationHeight types.BlockHeight

	SaplingAddressHRP string
	UnifiedAddressHRP string
	ViewingKeyHRP     string
}

var (
	mainnetParams = Params{
		Name:                    Mainnet,
		CoinType:                133,
		SaplingActivationHeight: 419_200,
		OrchardActivationHeight: 1_687_104,
		SaplingAddressHRP:       "zs",
		UnifiedAddressHRP:       "u",
		ViewingKeyHRP:           "uview",
	}
	testnetParams = Params{
		Name:                    Testnet,
		CoinType:                1,
		SaplingActivationHeight: 280_000,
		OrchardActivationHeight: 1_842_420,
		SaplingAddressHRP:       "ztestsapling",
		UnifiedAddressHRP:       "utest",
		ViewingKeyHRP:           "uviewtest",
	}
	regtestParams = Params{
		Name:                    Regtest,
		CoinType:                1,
		SaplingActivationHeight: 1,
		OrchardActivationHeight: 1,
		SaplingAddressHRP:       "zregtestsapling",
		UnifiedAddressHRP:       "uregtest",
		ViewingKeyHRP:           "uviewregtest",
	}
)

// ParamsFor returns a copy of the parameters for network.
func ParamsFor(network NetworkType) (*Params, error) {
	var p Params
	switch network {
	case Mainnet:
		p = mainnetParams
	case Testnet:
		p = testnetParams
	case Regtest:
		p = regtestParams
	default:
		return nil, fmt.Errorf("unknown network %q", network)
	}
	return &p, nil
}

// RegtestParams returns the regtest parameters. Both pools are active from
// height 1, which keeps simulated chains short.
func RegtestParams() *Params {
	p := regtestParams
	return &p
}

// ActivationHeight returns the first height at which pool may carry notes.
func (p *Params) ActivationHeight(pool types.Pool) types.BlockHeight {
	if pool == types.PoolOrchard {
		return p.OrchardActivationHeight
	}
	return p.SaplingActivationHeight
}

// AddressHRP returns the address prefix for pool.
func (p *Params) AddressHRP(pool types.Pool) string {
	if pool == types.PoolOrchard {
		return p.UnifiedAddressHRP
	}
	return p.SaplingAddressHRP
}

// EncodeAddress renders addr for this network.
func (p *Params) EncodeAddress(addr types.Address) (string, error) {
	return addr.Encode(p.AddressHRP(addr.Pool))
}

// DecodeAddress parses an address string and checks that it belongs to
// this network. The prefix selects the receiving pool.
func (p *Params) DecodeAddress(s string) (types.Address, error) {
	hrp, data, enc, err := types.DecodeBech32(s)
	if err != nil {
		return types.Address{}, fmt.Errorf("invalid address: %w", err)
	}
	var pool types.Pool
	switch hrp {
	case p.SaplingAddressHRP:
		pool = types.PoolSapling
	case p.UnifiedAddressHRP:
		pool = types.PoolOrchard
	default:
		return types.Address{}, fmt.Errorf("address prefix %q is not valid on %s", hrp, p.Name)
	}
	return types.DecodeAddressPayload(pool, enc, data)
}
