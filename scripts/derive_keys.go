// derive_keys.go prints the viewing key and addresses of one account of a
// recovery phrase file, for funding a simulated chain.
// Usage: go run scripts/derive_keys.go <phrasefile> [network] [account]
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: derive_keys <phrasefile> [network] [account]")
		os.Exit(1)
	}
	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fail(err)
	}
	network := config.Regtest
	if len(os.Args) > 2 {
		network = config.NetworkType(os.Args[2])
	}
	var account uint64
	if len(os.Args) > 3 {
		if account, err = strconv.ParseUint(os.Args[3], 10, 32); err != nil {
			fail(err)
		}
	}
	params, err := config.ParamsFor(network)
	if err != nil {
		fail(err)
	}

	phrase := wallet.NormalizeMnemonic(string(data))
	sk, err := wallet.KeyProvider{CoinType: params.CoinType}.DeriveSpendingKey(phrase, uint32(account))
	if err != nil {
		fail(err)
	}
	fvk := sk.FullViewingKey()
	sk.Zero()

	ufvk, err := fvk.Encode(params.ViewingKeyHRP)
	if err != nil {
		fail(err)
	}
	fmt.Printf("UFVK:    %s\n", ufvk)
	for _, pool := range types.ShieldedPools {
		addr, err := fvk.Address(pool)
		if err != nil {
			fail(err)
		}
		s, err := params.EncodeAddress(addr)
		if err != nil {
			fail(err)
		}
		fmt.Printf("%-8s %s\n", pool.String()+":", s)
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
