package config

import "time"

const (
	// DefaultBatchSize is the number of blocks scanned per persisted batch.
	DefaultBatchSize uint32 = 3000

	// DefaultMinConfirmations is the spendability depth.
	DefaultMinConfirmations uint32 = 1

	// MaxMinConfirmations bounds sync.minconf. Anchors are chosen from the
	// block records the wallet store retains, which reach this far back.
	MaxMinConfirmations = 100

	// DefaultRequestTimeout bounds one chain-source request.
	DefaultRequestTimeout = 30 * time.Second
)

// DefaultMainnet returns the default wallet configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Lightwalletd: LightwalletdConfig{
			URL:               "http://127.0.0.1:9067",
			Timeout:           DefaultRequestTimeout,
			RequestsPerSecond: 20,
		},
		Sync: SyncConfig{
			BatchSize:        DefaultBatchSize,
			MinConfirmations: DefaultMinConfirmations,
		},
		Wallet: WalletConfig{
			Backend: "badger",
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default wallet configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Lightwalletd.URL = "http://127.0.0.1:19067"
	return cfg
}

// DefaultRegtest returns the default wallet configuration for a local
// simulated chain.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.Lightwalletd.URL = "http://127.0.0.1:29067"
	cfg.Lightwalletd.RequestsPerSecond = 0
	cfg.Sync.BatchSize = 100
	return cfg
}

// Default returns the default wallet configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}
