package config

import (
	"fmt"
	"net/url"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	if _, err := ParamsFor(cfg.Network); err != nil {
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}

	if cfg.Lightwalletd.URL == "" {
		return fmt.Errorf("lightwalletd.url is required")
	}
	u, err := url.Parse(cfg.Lightwalletd.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("lightwalletd.url must be an http(s) URL, got %q", cfg.Lightwalletd.URL)
	}
	if cfg.Lightwalletd.Timeout < 0 {
		return fmt.Errorf("lightwalletd.timeout must not be negative")
	}
	if cfg.Lightwalletd.RequestsPerSecond < 0 {
		return fmt.Errorf("lightwalletd.rps must not be negative")
	}

	if cfg.Sync.BatchSize == 0 {
		return fmt.Errorf("sync.batchsize must be positive")
	}
	if cfg.Sync.MinConfirmations == 0 {
		return fmt.Errorf("sync.minconf must be positive")
	}
	if cfg.Sync.MinConfirmations > MaxMinConfirmations {
		return fmt.Errorf("sync.minconf must be at most %d, got %d", MaxMinConfirmations, cfg.Sync.MinConfirmations)
	}

	switch cfg.Wallet.Backend {
	case "badger", "memory":
	default:
		return fmt.Errorf("wallet.db must be badger or memory, got %q", cfg.Wallet.Backend)
	}

	switch cfg.Log.Level {
	case "", "trace", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q is not a known level", cfg.Log.Level)
	}
	return nil
}
