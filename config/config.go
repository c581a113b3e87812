// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Network parameters: fixed per network (activation heights, HRPs)
//   - Wallet settings: runtime configuration, can vary per installation
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the chain the wallet follows.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// Config holds wallet runtime configuration.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Remote chain-data server
	Lightwalletd LightwalletdConfig

	// Scanning and spending policy
	Sync SyncConfig

	// Wallet store
	Wallet WalletConfig

	// Logging
	Log LogConfig
}

// LightwalletdConfig holds the chain-data server connection settings.
type LightwalletdConfig struct {
	URL     string        `conf:"lightwalletd.url"`
	Timeout time.Duration `conf:"lightwalletd.timeout"`
	// RequestsPerSecond paces outgoing calls. Zero disables pacing.
	RequestsPerSecond int `conf:"lightwalletd.rps"`
}

// SyncConfig holds the parameters the sync engine and proposer consume.
type SyncConfig struct {
	// BatchSize is the maximum number of blocks fetched and persisted as
	// one unit.
	BatchSize uint32 `conf:"sync.batchsize"`
	// MinConfirmations is how deep a note must be before it is spendable.
	MinConfirmations uint32 `conf:"sync.minconf"`
}

// WalletConfig holds wallet store settings.
type WalletConfig struct {
	// Backend is "badger" (on disk) or "memory".
	Backend string `conf:"wallet.db"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// Params returns the network parameters for cfg.Network.
func (c *Config) Params() (*Params, error) {
	return ParamsFor(c.Network)
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.webz
//	macOS:   ~/Library/Application Support/WebZ
//	Windows: %APPDATA%\WebZ
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".webz"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "WebZ")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "WebZ")
		}
		return filepath.Join(home, "AppData", "Roaming", "WebZ")
	default:
		return filepath.Join(home, ".webz")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// WalletDBDir returns the wallet database directory.
func (c *Config) WalletDBDir() string {
	return filepath.Join(c.NetworkDataDir(), "wallet")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "webz.conf")
}
