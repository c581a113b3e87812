package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads wallet configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a wallet config value by key.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Chain-data server
	case "lightwalletd.url", "lightwalletd":
		cfg.Lightwalletd.URL = value
	case "lightwalletd.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Lightwalletd.Timeout = d
	case "lightwalletd.rps":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Lightwalletd.RequestsPerSecond = n

	// Sync
	case "sync.batchsize":
		n, err := parseUint32(value)
		if err != nil {
			return err
		}
		cfg.Sync.BatchSize = n
	case "sync.minconf":
		n, err := parseUint32(value)
		if err != nil {
			return err
		}
		cfg.Sync.MinConfirmations = n

	// Wallet
	case "wallet.db":
		cfg.Wallet.Backend = value

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// WriteDefaultConfig writes a default wallet configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	cfg := Default(network)
	content := `# WebZ Wallet Configuration
#
# Network parameters (activation heights, address prefixes) are fixed per
# network and cannot be changed here.

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.webz)
# datadir = ~/.webz

# ============================================================================
# Chain-data server
# ============================================================================

lightwalletd.url = ` + cfg.Lightwalletd.URL + `
lightwalletd.timeout = ` + cfg.Lightwalletd.Timeout.String() + `
# Requests per second sent to the server (0 = unlimited)
lightwalletd.rps = ` + strconv.Itoa(cfg.Lightwalletd.RequestsPerSecond) + `

# ============================================================================
# Sync
# ============================================================================

# Blocks scanned and persisted per batch
sync.batchsize = ` + strconv.FormatUint(uint64(cfg.Sync.BatchSize), 10) + `

# Confirmations before a received note can be spent
sync.minconf = ` + strconv.FormatUint(uint64(cfg.Sync.MinConfirmations), 10) + `

# ============================================================================
# Wallet store
# ============================================================================

# badger (on disk) or memory
wallet.db = badger

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}
