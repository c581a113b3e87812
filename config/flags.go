package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// ErrHelp is returned by Load when --help was requested.
var ErrHelp = errors.New("help requested")

// Flags holds parsed global command-line flags.
type Flags struct {
	Help bool

	// Core
	Network string
	DataDir string
	Config  string

	// Chain-data server
	Lightwalletd string
	Timeout      time.Duration
	RPS          int

	// Sync
	BatchSize uint
	MinConf   uint

	// Wallet store
	WalletDB string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args (command and its arguments)
	Args []string

	// Explicitly-set flags (for zero-value overrides).
	SetRPS     bool
	SetLogJSON bool
}

// ParseFlags parses global flags from args (without the program name).
// Parsing stops at the first non-flag argument, which starts the command.
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("webz", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet or regtest)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Chain-data server
	fs.StringVar(&f.Lightwalletd, "lightwalletd", "", "Chain-data server URL")
	fs.DurationVar(&f.Timeout, "timeout", 0, "Per-request timeout")
	fs.IntVar(&f.RPS, "rps", 0, "Requests per second (0 = unlimited)")

	// Sync
	fs.UintVar(&f.BatchSize, "batch-size", 0, "Blocks per scan batch")
	fs.UintVar(&f.MinConf, "min-confirmations", 0, "Confirmations before a note is spendable")

	// Wallet store
	fs.StringVar(&f.WalletDB, "wallet-db", "", "Wallet store backend (badger or memory)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (trace, debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			f.Help = true
			return f, nil
		}
		return nil, err
	}

	f.SetRPS = isFlagSet(fs, "rps")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Chain-data server
	if f.Lightwalletd != "" {
		cfg.Lightwalletd.URL = f.Lightwalletd
	}
	if f.Timeout != 0 {
		cfg.Lightwalletd.Timeout = f.Timeout
	}
	if f.SetRPS {
		cfg.Lightwalletd.RequestsPerSecond = f.RPS
	}

	// Sync
	if f.BatchSize != 0 {
		cfg.Sync.BatchSize = uint32(f.BatchSize)
	}
	if f.MinConf != 0 {
		cfg.Sync.MinConfirmations = uint32(f.MinConf)
	}

	// Wallet store
	if f.WalletDB != "" {
		cfg.Wallet.Backend = f.WalletDB
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the global options help text.
func PrintUsage(w io.Writer) {
	fmt.Fprint(w, `Global Options:
  --network            Network type: mainnet (default), testnet or regtest
  --datadir            Data directory (default: ~/.webz)
  --config, -c         Config file path (default: <datadir>/webz.conf)
  --lightwalletd       Chain-data server URL
  --timeout            Per-request timeout (e.g. 30s)
  --rps                Requests per second sent to the server (0 = unlimited)
  --batch-size         Blocks scanned per batch (default: 3000)
  --min-confirmations  Confirmations before a note is spendable (default: 1)
  --wallet-db          Wallet store backend: badger (default) or memory
  --log-level          Log level: trace, debug, info, warn, error (default: info)
  --log-file           Log file path (default: stdout only)
  --log-json           Output logs as JSON
`)
}

// Load loads configuration with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help {
		return nil, flags, ErrHelp
	}

	// Determine network first (needed for defaults)
	network := NetworkType(strings.ToLower(flags.Network))
	if network == "" {
		network = Mainnet
	}

	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}

	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags have the highest precedence.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.WalletDBDir(),
		cfg.LogsDir(),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}

	return nil
}
