// Package log holds the process-wide zerolog configuration and the
// per-component loggers handed to the wallet engine, the light-client
// transport and the simulated chain.
package log

import (
	"io"
	"os"

	"github.com/rs/zerolog"
)

const timeFormat = "15:04:05"

// Logger is the root logger. Component loggers derive from it.
var Logger zerolog.Logger

// Component loggers. They are rebuilt by Init.
var (
	Sync   zerolog.Logger
	RPC    zerolog.Logger
	Prover zerolog.Logger
	Sim    zerolog.Logger
)

func init() {
	Logger = New(os.Stdout, "info", false)
	deriveComponents()
}

// Init reconfigures the root logger. A non-empty file receives a JSON
// copy of every record next to the console output.
func Init(level string, jsonOutput bool, file string) error {
	var out io.Writer = console(os.Stdout, jsonOutput)
	if file != "" {
		f, err := os.OpenFile(file, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return err
		}
		out = zerolog.MultiLevelWriter(out, f)
	}
	Logger = zerolog.New(out).Level(ParseLevel(level)).With().Timestamp().Logger()
	deriveComponents()
	return nil
}

// New builds a timestamped logger writing to w, colored unless
// jsonOutput is set.
func New(w io.Writer, level string, jsonOutput bool) zerolog.Logger {
	return zerolog.New(console(w, jsonOutput)).
		Level(ParseLevel(level)).
		With().
		Timestamp().
		Logger()
}

func console(w io.Writer, jsonOutput bool) io.Writer {
	if jsonOutput {
		return w
	}
	return zerolog.ConsoleWriter{Out: w, TimeFormat: timeFormat}
}

// ParseLevel maps a level name to a zerolog level. Unknown or empty
// names select info.
func ParseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func deriveComponents() {
	Sync = WithComponent("sync")
	RPC = WithComponent("rpc")
	Prover = WithComponent("prover")
	Sim = WithComponent("simchain")
}

// WithComponent returns a child of the root logger tagged with name.
func WithComponent(name string) zerolog.Logger {
	return Logger.With().Str("component", name).Logger()
}
