// webz-simnet serves a simulated regtest chain over JSON-RPC for local
// wallet development.
//
// Usage:
//
//	webz-simnet [--listen addr] [--block-time d] [--premine n] [--fund addr --fund-amount amt]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Lykhoyda/WebZjs/config"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/internal/simchain"
	"github.com/Lykhoyda/WebZjs/pkg/types"
)

func main() {
	fs := flag.NewFlagSet("webz-simnet", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:29067", "JSON-RPC listen address")
	blockTime := fs.Duration("block-time", 5*time.Second, "Interval between mined blocks")
	premine := fs.Int("premine", 200, "Empty blocks mined before serving")
	fund := fs.String("fund", "", "Regtest address paid once the chain starts")
	fundAmount := fs.String("fund-amount", "10", "Amount paid to --fund")
	cors := fs.String("cors", "", "Comma-separated CORS origins")
	logLevel := fs.String("log-level", "info", "Log level")
	fs.Parse(os.Args[1:])

	if err := klog.Init(*logLevel, false, ""); err != nil {
		fatal("init logger: %v", err)
	}
	logger := klog.WithComponent("simnet")

	params := config.RegtestParams()
	chain := simchain.New(simchain.Config{Params: params})
	chain.MineBlocks(*premine)

	if *fund != "" {
		addr, err := params.DecodeAddress(*fund)
		if err != nil {
			fatal("fund address: %v", err)
		}
		amount, err := types.ParseAmount(*fundAmount)
		if err != nil {
			fatal("fund amount: %v", err)
		}
		if err := chain.Fund(addr, amount); err != nil {
			fatal("fund: %v", err)
		}
		blk := chain.MineBlock()
		logger.Info().
			Str("address", *fund).
			Str("amount", types.FormatAmount(amount)).
			Uint32("height", uint32(blk.Height)).
			Msg("Funded address")
	}

	var origins []string
	if *cors != "" {
		origins = strings.Split(*cors, ",")
	}
	server := simchain.NewServer(*listen, chain, origins...)
	if err := server.Start(); err != nil {
		fatal("start server: %v", err)
	}
	logger.Info().
		Str("addr", server.Addr()).
		Uint32("tip", uint32(chain.Tip())).
		Dur("block_time", *blockTime).
		Msg("Simulated chain serving")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := chain.Run(ctx, *blockTime); err != nil && ctx.Err() == nil {
		logger.Error().Err(err).Msg("Miner stopped")
	}

	if err := server.Stop(); err != nil {
		logger.Error().Err(err).Msg("Server shutdown")
	}
	logger.Info().Uint32("tip", uint32(chain.Tip())).Msg("Stopped")
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
