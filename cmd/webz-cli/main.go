// webz-cli is a command-line shielded wallet. It keeps its store in the
// data directory and talks to a chain-data server over JSON-RPC.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/Lykhoyda/WebZjs/config"
	"github.com/Lykhoyda/WebZjs/internal/chainsource"
	"github.com/Lykhoyda/WebZjs/internal/engine"
	klog "github.com/Lykhoyda/WebZjs/internal/log"
	"github.com/Lykhoyda/WebZjs/internal/storage"
	"github.com/Lykhoyda/WebZjs/internal/wallet"
	"github.com/Lykhoyda/WebZjs/internal/walletdb"
	"github.com/Lykhoyda/WebZjs/pkg/types"
	"golang.org/x/term"
)

// app bundles what every command needs.
type app struct {
	cfg    *config.Config
	params *config.Params
	store  *walletdb.Store
	wallet *engine.Wallet
}

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if errors.Is(err, config.ErrHelp) {
		usage()
		return
	}
	if err != nil {
		fatal("%v", err)
	}
	if len(flags.Args) == 0 {
		usage()
		os.Exit(1)
	}
	cmd, cmdArgs := flags.Args[0], flags.Args[1:]

	if cmd == "help" {
		usage()
		return
	}
	if cmd == "new-phrase" {
		cmdNewPhrase()
		return
	}

	if err := klog.Init(cfg.Log.Level, cfg.Log.JSON, cfg.Log.File); err != nil {
		fatal("init logger: %v", err)
	}

	a, closeFn, err := open(cfg)
	if err != nil {
		fatal("%v", err)
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case "create-account":
		err = a.cmdCreateAccount(ctx, cmdArgs)
	case "import-ufvk":
		err = a.cmdImportUFVK(ctx, cmdArgs)
	case "address":
		err = a.cmdAddress(cmdArgs)
	case "sync":
		err = a.cmdSync(ctx)
	case "balance":
		err = a.cmdBalance()
	case "ranges":
		err = a.cmdRanges(ctx)
	case "send":
		err = a.cmdSend(ctx, cmdArgs)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		usage()
		closeFn()
		os.Exit(1)
	}
	if err != nil {
		closeFn()
		fatal("%v", err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: webz-cli [global options] <command> [flags]

Commands:
  new-phrase                       Print a new 24-word recovery phrase
  create-account [--index n] [--birthday h]
                                   Import the spending account of key index n
                                   (the phrase is read from the terminal and
                                   stored sealed under a password)
  import-ufvk --key <ufvk> [--birthday h]
                                   Import a view-only account
  address [--account i] [--pool orchard|sapling]
                                   Show an account's default address
  sync                             Scan new blocks
  balance                          Show balances
  ranges                           Show blocks still to scan
  send --to <addr> --amount <amt> [--account i] [--key-index n]
                                   Send from an account

`)
	config.PrintUsage(os.Stderr)
}

// open builds the store, chain client and wallet from cfg. The returned
// function closes the store.
func open(cfg *config.Config) (*app, func(), error) {
	params, err := cfg.Params()
	if err != nil {
		return nil, nil, err
	}

	var db storage.DB
	switch cfg.Wallet.Backend {
	case "memory":
		db = storage.NewMemory()
	default:
		bdb, err := storage.NewBadger(cfg.WalletDBDir())
		if err != nil {
			return nil, nil, fmt.Errorf("open wallet db at %s: %w", cfg.WalletDBDir(), err)
		}
		db = bdb
	}
	store := walletdb.New(db)
	closeFn := func() {
		if err := store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "Error: close wallet db: %v\n", err)
		}
	}

	client := chainsource.NewFromConfig(cfg.Lightwalletd)
	w, err := engine.New(engine.Config{
		Params:           params,
		MinConfirmations: cfg.Sync.MinConfirmations,
		BatchSize:        cfg.Sync.BatchSize,
	}, client, store)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return &app{cfg: cfg, params: params, store: store, wallet: w}, closeFn, nil
}

// ── Accounts ────────────────────────────────────────────────────────────

func cmdNewPhrase() {
	phrase, err := wallet.GenerateMnemonic()
	if err != nil {
		fatal("generate phrase: %v", err)
	}
	fmt.Println("Recovery phrase (write this down!):")
	fmt.Printf("  %s\n", phrase)
}

// birthdayFlag registers --birthday; zero means "derive from the tip".
func birthdayFlag(fs *flag.FlagSet) func() *types.BlockHeight {
	h := fs.Uint("birthday", 0, "First block that can hold the account's notes (default: tip - 100)")
	return func() *types.BlockHeight {
		if *h == 0 {
			return nil
		}
		b := types.BlockHeight(*h)
		return &b
	}
}

func (a *app) cmdCreateAccount(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("create-account", flag.ExitOnError)
	index := fs.Uint("index", 0, "Key index to derive")
	birthday := birthdayFlag(fs)
	fs.Parse(args)

	phrase, err := readSecret("Recovery phrase: ")
	if err != nil {
		return fmt.Errorf("read phrase: %w", err)
	}
	normalized := wallet.NormalizeMnemonic(string(phrase))
	clear(phrase)
	if !wallet.ValidateMnemonic(normalized) {
		return wallet.ErrInvalidMnemonic
	}
	password, err := readNewPassword()
	if err != nil {
		return err
	}
	defer clear(password)

	id, err := a.wallet.CreateAccount(ctx, normalized, uint32(*index), birthday())
	if err != nil {
		return err
	}
	sealed, err := wallet.SealPhrase(normalized, password, wallet.DefaultVaultParams())
	if err != nil {
		return fmt.Errorf("seal phrase: %w", err)
	}
	if err := a.store.PutSealedPhrase(id, sealed); err != nil {
		return err
	}

	fmt.Printf("Account %d created (key index %d)\n", id, *index)
	return a.printAddresses(int(id))
}

func (a *app) cmdImportUFVK(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("import-ufvk", flag.ExitOnError)
	key := fs.String("key", "", "Encoded full viewing key")
	birthday := birthdayFlag(fs)
	fs.Parse(args)

	if *key == "" {
		return fmt.Errorf("usage: webz-cli import-ufvk --key <ufvk> [--birthday h]")
	}
	id, err := a.wallet.ImportViewingKey(ctx, *key, birthday())
	if err != nil {
		return err
	}
	fmt.Printf("View-only account %d imported\n", id)
	return nil
}

func (a *app) cmdAddress(args []string) error {
	fs := flag.NewFlagSet("address", flag.ExitOnError)
	account := fs.Int("account", 0, "Account position")
	pool := fs.String("pool", "", "Pool (orchard or sapling; default both)")
	fs.Parse(args)

	if *pool == "" {
		return a.printAddresses(*account)
	}
	p, err := types.ParsePool(*pool)
	if err != nil {
		return err
	}
	addr, err := a.wallet.Address(*account, p)
	if err != nil {
		return err
	}
	fmt.Println(addr)
	return nil
}

func (a *app) printAddresses(account int) error {
	for _, pool := range types.ShieldedPools {
		addr, err := a.wallet.Address(account, pool)
		if err != nil {
			return err
		}
		fmt.Printf("  %-8s %s\n", pool, addr)
	}
	return nil
}

// ── Sync ────────────────────────────────────────────────────────────────

func (a *app) cmdSync(ctx context.Context) error {
	ch := make(chan engine.Progress)
	done := make(chan error, 1)
	go func() {
		done <- a.wallet.Sync(ctx, engine.ProgressChannel(ch))
		close(ch)
	}()
	for p := range ch {
		fmt.Fprintf(os.Stderr, "\rScanned to %d of %d", p.ScannedTo-1, p.Tip)
	}
	fmt.Fprintln(os.Stderr)
	if err := <-done; err != nil {
		return err
	}
	return a.cmdBalance()
}

func (a *app) cmdRanges(ctx context.Context) error {
	if _, err := a.wallet.UpdateChainTip(ctx); err != nil {
		return err
	}
	ranges, err := a.wallet.SuggestScanRanges()
	if err != nil {
		return err
	}
	if len(ranges) == 0 {
		fmt.Println("Fully scanned")
		return nil
	}
	for _, r := range ranges {
		fmt.Printf("  %-16s %-9s %d blocks\n", r, r.Priority, r.Len())
	}
	return nil
}

func (a *app) cmdBalance() error {
	summary, err := a.wallet.WalletSummary()
	if err != nil {
		return err
	}
	fmt.Printf("Chain tip:     %d\n", summary.ChainTip)
	fmt.Printf("Fully scanned: %d\n", summary.FullyScanned)
	for _, b := range summary.Accounts {
		fmt.Printf("Account %d\n", b.Account)
		fmt.Printf("  Spendable:   %s\n", types.FormatAmount(b.Spendable))
		fmt.Printf("  Unconfirmed: %s\n", types.FormatAmount(b.Unconfirmed))
		fmt.Printf("  Pending:     %s\n", types.FormatAmount(b.Pending))
		fmt.Printf("  Total:       %s\n", types.FormatAmount(b.Total()))
	}
	return nil
}

// ── Send ────────────────────────────────────────────────────────────────

func (a *app) cmdSend(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	to := fs.String("to", "", "Recipient address")
	amountStr := fs.String("amount", "", "Amount to send (e.g. 1.5)")
	account := fs.Int("account", 0, "Funding account position")
	keyIndex := fs.String("key-index", "", "Key index of the funding account (default: --account)")
	fs.Parse(args)

	if *to == "" || *amountStr == "" {
		return fmt.Errorf("usage: webz-cli send --to <addr> --amount <amt> [--account i] [--key-index n]")
	}
	amount, err := types.ParseAmount(*amountStr)
	if err != nil {
		return err
	}
	index := uint32(*account)
	if *keyIndex != "" {
		n, err := strconv.ParseUint(*keyIndex, 10, 32)
		if err != nil {
			return fmt.Errorf("invalid key index %q", *keyIndex)
		}
		index = uint32(n)
	}

	ids, err := a.store.AccountIDs()
	if err != nil {
		return err
	}
	if *account < 0 || *account >= len(ids) {
		return fmt.Errorf("no account at position %d", *account)
	}
	sealed, err := a.store.SealedPhrase(ids[*account])
	if err != nil {
		return err
	}
	password, err := readSecret("Password: ")
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}
	phrase, err := wallet.OpenPhrase(sealed, password)
	clear(password)
	if err != nil {
		return err
	}

	if err := a.wallet.Sync(ctx, nil); err != nil {
		return err
	}
	txid, err := a.wallet.Transfer(ctx, engine.TransferRequest{
		Phrase:      phrase,
		KeyIndex:    index,
		FromAccount: *account,
		To:          strings.TrimSpace(*to),
		Amount:      amount,
	})
	if err != nil {
		if !txid.IsZero() {
			fmt.Fprintf(os.Stderr, "Transaction %s stored but not accepted\n", txid)
		}
		return err
	}
	fmt.Printf("Submitted: %s\n", txid)
	return nil
}

// ── Terminal helpers ────────────────────────────────────────────────────

func readSecret(prompt string) ([]byte, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr) // newline after hidden input
	if err != nil {
		return nil, err
	}
	return secret, nil
}

func readNewPassword() ([]byte, error) {
	password, err := readSecret("Enter password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	confirm, err := readSecret("Confirm password: ")
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	defer clear(confirm)
	if string(password) != string(confirm) {
		clear(password)
		return nil, fmt.Errorf("passwords do not match")
	}
	return password, nil
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
