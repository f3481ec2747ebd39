package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/payflow/internal/config"
	"github.com/roach88/payflow/internal/csvio"
	"github.com/roach88/payflow/internal/event"
	"github.com/roach88/payflow/internal/ledger"
	"github.com/roach88/payflow/internal/store"
)

// ProcessOptions holds flags for the process command.
type ProcessOptions struct {
	*RootOptions
	Store    string
	Database string
	Workers  int
	Config   string

	// TokenGenerator allows overriding the run token generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	TokenGenerator ledger.RunTokenGenerator
}

// NewProcessCommand creates the process command.
func NewProcessCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ProcessOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "process <input.csv>",
		Short: "Process payment events and print final balances",
		Long: `Process a CSV file of payment events and print the final balance of
every client as CSV (client,available,held,total,locked).

Malformed rows and events rejected by ledger rules are logged to stderr
and skipped; they never abort the run.

Example:
  payflow process transactions.csv
  payflow process --store sqlite --db ./run.db transactions.csv
  payflow process --workers 4 transactions.csv`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProcess(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Store, "store", "", "transaction store backend (memory|sqlite)")
	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (sqlite backend only)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "number of concurrent processing shards")
	cmd.Flags().StringVar(&opts.Config, "config", "", "path to YAML config file")

	return cmd
}

// processResult is the JSON payload of a successful process run.
type processResult struct {
	Accounts  []accountRow   `json:"accounts"`
	Summary   ledger.Summary `json:"summary"`
	Malformed int            `json:"malformed_rows"`
}

// accountRow renders one balance with fixed four-decimal formatting.
type accountRow struct {
	Client    uint16 `json:"client"`
	Available string `json:"available"`
	Held      string `json:"held"`
	Total     string `json:"total"`
	Locked    bool   `json:"locked"`
}

func runProcess(opts *ProcessOptions, inputPath string, cmd *cobra.Command) error {
	cfg, err := resolveConfig(opts, cmd)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid configuration", err)
	}

	// Configure logging based on verbose flag
	logLevel := slog.LevelInfo
	if cfg.Verbose {
		logLevel = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))

	txs, cleanup, err := openStore(cfg)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open transaction store", err)
	}
	defer cleanup()

	input, err := os.Open(inputPath)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open input file", err)
	}
	defer input.Close()

	tokenGen := opts.TokenGenerator
	if tokenGen == nil {
		tokenGen = ledger.UUIDv7Generator{}
	}

	procOpts := []ledger.Option{
		ledger.WithLogger(log),
		ledger.WithTokenGenerator(tokenGen),
	}
	if cfg.Workers > 1 {
		procOpts = append(procOpts, ledger.WithWorkers(cfg.Workers))
	}
	proc := ledger.New(txs, procOpts...)

	// Feed records to the processor, logging and skipping malformed rows.
	records := make(chan event.Record, 64)
	malformed := make(chan int, 1)
	go func() {
		defer close(records)
		reader := csvio.NewReader(input)
		count := 0
		for {
			rec, err := reader.Read()
			if err == io.EOF {
				break
			}
			if err != nil {
				count++
				log.Warn("malformed row skipped", "reason", err)
				continue
			}
			records <- rec
		}
		malformed <- count
	}()

	summary, perr := proc.Process(cmd.Context(), records)

	// Unblock the reader goroutine if processing stopped early; input is
	// finite, so the drain terminates.
	for range records {
	}
	malformedRows := <-malformed

	if perr != nil && !errors.Is(perr, context.Canceled) && !errors.Is(perr, context.DeadlineExceeded) {
		return WrapExitError(ExitCommandError, "processing failed", perr)
	}

	balances := proc.Balances()
	result := processResult{
		Accounts:  make([]accountRow, 0, len(balances)),
		Summary:   summary,
		Malformed: malformedRows,
	}
	for _, b := range balances {
		result.Accounts = append(result.Accounts, accountRow{
			Client:    b.Client,
			Available: b.Available.StringFixed(4),
			Held:      b.Held.StringFixed(4),
			Total:     b.Total.StringFixed(4),
			Locked:    b.Locked,
		})
	}

	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   cfg.Verbose,
	}
	if opts.Format == "json" {
		return formatter.JSON(result)
	}
	return csvio.WriteBalances(cmd.OutOrStdout(), balances)
}

// resolveConfig merges the config file (if any) with command-line flags.
// Flags that were explicitly set win over file values.
func resolveConfig(opts *ProcessOptions, cmd *cobra.Command) (*config.Config, error) {
	cfg := config.Default()
	if opts.Config != "" {
		loaded, err := config.Load(opts.Config)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if cmd.Flags().Changed("store") {
		cfg.Store = opts.Store
	}
	if cmd.Flags().Changed("db") {
		cfg.Database = opts.Database
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = opts.Workers
	}
	if opts.Verbose {
		cfg.Verbose = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openStore creates the configured TxStore backend. The returned cleanup
// closes backends that hold resources.
func openStore(cfg *config.Config) (store.TxStore, func(), error) {
	switch cfg.Store {
	case config.StoreSQLite:
		s, err := store.OpenSQLite(cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	case config.StoreMemory:
		return store.NewMemoryStore(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", cfg.Store)
	}
}
