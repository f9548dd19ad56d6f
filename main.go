// crux enriches the functions of a call graph in dependency order: every
// function is summarized after the functions it calls.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/config"
	"github.com/phobologic/crux/internal/logging"
	"github.com/phobologic/crux/internal/store"
	"github.com/phobologic/crux/internal/store/badgerstore"
	"github.com/phobologic/crux/internal/store/postgres"
	"github.com/phobologic/crux/internal/store/sqlitestore"
)

var version = "dev"

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(stdout, stderr)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// globals holds the persistent flags shared by every subcommand.
type globals struct {
	configPath string
	logLevel   string
	logFormat  string
	stdout     io.Writer
	stderr     io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	g := &globals{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "crux",
		Short: "Summarize a call graph callee-first",
		Long: `crux loads function definitions and call edges into a store, splits the
call graph into strongly connected components and enriches every function
after the functions it calls, so each summary can build on its callees'.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&g.configPath, "config", config.DefaultFile, "config file (YAML)")
	pf.StringVar(&g.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.StringVar(&g.logFormat, "log-format", "", "log format: auto, text, json")

	root.AddCommand(
		newInitCmd(g),
		newLoadCmd(g),
		newExtractCmd(g),
		newTopoCmd(g),
		newSummarizeCmd(g),
		newFetchCmd(g),
	)
	return root
}

// setup loads configuration and builds the logger for a subcommand. The
// store DSN given as the first argument wins over the configured one.
func (g *globals) setup(cmd *cobra.Command, dsn string) (config.Config, *slog.Logger, context.Context, error) {
	if err := config.LoadEnvFiles(".env"); err != nil {
		return config.Config{}, nil, nil, err
	}
	cfg, err := config.Load(g.configPath)
	if err != nil {
		return cfg, nil, nil, err
	}
	if dsn != "" {
		cfg.Store.DSN = dsn
	}
	if g.logLevel != "" {
		cfg.Log.Level = g.logLevel
	}
	if g.logFormat != "" {
		cfg.Log.Format = g.logFormat
	}

	logger := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Writer: g.stderr,
	})
	ctx := logging.WithLogger(cmd.Context(), logger)
	return cfg, logger, ctx, nil
}

// openStore opens the backend named by dsn:
//
//	memory:               in-process, discarded on exit
//	badger:<dir>          BadgerDB directory
//	postgres://...        PostgreSQL
//	sqlite:<path>, <path> SQLite file (the default)
func openStore(ctx context.Context, dsn string, logger *slog.Logger) (store.Backend, error) {
	switch {
	case dsn == "memory:":
		return store.NewMemory(), nil
	case strings.HasPrefix(dsn, "badger:"):
		cfg := badgerstore.DefaultConfig(strings.TrimPrefix(dsn, "badger:"))
		cfg.Logger = logger
		return badgerstore.Open(cfg)
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return postgres.Open(ctx, dsn)
	default:
		return sqlitestore.Open(strings.TrimPrefix(dsn, "sqlite:"))
	}
}

// resultStore wraps b's results in a read cache when size > 0.
func resultStore(b store.Backend, size int) (store.ResultStore, error) {
	if size <= 0 {
		return b, nil
	}
	return store.NewCached(b, size)
}

// withStore opens the configured store, runs fn and closes the store,
// reporting a close failure only when fn succeeded.
func withStore(ctx context.Context, cfg config.Config, logger *slog.Logger, fn func(store.Backend) error) (err error) {
	b, err := openStore(ctx, cfg.Store.DSN, logger)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer func() {
		if cerr := b.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("closing store: %w", cerr)
		}
	}()
	return fn(b)
}
