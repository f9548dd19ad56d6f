package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/config"
	"github.com/phobologic/crux/internal/enrich"
	"github.com/phobologic/crux/internal/store"
	"github.com/phobologic/crux/internal/summarize"
)

func newSummarizeCmd(g *globals) *cobra.Command {
	var (
		force           bool
		provider        string
		model           string
		workers         int
		continueOnError bool
		metricsAddr     string
	)

	cmd := &cobra.Command{
		Use:   "summarize DB",
		Short: "Summarize every function after the functions it calls",
		Long: `Summarize every stored function in callee-first order. Each summary is
committed as soon as it is produced, so an interrupted run picks up where
it stopped. Functions that already have a summary are skipped unless
--force is given. Progress is printed to stderr.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, ctx, err := g.setup(cmd, args[0])
			if err != nil {
				return err
			}

			flags := cmd.Flags()
			if flags.Changed("force") {
				cfg.Run.Force = force
			}
			if flags.Changed("provider") {
				cfg.Enrich.Provider = provider
			}
			if flags.Changed("model") {
				cfg.Enrich.Model = model
			}
			if flags.Changed("workers") {
				cfg.Run.Workers = workers
			}
			if flags.Changed("continue-on-error") && continueOnError {
				cfg.Run.OnError = config.OnErrorContinue
			}
			if flags.Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			enricher, err := enrich.New(ctx, cfg.Enrich)
			if err != nil {
				return fmt.Errorf("creating enricher: %w", err)
			}

			if cfg.Metrics.Addr != "" {
				stop, err := serveMetrics(cfg.Metrics.Addr, logger)
				if err != nil {
					return err
				}
				defer stop()
			}

			return withStore(ctx, cfg, logger, func(b store.Backend) error {
				results, err := resultStore(b, cfg.Store.CacheSize)
				if err != nil {
					return err
				}

				policy := summarize.FailFast
				if cfg.Run.OnError == config.OnErrorContinue {
					policy = summarize.SkipAndContinue
				}
				driver := summarize.New(b, results, enricher, summarize.Options{
					Force:      cfg.Run.Force,
					Workers:    cfg.Run.Workers,
					Policy:     policy,
					OnProgress: progressPrinter(g),
					Logger:     logger,
				})

				report, err := driver.Run(ctx)
				_, _ = fmt.Fprintf(g.stdout, "%d functions in %d components: %d summarized, %d skipped, %d failed (%s)\n",
					report.Total, report.Components, report.Enriched, report.Skipped, report.Failed,
					report.Duration.Round(time.Millisecond))
				if err != nil {
					return err
				}
				if report.Failed > 0 {
					return fmt.Errorf("%d of %d functions failed", report.Failed, report.Total)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&force, "force", false, "re-summarize functions that already have a summary")
	f.StringVar(&provider, "provider", "", "enrichment provider: mock, openai, gemini, ollama")
	f.StringVar(&model, "model", "", "model name for the provider")
	f.IntVar(&workers, "workers", 1, "summarize independent components concurrently")
	f.BoolVar(&continueOnError, "continue-on-error", false, "record failures and keep going instead of stopping")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	return cmd
}

// progressPrinter writes one line per processed function to stderr.
// The driver serializes calls, so no locking is needed here.
func progressPrinter(g *globals) func(summarize.Event) {
	return func(ev summarize.Event) {
		switch ev.Status {
		case summarize.StatusSkipped:
			_, _ = fmt.Fprintf(g.stderr, "[%d/%d] skip (already summarized): %s\n", ev.Done, ev.Total, ev.Name)
		case summarize.StatusFailed:
			_, _ = fmt.Fprintf(g.stderr, "[%d/%d] failed: %s: %v\n", ev.Done, ev.Total, ev.Name, ev.Err)
		default:
			_, _ = fmt.Fprintf(g.stderr, "[%d/%d] summarized: %s\n", ev.Done, ev.Total, ev.Name)
		}
	}
}

// serveMetrics exposes /metrics on addr until the returned stop function
// is called.
func serveMetrics(addr string, logger *slog.Logger) (func(), error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", "error", err)
		}
	}()
	logger.Info("serving metrics", "addr", ln.Addr().String())

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
