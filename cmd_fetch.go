package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/query"
	"github.com/phobologic/crux/internal/store"
	"github.com/phobologic/crux/internal/toon"
)

func newFetchCmd(g *globals) *cobra.Command {
	var (
		name   string
		format string
	)

	cmd := &cobra.Command{
		Use:   "fetch DB [ID...]",
		Short: "Print stored functions with their source, callees and summary",
		Long: `Print a JSON array with one object per requested function: its ID, name,
source text, callee IDs and summary (null until summarized). Functions are
selected by ID, by a case-insensitive name substring (--name), or both.
Unknown IDs are reported on stderr and make the command fail after the
known ones are printed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			ids := args[1:]
			if len(ids) == 0 && name == "" {
				return errors.New("give at least one ID or --name")
			}

			cfg, logger, ctx, err := g.setup(cmd, args[0])
			if err != nil {
				return err
			}
			return withStore(ctx, cfg, logger, func(b store.Backend) error {
				results, err := resultStore(b, cfg.Store.CacheSize)
				if err != nil {
					return err
				}

				if name != "" {
					functions, err := b.Functions(ctx)
					if err != nil {
						return fmt.Errorf("loading functions: %w", err)
					}
					for _, f := range query.Search(functions, name) {
						ids = append(ids, f.ID)
					}
				}

				entries, missing, err := query.FetchAll(ctx, b, results, ids)
				if err != nil {
					return err
				}
				if entries == nil {
					entries = []*query.Entry{}
				}

				if format == formatTOON {
					_, err = fmt.Fprintln(g.stdout, toon.EncodeEntries(entries))
				} else {
					err = writeJSON(g.stdout, entries)
				}
				if err != nil {
					return err
				}

				for _, id := range missing {
					_, _ = fmt.Fprintf(g.stderr, "warning: function not found: %s\n", id)
				}
				if len(missing) > 0 {
					return fmt.Errorf("%d of %d functions not found", len(missing), len(ids))
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&name, "name", "", "also fetch functions whose name contains this substring")
	f.StringVar(&format, "format", formatJSON, "output format: json or toon")
	return cmd
}
