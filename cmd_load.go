package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/ingest"
	"github.com/phobologic/crux/internal/store"
)

func newLoadCmd(g *globals) *cobra.Command {
	var defFile, callFile, root string

	cmd := &cobra.Command{
		Use:   "load DB",
		Short: "Load definition and call CSV files into a store",
		Long: `Load the CSV output of an external indexer. The definition file has the
columns usr, fully_qualified_name, kind, class, visibility, filename,
start_line and end_line; each function's source text is read from filename
under --root. The call file has the columns caller_usr and callee_usr.
Existing rows are replaced by primary key.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if defFile == "" && callFile == "" {
				return errors.New("at least one of --def, --call is required")
			}
			if defFile != "" && root == "" {
				return errors.New("--root is required when --def is given")
			}

			cfg, logger, ctx, err := g.setup(cmd, args[0])
			if err != nil {
				return err
			}
			return withStore(ctx, cfg, logger, func(b store.Backend) error {
				if defFile != "" {
					n, err := loadDefs(ctx, b, defFile, root)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(g.stdout, "%s: %d rows -> functions\n", defFile, n)
				}
				if callFile != "" {
					n, err := loadCalls(ctx, b, callFile)
					if err != nil {
						return err
					}
					_, _ = fmt.Fprintf(g.stdout, "%s: %d rows -> calls\n", callFile, n)
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&defFile, "def", "", "definition CSV file")
	f.StringVar(&callFile, "call", "", "call CSV file")
	f.StringVar(&root, "root", "", "source root directory (required with --def)")
	return cmd
}

func loadDefs(ctx context.Context, b store.Ingester, path, root string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	recs, err := ingest.LoadDefCSV(ctx, f, root)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := b.UpsertFunctions(ctx, recs); err != nil {
		return 0, fmt.Errorf("storing functions: %w", err)
	}
	return len(recs), nil
}

func loadCalls(ctx context.Context, b store.Ingester, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	edges, err := ingest.LoadCallCSV(f)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", path, err)
	}
	if err := b.UpsertEdges(ctx, edges); err != nil {
		return 0, fmt.Errorf("storing calls: %w", err)
	}
	return len(edges), nil
}
