package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/graph"
	"github.com/phobologic/crux/internal/store"
	"github.com/phobologic/crux/internal/toon"
)

const (
	formatJSON = "json"
	formatTOON = "toon"
)

func newTopoCmd(g *globals) *cobra.Command {
	var (
		names  bool
		format string
	)

	cmd := &cobra.Command{
		Use:   "topo DB",
		Short: "Print the strongly connected components, callees first",
		Long: `Print the strongly connected components of the stored call graph in the
order they are summarized: every component comes after the components it
calls into. The default output is a JSON array of arrays of function IDs.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format); err != nil {
				return err
			}
			cfg, logger, ctx, err := g.setup(cmd, args[0])
			if err != nil {
				return err
			}
			return withStore(ctx, cfg, logger, func(b store.Backend) error {
				functions, err := b.Functions(ctx)
				if err != nil {
					return fmt.Errorf("loading functions: %w", err)
				}
				edges, err := b.Edges(ctx)
				if err != nil {
					return fmt.Errorf("loading calls: %w", err)
				}

				comps := graph.Components(graph.Build(functions, edges))

				nameOf := make(map[string]string, len(functions))
				for _, f := range functions {
					if _, dup := nameOf[f.ID]; !dup {
						nameOf[f.ID] = f.Name
					}
				}
				out := make([][]string, len(comps))
				for i, c := range comps {
					out[i] = make([]string, len(c))
					for j, id := range c {
						if names {
							out[i][j] = nameOf[id]
						} else {
							out[i][j] = id
						}
					}
				}
				return writeComponents(g.stdout, out, format)
			})
		},
	}

	f := cmd.Flags()
	f.BoolVar(&names, "names", false, "print qualified names instead of IDs")
	f.StringVar(&format, "format", formatJSON, "output format: json or toon")
	return cmd
}

func checkFormat(format string) error {
	switch format {
	case formatJSON, formatTOON:
		return nil
	}
	return fmt.Errorf("unknown format %q (want %s or %s)", format, formatJSON, formatTOON)
}

func writeComponents(w io.Writer, comps [][]string, format string) error {
	if format == formatTOON {
		_, err := fmt.Fprintln(w, toon.EncodeComponents(comps))
		return err
	}
	return writeJSON(w, comps)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
