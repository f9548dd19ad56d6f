package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/phobologic/crux/internal/ingest"
	"github.com/phobologic/crux/internal/lang"
	"github.com/phobologic/crux/internal/store"
)

func newExtractCmd(g *globals) *cobra.Command {
	var (
		langs       string
		exclude     []string
		skipTests   bool
		maxFileSize int64
	)

	cmd := &cobra.Command{
		Use:   "extract DB [ROOT]",
		Short: "Parse a source tree with tree-sitter and store its call graph",
		Long: `Parse every supported source file under ROOT (default ".") and store its
functions and calls. Function IDs have the form <language>:<path>:<name>;
calls that resolve to no parsed function are stored with an "ext:" callee
and ignored when summarizing.

Supported languages: ` + strings.Join(sortedLanguages(), ", ") + `.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			root := "."
			if len(args) > 1 {
				root = args[1]
			}
			root, err := filepath.Abs(root)
			if err != nil {
				return fmt.Errorf("resolving root: %w", err)
			}
			info, err := os.Stat(root)
			if err != nil {
				return fmt.Errorf("root path: %w", err)
			}
			if !info.IsDir() {
				return fmt.Errorf("%s: not a directory", root)
			}

			var langFilter []string
			if langs != "" {
				for _, name := range strings.Split(langs, ",") {
					name = strings.TrimSpace(name)
					if _, ok := lang.Languages[name]; !ok {
						return fmt.Errorf("unsupported language %q", name)
					}
					langFilter = append(langFilter, name)
				}
			}

			cfg, logger, ctx, err := g.setup(cmd, args[0])
			if err != nil {
				return err
			}

			res, err := ingest.FromTree(ctx, root, ingest.TreeOptions{
				Languages:   langFilter,
				Exclude:     exclude,
				SkipTests:   skipTests,
				MaxFileSize: maxFileSize,
			})
			if err != nil {
				return err
			}
			if res.Files == 0 {
				return fmt.Errorf("no parseable files found")
			}

			return withStore(ctx, cfg, logger, func(b store.Backend) error {
				if err := b.UpsertFunctions(ctx, res.Functions); err != nil {
					return fmt.Errorf("storing functions: %w", err)
				}
				if err := b.UpsertEdges(ctx, res.Edges); err != nil {
					return fmt.Errorf("storing calls: %w", err)
				}
				_, _ = fmt.Fprintf(g.stdout, "%d files: %d functions, %d calls\n",
					res.Files, len(res.Functions), len(res.Edges))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVarP(&langs, "langs", "l", "", "comma-separated languages to include")
	f.StringSliceVar(&exclude, "exclude", nil, "gitignore-style patterns to skip (repeatable)")
	f.BoolVar(&skipTests, "skip-tests", false, "skip test files")
	f.Int64Var(&maxFileSize, "max-file-size", ingest.DefaultMaxFileSize, "skip files larger than this many bytes")
	return cmd
}

func sortedLanguages() []string {
	names := lang.Names()
	sort.Strings(names)
	return names
}
