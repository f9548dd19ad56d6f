package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/phobologic/crux/internal/config"
)

const (
	sentinelStart = "# crux:start"
	sentinelEnd   = "# crux:end"
)

func newInitCmd(g *globals) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "init [path]",
		Short: "Write the default settings block to a config file",
		Long: `Write a commented block listing every crux setting and its default to a
config file. The block is wrapped in sentinel comments so it is updated in
place on later runs without touching surrounding content. Creates the file
if it does not exist.

path defaults to ./` + config.DefaultFile + `.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) > 0 {
				path = args[0]
			}
			return runInit(path, dryRun, g.stdout, g.stderr)
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print what would be written without modifying the file")
	return cmd
}

// runInit writes (or updates) the managed settings block in path.
func runInit(path string, dryRun bool, stdout, stderr io.Writer) error {
	section, err := generateSection()
	if err != nil {
		return err
	}

	// --dry-run with no path: just print the section itself.
	if dryRun && path == "" {
		_, _ = fmt.Fprintln(stdout, section)
		return nil
	}

	if path == "" {
		path = config.DefaultFile
	}

	existing, _ := os.ReadFile(path)
	updated := applySection(string(existing), section)

	if dryRun {
		_, _ = fmt.Fprint(stdout, updated)
		return nil
	}

	if err := os.WriteFile(path, []byte(updated), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}

	_, _ = fmt.Fprintf(stderr, "wrote crux settings to %s\n", path)
	return nil
}

// generateDefaults renders the built-in configuration as YAML.
func generateDefaults() (string, error) {
	data, err := yaml.Marshal(config.Default())
	if err != nil {
		return "", fmt.Errorf("encoding defaults: %w", err)
	}
	return strings.TrimRight(string(data), "\n"), nil
}

// generateSection returns the sentinel-wrapped block: the defaults as
// comments so the file stays valid YAML alongside the user's own keys.
func generateSection() (string, error) {
	defaults, err := generateDefaults()
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(sentinelStart + "\n")
	b.WriteString(`# Managed by "crux init"; this block is rewritten on every run.
# Copy a setting outside the block to change it. CRUX_* environment
# variables (CRUX_DB, CRUX_PROVIDER, CRUX_WORKERS, ...) override this file.
# Store DSNs: <path> or sqlite:<path>, badger:<dir>, postgres://..., memory:
# Providers: ` + strings.Join(config.Providers, ", ") + `
#
`)
	for _, line := range strings.Split(defaults, "\n") {
		b.WriteString("# " + line + "\n")
	}
	b.WriteString(sentinelEnd)
	return b.String(), nil
}

// applySection inserts section into content, replacing an existing sentinel
// block if present or appending if not. It is a pure function for easy testing.
func applySection(content, section string) string {
	start := strings.Index(content, sentinelStart)
	end := strings.Index(content, sentinelEnd)

	if start >= 0 && end > start {
		return content[:start] + section + content[end+len(sentinelEnd):]
	}

	// Append, ensuring a blank line separator.
	if len(content) > 0 && !strings.HasSuffix(content, "\n") {
		content += "\n"
	}
	if len(content) == 0 {
		return section + "\n"
	}
	return content + "\n" + section + "\n"
}
