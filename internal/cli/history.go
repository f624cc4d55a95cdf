package cli

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/open-verix/timeproof/internal/index"
	"github.com/open-verix/timeproof/internal/integrity"
)

func newHistoryCmd(flags *globalFlags) *cobra.Command {
	var (
		digest string
		file   string
		limit  int
		format string
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List generated evidence packages",
		Long: `List generated evidence packages from the local history index
(index.path, default evidence_packages/index.db).

Filter by artifact with --sha256, or with --file to hash a file and look
it up. Results are newest first.`,
		Example: `  # Last 20 packages
  timeproof history --limit 20

  # Every package of this photo
  timeproof history --file IMG_0042.jpg

  # As YAML
  timeproof history --sha256 9f86d081... --format yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "table", "json", "yaml"); err != nil {
				return err
			}
			if digest != "" && file != "" {
				return fmt.Errorf("--sha256 and --file are mutually exclusive")
			}

			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			if cfg.Index.Path == "" {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("history index is disabled (index.path is empty)")}
			}

			if file != "" {
				h, err := integrity.Compute(cmd.Context(), file)
				if err != nil {
					return &ExitError{Code: ExitFatal, Err: err}
				}
				digest = h.Value
			}

			idx, err := index.Open(cfg.Index.Path)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			defer idx.Close()

			var entries []index.Entry
			if digest != "" {
				entries, err = idx.Find(cmd.Context(), strings.ToLower(strings.TrimSpace(digest)))
				if err == nil && limit > 0 && len(entries) > limit {
					entries = entries[:limit]
				}
			} else {
				entries, err = idx.List(cmd.Context(), limit)
			}
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			if entries == nil {
				entries = []index.Entry{}
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				return writeJSON(out, entries)
			case "yaml":
				return writeYAML(out, entries)
			}
			return printHistoryTable(out, entries)
		},
	}

	f := cmd.Flags()
	f.StringVar(&digest, "sha256", "", "Only packages of the artifact with this digest")
	f.StringVar(&file, "file", "", "Only packages of this file (hashed locally)")
	f.IntVar(&limit, "limit", 50, "Maximum number of results (0 = all)")
	f.StringVar(&format, "format", "table", "Output format: table, json, yaml")

	return cmd
}

func printHistoryTable(out io.Writer, entries []index.Entry) error {
	if len(entries) == 0 {
		fmt.Fprintln(out, "No evidence packages found")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CREATED\tSHA256\tTIME SOURCE\tQUOTES\tURLS\tGAPS\tPACKAGE")
	for _, e := range entries {
		source := e.TimeSource
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			shortDigest(e.SHA256),
			source,
			e.QuotesOK,
			e.PublishOK,
			e.Gaps,
			e.PackageDir)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%d package(s)\n", len(entries))
	return nil
}

func shortDigest(d string) string {
	if len(d) > 12 {
		return d[:12]
	}
	return d
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	return enc.Close()
}
