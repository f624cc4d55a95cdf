package cli

import (
	"bytes"
	"fmt"
	"io"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/providers"
)

func newShowCmd(reg *providers.Registry) *cobra.Command {
	var (
		format string
		wrap   int
	)

	cmd := &cobra.Command{
		Use:   "show <package-dir>",
		Short: "Display an evidence package",
		Long: `Display an evidence package.

The default format renders the Markdown report for the terminal. "raw"
prints the Markdown unstyled; "json" and "yaml" print the record itself.
The report is rendered from evidence.json, so it works for packages
generated with --no-reports too.`,
		Example: `  timeproof show evidence_packages/evidence_20260314_092653
  timeproof show evidence_packages/evidence_20260314_092653 --format yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "markdown", "raw", "json", "yaml"); err != nil {
				return err
			}

			rec, err := evidence.LoadRecord(args[0])
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}

			out := cmd.OutOrStdout()
			switch format {
			case "json":
				data, err := evidence.MarshalRecord(rec)
				if err != nil {
					return err
				}
				_, err = out.Write(data)
				return err

			case "yaml":
				return writeRecordYAML(out, rec)
			}

			md, err := reg.GetRendererProvider("markdown")
			if err != nil {
				return err
			}
			var buf bytes.Buffer
			if err := md.Render(rec, &buf); err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			if format == "raw" {
				_, err = out.Write(buf.Bytes())
				return err
			}

			term, err := glamour.NewTermRenderer(
				glamour.WithAutoStyle(),
				glamour.WithWordWrap(wrap),
			)
			if err != nil {
				return fmt.Errorf("failed to create terminal renderer: %w", err)
			}
			styled, err := term.RenderBytes(buf.Bytes())
			if err != nil {
				return fmt.Errorf("failed to render report: %w", err)
			}
			_, err = out.Write(styled)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVar(&format, "format", "markdown", "Output format: markdown, raw, json, yaml")
	f.IntVar(&wrap, "wrap", 100, "Word wrap width for terminal rendering")

	return cmd
}

// writeRecordYAML prints the record with its JSON field names and order.
// JSON is a subset of YAML, so the persisted encoding is decoded as a YAML
// node tree and re-emitted block style.
func writeRecordYAML(w io.Writer, rec *evidence.Record) error {
	data, err := evidence.MarshalRecord(rec)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to convert record: %w", err)
	}
	clearStyle(&node)
	return writeYAML(w, &node)
}

// clearStyle drops the flow and quoting styles inherited from JSON.
func clearStyle(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode || n.Tag == "!!str" {
		n.Style = 0
	}
	for _, c := range n.Content {
		clearStyle(c)
	}
}
