package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newProbeCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "probe <url>...",
		Short: "Probe publication URLs",
		Long: `Probe publication URLs and print the headers that corroborate them.

Each URL gets a HEAD request; a HEAD that errors, answers with an error
status, or carries no Date header falls back to GET. Exits 2 when some URLs failed and 1 when all did.`,
		Example: `  timeproof probe https://example.com/posts/42
  timeproof probe https://a.example/p https://b.example/p --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			urls := cleanArgs(args)
			if len(urls) == 0 {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("no URLs given")}
			}

			rt, err := newSession(cfg)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			defer rt.close()

			checks := rt.publishVerifier().CheckAll(cmd.Context(), urls)

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, checks); err != nil {
					return err
				}
			}

			failed := 0
			for _, c := range checks {
				if !c.OK() {
					failed++
					if format == "text" {
						fmt.Fprintf(out, "✗ %s: %s\n", c.URL, *c.Error)
					}
					continue
				}
				if format == "text" {
					fmt.Fprintf(out, "🌐 %s\n   status: %d (%s)\n", c.URL, *c.StatusCode, *c.Method)
					if c.FinalURL != nil && *c.FinalURL != c.URL {
						fmt.Fprintf(out, "   final:  %s\n", *c.FinalURL)
					}
					if c.HTTPDate != nil {
						fmt.Fprintf(out, "   date:   %s\n", *c.HTTPDate)
					}
					if c.HeadOutcome != nil {
						fmt.Fprintf(out, "   head:   %s\n", *c.HeadOutcome)
					}
				}
			}

			return partialExit(failed, len(checks), "URL")
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")
	return cmd
}
