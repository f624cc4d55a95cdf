package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/fanout"
)

func newQuoteCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "quote [symbol...]",
		Short: "Snapshot market quotes",
		Long: `Snapshot market quotes, one per symbol, in argument order.

Without arguments the configured quotes.symbols are used. Exits 2 when
some symbols failed and 1 when all did.`,
		Example: `  timeproof quote AAPL.US MSFT.US
  timeproof quote ^SPX --format json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			symbols := cleanArgs(args)
			if len(symbols) == 0 {
				symbols = cleanArgs(cfg.Quotes.Symbols)
			}
			if len(symbols) == 0 {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("no symbols given")}
			}

			rt, err := newSession(cfg)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			defer rt.close()

			quotes := fanout.Map(cmd.Context(), cfg.Concurrency, symbols, rt.quoteSource().Quote)

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, quotes); err != nil {
					return err
				}
			}

			failed := 0
			for _, q := range quotes {
				if !q.OK() {
					failed++
					if format == "text" {
						fmt.Fprintf(out, "✗ %s: %s\n", q.Symbol, *q.Error)
					}
					continue
				}
				if format == "text" {
					fmt.Fprintf(out, "📈 %s  close %s", q.Symbol, *q.Close)
					if q.Date != nil {
						fmt.Fprintf(out, "  %s", *q.Date)
					}
					if q.Time != nil {
						fmt.Fprintf(out, " %s", *q.Time)
					}
					fmt.Fprintln(out)
				}
			}

			return partialExit(failed, len(quotes), "quote")
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")
	return cmd
}

// partialExit maps a failure count to 0, 2 (some failed) or 1 (all failed).
func partialExit(failed, total int, what string) error {
	switch {
	case failed == 0:
		return nil
	case failed == total:
		return &ExitError{Code: ExitFatal, Err: fmt.Errorf("every %s failed", what)}
	default:
		return &ExitError{Code: ExitPartialSuccess, Err: fmt.Errorf("%d of %d %s(s) failed", failed, total, what)}
	}
}

func cleanArgs(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
