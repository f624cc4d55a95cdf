package cli

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newTimeCmd(flags *globalFlags) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "time",
		Short: "Acquire a network UTC instant from the time source chain",
		Long: `Acquire a network UTC instant.

Sources are tried in configured order and the first valid answer wins.
Every source that failed before it is listed. Exits 1 when all fail.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			rt, err := newSession(cfg)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			defer rt.close()

			oracle, err := rt.timeOracle()
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			att := oracle.Now(cmd.Context())

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, att); err != nil {
					return err
				}
			} else {
				for _, f := range att.Failures {
					fmt.Fprintf(out, "✗ %s\n", f)
				}
				if att.OK() {
					fmt.Fprintf(out, "🕐 %s\n   unix:   %d\n   source: %s\n", *att.UTCInstant, *att.UnixSeconds, *att.Source)
				}
			}

			if !att.OK() {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("%s", *att.Error)}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "Output format: text, json")
	return cmd
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

func checkFormat(format string, allowed ...string) error {
	for _, a := range allowed {
		if format == a {
			return nil
		}
	}
	return fmt.Errorf("unsupported format %q (expected one of %v)", format, allowed)
}
