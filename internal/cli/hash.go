package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/integrity"
)

func newHashCmd() *cobra.Command {
	var expected string

	cmd := &cobra.Command{
		Use:   "hash <file>",
		Short: "Compute a file's SHA-256 digest",
		Long: `Compute a file's SHA-256 digest, streaming it in fixed-size chunks.

With --verify the digest is compared to the given hex value instead; a
mismatch exits 1.`,
		Example: `  timeproof hash IMG_0042.jpg
  timeproof hash IMG_0042.jpg --verify 9f86d081884c7d65...`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			path := args[0]

			if expected == "" {
				h, err := integrity.Compute(cmd.Context(), path)
				if err != nil {
					return &ExitError{Code: ExitFatal, Err: err}
				}
				fmt.Fprintf(out, "%s  %s\n", h.Value, path)
				return nil
			}

			v := integrity.Verify(cmd.Context(), path, integrity.ArtifactHash{
				Algorithm: integrity.Algorithm,
				Value:     strings.ToLower(strings.TrimSpace(expected)),
			})
			switch {
			case v.Error != nil:
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("verification failed: %s", *v.Error)}
			case !v.Intact():
				fmt.Fprintf(out, "❌ %s: digest mismatch\n   expected: %s\n   actual:   %s\n", path, v.Expected, *v.Recomputed)
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("digest mismatch")}
			}
			fmt.Fprintf(out, "✅ %s: %s\n", path, *v.Recomputed)
			return nil
		},
	}

	cmd.Flags().StringVar(&expected, "verify", "", "Expected hex digest to compare against")
	return cmd
}
