package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/config"
	"github.com/open-verix/timeproof/internal/policy"
)

// PolicyFileName is the policy file written by `timeproof init --policy`.
const PolicyFileName = "timeproof-policy.yaml"

func newInitCmd() *cobra.Command {
	var (
		force      bool
		withPolicy bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a default timeproof.yaml into the current directory",
		Long: `Write the default configuration to ./timeproof.yaml.

The file lists the time source chain, quote endpoint and symbols, timeouts,
retry policies and output settings so they can be edited in place. With
--policy a default timeproof-policy.yaml is written as well.

Existing files are left alone unless --force is given.`,
		Example: `  timeproof init
  timeproof init --policy
  timeproof init --force`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			if err := config.Default().Write(config.FileName, force); err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			fmt.Fprintf(out, "✅ Wrote %s\n", config.FileName)

			if !withPolicy {
				return nil
			}
			if !force {
				if _, err := os.Stat(PolicyFileName); err == nil {
					return &ExitError{Code: ExitFatal, Err: fmt.Errorf("%s already exists (use --force to overwrite)", PolicyFileName)}
				} else if !errors.Is(err, os.ErrNotExist) {
					return &ExitError{Code: ExitFatal, Err: err}
				}
			}
			if err := policy.SaveConfig(policy.DefaultConfig(), PolicyFileName); err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			fmt.Fprintf(out, "✅ Wrote %s\n", PolicyFileName)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing files")
	cmd.Flags().BoolVar(&withPolicy, "policy", false, "Also write a default evidence policy")

	return cmd
}
