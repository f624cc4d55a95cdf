package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/providers"
)

var (
	// Version is set at build time via ldflags
	Version = "0.1.0"
	// GitCommit is set at build time via ldflags
	GitCommit = "unknown"
	// BuildDate is set at build time via ldflags
	BuildDate = "unknown"
)

// SetVersion sets the version information from main package
func SetVersion(version, commit, buildTime string) {
	if version != "" {
		Version = version
	}
	if commit != "" {
		GitCommit = commit
	}
	if buildTime != "" {
		BuildDate = buildTime
	}
}

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// NewRootCommand builds the command tree. reg supplies metadata readers and
// report renderers.
func NewRootCommand(reg *providers.Registry) *cobra.Command {
	flags := &globalFlags{}

	rootCmd := &cobra.Command{
		Use:   "timeproof",
		Short: "Photo evidence packages with externally verifiable timestamps",
		Long: `timeproof packages a photo together with evidence of when it existed.

A package binds the photo's SHA-256 digest to data nobody could have
predicted in advance: a network UTC instant, market quotes, and the HTTP
headers of the URLs where the photo was published. The packaged copy is
re-hashed so integrity can be checked later.

Every data point records its own success or failure. A package with gaps
is still written and lists exactly what it lacks.

Exit Codes:
  0 - Success
  1 - Fatal error (source unreadable, package not persisted, verification failed)
  2 - Partial success (package written with gaps, only with --strict)
`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("timeproof version %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
		Version, GitCommit, BuildDate, runtime.Version()))

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flags.configPath, "config", "", "Path to timeproof.yaml (default: ./timeproof.yaml if present)")
	pf.StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error, off")
	pf.StringVar(&flags.logFormat, "log-format", "", "Log format: json, console")

	rootCmd.AddCommand(
		newVersionCmd(),
		newInitCmd(),
		newGenerateCmd(reg, flags),
		newHashCmd(),
		newTimeCmd(flags),
		newQuoteCmd(flags),
		newProbeCmd(flags),
		newVerifyCmd(flags),
		newHistoryCmd(flags),
		newBundleCmd(flags),
		newShowCmd(reg),
	)

	return rootCmd
}

// Execute runs the command tree built from reg.
func Execute(reg *providers.Registry) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := NewRootCommand(reg)
	err := rootCmd.ExecuteContext(ctx)
	if err != nil && err.Error() != "" {
		rootCmd.PrintErrln("Error:", err)
	}
	return err
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "timeproof version %s\n", Version)
			fmt.Fprintf(out, "  commit: %s\n", GitCommit)
			fmt.Fprintf(out, "  built:  %s\n", BuildDate)
			fmt.Fprintf(out, "  go:     %s\n", runtime.Version())
		},
	}
}
