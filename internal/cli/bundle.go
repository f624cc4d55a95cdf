package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/bundle"
)

func newBundleCmd(flags *globalFlags) *cobra.Command {
	var (
		output string
		upload bool
		bucket string
		prefix string
	)

	cmd := &cobra.Command{
		Use:   "bundle <package-dir>",
		Short: "Export an evidence package as a single tar.zst archive",
		Long: `Export an evidence package as a zstd-compressed tar archive.

The archive starts with manifest.yaml, which lists the SHA-256 and size of
every file in the package. The package directory is never modified.

With --upload the archive is stored in an S3-compatible bucket. The
endpoint and credentials come from S3_ENDPOINT, S3_REGION, S3_ACCESS_KEY
and S3_SECRET_KEY; bucket and prefix default to bundle.bucket and
bundle.prefix.`,
		Example: `  timeproof bundle evidence_packages/evidence_20260314_092653
  timeproof bundle evidence_packages/evidence_20260314_092653 -o /tmp/photo.tar.zst
  timeproof bundle evidence_packages/evidence_20260314_092653 --upload --bucket evidence
  timeproof bundle verify evidence_packages/evidence_20260314_092653.tar.zst`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			if bucket == "" {
				bucket = cfg.Bundle.Bucket
			}
			if prefix == "" {
				prefix = cfg.Bundle.Prefix
			}
			if upload && bucket == "" {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("--upload needs a bucket (--bucket or bundle.bucket)")}
			}

			dir := args[0]
			if output == "" {
				output = bundle.DefaultOutput(dir)
			}

			manifest, err := bundle.Export(ctx, dir, output, time.Now())
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			fmt.Fprintf(out, "📦 Bundle: %s (%d file(s))\n", output, len(manifest.Files))

			if !upload {
				return nil
			}

			client, err := bundle.NewS3Client(ctx, bundle.S3OptionsFromEnv())
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			location, err := bundle.Upload(ctx, client, bucket, prefix, output)
			if err != nil {
				// The archive exists locally.
				return &ExitError{Code: ExitPartialSuccess, Err: err}
			}
			fmt.Fprintf(out, "☁️  Uploaded: %s\n", location)
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVarP(&output, "output", "o", "", "Archive path (default: <package-dir>.tar.zst)")
	f.BoolVar(&upload, "upload", false, "Upload the archive to S3-compatible storage")
	f.StringVar(&bucket, "bucket", "", "Upload bucket (default: bundle.bucket)")
	f.StringVar(&prefix, "prefix", "", "Upload key prefix (default: bundle.prefix)")

	cmd.AddCommand(newBundleVerifyCmd())
	return cmd
}

func newBundleVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <archive>",
		Short: "Check every file of a bundle against its manifest",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			manifest, err := bundle.Verify(cmd.Context(), args[0])
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "✅ %s: %d file(s) match the manifest\n", args[0], len(manifest.Files))
			fmt.Fprintf(out, "   run:      %s\n", manifest.RunID)
			fmt.Fprintf(out, "   artifact: %s\n", manifest.Artifact)
			return nil
		},
	}
}
