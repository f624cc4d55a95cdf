package cli

import (
	"fmt"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/integrity"
	"github.com/open-verix/timeproof/internal/policy"
)

// verifyReport is the outcome of re-verifying an existing package.
type verifyReport struct {
	Package string `json:"package"`
	RunID   string `json:"run_id"`
	SHA256  string `json:"sha256"`

	// Copy is the recomputation of the packaged copy
	Copy integrity.Verification `json:"copy"`

	// File is the recomputation of a third-party file, if one was given
	File *fileCheck `json:"file,omitempty"`

	Policy *policy.Result `json:"policy"`
}

type fileCheck struct {
	Path string `json:"path"`
	integrity.Verification
}

func (r *verifyReport) passed() bool {
	if !r.Copy.Intact() {
		return false
	}
	if r.File != nil && !r.File.Intact() {
		return false
	}
	return r.Policy == nil || r.Policy.Passed
}

func newVerifyCmd(flags *globalFlags) *cobra.Command {
	var (
		file       string
		policyFile string
		format     string
	)

	cmd := &cobra.Command{
		Use:   "verify <package-dir>",
		Short: "Re-verify an existing evidence package",
		Long: `Re-verify an existing evidence package.

The packaged copy is re-hashed and compared to the digest recorded in
evidence.json. With --file, a file received from someone else is hashed
and compared as well. The record is then evaluated against the evidence
policy (timeproof-policy.yaml, or --policy).

The package is never modified.

Exit Codes:
  0 - Copy intact and policy passed
  1 - Mismatch, unreadable package, or policy violation
`,
		Example: `  timeproof verify evidence_packages/evidence_20260314_092653
  timeproof verify evidence_packages/evidence_20260314_092653 --file received.jpg
  timeproof verify evidence_packages/evidence_20260314_092653 --policy strict-policy.yaml --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkFormat(format, "text", "json"); err != nil {
				return err
			}
			cfg, err := loadConfig(flags)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}
			if policyFile == "" {
				policyFile = cfg.Policy.File
			}

			report, err := verifyPackage(cmd, args[0], file, policyFile)
			if err != nil {
				return &ExitError{Code: ExitFatal, Err: err}
			}

			out := cmd.OutOrStdout()
			if format == "json" {
				if err := writeJSON(out, report); err != nil {
					return err
				}
			} else {
				printVerifyReport(out, report)
			}

			if !report.passed() {
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("package %s failed verification", report.Package)}
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&file, "file", "", "Also compare this file against the recorded digest")
	f.StringVar(&policyFile, "policy", "", "Evidence policy file (default: timeproof-policy.yaml if present)")
	f.StringVar(&format, "format", "text", "Output format: text, json")

	return cmd
}

func verifyPackage(cmd *cobra.Command, path, file, policyFile string) (*verifyReport, error) {
	ctx := cmd.Context()

	rec, err := evidence.LoadRecord(path)
	if err != nil {
		return nil, err
	}
	dir := evidence.PackageDir(path)

	report := &verifyReport{
		Package: dir,
		RunID:   rec.RunID,
		SHA256:  rec.SHA256,
	}

	// The package may have moved since it was written; the copy is looked
	// up by name inside the directory.
	if rec.CopiedPath == nil {
		report.Copy = integrity.Missing(rec.Hash(), "record has no packaged copy")
	} else {
		report.Copy = integrity.Verify(ctx, filepath.Join(dir, filepath.Base(*rec.CopiedPath)), rec.Hash())
	}

	if file != "" {
		report.File = &fileCheck{Path: file, Verification: integrity.Verify(ctx, file, rec.Hash())}
	}

	cfg, err := policy.LoadConfig(policyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy: %w", err)
	}
	engine, err := policy.NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	report.Policy, err = engine.Evaluate(ctx, rec)
	if err != nil {
		return nil, fmt.Errorf("policy evaluation failed: %w", err)
	}

	return report, nil
}

func printVerifyReport(out io.Writer, r *verifyReport) {
	fmt.Fprintf(out, "🔍 Package: %s\n", r.Package)
	fmt.Fprintf(out, "   Run:     %s\n", r.RunID)
	fmt.Fprintf(out, "   SHA-256: %s\n\n", r.SHA256)

	printVerification(out, "Packaged copy", r.Copy)
	if r.File != nil {
		printVerification(out, r.File.Path, r.File.Verification)
	}

	if r.Policy == nil {
		return
	}
	fmt.Fprintln(out)
	for _, v := range r.Policy.Violations {
		fmt.Fprintf(out, "❌ [%s] %s\n", v.Severity, v.Message)
	}
	for _, w := range r.Policy.Warnings {
		fmt.Fprintf(out, "⚠️  %s\n", w.Message)
	}
	if r.Policy.Passed {
		fmt.Fprintln(out, "✅ Policy passed")
	} else {
		fmt.Fprintf(out, "❌ Policy failed with %d violation(s)\n", len(r.Policy.Violations))
	}
}

func printVerification(out io.Writer, label string, v integrity.Verification) {
	switch {
	case v.Error != nil:
		fmt.Fprintf(out, "❌ %s: %s\n", label, *v.Error)
	case v.Intact():
		fmt.Fprintf(out, "✅ %s: digest matches\n", label)
	default:
		fmt.Fprintf(out, "❌ %s: digest mismatch (got %s)\n", label, *v.Recomputed)
	}
}
