package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/open-verix/timeproof/internal/evidence"
	"github.com/open-verix/timeproof/internal/index"
	"github.com/open-verix/timeproof/internal/providers"
	"github.com/open-verix/timeproof/internal/providers/metadata"
)

type generateOptions struct {
	symbols     []string
	urls        []string
	urlsFile    string
	outputDir   string
	strict      bool
	noReports   bool
	concurrency int
}

func newGenerateCmd(reg *providers.Registry, flags *globalFlags) *cobra.Command {
	opts := &generateOptions{}

	cmd := &cobra.Command{
		Use:   "generate <photo>",
		Short: "Create an evidence package for a photo",
		Long: `Create an evidence package for a photo.

The workflow:
  1. Hash the photo (SHA-256); an unreadable photo is the only fatal error
  2. Read embedded metadata (EXIF)
  3. Acquire a network UTC instant from the time source chain
  4. Snapshot market quotes for each symbol
  5. Copy the photo into a new package directory and re-verify the copy
  6. Probe each publication URL (HEAD, falling back to GET)
  7. Write evidence.json, then the configured reports

Every step after the first records its own failure in evidence.json
instead of aborting. The gaps are printed at the end.

Exit Codes:
  0 - Package written
  1 - Fatal error (photo unreadable, package could not be written)
  2 - Package written with gaps (only with --strict)
`,
		Example: `  # Package a photo with the configured symbols
  timeproof generate IMG_0042.jpg

  # Snapshot two symbols and check where the photo was posted
  timeproof generate IMG_0042.jpg --symbol AAPL.US --symbol MSFT.US \
    --url https://example.com/posts/42

  # Read publication URLs from a file, fail on any gap
  timeproof generate IMG_0042.jpg --urls-file urls.txt --strict`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(cmd, reg, flags, opts, args[0])
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&opts.symbols, "symbol", nil, "Ticker to snapshot, e.g. AAPL.US (repeatable; default from config)")
	f.StringArrayVar(&opts.urls, "url", nil, "Publication URL to probe (repeatable)")
	f.StringVar(&opts.urlsFile, "urls-file", "", "File with one publication URL per line")
	f.StringVarP(&opts.outputDir, "output-dir", "o", "", "Package root directory (default from config)")
	f.BoolVar(&opts.strict, "strict", false, "Exit 2 when the package has gaps")
	f.BoolVar(&opts.noReports, "no-reports", false, "Skip report rendering")
	f.IntVar(&opts.concurrency, "concurrency", 0, "Parallel quote and URL fetches (default from config)")

	return cmd
}

func runGenerate(cmd *cobra.Command, reg *providers.Registry, flags *globalFlags, opts *generateOptions, photo string) error {
	out := cmd.OutOrStdout()

	cfg, err := loadConfig(flags)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	if opts.outputDir != "" {
		cfg.Output.Dir = opts.outputDir
	}
	if opts.concurrency > 0 {
		cfg.Concurrency = opts.concurrency
	}
	symbols := cfg.Quotes.Symbols
	if cmd.Flags().Changed("symbol") {
		symbols = opts.symbols
	}

	urls := append([]string{}, opts.urls...)
	if opts.urlsFile != "" {
		fromFile, err := readURLsFile(opts.urlsFile)
		if err != nil {
			return &ExitError{Code: ExitFatal, Err: err}
		}
		urls = append(urls, fromFile...)
	}

	rt, err := newSession(cfg)
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	defer rt.close()

	timeOracle, err := rt.timeOracle()
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}

	var renderers []evidence.Renderer
	if !opts.noReports {
		rps, err := reg.RendererProviders(cfg.Output.Reports)
		if err != nil {
			return &ExitError{Code: ExitFatal, Err: err}
		}
		for _, p := range rps {
			renderers = append(renderers, p)
		}
	}

	var meta metadata.Provider
	if p, err := reg.GetMetadataProvider("exif"); err == nil {
		meta = p
	} else {
		rt.logger.Debug("no metadata reader registered", zap.Error(err))
	}

	var idx evidence.Indexer
	if cfg.Index.Path != "" {
		db, err := index.Open(cfg.Index.Path)
		if err != nil {
			rt.logger.Warn("history index unavailable", zap.String("path", cfg.Index.Path), zap.Error(err))
		} else {
			defer db.Close()
			idx = db
		}
	}

	assembler, err := evidence.NewAssembler(evidence.Options{
		OutputDir:        cfg.Output.Dir,
		GeneratorVersion: Version,
		Concurrency:      cfg.Concurrency,
		Time:             timeOracle,
		Quotes:           rt.quoteSource(),
		Publish:          rt.publishVerifier(),
		Metadata:         meta,
		Renderers:        renderers,
		Index:            idx,
		Logger:           rt.logger,
	})
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}

	fmt.Fprintf(out, "📷 Packaging: %s\n", photo)

	pkg, err := assembler.Assemble(context.Background(), evidence.Request{
		Path:        photo,
		Symbols:     symbols,
		PublishURLs: urls,
	})
	if err != nil {
		return &ExitError{Code: ExitFatal, Err: err}
	}
	rt.metrics.ObservePackage(pkg.Record)

	printPackageSummary(out, pkg)

	gaps := pkg.Record.Gaps()
	if len(gaps) == 0 {
		fmt.Fprintln(out, "\n✅ Evidence package complete")
		return nil
	}

	fmt.Fprintf(out, "\n⚠️  Package written with %d gap(s):\n", len(gaps))
	for _, g := range gaps {
		fmt.Fprintf(out, "  • %s\n", g)
	}
	if opts.strict {
		return &ExitError{Code: ExitPartialSuccess, Err: fmt.Errorf("evidence package has %d gap(s)", len(gaps))}
	}
	return nil
}

func printPackageSummary(out io.Writer, pkg *evidence.Package) {
	rec := pkg.Record

	fmt.Fprintf(out, "🔐 SHA-256: %s\n", rec.SHA256)
	fmt.Fprintf(out, "📦 Package: %s\n", pkg.Dir)
	fmt.Fprintf(out, "📄 Record:  %s\n", pkg.RecordPath)

	if rec.Time.OK() {
		fmt.Fprintf(out, "🕐 Network time: %s (%s)\n", *rec.Time.UTCInstant, *rec.Time.Source)
	}
	for _, q := range rec.Quotes {
		if q.OK() {
			fmt.Fprintf(out, "📈 %s close: %s\n", q.Symbol, *q.Close)
		}
	}
	for _, c := range rec.PublishChecks {
		if c.OK() {
			fmt.Fprintf(out, "🌐 %s → %d\n", c.URL, *c.StatusCode)
		}
	}
	if rec.Verification.Intact() {
		fmt.Fprintln(out, "✓ Packaged copy verified")
	}
	for _, r := range pkg.Reports {
		fmt.Fprintf(out, "📝 Report: %s\n", r)
	}
	fmt.Fprintf(out, "⏱  Took %s\n", pkg.Duration.Round(time.Millisecond))
}

// readURLsFile reads one URL per line. Blank lines and lines starting with
// '#' are skipped.
func readURLsFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open URLs file: %w", err)
	}
	defer f.Close()

	var urls []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read URLs file: %w", err)
	}
	return urls, nil
}
