package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/open-verix/timeproof/internal/oracle"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Output.Dir != "evidence_packages" {
		t.Errorf("expected default output dir 'evidence_packages', got '%s'", cfg.Output.Dir)
	}

	if cfg.Retry.Oracle.MaxAttempts != 3 || cfg.Retry.Oracle.InitialDelay != 300*time.Millisecond {
		t.Errorf("unexpected oracle retry defaults: %+v", cfg.Retry.Oracle)
	}

	if cfg.Retry.Publish.MaxAttempts != 2 || cfg.Retry.Publish.InitialDelay != 200*time.Millisecond {
		t.Errorf("unexpected publish retry defaults: %+v", cfg.Retry.Publish)
	}

	if len(cfg.Time.Sources) != 5 || cfg.Time.Sources[0].Name != "json_wta" {
		t.Errorf("unexpected default time sources: %+v", cfg.Time.Sources)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}
}

func TestLoadWithDefaults(t *testing.T) {
	// Create temporary directory
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Load config without file (should use defaults)
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("loaded defaults differ (-want +got):\n%s", diff)
	}
}

func TestLoadFromFile(t *testing.T) {
	tmpDir := t.TempDir()
	t.Chdir(tmpDir)

	// Create config file
	configContent := `
output:
  dir: packages
  reports: [markdown]
time:
  timeout: 3s
  sources:
    - name: local
      url: http://127.0.0.1:9/time
      kind: json
      adapter: worldtimeapi
    - name: fallback
      url: http://127.0.0.1:9/
      kind: http-date
retry:
  oracle:
    max-attempts: 5
concurrency: 4
`
	configPath := filepath.Join(tmpDir, FileName)
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Load config
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Output.Dir != "packages" {
		t.Errorf("expected dir 'packages', got '%s'", cfg.Output.Dir)
	}
	if len(cfg.Output.Reports) != 1 || cfg.Output.Reports[0] != "markdown" {
		t.Errorf("expected reports [markdown], got %v", cfg.Output.Reports)
	}
	if cfg.Time.Timeout != 3*time.Second {
		t.Errorf("expected time timeout 3s, got %s", cfg.Time.Timeout)
	}
	if cfg.Retry.Oracle.MaxAttempts != 5 {
		t.Errorf("expected oracle max-attempts 5, got %d", cfg.Retry.Oracle.MaxAttempts)
	}
	// untouched keys keep defaults
	if cfg.Retry.Oracle.InitialDelay != 300*time.Millisecond {
		t.Errorf("expected default initial-delay, got %s", cfg.Retry.Oracle.InitialDelay)
	}
	if cfg.Concurrency != 4 {
		t.Errorf("expected concurrency 4, got %d", cfg.Concurrency)
	}

	sources := cfg.TimeSources()
	want := []oracle.Source{
		{Name: "local", URL: "http://127.0.0.1:9/time", Kind: oracle.KindJSON, Adapter: oracle.AdapterWorldTimeAPI, Timeout: 3 * time.Second},
		{Name: "fallback", URL: "http://127.0.0.1:9/", Kind: oracle.KindHTTPDate, Timeout: 3 * time.Second},
	}
	if diff := cmp.Diff(want, sources); diff != "" {
		t.Errorf("time sources mismatch (-want +got):\n%s", diff)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("loaded config invalid: %v", err)
	}
}

func TestLoadFromExplicitPath(t *testing.T) {
	tmpDir := t.TempDir()

	// Create config file
	configContent := `
quotes:
  symbols: [TSLA.US, 000001.SS]
`
	configPath := filepath.Join(tmpDir, "custom.yaml")
	if err := os.WriteFile(configPath, []byte(configContent), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	// Load config from explicit path
	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if diff := cmp.Diff([]string{"TSLA.US", "000001.SS"}, cfg.Quotes.Symbols); diff != "" {
		t.Errorf("symbols mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(configPath, []byte("output: [unclosed"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(configPath); err == nil {
		t.Error("expected error for malformed config")
	}
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	t.Chdir(t.TempDir())

	// Environment variables override defaults
	t.Setenv("TIMEPROOF_OUTPUT_DIR", "from-env")
	t.Setenv("TIMEPROOF_PUBLISH_HEAD_TIMEOUT", "2s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Output.Dir != "from-env" {
		t.Errorf("expected dir from env 'from-env', got '%s'", cfg.Output.Dir)
	}
	if cfg.Publish.HeadTimeout != 2*time.Second {
		t.Errorf("expected head timeout from env 2s, got %s", cfg.Publish.HeadTimeout)
	}
}

func TestWriteRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	if err := Default().Write(path, false); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := Default().Write(path, false); err == nil {
		t.Error("Write() overwrote an existing file without force")
	}
	if err := Default().Write(path, true); err != nil {
		t.Errorf("Write() with force error = %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty output dir",
			mutate:  func(c *Config) { c.Output.Dir = "" },
			wantErr: true,
			errMsg:  "output.dir",
		},
		{
			name:    "unknown report",
			mutate:  func(c *Config) { c.Output.Reports = []string{"pdf"} },
			wantErr: true,
			errMsg:  "invalid report",
		},
		{
			name: "unknown source kind",
			mutate: func(c *Config) {
				c.Time.Sources = []SourceConfig{{Name: "x", URL: "http://x", Kind: "ntp"}}
			},
			wantErr: true,
			errMsg:  "unknown source kind",
		},
		{
			name: "json source without adapter",
			mutate: func(c *Config) {
				c.Time.Sources = []SourceConfig{{Name: "x", URL: "http://x", Kind: "json"}}
			},
			wantErr: true,
			errMsg:  "no time adapter",
		},
		{
			name:    "no sources",
			mutate:  func(c *Config) { c.Time.Sources = nil },
			wantErr: true,
			errMsg:  "at least one source",
		},
		{
			name:    "non-positive timeout",
			mutate:  func(c *Config) { c.Publish.GetTimeout = 0 },
			wantErr: true,
			errMsg:  "publish.get-timeout must be positive",
		},
		{
			name:    "endpoint without placeholder",
			mutate:  func(c *Config) { c.Quotes.Endpoint = "https://stooq.com/q/l/" },
			wantErr: true,
			errMsg:  "{symbol}",
		},
		{
			name:    "zero attempts",
			mutate:  func(c *Config) { c.Retry.Publish.MaxAttempts = 0 },
			wantErr: true,
			errMsg:  "max-attempts",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Concurrency = 0 },
			wantErr: true,
			errMsg:  "concurrency",
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "loud" },
			wantErr: true,
			errMsg:  "invalid logging level",
		},
		{
			name:    "off log level",
			mutate:  func(c *Config) { c.Logging.Level = "off" },
			wantErr: false,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "text" },
			wantErr: true,
			errMsg:  "invalid logging format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error containing '%s', got nil", tt.errMsg)
				} else if !strings.Contains(err.Error(), tt.errMsg) {
					t.Errorf("expected error containing '%s', got '%v'", tt.errMsg, err)
				}
			} else if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestRetryPolicy(t *testing.T) {
	p := Default().Retry.Oracle.Policy()
	if p.MaxAttempts != 3 || p.InitialDelay != 300*time.Millisecond || len(p.Statuses) == 0 {
		t.Errorf("unexpected policy: %+v", p)
	}
}
