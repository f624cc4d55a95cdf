package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/open-verix/timeproof/internal/logging"
	"github.com/open-verix/timeproof/internal/oracle"
	"github.com/open-verix/timeproof/internal/transport"
)

// FileName is the project configuration file written by `timeproof init`.
const FileName = "timeproof.yaml"

// Config represents the complete timeproof configuration.
type Config struct {
	Output      OutputConfig  `mapstructure:"output" yaml:"output"`
	Time        TimeConfig    `mapstructure:"time" yaml:"time"`
	Quotes      QuotesConfig  `mapstructure:"quotes" yaml:"quotes"`
	Publish     PublishConfig `mapstructure:"publish" yaml:"publish"`
	Retry       RetryConfig   `mapstructure:"retry" yaml:"retry"`
	Concurrency int           `mapstructure:"concurrency" yaml:"concurrency"`
	Index       IndexConfig   `mapstructure:"index" yaml:"index"`
	Metrics     MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Bundle      BundleConfig  `mapstructure:"bundle" yaml:"bundle"`
	Logging     LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Policy      PolicyConfig  `mapstructure:"policy" yaml:"policy"`
}

// OutputConfig configures where packages go and which reports accompany them.
type OutputConfig struct {
	Dir     string   `mapstructure:"dir" yaml:"dir"`
	Reports []string `mapstructure:"reports" yaml:"reports"`
}

// TimeConfig configures the network time chain.
type TimeConfig struct {
	Timeout time.Duration  `mapstructure:"timeout" yaml:"timeout"`
	Sources []SourceConfig `mapstructure:"sources" yaml:"sources"`
}

// SourceConfig is one time source, tried in list order.
type SourceConfig struct {
	Name    string `mapstructure:"name" yaml:"name"`
	URL     string `mapstructure:"url" yaml:"url"`
	Kind    string `mapstructure:"kind" yaml:"kind"`
	Adapter string `mapstructure:"adapter" yaml:"adapter,omitempty"`
}

// QuotesConfig configures the market quote source.
type QuotesConfig struct {
	Endpoint string        `mapstructure:"endpoint" yaml:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Symbols  []string      `mapstructure:"symbols" yaml:"symbols"`
}

// PublishConfig configures publication URL probes.
type PublishConfig struct {
	HeadTimeout time.Duration `mapstructure:"head-timeout" yaml:"head-timeout"`
	GetTimeout  time.Duration `mapstructure:"get-timeout" yaml:"get-timeout"`
}

// RetryConfig configures retry behavior of the two outbound clients.
type RetryConfig struct {
	Oracle  RetryPolicyConfig `mapstructure:"oracle" yaml:"oracle"`
	Publish RetryPolicyConfig `mapstructure:"publish" yaml:"publish"`
}

// RetryPolicyConfig configures one retry policy.
type RetryPolicyConfig struct {
	MaxAttempts  int           `mapstructure:"max-attempts" yaml:"max-attempts"`
	InitialDelay time.Duration `mapstructure:"initial-delay" yaml:"initial-delay"`
	MaxDelay     time.Duration `mapstructure:"max-delay" yaml:"max-delay"`
}

// IndexConfig configures the package history database.
type IndexConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// MetricsConfig configures metrics export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile" yaml:"textfile"`
}

// BundleConfig configures bundle uploads. Endpoint and credentials come
// from the S3_* environment.
type BundleConfig struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// LoggingConfig configures logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// PolicyConfig points at the evidence policy file.
type PolicyConfig struct {
	File string `mapstructure:"file" yaml:"file"`
}

// Default returns the default configuration.
func Default() *Config {
	oraclePolicy := transport.OraclePolicy()
	publishPolicy := transport.PublishPolicy()

	return &Config{
		Output: OutputConfig{
			Dir:     "evidence_packages",
			Reports: []string{"markdown", "html"},
		},
		Time: TimeConfig{
			Timeout: oracle.DefaultTimeout,
			Sources: defaultSources(),
		},
		Quotes: QuotesConfig{
			Endpoint: oracle.DefaultQuoteEndpoint,
			Timeout:  oracle.DefaultTimeout,
			Symbols:  []string{"AAPL.US"},
		},
		Publish: PublishConfig{
			HeadTimeout: 8 * time.Second,
			GetTimeout:  10 * time.Second,
		},
		Retry: RetryConfig{
			Oracle: RetryPolicyConfig{
				MaxAttempts:  oraclePolicy.MaxAttempts,
				InitialDelay: oraclePolicy.InitialDelay,
				MaxDelay:     oraclePolicy.MaxDelay,
			},
			Publish: RetryPolicyConfig{
				MaxAttempts:  publishPolicy.MaxAttempts,
				InitialDelay: publishPolicy.InitialDelay,
				MaxDelay:     publishPolicy.MaxDelay,
			},
		},
		Concurrency: 1,
		Index: IndexConfig{
			Path: filepath.Join("evidence_packages", "index.db"),
		},
		Metrics: MetricsConfig{
			Textfile: "",
		},
		Bundle: BundleConfig{},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
		Policy: PolicyConfig{
			File: "",
		},
	}
}

func defaultSources() []SourceConfig {
	var out []SourceConfig
	for _, s := range oracle.DefaultTimeSources() {
		out = append(out, SourceConfig{
			Name:    s.Name,
			URL:     s.URL,
			Kind:    string(s.Kind),
			Adapter: s.Adapter,
		})
	}
	return out
}

// Load loads configuration from file, environment variables, and defaults.
//
// Configuration priority (highest to lowest):
//  1. Environment variables (TIMEPROOF_*)
//  2. Configuration file (timeproof.yaml)
//  3. Default values
//
// The configPath parameter specifies the path to the configuration file.
// If empty, the loader searches for timeproof.yaml in the current directory.
//
// NEVER searches in:
//   - ~/.config/timeproof/
//   - /etc/timeproof/
//
// Configuration is project-scoped only.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set default values
	setDefaults(v)

	// Configure Viper
	v.SetConfigName("timeproof")
	v.SetConfigType("yaml")
	v.SetEnvPrefix("TIMEPROOF")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Determine config file location
	if configPath != "" {
		// Explicit path provided
		v.SetConfigFile(configPath)
	} else {
		// Search in current directory only (project-scoped)
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
		v.AddConfigPath(cwd)
	}

	// Read config file (optional - use defaults if not found)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			// Config file found but had an error
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found - use defaults (this is OK)
	}

	// Unmarshal into Config struct
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(cfg.Time.Sources) == 0 {
		cfg.Time.Sources = defaultSources()
	}

	return cfg, nil
}

// setDefaults sets default values in Viper. time.sources is filled after
// unmarshalling since list-of-struct defaults do not merge with files.
func setDefaults(v *viper.Viper) {
	defaults := Default()

	// Output defaults
	v.SetDefault("output.dir", defaults.Output.Dir)
	v.SetDefault("output.reports", defaults.Output.Reports)

	// Time defaults
	v.SetDefault("time.timeout", defaults.Time.Timeout)

	// Quote defaults
	v.SetDefault("quotes.endpoint", defaults.Quotes.Endpoint)
	v.SetDefault("quotes.timeout", defaults.Quotes.Timeout)
	v.SetDefault("quotes.symbols", defaults.Quotes.Symbols)

	// Publish defaults
	v.SetDefault("publish.head-timeout", defaults.Publish.HeadTimeout)
	v.SetDefault("publish.get-timeout", defaults.Publish.GetTimeout)

	// Retry defaults
	v.SetDefault("retry.oracle.max-attempts", defaults.Retry.Oracle.MaxAttempts)
	v.SetDefault("retry.oracle.initial-delay", defaults.Retry.Oracle.InitialDelay)
	v.SetDefault("retry.oracle.max-delay", defaults.Retry.Oracle.MaxDelay)
	v.SetDefault("retry.publish.max-attempts", defaults.Retry.Publish.MaxAttempts)
	v.SetDefault("retry.publish.initial-delay", defaults.Retry.Publish.InitialDelay)
	v.SetDefault("retry.publish.max-delay", defaults.Retry.Publish.MaxDelay)

	v.SetDefault("concurrency", defaults.Concurrency)

	// Storage defaults
	v.SetDefault("index.path", defaults.Index.Path)
	v.SetDefault("metrics.textfile", defaults.Metrics.Textfile)
	v.SetDefault("bundle.bucket", defaults.Bundle.Bucket)
	v.SetDefault("bundle.prefix", defaults.Bundle.Prefix)

	// Logging defaults
	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("policy.file", defaults.Policy.File)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Output.Dir == "" {
		return fmt.Errorf("output.dir must not be empty")
	}

	validReports := map[string]bool{
		"markdown": true,
		"html":     true,
	}
	for _, r := range c.Output.Reports {
		if !validReports[r] {
			return fmt.Errorf("invalid report: %s (must be markdown or html)", r)
		}
	}

	if len(c.Time.Sources) == 0 {
		return fmt.Errorf("time.sources must list at least one source")
	}
	for i, s := range c.Time.Sources {
		if s.Name == "" || s.URL == "" {
			return fmt.Errorf("time.sources[%d] requires name and url", i)
		}
		if _, err := oracle.TimeAdapter(s.Source(0)); err != nil {
			return fmt.Errorf("time.sources[%d]: %w", i, err)
		}
	}

	timeouts := map[string]time.Duration{
		"time.timeout":         c.Time.Timeout,
		"quotes.timeout":       c.Quotes.Timeout,
		"publish.head-timeout": c.Publish.HeadTimeout,
		"publish.get-timeout":  c.Publish.GetTimeout,
	}
	for key, d := range timeouts {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", key, d)
		}
	}

	if !strings.Contains(c.Quotes.Endpoint, "{symbol}") {
		return fmt.Errorf("quotes.endpoint must contain {symbol}: %s", c.Quotes.Endpoint)
	}

	if c.Retry.Oracle.MaxAttempts < 1 || c.Retry.Publish.MaxAttempts < 1 {
		return fmt.Errorf("retry max-attempts must be at least 1")
	}

	if c.Concurrency < 1 {
		return fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency)
	}

	// Validate logging level
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid logging level: %s", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("invalid logging format: %s (must be json or console)", c.Logging.Format)
	}

	return nil
}

// Source converts the entry to an oracle source bounded by timeout.
func (s SourceConfig) Source(timeout time.Duration) oracle.Source {
	return oracle.Source{
		Name:    s.Name,
		URL:     s.URL,
		Kind:    oracle.Kind(s.Kind),
		Adapter: s.Adapter,
		Timeout: timeout,
	}
}

// TimeSources returns the configured chain in order.
func (c *Config) TimeSources() []oracle.Source {
	out := make([]oracle.Source, 0, len(c.Time.Sources))
	for _, s := range c.Time.Sources {
		out = append(out, s.Source(c.Time.Timeout))
	}
	return out
}

// Policy returns the retry policy built from p.
func (p RetryPolicyConfig) Policy() transport.RetryPolicy {
	return transport.RetryPolicy{
		MaxAttempts:  p.MaxAttempts,
		InitialDelay: p.InitialDelay,
		MaxDelay:     p.MaxDelay,
		Statuses:     transport.DefaultRetryStatuses,
	}
}

// Write writes c as YAML to path, refusing to overwrite unless force is set.
func (c *Config) Write(path string, force bool) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_EXCL
	if force {
		flags = os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	}
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return f.Close()
}
