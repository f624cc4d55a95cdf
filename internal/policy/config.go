package policy

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the policy configuration.
type Config struct {
	// Version is the config schema version
	Version string `yaml:"version"`

	// Integrity contains hash re-verification policies
	Integrity *IntegrityPolicy `yaml:"integrity,omitempty"`

	// Time contains network time policies
	Time *TimePolicy `yaml:"time,omitempty"`

	// Quotes contains market quote policies
	Quotes *QuotePolicy `yaml:"quotes,omitempty"`

	// Publish contains publication check policies
	Publish *PublishPolicy `yaml:"publish,omitempty"`

	// Custom contains custom CEL rules
	Custom *CustomPolicy `yaml:"custom,omitempty"`
}

// IntegrityPolicy defines hash re-verification policies.
type IntegrityPolicy struct {
	// RequireIntact requires the packaged copy to match the original digest
	RequireIntact bool `yaml:"require_intact,omitempty"`

	// RequireCopy requires the artifact to have been copied into the package
	RequireCopy bool `yaml:"require_copy,omitempty"`
}

// TimePolicy defines network time policies.
type TimePolicy struct {
	// Required makes a network time attestation mandatory
	Required bool `yaml:"required,omitempty"`

	// MaxSkew warns when the local clock and the network instant differ by
	// more than this (e.g., "5m"); zero disables the check
	MaxSkew time.Duration `yaml:"max_skew,omitempty"`
}

// QuotePolicy defines market quote policies.
type QuotePolicy struct {
	// MinSuccessful is the minimum number of successful quotes
	MinSuccessful int `yaml:"min_successful,omitempty"`
}

// PublishPolicy defines publication check policies.
type PublishPolicy struct {
	// MinSuccessful is the minimum number of URLs that must have answered
	MinSuccessful int `yaml:"min_successful,omitempty"`

	// WarnOnFailure warns for every URL that could not be probed
	WarnOnFailure bool `yaml:"warn_on_failure,omitempty"`
}

// CustomPolicy defines custom policy rules.
type CustomPolicy struct {
	// CELEnabled enables CEL (Common Expression Language) rules
	CELEnabled bool `yaml:"cel_enabled,omitempty"`

	// CELExpressions is a list of CEL expressions to evaluate
	CELExpressions []CELExpression `yaml:"cel_expressions,omitempty"`
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Version: "v1",
		Integrity: &IntegrityPolicy{
			RequireIntact: true,
			RequireCopy:   true,
		},
		Time: &TimePolicy{
			Required: true,
			MaxSkew:  5 * time.Minute,
		},
		Quotes: &QuotePolicy{
			MinSuccessful: 0,
		},
		Publish: &PublishPolicy{
			MinSuccessful: 0,
			WarnOnFailure: true,
		},
		Custom: &CustomPolicy{
			CELEnabled:     false,
			CELExpressions: []CELExpression{},
		},
	}
}

// LoadConfig loads policy configuration from a file.
// Searches for a policy file in the following locations (in order):
//  1. Explicitly provided path
//  2. ./timeproof-policy.yaml (current directory)
//  3. ./.timeproof-policy.yaml (hidden file)
//
// Note: Only searches in project directory, NEVER in ~/.config or /etc
func LoadConfig(path string) (*Config, error) {
	if path != "" {
		return loadConfigFromFile(path)
	}

	searchPaths := []string{
		"timeproof-policy.yaml",
		".timeproof-policy.yaml",
	}

	for _, searchPath := range searchPaths {
		if _, err := os.Stat(searchPath); err == nil {
			return loadConfigFromFile(searchPath)
		}
	}

	// No config found, return default
	return DefaultConfig(), nil
}

// loadConfigFromFile loads configuration from a specific file.
func loadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse policy file %s: %w", path, err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &config, nil
}

// validateConfig validates the policy configuration.
func validateConfig(config *Config) error {
	if config.Version != "v1" {
		return fmt.Errorf("unsupported policy version: %s (expected v1)", config.Version)
	}

	if config.Time != nil && config.Time.MaxSkew < 0 {
		return fmt.Errorf("time.max_skew must be >= 0")
	}
	if config.Quotes != nil && config.Quotes.MinSuccessful < 0 {
		return fmt.Errorf("quotes.min_successful must be >= 0")
	}
	if config.Publish != nil && config.Publish.MinSuccessful < 0 {
		return fmt.Errorf("publish.min_successful must be >= 0")
	}

	if config.Custom != nil && config.Custom.CELEnabled {
		if _, err := NewCELEvaluator(config.Custom.CELExpressions); err != nil {
			return err
		}
	}

	return nil
}

// SaveConfig saves the configuration to a file.
func SaveConfig(config *Config, path string) error {
	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal policy: %w", err)
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write policy file %s: %w", path, err)
	}

	return nil
}
