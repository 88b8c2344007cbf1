package apitester

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/output"
	"github.com/PentesterFlow/apiprobe/internal/scope"
)

// Config holds all session configuration.
type Config struct {
	// Base URL of the API under test
	BaseURL string `json:"base_url" yaml:"base_url"`

	// API type: rest or graphql
	APIType model.APIType `json:"api_type" yaml:"api_type"`

	// Number of endpoints tested concurrently
	Workers int `json:"workers" yaml:"workers"`

	// Per-probe timeouts
	Timeouts TimeoutConfig `json:"timeouts" yaml:"timeouts"`

	// Rate-limit characterization
	RateLimitTest RateLimitTestConfig `json:"rate_limit_test" yaml:"rate_limit_test"`

	// Global probe throttle
	RateLimit RateLimitConfig `json:"rate_limit" yaml:"rate_limit"`

	// Authentication
	Auth model.AuthConfig `json:"auth" yaml:"auth"`

	// Scope rules
	Scope scope.ScopeRules `json:"scope" yaml:"scope"`

	// Output configuration
	Output output.Config `json:"output" yaml:"output"`

	// State persistence
	State StateConfig `json:"state" yaml:"state"`

	// Endpoint discovery
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`

	// Deadline for a whole session, 0 for none
	SessionTimeout time.Duration `json:"session_timeout" yaml:"session_timeout"`

	// Skip TLS certificate verification
	SkipTLSVerify bool `json:"skip_tls_verify" yaml:"skip_tls_verify"`

	// User agent sent with every probe
	UserAgent string `json:"user_agent" yaml:"user_agent"`

	// Custom headers to include in all requests
	CustomHeaders map[string]string `json:"custom_headers" yaml:"custom_headers"`

	// Verbose logging
	Verbose bool `json:"verbose" yaml:"verbose"`

	// Debug mode
	Debug bool `json:"debug" yaml:"debug"`
}

// TimeoutConfig bounds each probe family.
type TimeoutConfig struct {
	Discovery time.Duration `json:"discovery" yaml:"discovery"`
	Fuzz      time.Duration `json:"fuzz" yaml:"fuzz"`
	Auth      time.Duration `json:"auth" yaml:"auth"`
	GraphQL   time.Duration `json:"graphql" yaml:"graphql"`
	RateLimit time.Duration `json:"rate_limit" yaml:"rate_limit"`
	CORS      time.Duration `json:"cors" yaml:"cors"`
}

// RateLimitTestConfig configures the rate-limit burst.
type RateLimitTestConfig struct {
	Enabled  bool          `json:"enabled" yaml:"enabled"`
	Requests int           `json:"requests" yaml:"requests"`
	Pacing   time.Duration `json:"pacing" yaml:"pacing"`
}

// RateLimitConfig throttles every outgoing probe. Zero disables it.
type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int     `json:"burst" yaml:"burst"`
}

// StateConfig configures session persistence.
type StateConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	FilePath string `json:"file_path" yaml:"file_path"`
}

// DiscoveryConfig configures endpoint discovery.
type DiscoveryConfig struct {
	// Paths to probe; the built-in wordlist when empty
	Wordlist []string `json:"wordlist" yaml:"wordlist"`

	// File with one path per line, appended to Wordlist
	WordlistFile string `json:"wordlist_file" yaml:"wordlist_file"`

	// OpenAPI document path or URL to import
	OpenAPI string `json:"openapi" yaml:"openapi"`

	// Look for an OpenAPI document at well-known paths
	FindOpenAPI bool `json:"find_openapi" yaml:"find_openapi"`

	// Add robots.txt paths to the wordlist
	Robots bool `json:"robots" yaml:"robots"`

	// Collect endpoints referenced by the landing page and its scripts
	Pages bool `json:"pages" yaml:"pages"`

	// Skip wordlist probing, e.g. when only importing OpenAPI
	Skip bool `json:"skip" yaml:"skip"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		APIType: model.APITypeREST,
		Workers: 5,
		Timeouts: TimeoutConfig{
			Discovery: 5 * time.Second,
			Fuzz:      10 * time.Second,
			Auth:      10 * time.Second,
			GraphQL:   10 * time.Second,
			RateLimit: 5 * time.Second,
			CORS:      5 * time.Second,
		},
		RateLimitTest: RateLimitTestConfig{
			Enabled:  true,
			Requests: 100,
			Pacing:   100 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 0,
			Burst:             10,
		},
		Auth: model.AuthConfig{
			Type: model.AuthTypeNone,
		},
		Output: output.Config{
			Format: "json",
			Pretty: true,
		},
		State: StateConfig{
			Enabled: false,
		},
		Discovery: DiscoveryConfig{
			FindOpenAPI: true,
			Robots:      true,
			Pages:       true,
		},
		SkipTLSVerify: true,
		UserAgent:     "apiprobe/1.0",
	}
}

// QuickConfig returns a configuration for a fast first look: more workers,
// shorter timeouts and a smaller rate-limit burst.
func QuickConfig() *Config {
	c := DefaultConfig()
	c.Workers = 20
	c.Timeouts = TimeoutConfig{
		Discovery: 3 * time.Second,
		Fuzz:      6 * time.Second,
		Auth:      5 * time.Second,
		GraphQL:   5 * time.Second,
		RateLimit: 3 * time.Second,
		CORS:      3 * time.Second,
	}
	c.RateLimitTest.Requests = 60
	c.RateLimitTest.Pacing = 20 * time.Millisecond
	c.Output.Pretty = false
	c.Output.Stream = true
	c.Discovery.Robots = false
	return c
}

// LoadFromFile loads configuration from a file (JSON or YAML).
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()

	// Try YAML first, then JSON
	if err := yaml.Unmarshal(data, config); err != nil {
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	return config, nil
}

// SaveToFile saves configuration to a file, as JSON for a .json path and
// YAML otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".json") {
		data, err = json.MarshalIndent(c, "", "  ")
	} else {
		data, err = yaml.Marshal(c)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the configuration. Every failure is a Config error.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.NewConfigError("validate", "base URL is required")
	}
	if !scope.IsValidBaseURL(c.BaseURL) {
		return errors.NewConfigError("validate", fmt.Sprintf("base URL %q must be an absolute http(s) URL", c.BaseURL))
	}
	if !c.APIType.Supported() {
		return errors.NewConfigError("validate", fmt.Sprintf("unsupported api type %q", c.APIType))
	}
	if c.Workers < 1 {
		return errors.NewConfigError("validate", "workers must be at least 1")
	}
	if c.RateLimit.RequestsPerSecond < 0 {
		return errors.NewConfigError("validate", "rate limit must not be negative")
	}
	if c.RateLimitTest.Requests < 0 {
		return errors.NewConfigError("validate", "rate limit test requests must not be negative")
	}
	if c.SessionTimeout < 0 {
		return errors.NewConfigError("validate", "session timeout must not be negative")
	}
	for _, p := range append(append([]string(nil), c.Scope.IncludePatterns...), c.Scope.ExcludePatterns...) {
		if _, err := scope.NewChecker(c.BaseURL, scope.ScopeRules{IncludePatterns: []string{p}}); err != nil {
			return errors.NewConfigError("validate", fmt.Sprintf("invalid scope pattern %q: %v", p, err))
		}
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	data, _ := json.Marshal(c)
	clone := &Config{}
	json.Unmarshal(data, clone)
	return clone
}
