package apitester

import (
	"bytes"
	"testing"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/metrics"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Helper to create a minimal tester for option testing
func newOptionTester() *APITester {
	return &APITester{
		config: DefaultConfig(),
	}
}

func apply(t *testing.T, at *APITester, opts ...Option) {
	t.Helper()
	for _, opt := range opts {
		if err := opt(at); err != nil {
			t.Fatalf("option error = %v", err)
		}
	}
}

// =============================================================================
// Target Options
// =============================================================================

func TestWithBaseURLAndAPIType(t *testing.T) {
	at := newOptionTester()
	apply(t, at, WithBaseURL("https://api.test"), WithAPIType(model.APITypeGraphQL))

	if at.config.BaseURL != "https://api.test" {
		t.Errorf("BaseURL = %s", at.config.BaseURL)
	}
	if at.config.APIType != model.APITypeGraphQL {
		t.Errorf("APIType = %s", at.config.APIType)
	}
}

func TestWithWorkers(t *testing.T) {
	tests := []struct {
		name   string
		input  int
		expect int
	}{
		{"normal value", 8, 8},
		{"zero", 0, 1},
		{"negative", -5, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := newOptionTester()
			apply(t, at, WithWorkers(tt.input))
			if at.config.Workers != tt.expect {
				t.Errorf("Workers = %d, want %d", at.config.Workers, tt.expect)
			}
		})
	}
}

func TestWithConfig_IsCopied(t *testing.T) {
	cfg := DefaultConfig()
	cfg.BaseURL = "https://api.test"
	cfg.CustomHeaders = map[string]string{"X-Team": "red"}

	at := newOptionTester()
	apply(t, at, WithConfig(cfg), WithCustomHeaders(map[string]string{"X-Run": "1"}))

	if at.config.BaseURL != "https://api.test" {
		t.Errorf("BaseURL = %s", at.config.BaseURL)
	}
	if len(at.config.CustomHeaders) != 2 {
		t.Errorf("CustomHeaders = %v", at.config.CustomHeaders)
	}
	if _, ok := cfg.CustomHeaders["X-Run"]; ok {
		t.Error("options must not modify the caller's config")
	}
}

// =============================================================================
// Auth Options
// =============================================================================

func TestAuthOptions(t *testing.T) {
	tests := []struct {
		name     string
		opt      Option
		wantType model.AuthType
		check    func(cfg model.AuthConfig) bool
	}{
		{
			name:     "bearer",
			opt:      WithBearerToken("tok"),
			wantType: model.AuthTypeBearer,
			check:    func(cfg model.AuthConfig) bool { return cfg.CurrentToken == "tok" },
		},
		{
			name:     "basic",
			opt:      WithBasicAuth("admin", "secret"),
			wantType: model.AuthTypeBasic,
			check: func(cfg model.AuthConfig) bool {
				return cfg.Credential("username") == "admin" && cfg.Credential("password") == "secret"
			},
		},
		{
			name:     "api key",
			opt:      WithAPIKeyAuth("X-Api-Key", "k1"),
			wantType: model.AuthTypeAPIKey,
			check: func(cfg model.AuthConfig) bool {
				return cfg.Credential("header") == "X-Api-Key" && cfg.Credential("key") == "k1"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			at := newOptionTester()
			apply(t, at, tt.opt)
			if at.config.Auth.Type != tt.wantType {
				t.Errorf("Auth.Type = %s, want %s", at.config.Auth.Type, tt.wantType)
			}
			if !tt.check(at.config.Auth) {
				t.Errorf("Auth = %+v", at.config.Auth)
			}
		})
	}
}

// =============================================================================
// Probe Options
// =============================================================================

func TestWithRateLimitTest(t *testing.T) {
	at := newOptionTester()
	apply(t, at, WithRateLimitTest(20, 10*time.Millisecond))
	if !at.config.RateLimitTest.Enabled || at.config.RateLimitTest.Requests != 20 {
		t.Errorf("RateLimitTest = %+v", at.config.RateLimitTest)
	}

	apply(t, at, WithRateLimitTest(0, 0))
	if at.config.RateLimitTest.Enabled {
		t.Error("zero requests should disable the rate-limit test")
	}
}

func TestWithRateLimit(t *testing.T) {
	at := newOptionTester()
	apply(t, at, WithRateLimit(25, 5))
	if at.config.RateLimit.RequestsPerSecond != 25 || at.config.RateLimit.Burst != 5 {
		t.Errorf("RateLimit = %+v", at.config.RateLimit)
	}
}

func TestScopeOptions(t *testing.T) {
	at := newOptionTester()
	apply(t, at,
		WithIncludePatterns("^/api"),
		WithIncludePatterns("^/v2"),
		WithExcludePatterns("/logout"),
	)
	if len(at.config.Scope.IncludePatterns) != 2 {
		t.Errorf("IncludePatterns = %v", at.config.Scope.IncludePatterns)
	}
	if len(at.config.Scope.ExcludePatterns) != 1 {
		t.Errorf("ExcludePatterns = %v", at.config.Scope.ExcludePatterns)
	}
}

func TestDiscoveryOptions(t *testing.T) {
	at := newOptionTester()
	apply(t, at, WithWordlist("/a", "/b"), WithOpenAPI("spec.yaml"))
	if len(at.config.Discovery.Wordlist) != 2 {
		t.Errorf("Wordlist = %v", at.config.Discovery.Wordlist)
	}
	if at.config.Discovery.OpenAPI != "spec.yaml" {
		t.Errorf("OpenAPI = %s", at.config.Discovery.OpenAPI)
	}
}

// =============================================================================
// Output Options
// =============================================================================

func TestOutputOptions(t *testing.T) {
	var buf bytes.Buffer
	at := newOptionTester()
	apply(t, at,
		WithOutput(&buf),
		WithOutputFile("report.json"),
		WithPrettyOutput(false),
		WithStreamMode(true),
		WithStateFile("session.db"),
		WithProgress(&buf),
	)

	if at.outputWriter != &buf || at.progressOut != &buf {
		t.Error("writers not set")
	}
	if at.config.Output.FilePath != "report.json" || at.config.Output.Pretty || !at.config.Output.Stream {
		t.Errorf("Output = %+v", at.config.Output)
	}
	if !at.config.State.Enabled || at.config.State.FilePath != "session.db" {
		t.Errorf("State = %+v", at.config.State)
	}
}

func TestCollaboratorOptions(t *testing.T) {
	l := logger.Nop()
	m := metrics.New()
	sim := &fakeSimulator{}
	doer := &failingDoer{}

	at := newOptionTester()
	apply(t, at, WithLogger(l), WithMetrics(m), WithSimulator(sim), WithHTTPClient(doer), WithVerbose(true), WithDebug(true))

	if at.logger != l || at.metrics != m {
		t.Error("logger or metrics not set")
	}
	if at.simulator != sim || at.client != doer {
		t.Error("simulator or client not set")
	}
	if !at.config.Verbose || !at.config.Debug {
		t.Error("verbose or debug not set")
	}
}
