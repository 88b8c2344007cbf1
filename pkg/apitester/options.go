package apitester

import (
	"io"
	"time"

	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/metrics"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Option configures an APITester.
type Option func(*APITester) error

// WithConfig replaces the whole configuration. Later options still apply on
// top of it.
func WithConfig(config *Config) Option {
	return func(t *APITester) error {
		t.config = config.Clone()
		return nil
	}
}

// WithBaseURL sets the API base URL.
func WithBaseURL(baseURL string) Option {
	return func(t *APITester) error {
		t.config.BaseURL = baseURL
		return nil
	}
}

// WithAPIType sets the API type.
func WithAPIType(apiType model.APIType) Option {
	return func(t *APITester) error {
		t.config.APIType = apiType
		return nil
	}
}

// WithWorkers sets the number of endpoints tested concurrently.
func WithWorkers(n int) Option {
	return func(t *APITester) error {
		if n < 1 {
			n = 1
		}
		t.config.Workers = n
		return nil
	}
}

// WithAuth sets the session authentication.
func WithAuth(cfg model.AuthConfig) Option {
	return func(t *APITester) error {
		t.config.Auth = cfg
		return nil
	}
}

// WithBearerToken authenticates with a static bearer token.
func WithBearerToken(token string) Option {
	return WithAuth(model.AuthConfig{
		Type:         model.AuthTypeBearer,
		CurrentToken: token,
	})
}

// WithBasicAuth authenticates with HTTP basic credentials.
func WithBasicAuth(username, password string) Option {
	return WithAuth(model.AuthConfig{
		Type:        model.AuthTypeBasic,
		Credentials: map[string]string{"username": username, "password": password},
	})
}

// WithAPIKeyAuth sends key in the given header.
func WithAPIKeyAuth(header, key string) Option {
	return WithAuth(model.AuthConfig{
		Type:        model.AuthTypeAPIKey,
		Credentials: map[string]string{"header": header, "key": key},
	})
}

// WithRateLimit throttles every outgoing probe.
func WithRateLimit(requestsPerSecond float64, burst int) Option {
	return func(t *APITester) error {
		t.config.RateLimit.RequestsPerSecond = requestsPerSecond
		t.config.RateLimit.Burst = burst
		return nil
	}
}

// WithRateLimitTest configures the rate-limit burst run against every
// endpoint. requests <= 0 disables it.
func WithRateLimitTest(requests int, pacing time.Duration) Option {
	return func(t *APITester) error {
		t.config.RateLimitTest.Enabled = requests > 0
		t.config.RateLimitTest.Requests = requests
		t.config.RateLimitTest.Pacing = pacing
		return nil
	}
}

// WithSessionTimeout bounds a whole Run.
func WithSessionTimeout(d time.Duration) Option {
	return func(t *APITester) error {
		t.config.SessionTimeout = d
		return nil
	}
}

// WithTimeouts sets the per-probe timeouts.
func WithTimeouts(timeouts TimeoutConfig) Option {
	return func(t *APITester) error {
		t.config.Timeouts = timeouts
		return nil
	}
}

// WithIncludePatterns restricts testing to paths matching one of patterns.
func WithIncludePatterns(patterns ...string) Option {
	return func(t *APITester) error {
		t.config.Scope.IncludePatterns = append(t.config.Scope.IncludePatterns, patterns...)
		return nil
	}
}

// WithExcludePatterns skips paths matching any of patterns.
func WithExcludePatterns(patterns ...string) Option {
	return func(t *APITester) error {
		t.config.Scope.ExcludePatterns = append(t.config.Scope.ExcludePatterns, patterns...)
		return nil
	}
}

// WithWordlist sets the paths probed during discovery.
func WithWordlist(paths ...string) Option {
	return func(t *APITester) error {
		t.config.Discovery.Wordlist = paths
		return nil
	}
}

// WithOpenAPI imports endpoints from an OpenAPI document path or URL.
func WithOpenAPI(location string) Option {
	return func(t *APITester) error {
		t.config.Discovery.OpenAPI = location
		return nil
	}
}

// WithCustomHeaders adds headers to every probe.
func WithCustomHeaders(headers map[string]string) Option {
	return func(t *APITester) error {
		if t.config.CustomHeaders == nil {
			t.config.CustomHeaders = make(map[string]string)
		}
		for k, v := range headers {
			t.config.CustomHeaders[k] = v
		}
		return nil
	}
}

// WithUserAgent sets the probe user agent.
func WithUserAgent(ua string) Option {
	return func(t *APITester) error {
		t.config.UserAgent = ua
		return nil
	}
}

// WithOutput sets the output writer for the report and streamed events.
func WithOutput(w io.Writer) Option {
	return func(t *APITester) error {
		t.outputWriter = w
		return nil
	}
}

// WithOutputFile writes the report to path.
func WithOutputFile(path string) Option {
	return func(t *APITester) error {
		t.config.Output.FilePath = path
		return nil
	}
}

// WithPrettyOutput enables indented report output.
func WithPrettyOutput(pretty bool) Option {
	return func(t *APITester) error {
		t.config.Output.Pretty = pretty
		return nil
	}
}

// WithStreamMode streams endpoints and findings as JSON lines.
func WithStreamMode(stream bool) Option {
	return func(t *APITester) error {
		t.config.Output.Stream = stream
		return nil
	}
}

// WithStateFile persists the session to path.
func WithStateFile(path string) Option {
	return func(t *APITester) error {
		t.config.State.Enabled = true
		t.config.State.FilePath = path
		return nil
	}
}

// WithVerbose enables info logging.
func WithVerbose(verbose bool) Option {
	return func(t *APITester) error {
		t.config.Verbose = verbose
		return nil
	}
}

// WithDebug enables debug logging.
func WithDebug(debug bool) Option {
	return func(t *APITester) error {
		t.config.Debug = debug
		return nil
	}
}

// WithLogger sets a custom logger.
func WithLogger(l *logger.Logger) Option {
	return func(t *APITester) error {
		t.logger = l
		return nil
	}
}

// WithMetrics sets a custom metrics collector.
func WithMetrics(m *metrics.Collector) Option {
	return func(t *APITester) error {
		t.metrics = m
		return nil
	}
}

// WithHTTPClient sends every probe through client instead of the built-in
// one.
func WithHTTPClient(client probehttp.Doer) Option {
	return func(t *APITester) error {
		t.client = client
		return nil
	}
}

// WithSimulator replaces network discovery and testing with sim.
func WithSimulator(sim Simulator) Option {
	return func(t *APITester) error {
		t.simulator = sim
		return nil
	}
}

// WithProgress renders a progress line to w during Run.
func WithProgress(w io.Writer) Option {
	return func(t *APITester) error {
		t.progressOut = w
		return nil
	}
}
