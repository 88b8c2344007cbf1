package apitester

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/apiprobe/internal/auth"
	"github.com/PentesterFlow/apiprobe/internal/authtest"
	"github.com/PentesterFlow/apiprobe/internal/discovery"
	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/fuzzer"
	"github.com/PentesterFlow/apiprobe/internal/graphql"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/metrics"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/output"
	"github.com/PentesterFlow/apiprobe/internal/progress"
	"github.com/PentesterFlow/apiprobe/internal/ratelimit"
	"github.com/PentesterFlow/apiprobe/internal/ratetest"
	"github.com/PentesterFlow/apiprobe/internal/scope"
	"github.com/PentesterFlow/apiprobe/internal/state"
)

// baselineExcerpt bounds the body text kept on a TestResult.
const baselineExcerpt = 1000

// APITester is one testing session against a single API. It owns the probe
// client, the testers and the accumulated findings. Its methods are safe for
// concurrent use.
type APITester struct {
	config       *Config
	client       probehttp.Doer
	ownClient    *probehttp.Client
	logger       *logger.Logger
	metrics      *metrics.Collector
	limiter      *ratelimit.Limiter
	scope        *scope.Checker
	state        *state.Manager
	output       output.Writer
	outputWriter io.Writer
	progress     *progress.Display
	progressOut  io.Writer
	simulator    Simulator

	discoverer *discovery.Discoverer
	authTester *authtest.Tester
	fuzzer     *fuzzer.Fuzzer
	graphql    *graphql.Tester
	rateTester *ratetest.Tester

	authMu       sync.RWMutex
	authProvider auth.Provider

	mu         sync.Mutex
	startTime  time.Time
	endpoints  []model.Endpoint
	results    []model.TestResult
	vulns      []model.Vulnerability
	rateLimits []model.RateLimitReport
	errs       []state.SessionError
}

// New creates a session with the given options. Invalid configuration is
// reported as a Config error before anything is sent.
func New(opts ...Option) (*APITester, error) {
	t := &APITester{
		config: DefaultConfig(),
	}

	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if err := t.config.Validate(); err != nil {
		return nil, err
	}
	if base, err := scope.NormalizeBaseURL(t.config.BaseURL); err == nil {
		t.config.BaseURL = base
	}

	if t.logger == nil {
		t.logger = logger.New(logger.Config{
			Level:     logger.LevelFor(t.config.Verbose, t.config.Debug),
			Pretty:    true,
			Component: "apitester",
		})
	}
	if t.metrics == nil {
		t.metrics = metrics.New()
	}

	if err := t.initialize(); err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

// initialize sets up all session components.
func (t *APITester) initialize() error {
	var err error

	t.scope, err = scope.NewChecker(t.config.BaseURL, t.config.Scope)
	if err != nil {
		return errors.NewConfigError("scope", err.Error())
	}

	t.limiter = ratelimit.NewLimiter(t.config.RateLimit.RequestsPerSecond, t.config.RateLimit.Burst)

	if t.client == nil {
		cc := probehttp.DefaultClientConfig()
		cc.Timeout = t.config.Timeouts.Fuzz
		cc.UserAgent = t.config.UserAgent
		cc.Headers = t.config.CustomHeaders
		cc.SkipTLSVerify = t.config.SkipTLSVerify
		cc.Limiter = t.limiter
		cc.Metrics = t.metrics
		cc.Logger = t.logger
		t.ownClient = probehttp.NewClient(cc)
		t.client = t.ownClient
	}

	var store state.Store
	if t.config.State.Enabled && t.config.State.FilePath != "" {
		store, err = state.Open(t.config.State.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create state store: %w", err)
		}
	}
	t.state = state.NewManager(store, 10000)
	t.state.Start(t.config.BaseURL)
	t.startTime = t.state.StartTime()

	t.discoverer = discovery.New(t.client, t.logger, discovery.Config{
		Timeout: t.config.Timeouts.Discovery,
		Workers: t.config.Workers * 2,
		Headers: t.config.CustomHeaders,
		Dedup:   t.state.GetDeduplicator(),
		Scope:   t.scope,
		Retrier: t.newRetrier(),
	})
	t.authTester = authtest.New(t.client, t.logger, authtest.Config{
		Timeout:        t.config.Timeouts.Auth,
		SessionHeaders: t.sessionCredentialHeaders,
	})
	t.fuzzer = fuzzer.New(t.client, t.logger, fuzzer.Config{Timeout: t.config.Timeouts.Fuzz})
	t.graphql = graphql.New(t.client, t.logger, graphql.Config{Timeout: t.config.Timeouts.GraphQL})
	t.rateTester = ratetest.New(t.client, t.logger, ratetest.Config{
		Timeout:  t.config.Timeouts.RateLimit,
		Pacing:   t.config.RateLimitTest.Pacing,
		Requests: t.config.RateLimitTest.Requests,
	})

	w := t.outputWriter
	if w == nil && t.config.Output.FilePath != "" {
		f, err := os.Create(t.config.Output.FilePath)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		w = f
	}
	if w != nil {
		t.output = output.NewWriter(w, t.config.Output)
	}

	if t.progressOut != nil {
		t.progress = progress.NewWithWriter(t.progressOut)
		if t.output != nil {
			t.output = output.NewProgressWriter(t.output, func(s output.ProgressStats) {
				snap := t.metrics.Snapshot()
				t.progress.Update(snap.ProbesTotal, snap.ErrorsTotal)
			})
		}
	}

	return nil
}

// Config returns a copy of the session configuration.
func (t *APITester) Config() *Config {
	return t.config.Clone()
}

// SessionID returns the session identifier.
func (t *APITester) SessionID() string {
	return t.state.SessionID()
}

// Metrics returns the session metrics collector.
func (t *APITester) Metrics() *metrics.Collector {
	return t.metrics
}

// newRetrier returns the retrier for token and discovery fetches. Retries
// are counted in the session metrics.
func (t *APITester) newRetrier() *errors.Retrier {
	cfg := errors.DefaultRetryConfig()
	cfg.OnRetry = func(operation string, attempt int, err error) {
		t.metrics.RecordRetry()
		t.logger.WithError(err).Debugf("Retrying %s (attempt %d)", operation, attempt+1)
	}
	return errors.NewRetrier(cfg)
}

// Authenticate resolves the configured authentication, fetching a token
// when the config points at a token endpoint. Run calls it; callers driving
// TestEndpoint directly may too.
func (t *APITester) Authenticate(ctx context.Context) (*model.AuthConfig, error) {
	cfg := t.config.Auth
	if cfg.IsNone() {
		return nil, nil
	}

	resolved, provider, err := auth.Resolve(ctx, &cfg, auth.Options{Retrier: t.newRetrier()})
	if err != nil {
		t.logger.WithError(err).Error("Authentication failed")
		return nil, err
	}

	t.authMu.Lock()
	t.authProvider = provider
	t.authMu.Unlock()

	t.logger.WithField("type", string(provider.Type())).Info("Authenticated")
	return resolved, nil
}

func (t *APITester) currentProvider() auth.Provider {
	t.authMu.RLock()
	defer t.authMu.RUnlock()
	return t.authProvider
}

// sessionCredentialHeaders names the headers the auth provider adds to
// every probe.
func (t *APITester) sessionCredentialHeaders() []string {
	p := t.currentProvider()
	if p == nil {
		return nil
	}
	var names []string
	for name := range p.Headers() {
		names = append(names, name)
	}
	return names
}

// refreshAuth renews an expiring token before an endpoint is tested. A
// failed refresh is logged and the current token kept.
func (t *APITester) refreshAuth(ctx context.Context) {
	p := t.currentProvider()
	if p == nil {
		return
	}
	if err := p.RefreshIfNeeded(ctx); err != nil {
		t.logger.WithError(err).Warn("Token refresh failed, keeping current token")
	}
}

// DiscoverEndpoints finds endpoints under the base URL: wordlist probing
// (wordlist, else the configured one, else the default), robots.txt paths,
// an OpenAPI document and, for GraphQL sessions, the GraphQL endpoint.
// Found endpoints are added to the session. The error is non-nil only for
// cancellation or an unreadable wordlist file.
func (t *APITester) DiscoverEndpoints(ctx context.Context, wordlist []string) ([]model.Endpoint, error) {
	if t.simulator != nil {
		found, err := t.simulator.DiscoverEndpoints(ctx, t.config.BaseURL)
		t.addEndpoints(found)
		return found, err
	}

	t.logger.Infof("Discovering endpoints on %s", t.config.BaseURL)

	if len(wordlist) == 0 {
		var err error
		wordlist, err = t.configuredWordlist()
		if err != nil {
			return nil, err
		}
	}
	if len(wordlist) == 0 {
		wordlist = append([]string(nil), discovery.DefaultWordlist...)
	}

	if t.config.Discovery.Robots {
		paths, err := t.discoverer.RobotsPaths(ctx, t.config.BaseURL)
		if err != nil {
			t.recordError(t.config.BaseURL+"/robots.txt", err)
		}
		wordlist = append(wordlist, paths...)
	}

	var found []model.Endpoint
	if !t.config.Discovery.Skip {
		eps, err := t.discoverer.Probe(ctx, t.config.BaseURL, wordlist)
		found = append(found, eps...)
		if err != nil {
			t.addEndpoints(found)
			return found, err
		}
	}

	if t.config.Discovery.Pages {
		eps, err := t.discoverer.PageEndpoints(ctx, t.config.BaseURL)
		found = append(found, eps...)
		if err != nil {
			if errors.IsCancelled(err) {
				t.addEndpoints(found)
				return found, err
			}
			t.recordError(t.config.BaseURL, err)
		}
	}

	location := t.config.Discovery.OpenAPI
	if location == "" && t.config.Discovery.FindOpenAPI {
		location, _ = t.discoverer.FindOpenAPI(ctx, t.config.BaseURL)
	}
	if location != "" {
		eps, err := t.discoverer.ImportOpenAPI(ctx, location, t.config.BaseURL)
		if err != nil {
			t.logger.ErrorEvent(err, location, "openapi_import")
			t.recordError(location, err)
		} else {
			t.logger.Infof("Imported %d endpoints from %s", len(eps), location)
		}
		found = append(found, eps...)
	}

	if t.config.APIType == model.APITypeGraphQL && !hasGraphQLEndpoint(found) {
		known := append(t.Endpoints(), found...)
		if ep := t.discoverer.ProbeGraphQL(ctx, t.config.BaseURL); ep != nil && !containsKey(known, ep.Key()) {
			found = append(found, *ep)
		}
	}

	t.addEndpoints(found)
	t.logger.Infof("Discovered %d endpoints", len(found))

	if ctx.Err() != nil {
		return found, errors.NewCancelledError(t.config.BaseURL, "discovery")
	}
	return found, nil
}

func (t *APITester) configuredWordlist() ([]string, error) {
	paths := append([]string(nil), t.config.Discovery.Wordlist...)
	if t.config.Discovery.WordlistFile == "" {
		return paths, nil
	}
	fromFile, err := ReadWordlist(t.config.Discovery.WordlistFile)
	if err != nil {
		return nil, err
	}
	return append(paths, fromFile...), nil
}

// ReadWordlist reads one path per line, skipping blank lines and # comments.
func ReadWordlist(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.NewConfigError("wordlist", err.Error())
	}
	defer f.Close()

	var paths []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		paths = append(paths, line)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.NewParseError(path, "wordlist", err)
	}
	return paths, nil
}

func hasGraphQLEndpoint(eps []model.Endpoint) bool {
	for _, ep := range eps {
		if scope.ClassifyPath(ep.Path) == "graphql" {
			return true
		}
	}
	return false
}

func containsKey(eps []model.Endpoint, key string) bool {
	for _, ep := range eps {
		if ep.Key() == key {
			return true
		}
	}
	return false
}

// TestEndpoint runs every applicable tester against ep: authentication
// bypass when ep requires auth or cfg is given, the fuzzer, the rate-limit
// burst and, for GraphQL sessions, the GraphQL probes. The result and its
// findings are added to the session. The error is non-nil only when ctx is
// done, in which case the partial result is still recorded.
func (t *APITester) TestEndpoint(ctx context.Context, ep model.Endpoint, cfg *model.AuthConfig) (model.TestResult, error) {
	if t.simulator != nil {
		result, err := t.simulator.TestEndpoint(ctx, ep)
		if err != nil {
			t.recordError(ep.Key(), err)
			return result, err
		}
		t.recordResult(result)
		return result, nil
	}

	t.logger.WithEndpoint(ep.Method, ep.Path).Info("Testing endpoint")
	t.metrics.AddActiveWorkers(1)
	defer t.metrics.AddActiveWorkers(-1)

	t.refreshAuth(ctx)
	probe := auth.Apply(ep, t.currentProvider())
	result := model.TestResult{
		Endpoint:  ep,
		TestType:  TestTypeComprehensive,
		Timestamp: time.Now(),
	}
	t.baseline(ctx, probe, &result)

	err := t.runTesters(ctx, probe, cfg, &result)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
	}
	t.recordResult(result)
	return result, err
}

func (t *APITester) runTesters(ctx context.Context, ep model.Endpoint, cfg *model.AuthConfig, result *model.TestResult) error {
	if ep.AuthRequired || cfg != nil {
		vulns, err := t.authTester.TestAuthBypass(ctx, ep, cfg)
		result.Vulnerabilities = append(result.Vulnerabilities, vulns...)
		if err != nil {
			return err
		}
	}

	vulns, err := t.fuzzer.FuzzParameters(ctx, ep, cfg)
	result.Vulnerabilities = append(result.Vulnerabilities, vulns...)
	if err != nil {
		return err
	}

	if t.config.RateLimitTest.Enabled {
		report, err := t.rateTester.TestRateLimits(ctx, ep, cfg, t.config.RateLimitTest.Requests)
		t.mu.Lock()
		t.rateLimits = append(t.rateLimits, report)
		t.mu.Unlock()
		if report.Vulnerability != nil {
			result.Vulnerabilities = append(result.Vulnerabilities, *report.Vulnerability)
		}
		if err != nil {
			return err
		}
	}

	if t.config.APIType == model.APITypeGraphQL {
		vulns, err := t.graphql.TestAll(ctx, ep)
		result.Vulnerabilities = append(result.Vulnerabilities, vulns...)
		if err != nil {
			return err
		}
	}
	return nil
}

// baseline replays ep unchanged and fills the observed response into result.
func (t *APITester) baseline(ctx context.Context, ep model.Endpoint, result *model.TestResult) {
	req := probehttp.NewRequest("baseline", ep)
	req.Timeout = t.config.Timeouts.Fuzz

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		return
	}
	result.StatusCode = resp.StatusCode
	result.ResponseTime = resp.Seconds()
	result.Headers = resp.Headers()
	result.Body = resp.Excerpt(baselineExcerpt)
}

// TestGraphQL runs the GraphQL probes against ep and adds the findings to
// the session. It is a Config error on a session whose API type is not
// GraphQL.
func (t *APITester) TestGraphQL(ctx context.Context, ep model.Endpoint) ([]model.Vulnerability, error) {
	if t.config.APIType != model.APITypeGraphQL {
		return nil, errors.NewConfigError("graphql", fmt.Sprintf("GraphQL probes need a graphql session, this one is %q", t.config.APIType))
	}
	vulns, err := t.graphql.TestAll(ctx, auth.Apply(ep, t.currentProvider()))
	t.addVulnerabilities(vulns)
	return vulns, err
}

// Run executes a whole session: authentication, discovery, per-endpoint
// testing on a bounded worker pool, the CORS sweep and the report. A report
// is returned even when the session deadline or ctx cuts the run short; the
// error then says so.
func (t *APITester) Run(ctx context.Context) (*output.Report, error) {
	if t.config.SessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.config.SessionTimeout)
		defer cancel()
	}

	if t.progress != nil {
		t.progress.Start(t.config.BaseURL)
		defer t.progress.Stop()
	}

	t.logger.WithField("session", t.SessionID()).Infof("Starting %s API session against %s", t.config.APIType, t.config.BaseURL)

	cfg, err := t.Authenticate(ctx)
	if err != nil {
		return nil, err
	}

	var runErr error
	endpoints, err := t.DiscoverEndpoints(ctx, nil)
	if err != nil {
		if errors.IsCancelled(err) {
			runErr = err
		} else {
			return nil, err
		}
	}

	if runErr == nil {
		endpoints = t.scope.Filter(endpoints)
		if t.progress != nil {
			t.progress.SetTotal(len(endpoints))
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(t.config.Workers)
		for _, ep := range endpoints {
			ep := ep
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				t.TestEndpoint(gctx, ep, cfg)
				return nil
			})
		}
		g.Wait()

		if len(endpoints) > 0 {
			if _, err := t.TestCORSConfiguration(ctx, endpoints); err != nil {
				runErr = err
			}
		}
	}
	if runErr == nil && ctx.Err() != nil {
		runErr = errors.NewCancelledError(t.config.BaseURL, "run")
	}

	report := t.GenerateReport()
	stats := t.metrics.Snapshot().Summary()
	for k, v := range t.limiter.Stats().Fields() {
		stats[k] = v
	}
	t.logger.StatsEvent(stats)

	if err := t.SaveState(runErr == nil); err != nil {
		t.logger.WithError(err).Warn("Failed to save session state")
	}
	if t.output != nil {
		if err := t.output.WriteReport(report); err != nil {
			return report, fmt.Errorf("failed to write report: %w", err)
		}
		t.output.Flush()
	}

	if runErr != nil {
		t.logger.WithError(runErr).Warn("Session ended early; report is partial")
	}
	return report, runErr
}

// GenerateReport projects the session into a report. It has no side effects
// and repeated calls give identical summaries.
func (t *APITester) GenerateReport() *output.Report {
	t.mu.Lock()
	defer t.mu.Unlock()

	return output.BuildReport(output.ReportInput{
		BaseURL:         t.config.BaseURL,
		APIType:         t.config.APIType,
		Timestamp:       t.startTime,
		Endpoints:       t.endpoints,
		TestedCount:     len(t.results),
		Vulnerabilities: t.vulns,
	})
}

// Snapshot returns the persistable state of the session.
func (t *APITester) Snapshot() *state.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()

	cfg := t.config.Clone()
	cfg.Auth = model.AuthConfig{Type: cfg.Auth.Type}
	raw, _ := json.Marshal(cfg)

	return &state.SessionState{
		ID:              t.state.SessionID(),
		Target:          t.config.BaseURL,
		APIType:         t.config.APIType,
		StartedAt:       t.startTime,
		Config:          raw,
		Endpoints:       append([]model.Endpoint(nil), t.endpoints...),
		Results:         append([]model.TestResult(nil), t.results...),
		Vulnerabilities: append([]model.Vulnerability(nil), t.vulns...),
		RateLimits:      append([]model.RateLimitReport(nil), t.rateLimits...),
		Errors:          append([]state.SessionError(nil), t.errs...),
		Stats: state.SessionStats{
			EndpointsDiscovered: len(t.endpoints),
			EndpointsTested:     len(t.results),
			Vulnerabilities:     len(t.vulns),
			Probes:              t.metrics.Snapshot().ProbesTotal,
			ErrorCount:          len(t.errs),
		},
	}
}

// SaveState persists the session when a state file is configured.
func (t *APITester) SaveState(completed bool) error {
	st := t.Snapshot()
	st.Completed = completed
	return t.state.Save(st)
}

// ReportFromState rebuilds the report of a saved session.
func ReportFromState(st *state.SessionState) *output.Report {
	return output.BuildReport(output.ReportInput{
		BaseURL:         st.Target,
		APIType:         st.APIType,
		Timestamp:       st.StartedAt,
		Endpoints:       st.Endpoints,
		TestedCount:     len(st.Results),
		Vulnerabilities: st.Vulnerabilities,
	})
}

// LoadState reads the latest session saved at path.
func LoadState(path string) (*state.SessionState, error) {
	store, err := state.Open(path)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	st, err := store.Load()
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, errors.NewConfigError("load_state", fmt.Sprintf("no saved session in %s", path))
	}
	return st, nil
}

// Endpoints returns the discovered endpoints.
func (t *APITester) Endpoints() []model.Endpoint {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Endpoint(nil), t.endpoints...)
}

// Results returns the recorded test results.
func (t *APITester) Results() []model.TestResult {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.TestResult(nil), t.results...)
}

// Vulnerabilities returns every finding so far.
func (t *APITester) Vulnerabilities() []model.Vulnerability {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.Vulnerability(nil), t.vulns...)
}

// RateLimitReports returns the rate-limit characterization of each tested
// endpoint.
func (t *APITester) RateLimitReports() []model.RateLimitReport {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]model.RateLimitReport(nil), t.rateLimits...)
}

// Stats returns the current session counters.
func (t *APITester) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return Stats{
		EndpointsDiscovered: len(t.endpoints),
		EndpointsTested:     len(t.results),
		Vulnerabilities:     len(t.vulns),
		Probes:              t.metrics.Snapshot().ProbesTotal,
		Errors:              len(t.errs),
	}
}

// PrintSummary writes the end-of-run summary when progress is enabled.
func (t *APITester) PrintSummary(w io.Writer) {
	if t.progress == nil {
		return
	}
	bySeverity := make(map[string]int)
	for sev, n := range t.GenerateReport().VulnerabilitySummary.BySeverity {
		bySeverity[string(sev)] = n
	}
	t.progress.PrintSummary(w, bySeverity)
}

// Close releases the client, the state store and the output writer.
func (t *APITester) Close() error {
	var firstErr error
	if t.output != nil {
		if err := t.output.Close(); err != nil {
			firstErr = err
		}
	}
	if t.state != nil {
		if err := t.state.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if t.ownClient != nil {
		t.ownClient.Close()
	}
	return firstErr
}

func (t *APITester) addEndpoints(eps []model.Endpoint) {
	if len(eps) == 0 {
		return
	}
	t.mu.Lock()
	t.endpoints = append(t.endpoints, eps...)
	t.mu.Unlock()

	for i := range eps {
		t.metrics.RecordEndpointDiscovered()
		if t.output != nil {
			t.output.WriteEndpoint(&eps[i])
		}
	}
}

func (t *APITester) recordResult(result model.TestResult) {
	t.mu.Lock()
	t.results = append(t.results, result)
	t.vulns = append(t.vulns, result.Vulnerabilities...)
	t.mu.Unlock()

	t.metrics.RecordEndpointTested()
	if t.progress != nil {
		t.progress.EndpointTested()
	}
	for i := range result.Vulnerabilities {
		t.reportFinding(&result.Vulnerabilities[i])
	}
}

func (t *APITester) addVulnerabilities(vulns []model.Vulnerability) {
	if len(vulns) == 0 {
		return
	}
	t.mu.Lock()
	t.vulns = append(t.vulns, vulns...)
	t.mu.Unlock()

	for i := range vulns {
		t.reportFinding(&vulns[i])
	}
}

func (t *APITester) reportFinding(v *model.Vulnerability) {
	t.logger.FindingEvent(string(v.Type), string(v.Severity), v.Method, v.Endpoint, v.Parameter, v.Description)
	t.metrics.RecordFinding(string(v.Severity))
	if t.progress != nil {
		t.progress.Finding(v.Severity == model.SeverityCritical)
	}
	if t.output != nil {
		t.output.WriteFinding(v)
	}
}

func (t *APITester) recordError(where string, err error) {
	se := state.SessionError{Endpoint: where, Error: err.Error(), Timestamp: time.Now()}
	t.mu.Lock()
	t.errs = append(t.errs, se)
	t.mu.Unlock()

	if t.output != nil {
		t.output.WriteError(&output.ScanError{Endpoint: se.Endpoint, Error: se.Error, Timestamp: se.Timestamp})
	}
}
