package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/output"
	"github.com/PentesterFlow/apiprobe/internal/payloads"
	"github.com/PentesterFlow/apiprobe/internal/shutdown"
	"github.com/PentesterFlow/apiprobe/pkg/apitester"
)

var (
	version = "1.0.0"

	// Global flags
	configFile string
	verbose    bool
	debug      bool

	// Scan flags
	apiType           string
	workers           int
	timeout           int
	rateLimit         float64
	rateLimitRequests int
	noRateLimitTest   bool
	sessionTimeout    time.Duration
	outputFile        string
	stateFile         string
	stream            bool
	compact           bool
	includePatterns   []string
	excludePatterns   []string
	customHeaders     []string

	// Discovery flags
	wordlistFile  string
	openAPI       string
	noRobots      bool
	noPages       bool
	noFindOpenAPI bool
	skipDiscovery bool

	// Auth flags
	authType      string
	token         string
	username      string
	password      string
	apiKeyHeader  string
	apiKey        string
	tokenEndpoint string
	clientID      string
	clientSecret  string

	// Display flags
	noProgress bool

	// Payloads flags
	payloadCategory string
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.IsConfigError(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "apiprobe",
		Short: "apiprobe - API security testing engine",
		Long: `apiprobe probes a REST or GraphQL API for authentication bypass, injection,
information disclosure, missing rate limiting and CORS misconfiguration, and
writes a JSON findings report.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	scanCmd := &cobra.Command{
		Use:   "scan [base-url]",
		Short: "Discover and test an API",
		Long:  "Discover endpoints under base-url, run every tester against them and write the report.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}

	discoverCmd := &cobra.Command{
		Use:   "discover [base-url]",
		Short: "Only discover endpoints",
		Long:  "Probe the wordlist, robots.txt and OpenAPI documents and print the endpoints found.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runDiscover,
	}

	reportCmd := &cobra.Command{
		Use:   "report",
		Short: "Rebuild a report from a saved session",
		RunE:  runReport,
	}

	payloadsCmd := &cobra.Command{
		Use:   "payloads [name]",
		Short: "List the fuzzing payloads, or show one by name",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runPayloads,
	}

	// Global flags
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file (YAML or JSON)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Debug mode")

	for _, cmd := range []*cobra.Command{scanCmd, discoverCmd} {
		cmd.Flags().StringVar(&apiType, "api-type", "rest", "API type (rest, graphql)")
		cmd.Flags().IntVarP(&workers, "workers", "w", 5, "Number of endpoints tested concurrently")
		cmd.Flags().IntVarP(&timeout, "timeout", "t", 10, "Probe timeout in seconds")
		cmd.Flags().Float64VarP(&rateLimit, "rate-limit", "r", 0, "Maximum probes per second (0 for unlimited)")
		cmd.Flags().StringArrayVarP(&customHeaders, "header", "H", nil, "Custom header sent with every probe (Name: value)")
		cmd.Flags().StringArrayVar(&includePatterns, "include", nil, "Path patterns to include (regex)")
		cmd.Flags().StringArrayVar(&excludePatterns, "exclude", nil, "Path patterns to exclude (regex)")
		cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
		cmd.Flags().BoolVar(&compact, "compact", false, "Write compact JSON")

		cmd.Flags().StringVar(&wordlistFile, "wordlist", "", "File with one path per line")
		cmd.Flags().StringVar(&openAPI, "openapi", "", "OpenAPI or Swagger document (path or URL) to import")
		cmd.Flags().BoolVar(&noRobots, "no-robots", false, "Do not read robots.txt")
		cmd.Flags().BoolVar(&noPages, "no-pages", false, "Do not scan the landing page and its scripts for endpoints")
		cmd.Flags().BoolVar(&noFindOpenAPI, "no-find-openapi", false, "Do not look for an OpenAPI document")
		cmd.Flags().BoolVar(&skipDiscovery, "skip-discovery", false, "Skip wordlist probing")
	}

	scanCmd.Flags().IntVar(&rateLimitRequests, "rate-limit-requests", 100, "Requests sent by the rate-limit test")
	scanCmd.Flags().BoolVar(&noRateLimitTest, "no-rate-limit-test", false, "Disable the rate-limit test")
	scanCmd.Flags().DurationVar(&sessionTimeout, "session-timeout", 0, "Deadline for the whole scan (0 for none)")
	scanCmd.Flags().StringVar(&stateFile, "state-file", "", "Persist the session (.db for BoltDB, .json or .gz otherwise)")
	scanCmd.Flags().BoolVar(&stream, "stream", false, "Stream endpoints and findings as JSON lines")
	scanCmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable the progress line")

	// Auth flags
	scanCmd.Flags().StringVar(&authType, "auth-type", "none", "Authentication (none, bearer, jwt, basic, api_key, oauth2)")
	scanCmd.Flags().StringVar(&token, "token", "", "Bearer or JWT token")
	scanCmd.Flags().StringVarP(&username, "username", "u", "", "Username for basic auth")
	scanCmd.Flags().StringVarP(&password, "password", "p", "", "Password for basic auth")
	scanCmd.Flags().StringVar(&apiKeyHeader, "api-key-header", "X-API-Key", "API key header name")
	scanCmd.Flags().StringVar(&apiKey, "api-key", "", "API key value")
	scanCmd.Flags().StringVar(&tokenEndpoint, "token-endpoint", "", "OAuth2 token endpoint")
	scanCmd.Flags().StringVar(&clientID, "client-id", "", "OAuth2 client ID")
	scanCmd.Flags().StringVar(&clientSecret, "client-secret", "", "OAuth2 client secret")

	reportCmd.Flags().StringVar(&stateFile, "state-file", "", "Saved session")
	reportCmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")
	reportCmd.Flags().BoolVar(&compact, "compact", false, "Write compact JSON")
	reportCmd.MarkFlagRequired("state-file")

	payloadsCmd.Flags().StringVar(&payloadCategory, "category", "", "Only list payloads of this category")

	rootCmd.AddCommand(scanCmd, discoverCmd, reportCmd, payloadsCmd)
	return rootCmd
}

// buildConfig merges the config file and the flags that were set.
func buildConfig(cmd *cobra.Command, args []string) (*apitester.Config, error) {
	config := apitester.DefaultConfig()
	if configFile != "" {
		fileConfig, err := apitester.LoadFromFile(configFile)
		if err != nil {
			return nil, errors.NewConfigError("load_config", err.Error())
		}
		config = fileConfig
	}

	if len(args) > 0 {
		config.BaseURL = args[0]
	}

	flags := cmd.Flags()
	if flags.Changed("api-type") {
		config.APIType = model.APIType(strings.ToLower(apiType))
	}
	if flags.Changed("workers") {
		config.Workers = workers
	}
	if flags.Changed("timeout") {
		d := time.Duration(timeout) * time.Second
		config.Timeouts.Fuzz = d
		config.Timeouts.Auth = d
		config.Timeouts.GraphQL = d
	}
	if flags.Changed("rate-limit") {
		config.RateLimit.RequestsPerSecond = rateLimit
	}
	if flags.Changed("rate-limit-requests") {
		config.RateLimitTest.Requests = rateLimitRequests
	}
	if noRateLimitTest {
		config.RateLimitTest.Enabled = false
	}
	if flags.Changed("session-timeout") {
		config.SessionTimeout = sessionTimeout
	}

	config.Scope.IncludePatterns = append(config.Scope.IncludePatterns, includePatterns...)
	config.Scope.ExcludePatterns = append(config.Scope.ExcludePatterns, excludePatterns...)

	if len(customHeaders) > 0 && config.CustomHeaders == nil {
		config.CustomHeaders = make(map[string]string)
	}
	for _, h := range customHeaders {
		name, value, ok := strings.Cut(h, ":")
		if !ok {
			return nil, errors.NewConfigError("header", fmt.Sprintf("header %q is not Name: value", h))
		}
		config.CustomHeaders[strings.TrimSpace(name)] = strings.TrimSpace(value)
	}

	if wordlistFile != "" {
		config.Discovery.WordlistFile = wordlistFile
	}
	if openAPI != "" {
		config.Discovery.OpenAPI = openAPI
	}
	if noRobots {
		config.Discovery.Robots = false
	}
	if noPages {
		config.Discovery.Pages = false
	}
	if noFindOpenAPI {
		config.Discovery.FindOpenAPI = false
	}
	if skipDiscovery {
		config.Discovery.Skip = true
	}

	if outputFile != "" {
		config.Output.FilePath = outputFile
	}
	if compact {
		config.Output.Pretty = false
	}
	if stream {
		config.Output.Stream = true
	}
	if stateFile != "" {
		config.State.Enabled = true
		config.State.FilePath = stateFile
	}

	if flags.Changed("auth-type") {
		config.Auth = authConfig()
	}

	config.Verbose = config.Verbose || verbose
	config.Debug = config.Debug || debug
	return config, nil
}

func authConfig() model.AuthConfig {
	cfg := model.AuthConfig{Type: model.AuthType(strings.ToLower(authType))}
	switch cfg.Type {
	case model.AuthTypeBearer, model.AuthTypeJWT:
		cfg.CurrentToken = token
	case model.AuthTypeBasic:
		cfg.Credentials = map[string]string{"username": username, "password": password}
	case model.AuthTypeAPIKey:
		cfg.Credentials = map[string]string{"header": apiKeyHeader, "key": apiKey}
	case model.AuthTypeOAuth2:
		cfg.TokenEndpoint = tokenEndpoint
		cfg.CurrentToken = token
		cfg.Credentials = map[string]string{"client_id": clientID, "client_secret": clientSecret}
	}
	return cfg
}

func cliLogger(config *apitester.Config) *logger.Logger {
	return logger.New(logger.Config{
		Level:     logger.LevelFor(config.Verbose, config.Debug),
		Pretty:    true,
		Output:    os.Stderr,
		Component: "apiprobe",
	})
}

func runScan(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	log := cliLogger(config)

	opts := []apitester.Option{
		apitester.WithConfig(config),
		apitester.WithLogger(log),
	}
	if config.Output.FilePath == "" {
		opts = append(opts, apitester.WithOutput(nopCloser{os.Stdout}))
	}
	showProgress := !noProgress && !config.Verbose && !config.Debug
	if showProgress {
		opts = append(opts, apitester.WithProgress(os.Stderr))
	}

	tester, err := apitester.New(opts...)
	if err != nil {
		return err
	}

	sh := shutdown.New(cmd.Context(), shutdown.Config{Timeout: 10 * time.Second, Logger: log})
	sh.Register("close", func(ctx context.Context) error { return tester.Close() })
	defer sh.Shutdown()

	report, err := tester.Run(sh.Context())
	if report != nil && showProgress {
		tester.PrintSummary(os.Stderr)
	}
	if err != nil {
		if sh.Interrupted() && errors.IsCancelled(err) {
			fmt.Fprintln(os.Stderr, "Scan interrupted; the report covers what was tested.")
			return nil
		}
		return err
	}
	if config.State.Enabled {
		fmt.Fprintf(os.Stderr, "Session saved to %s\n", config.State.FilePath)
	}
	return nil
}

func runDiscover(cmd *cobra.Command, args []string) error {
	config, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}
	config.RateLimitTest.Enabled = false

	// The endpoint list is written below; stream events are not wanted.
	tester, err := apitester.New(
		apitester.WithConfig(config),
		apitester.WithLogger(cliLogger(config)),
		apitester.WithOutput(nopCloser{io.Discard}),
	)
	if err != nil {
		return err
	}

	sh := shutdown.New(cmd.Context(), shutdown.Config{})
	sh.Register("close", func(ctx context.Context) error { return tester.Close() })
	defer sh.Shutdown()

	endpoints, err := tester.DiscoverEndpoints(sh.Context(), nil)
	if err != nil && !errors.IsCancelled(err) {
		return err
	}
	return writeEndpoints(config.Output, endpoints)
}

func runReport(cmd *cobra.Command, args []string) error {
	st, err := apitester.LoadState(stateFile)
	if err != nil {
		return fmt.Errorf("failed to load state: %w", err)
	}
	if !st.Completed {
		fmt.Fprintf(os.Stderr, "Session %s did not complete; the report is partial.\n", st.ID)
	}

	out := apitester.DefaultConfig().Output
	out.FilePath = outputFile
	out.Pretty = !compact
	out.Stream = false
	return writeReport(out, apitester.ReportFromState(st))
}

func runPayloads(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	if len(args) == 1 {
		p, ok := payloads.Find(args[0])
		if !ok {
			return errors.NewConfigError("payloads", fmt.Sprintf("unknown payload %q", args[0]))
		}
		fmt.Fprintf(out, "Name:     %s\nCategory: %s\nPayload:  %s\nExpect:   %s\n", p.Name, p.Category, p.Payload, p.ExpectedBehavior)
		return nil
	}

	list := payloads.All()
	if payloadCategory != "" {
		cat := model.Category(payloadCategory)
		if !cat.Valid() {
			return errors.NewConfigError("payloads", fmt.Sprintf("unknown category %q", payloadCategory))
		}
		list = payloads.ByCategory(cat)
	}

	for _, p := range list {
		fmt.Fprintf(out, "%-28s %-36s %s\n", p.Name, p.Category, p.Payload)
	}
	return nil
}

// openOutput returns the file at path, or stdout when path is empty.
func openOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func writeEndpoints(cfg output.Config, endpoints []model.Endpoint) error {
	w, err := openOutput(cfg.FilePath)
	if err != nil {
		return err
	}
	defer w.Close()

	enc := json.NewEncoder(w)
	if cfg.Pretty {
		enc.SetIndent("", "  ")
	}
	if endpoints == nil {
		endpoints = []model.Endpoint{}
	}
	return enc.Encode(endpoints)
}

func writeReport(cfg output.Config, report *output.Report) error {
	w, err := openOutput(cfg.FilePath)
	if err != nil {
		return err
	}
	writer := output.NewWriter(w, cfg)
	if err := writer.WriteReport(report); err != nil {
		writer.Close()
		return err
	}
	return writer.Close()
}
