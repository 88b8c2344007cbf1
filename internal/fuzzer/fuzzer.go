// Package fuzzer substitutes catalog payloads into query parameters, body
// leaves and trusted headers and inspects each response for injection
// signals.
package fuzzer

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/auth"
	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/payloads"
)

// DefaultTimeout bounds every fuzz probe. It must stay above the sleep
// payloads' delay for time-based detection to work.
const DefaultTimeout = 10 * time.Second

// FuzzHeaders are the commonly trusted headers swept with every payload.
var FuzzHeaders = []string{
	"User-Agent",
	"Referer",
	"X-Forwarded-For",
	"X-Real-IP",
	"X-Forwarded-Host",
	"X-Original-URL",
	"X-Rewrite-URL",
}

// Config configures the fuzzer.
type Config struct {
	Timeout time.Duration
	// Payloads overrides the catalog when set.
	Payloads []model.FuzzingPayload
	// Headers overrides FuzzHeaders when set.
	Headers []string
}

// Fuzzer runs the three payload sweeps. It is safe for concurrent use.
type Fuzzer struct {
	client   probehttp.Doer
	log      *logger.Logger
	timeout  time.Duration
	payloads []model.FuzzingPayload
	headers  []string
}

// New creates a fuzzer sending probes through client.
func New(client probehttp.Doer, log *logger.Logger, cfg Config) *Fuzzer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Payloads) == 0 {
		cfg.Payloads = payloads.All()
	}
	if len(cfg.Headers) == 0 {
		cfg.Headers = FuzzHeaders
	}
	return &Fuzzer{
		client:   client,
		log:      log.WithComponent("fuzzer"),
		timeout:  cfg.Timeout,
		payloads: cfg.Payloads,
		headers:  cfg.Headers,
	}
}

// FuzzParameters sweeps URL parameters, body leaves (POST, PUT and PATCH
// with an object body) and headers. Failed probes are skipped; the error is
// non-nil only when ctx is done.
func (f *Fuzzer) FuzzParameters(ctx context.Context, ep model.Endpoint, cfg *model.AuthConfig) ([]model.Vulnerability, error) {
	ep = auth.WithToken(ep, cfg)

	var vulns []model.Vulnerability
	vulns = append(vulns, f.fuzzURLParameters(ctx, ep)...)
	if hasBodyMethod(ep.Method) && ep.HasObjectBody() {
		vulns = append(vulns, f.fuzzBody(ctx, ep)...)
	}
	vulns = append(vulns, f.fuzzHeaders(ctx, ep)...)

	if ctx.Err() != nil {
		return vulns, errors.NewCancelledError(ep.FullURL(), "fuzz")
	}
	return vulns, nil
}

func hasBodyMethod(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return true
	}
	return false
}

func (f *Fuzzer) fuzzURLParameters(ctx context.Context, ep model.Endpoint) []model.Vulnerability {
	names := make([]string, 0, len(ep.Parameters))
	for name := range ep.Parameters {
		names = append(names, name)
	}
	sort.Strings(names)

	var vulns []model.Vulnerability
	for _, name := range names {
		for _, p := range f.payloads {
			params := make(map[string]string, len(ep.Parameters))
			for k, v := range ep.Parameters {
				params[k] = v
			}
			params[name] = p.Payload

			vulns = append(vulns, f.probe(ctx, ep, ep.WithParameters(params), p, name)...)
		}
	}
	return vulns
}

func (f *Fuzzer) fuzzBody(ctx context.Context, ep model.Endpoint) []model.Vulnerability {
	var vulns []model.Vulnerability
	for _, path := range ep.Body.Leaves() {
		location := path.String()
		for _, p := range f.payloads {
			body, err := ep.Body.With(path, jsonvalue.NewString(p.Payload))
			if err != nil {
				f.log.WithError(err).Debugf("Cannot rewrite body leaf %s", location)
				break
			}
			vulns = append(vulns, f.probe(ctx, ep, ep.WithBody(body), p, location)...)
		}
	}
	return vulns
}

func (f *Fuzzer) fuzzHeaders(ctx context.Context, ep model.Endpoint) []model.Vulnerability {
	var vulns []model.Vulnerability
	for _, name := range f.headers {
		for _, p := range f.payloads {
			probe := ep.WithHeaders(map[string]string{name: p.Payload})
			vulns = append(vulns, f.probe(ctx, ep, probe, p, "Header: "+name)...)
		}
	}
	return vulns
}

// probe sends one fuzzed request. Findings reference the original endpoint.
func (f *Fuzzer) probe(ctx context.Context, ep, fuzzed model.Endpoint, p model.FuzzingPayload, location string) []model.Vulnerability {
	if ctx.Err() != nil {
		return nil
	}

	req := probehttp.NewRequest("fuzz", fuzzed)
	req.Timeout = f.timeout
	resp, err := f.client.Do(ctx, req)
	if err != nil {
		f.log.WithError(err).Debugf("Fuzz probe %q on %s skipped", p.Name, location)
		return nil
	}

	return Detect(ep, resp.Text(), resp.Elapsed, p, location)
}
