package discovery

import (
	"context"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/scope"
	"github.com/PentesterFlow/apiprobe/internal/state"
)

// probeMethods are tried for every wordlist path.
var probeMethods = []string{http.MethodGet, http.MethodPost}

// Discoverer probes a target for endpoints. It is safe for concurrent use.
type Discoverer struct {
	client  probehttp.Doer
	log     *logger.Logger
	timeout time.Duration
	workers int
	headers map[string]string
	dedup   *state.Deduplicator
	scope   *scope.Checker
	retrier *errors.Retrier
}

// New creates a Discoverer sending probes through client.
func New(client probehttp.Doer, log *logger.Logger, cfg Config) *Discoverer {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.Dedup == nil {
		cfg.Dedup = state.NewDeduplicator(len(DefaultWordlist) * len(probeMethods))
	}
	if cfg.Retrier == nil {
		cfg.Retrier = errors.NewDefaultRetrier()
	}
	return &Discoverer{
		client:  client,
		log:     log.WithComponent("discovery"),
		timeout: cfg.Timeout,
		workers: cfg.Workers,
		headers: cfg.Headers,
		dedup:   cfg.Dedup,
		scope:   cfg.Scope,
		retrier: cfg.Retrier,
	}
}

// Found reports whether a probe status shows that a path exists.
func Found(status int) bool {
	return status != http.StatusNotFound && status != http.StatusMethodNotAllowed
}

// Probe sends GET and POST for every wordlist path under baseURL (the
// default wordlist when empty) and returns the endpoints that answered, in
// wordlist order. Endpoints already seen by this Discoverer are skipped.
func (d *Discoverer) Probe(ctx context.Context, baseURL string, wordlist []string) ([]model.Endpoint, error) {
	if len(wordlist) == 0 {
		wordlist = DefaultWordlist
	}
	base := strings.TrimRight(baseURL, "/")

	slots := make([][]*hit, len(wordlist))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)

	for i, path := range wordlist {
		path = normalizeWordlistPath(path)
		slots[i] = make([]*hit, len(probeMethods))
		for j, method := range probeMethods {
			i, j, path, method := i, j, path, method
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				slots[i][j] = d.probePath(gctx, base, path, method)
				return nil
			})
		}
	}
	g.Wait()

	var found []model.Endpoint
	for _, row := range slots {
		for _, h := range row {
			if h != nil && d.accept(h.ep, SourceWordlist, h.status) {
				found = append(found, h.ep)
			}
		}
	}

	if ctx.Err() != nil {
		return found, errors.NewCancelledError(base, "discovery")
	}
	return found, nil
}

func normalizeWordlistPath(path string) string {
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

type hit struct {
	ep     model.Endpoint
	status int
}

// probePath sends one probe without following redirects.
func (d *Discoverer) probePath(ctx context.Context, base, path, method string) *hit {
	ep := model.Endpoint{URL: base, Method: method, Path: path}

	req := probehttp.NewRequest("discovery", ep)
	req.Headers = d.headers
	req.Timeout = d.timeout
	req.NoRedirect = true

	resp, err := d.client.Do(ctx, req)
	if err != nil {
		d.log.WithError(err).Debugf("Error checking %s %s", method, path)
		return nil
	}
	if !Found(resp.StatusCode) {
		return nil
	}

	ep.AuthRequired = resp.StatusCode == http.StatusUnauthorized
	ep.Description = describe(resp, path)
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.Contains(strings.ToLower(ct), "json") && !resp.IsHTML() {
		ep.ContentType = ct
	}
	return &hit{ep: ep, status: resp.StatusCode}
}

// describe labels an endpoint with the page title of an HTML answer, or the
// role its path suggests.
func describe(resp *probehttp.Response, path string) string {
	if resp.IsHTML() {
		if title := resp.Title(); title != "" {
			return title
		}
	}
	return scope.ClassifyPath(path)
}

// accept applies scope and dedup to a newly found endpoint.
func (d *Discoverer) accept(ep model.Endpoint, source string, status int) bool {
	if d.scope != nil && !d.scope.InScope(ep) {
		d.log.WithEndpoint(ep.Method, ep.Path).Debug("Endpoint out of scope")
		return false
	}
	if !d.dedup.Add(state.EndpointKey(ep.Method, ep.Path)) {
		return false
	}
	d.log.DiscoveryEvent(ep.Method, ep.Path, source, status)
	return true
}

// ProbeGraphQL looks for a GraphQL endpoint answering a __typename query.
func (d *Discoverer) ProbeGraphQL(ctx context.Context, baseURL string) *model.Endpoint {
	base := strings.TrimRight(baseURL, "/")
	query := jsonvalue.NewObject(jsonvalue.Member{Key: "query", Value: jsonvalue.NewString("{ __typename }")})

	for _, path := range GraphQLPaths {
		if ctx.Err() != nil {
			return nil
		}
		ep := model.Endpoint{URL: base, Method: http.MethodPost, Path: path, Body: &query, ContentType: model.ContentTypeJSON}

		req := probehttp.NewRequest("discovery_graphql", ep)
		req.Headers = d.headers
		req.Timeout = d.timeout
		req.NoRedirect = true

		resp, err := d.client.Do(ctx, req)
		if err != nil {
			continue
		}
		if resp.StatusCode != http.StatusOK || !strings.Contains(resp.Text(), "__typename") {
			continue
		}

		ep.Body = nil
		ep.Description = "graphql"
		if d.scope != nil && !d.scope.InScope(ep) {
			continue
		}
		d.accept(ep, SourceGraphQL, resp.StatusCode)
		return &ep
	}
	return nil
}

// FindOpenAPI returns the URL of the first well-known path serving an
// OpenAPI or Swagger document.
func (d *Discoverer) FindOpenAPI(ctx context.Context, baseURL string) (string, bool) {
	base := strings.TrimRight(baseURL, "/")

	for _, path := range OpenAPIPaths {
		if ctx.Err() != nil {
			return "", false
		}
		req := probehttp.NewRequest("discovery_openapi", model.Endpoint{URL: base, Method: http.MethodGet, Path: path})
		req.Headers = withAccept(d.headers, "application/json")
		req.Timeout = d.timeout

		resp, err := d.client.Do(ctx, req)
		if err != nil || resp.StatusCode != http.StatusOK {
			continue
		}
		body := resp.Text()
		if strings.Contains(body, `"openapi"`) || strings.Contains(body, `"swagger"`) {
			return base + path, true
		}
	}
	return "", false
}

func withAccept(headers map[string]string, accept string) map[string]string {
	out := make(map[string]string, len(headers)+1)
	for k, v := range headers {
		out[k] = v
	}
	out["Accept"] = accept
	return out
}
