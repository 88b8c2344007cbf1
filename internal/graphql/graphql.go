// Package graphql probes a GraphQL endpoint for introspection exposure,
// missing query limits, batching and schema leaks through field suggestions.
package graphql

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/agext/levenshtein"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// DefaultTimeout bounds every GraphQL probe.
const DefaultTimeout = 10 * time.Second

const (
	// DepthProbeAliases is the number of aliased selections in the depth probe.
	DepthProbeAliases = 15
	// BatchSize is the number of queries sent in the batching probe.
	BatchSize = 10
	// MisspelledField is queried to provoke a field suggestion.
	MisspelledField = "userz"
	// ExpectedField is the field the misspelling is close to.
	ExpectedField = "users"
)

// IntrospectionQuery asks for the full schema.
const IntrospectionQuery = `query IntrospectionQuery {
  __schema {
    queryType { name }
    mutationType { name }
    types { ...FullType }
  }
}

fragment FullType on __Type {
  kind
  name
  description
  fields(includeDeprecated: true) {
    name
    description
    args { ...InputValue }
    type { ...TypeRef }
    isDeprecated
    deprecationReason
  }
}

fragment InputValue on __InputValue {
  name
  description
  type { ...TypeRef }
  defaultValue
}

fragment TypeRef on __Type {
  kind
  name
  ofType { kind name }
}`

var suggestionRe = regexp.MustCompile(`"([_A-Za-z][_0-9A-Za-z]*)"`)

// Config configures the GraphQL tester.
type Config struct {
	Timeout time.Duration
}

// Tester runs the GraphQL probes. It is safe for concurrent use.
type Tester struct {
	client  probehttp.Doer
	log     *logger.Logger
	timeout time.Duration
}

// New creates a GraphQL tester sending probes through client.
func New(client probehttp.Doer, log *logger.Logger, cfg Config) *Tester {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	return &Tester{
		client:  client,
		log:     log.WithComponent("graphql"),
		timeout: cfg.Timeout,
	}
}

// TestAll runs the four probes in order and collects what they find.
func (t *Tester) TestAll(ctx context.Context, ep model.Endpoint) ([]model.Vulnerability, error) {
	probes := []func(context.Context, model.Endpoint) *model.Vulnerability{
		t.TestIntrospection,
		t.TestQueryDepth,
		t.TestBatching,
		t.TestFieldSuggestions,
	}

	var vulns []model.Vulnerability
	for _, probe := range probes {
		if ctx.Err() != nil {
			return vulns, errors.NewCancelledError(ep.FullURL(), "graphql")
		}
		if v := probe(ctx, ep); v != nil {
			vulns = append(vulns, *v)
		}
	}
	return vulns, nil
}

// post sends body as a JSON POST to the endpoint URL.
func (t *Tester) post(ctx context.Context, probe string, ep model.Endpoint, body jsonvalue.Value) (*probehttp.Response, bool) {
	req := probehttp.NewRequest(probe, ep)
	req.Method = http.MethodPost
	req.Query = nil
	req.Form = nil
	req.RawBody = nil
	req.JSON = &body
	req.ContentType = model.ContentTypeJSON
	req.Timeout = t.timeout

	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return nil, false
	}
	return resp, true
}

func query(q string) jsonvalue.Value {
	return jsonvalue.NewObject(jsonvalue.Member{Key: "query", Value: jsonvalue.NewString(q)})
}

func newFinding(cat model.Category, sev model.Severity, desc string, ep model.Endpoint, ev model.Evidence) *model.Vulnerability {
	probe := ep
	probe.Method = http.MethodPost
	v := model.NewVulnerability(cat, sev, desc, probe, "", ev)
	return &v
}

// TestIntrospection reports an exposed __schema.
func (t *Tester) TestIntrospection(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	resp, ok := t.post(ctx, "graphql_introspection", ep, query(IntrospectionQuery))
	if !ok || resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := resp.JSON()
	if err != nil {
		t.log.WithError(err).Debug("Introspection response is not JSON")
		return nil
	}
	schema, ok := doc.At(jsonvalue.Path{"data", "__schema"})
	if !ok || !schema.IsObject() {
		return nil
	}

	typesCount := 0
	if types, ok := schema.Get("types"); ok {
		typesCount = types.Len()
	}
	return newFinding(model.CategoryInfoDisclosure, model.SeverityMedium, "GraphQL introspection is enabled", ep, model.Evidence{
		"query_type":     typeName(schema, "queryType"),
		"mutation_type":  typeName(schema, "mutationType"),
		"types_count":    typesCount,
		"recommendation": "Disable introspection in production",
	})
}

// typeName returns schema.<key>.name, or nil when absent.
func typeName(schema jsonvalue.Value, key string) any {
	name, ok := schema.At(jsonvalue.Path{key, "name"})
	if !ok || name.Kind() != jsonvalue.String {
		return nil
	}
	return name.Str()
}

// DepthQuery builds the aliased __typename query used by the depth probe.
func DepthQuery(n int) string {
	var b strings.Builder
	b.WriteString("query { ")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "alias%d: __typename ", i)
	}
	b.WriteString("}")
	return b.String()
}

// TestQueryDepth reports a server accepting a wide aliased query.
func (t *Tester) TestQueryDepth(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	resp, ok := t.post(ctx, "graphql_depth", ep, query(DepthQuery(DepthProbeAliases)))
	if !ok || resp.StatusCode != http.StatusOK {
		return nil
	}

	return newFinding(model.CategoryRateLimit, model.SeverityMedium, "No query depth limit detected", ep, model.Evidence{
		"tested_depth":    DepthProbeAliases,
		"response_status": resp.StatusCode,
		"recommendation":  "Implement query depth limiting",
	})
}

// TestBatching reports a server answering an array of queries in one request.
func (t *Tester) TestBatching(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	items := make([]jsonvalue.Value, BatchSize)
	for i := range items {
		items[i] = query("query { __typename }")
	}

	resp, ok := t.post(ctx, "graphql_batch", ep, jsonvalue.NewArray(items...))
	if !ok || resp.StatusCode != http.StatusOK {
		return nil
	}

	doc, err := resp.JSON()
	if err != nil || doc.Kind() != jsonvalue.Array {
		return nil
	}

	return newFinding(model.CategoryRateLimit, model.SeverityMedium, "GraphQL batching attack possible", ep, model.Evidence{
		"batch_size":     BatchSize,
		"response_count": doc.Len(),
		"recommendation": "Implement query cost analysis and rate limiting",
	})
}

// TestFieldSuggestions reports error messages that suggest real field names
// for a misspelled one.
func (t *Tester) TestFieldSuggestions(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	resp, ok := t.post(ctx, "graphql_suggestions", ep, query("{ "+MisspelledField+" { id } }"))
	if !ok || resp.StatusCode != http.StatusBadRequest {
		return nil
	}

	msg := resp.Text()
	if !strings.Contains(msg, "Did you mean") && !strings.Contains(msg, ExpectedField) {
		return nil
	}

	ev := model.Evidence{
		"error_reveals_fields": true,
		"error_preview":        probehttp.Truncate(msg, 200),
		"recommendation":       "Disable field suggestions in production",
	}
	if suggested := Suggestions(msg); len(suggested) > 0 {
		ev["suggested_fields"] = suggested
		ev["closest_field"] = suggested[0]
		ev["edit_distance"] = levenshtein.Distance(MisspelledField, suggested[0], nil)
	}
	return newFinding(model.CategoryInfoDisclosure, model.SeverityLow, "GraphQL field suggestions reveal schema information", ep, ev)
}

// Suggestions extracts the quoted names following "Did you mean" in a
// GraphQL error message, closest to the misspelled field first. The message
// may still carry JSON string escaping.
func Suggestions(msg string) []string {
	msg = strings.ReplaceAll(msg, `\"`, `"`)
	idx := strings.Index(msg, "Did you mean")
	if idx < 0 {
		return nil
	}

	seen := make(map[string]bool)
	var names []string
	for _, m := range suggestionRe.FindAllStringSubmatch(msg[idx:], -1) {
		name := m[1]
		if name == MisspelledField || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}

	sort.SliceStable(names, func(i, j int) bool {
		return levenshtein.Distance(MisspelledField, names[i], nil) < levenshtein.Distance(MisspelledField, names[j], nil)
	})
	return names
}
