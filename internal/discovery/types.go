// Package discovery finds API endpoints by wordlist probing, robots.txt
// hints, references in the target's pages and OpenAPI document import.
package discovery

import (
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/scope"
	"github.com/PentesterFlow/apiprobe/internal/state"
)

// Endpoint sources, used in discovery log events.
const (
	SourceWordlist = "wordlist"
	SourceRobots   = "robots"
	SourceOpenAPI  = "openapi"
	SourceGraphQL  = "graphql_probe"
	SourcePage     = "page"
)

const (
	// DefaultTimeout bounds each discovery probe.
	DefaultTimeout = 5 * time.Second
	// DefaultWorkers is the number of concurrent discovery probes.
	DefaultWorkers = 10
)

// DefaultWordlist is probed when no wordlist is given.
var DefaultWordlist = []string{
	"/api", "/api/v1", "/api/v2", "/api/v3",
	"/v1", "/v2", "/v3",
	"/graphql", "/graphiql",
	"/users", "/user", "/account", "/accounts",
	"/auth", "/authenticate", "/login", "/logout", "/register",
	"/admin", "/dashboard", "/settings",
	"/products", "/items", "/search",
	"/health", "/status", "/metrics",
	"/.well-known/openapi.json", "/swagger.json", "/api-docs",
}

// GraphQLPaths are tried by ProbeGraphQL.
var GraphQLPaths = []string{"/graphql", "/gql", "/api/graphql", "/v1/graphql"}

// OpenAPIPaths are tried by FindOpenAPI.
var OpenAPIPaths = []string{
	"/openapi.json",
	"/.well-known/openapi.json",
	"/swagger.json",
	"/swagger/v1/swagger.json",
	"/api-docs",
	"/openapi/v3/api-docs",
	"/v2/api-docs",
	"/v3/api-docs",
}

// Config configures a Discoverer.
type Config struct {
	Timeout time.Duration
	Workers int
	// Headers are sent with every discovery probe.
	Headers map[string]string
	// Dedup is shared with the caller so endpoints found by several
	// sources are reported once. A private one is created when nil.
	Dedup *state.Deduplicator
	// Scope, when set, drops out-of-scope endpoints and servers.
	Scope *scope.Checker
	// Retrier is used for OpenAPI and robots.txt fetches.
	Retrier *errors.Retrier
}
