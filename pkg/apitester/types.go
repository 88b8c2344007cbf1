// Package apitester drives an API security testing session: endpoint
// discovery, per-endpoint authentication, fuzzing, rate-limit and GraphQL
// probes, a CORS sweep and the final findings report.
package apitester

import (
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/output"
)

// Data types shared with the testers.
type (
	Endpoint        = model.Endpoint
	Vulnerability   = model.Vulnerability
	Evidence        = model.Evidence
	TestResult      = model.TestResult
	RateLimitReport = model.RateLimitReport
	AuthConfig      = model.AuthConfig
	AuthType        = model.AuthType
	APIType         = model.APIType
	Category        = model.Category
	Severity        = model.Severity
	FuzzingPayload  = model.FuzzingPayload
	Report          = output.Report
)

// API types.
const (
	APITypeREST    = model.APITypeREST
	APITypeGraphQL = model.APITypeGraphQL
)

// Severity levels.
const (
	SeverityLow      = model.SeverityLow
	SeverityMedium   = model.SeverityMedium
	SeverityHigh     = model.SeverityHigh
	SeverityCritical = model.SeverityCritical
)

// TestTypeComprehensive is the test type of results produced by TestEndpoint.
const TestTypeComprehensive = "comprehensive"

// Stats summarizes a session in progress.
type Stats struct {
	EndpointsDiscovered int   `json:"endpoints_discovered"`
	EndpointsTested     int   `json:"endpoints_tested"`
	Vulnerabilities     int   `json:"vulnerabilities"`
	Probes              int64 `json:"probes"`
	Errors              int   `json:"errors"`
}
