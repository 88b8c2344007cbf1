package output

import (
	"sort"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// ReportInput is everything a report is projected from.
type ReportInput struct {
	BaseURL         string
	APIType         model.APIType
	Timestamp       time.Time
	Endpoints       []model.Endpoint
	TestedCount     int
	Vulnerabilities []model.Vulnerability
}

var categoryRecommendations = map[model.Category]string{
	model.CategoryAuthBypass:     "Implement proper authentication and authorization checks on all endpoints",
	model.CategoryInjection:      "Use parameterized queries and input validation to prevent injection attacks",
	model.CategoryRateLimit:      "Implement rate limiting to prevent API abuse and DoS attacks",
	model.CategoryCORS:           "Configure CORS properly to restrict access to trusted origins only",
	model.CategoryInfoDisclosure: "Disable debug information and introspection in production environments",
	model.CategoryXXE:            "Disable external entity resolution in XML parsers",
	model.CategorySSRF:           "Validate and allow-list outbound URLs supplied by clients",
}

var graphQLRecommendations = []string{
	"Implement query depth limiting to prevent resource exhaustion",
	"Use query cost analysis to prevent expensive queries",
	"Disable introspection in production",
	"Implement proper authorization at the field level",
}

var generalRecommendations = []string{
	"Use HTTPS for all API communications",
	"Implement comprehensive logging and monitoring",
	"Regular security assessments and penetration testing",
	"Keep all dependencies and frameworks up to date",
}

// BuildReport projects in into a Report. It does not modify its input.
func BuildReport(in ReportInput) *Report {
	vulns := make([]model.Vulnerability, len(in.Vulnerabilities))
	copy(vulns, in.Vulnerabilities)

	endpoints := make([]EndpointSummary, 0, len(in.Endpoints))
	for _, ep := range in.Endpoints {
		endpoints = append(endpoints, EndpointSummary{
			Path:         ep.Path,
			Method:       strings.ToUpper(ep.Method),
			AuthRequired: ep.AuthRequired,
		})
	}

	ts := in.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}

	return &Report{
		APIBaseURL:           strings.TrimRight(in.BaseURL, "/"),
		APIType:              in.APIType,
		TestTimestamp:        ts,
		EndpointsDiscovered:  len(in.Endpoints),
		EndpointsTested:      in.TestedCount,
		VulnerabilitiesFound: len(vulns),
		VulnerabilitySummary: Summarize(vulns),
		Endpoints:            endpoints,
		Vulnerabilities:      vulns,
		Recommendations:      Recommendations(vulns, in.APIType),
	}
}

// Summarize counts vulnerabilities by category and severity.
func Summarize(vulns []model.Vulnerability) VulnerabilitySummary {
	s := VulnerabilitySummary{
		ByType:     make(map[model.Category]int),
		BySeverity: make(map[model.Severity]int),
	}
	for _, v := range vulns {
		s.ByType[v.Type]++
		s.BySeverity[v.Severity]++
	}
	return s
}

// Recommendations derives remediation advice from the categories found, the
// API type and a fixed general list. The result is deduplicated and sorted.
func Recommendations(vulns []model.Vulnerability, apiType model.APIType) []string {
	set := make(map[string]struct{})
	for _, v := range vulns {
		if rec, ok := categoryRecommendations[v.Type]; ok {
			set[rec] = struct{}{}
		}
	}
	if apiType == model.APITypeGraphQL {
		for _, rec := range graphQLRecommendations {
			set[rec] = struct{}{}
		}
	}
	for _, rec := range generalRecommendations {
		set[rec] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for rec := range set {
		out = append(out, rec)
	}
	sort.Strings(out)
	return out
}
