package output

import (
	"time"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Report is the final findings report of a session.
type Report struct {
	APIBaseURL           string                `json:"api_base_url"`
	APIType              model.APIType         `json:"api_type"`
	TestTimestamp        time.Time             `json:"test_timestamp"`
	EndpointsDiscovered  int                   `json:"endpoints_discovered"`
	EndpointsTested      int                   `json:"endpoints_tested"`
	VulnerabilitiesFound int                   `json:"vulnerabilities_found"`
	VulnerabilitySummary VulnerabilitySummary  `json:"vulnerability_summary"`
	Endpoints            []EndpointSummary     `json:"endpoints"`
	Vulnerabilities      []model.Vulnerability `json:"vulnerabilities"`
	Recommendations      []string              `json:"recommendations"`
}

// VulnerabilitySummary counts findings by category and severity.
type VulnerabilitySummary struct {
	ByType     map[model.Category]int `json:"by_type"`
	BySeverity map[model.Severity]int `json:"by_severity"`
}

// EndpointSummary is the report view of a discovered endpoint.
type EndpointSummary struct {
	Path         string `json:"path"`
	Method       string `json:"method"`
	AuthRequired bool   `json:"auth_required"`
}

// ScanError represents a failure reported while streaming.
type ScanError struct {
	Endpoint  string    `json:"endpoint"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}
