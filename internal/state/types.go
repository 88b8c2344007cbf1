package state

import (
	"encoding/json"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// SessionStats summarizes a session's progress.
type SessionStats struct {
	EndpointsDiscovered int           `json:"endpoints_discovered"`
	EndpointsTested     int           `json:"endpoints_tested"`
	Vulnerabilities     int           `json:"vulnerabilities"`
	Probes              int64         `json:"probes"`
	ErrorCount          int           `json:"error_count"`
	Duration            time.Duration `json:"duration"`
}

// SessionError records a failure that did not abort the session.
type SessionError struct {
	Endpoint  string    `json:"endpoint"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionState is everything needed to rebuild a report after the scan ends.
type SessionState struct {
	ID              string                  `json:"id"`
	Target          string                  `json:"target"`
	APIType         model.APIType           `json:"api_type"`
	StartedAt       time.Time               `json:"started_at"`
	UpdatedAt       time.Time               `json:"updated_at"`
	Completed       bool                    `json:"completed"`
	Stats           SessionStats            `json:"stats"`
	Config          json.RawMessage         `json:"config,omitempty"`
	Endpoints       []model.Endpoint        `json:"endpoints"`
	Results         []model.TestResult      `json:"results"`
	Vulnerabilities []model.Vulnerability   `json:"vulnerabilities"`
	RateLimits      []model.RateLimitReport `json:"rate_limits,omitempty"`
	Errors          []SessionError          `json:"errors,omitempty"`
}
