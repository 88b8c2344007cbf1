// Package model defines the data types shared by the API security testers.
package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Category is the vulnerability class of a finding.
type Category string

// Vulnerability categories.
const (
	CategoryAuthBypass          Category = "authentication_bypass"
	CategoryIDOR                Category = "insecure_direct_object_reference"
	CategoryInjection           Category = "injection"
	CategoryXXE                 Category = "xml_external_entity"
	CategorySSRF                Category = "server_side_request_forgery"
	CategoryRateLimit           Category = "missing_rate_limiting"
	CategoryCORS                Category = "cors_misconfiguration"
	CategoryInfoDisclosure      Category = "information_disclosure"
	CategoryBrokenAccessControl Category = "broken_access_control"
	CategoryBusinessLogic       Category = "business_logic_flaw"
)

// Categories returns every known category in declaration order.
func Categories() []Category {
	return []Category{
		CategoryAuthBypass,
		CategoryIDOR,
		CategoryInjection,
		CategoryXXE,
		CategorySSRF,
		CategoryRateLimit,
		CategoryCORS,
		CategoryInfoDisclosure,
		CategoryBrokenAccessControl,
		CategoryBusinessLogic,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// Severity is the impact level of a finding.
type Severity string

// Severity levels.
const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Severities returns the levels from lowest to highest.
func Severities() []Severity {
	return []Severity{SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical}
}

// Valid reports whether s is one of the four levels.
func (s Severity) Valid() bool {
	return s.Rank() > 0
}

// Rank orders severities, 0 for unknown values.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// APIType is the kind of API under test.
type APIType string

// API types.
const (
	APITypeREST      APIType = "rest"
	APITypeGraphQL   APIType = "graphql"
	APITypeSOAP      APIType = "soap"
	APITypeGRPC      APIType = "grpc"
	APITypeWebSocket APIType = "websocket"
)

// Supported reports whether the engine can test this API type.
func (t APIType) Supported() bool {
	return t == APITypeREST || t == APITypeGraphQL
}

// HTTP methods accepted on endpoints.
var Methods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD", "OPTIONS", "TRACE"}

// ValidMethod reports whether m is a supported HTTP method.
func ValidMethod(m string) bool {
	m = strings.ToUpper(m)
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// FuzzingPayload is one entry of the payload catalog.
type FuzzingPayload struct {
	Name             string   `json:"name"`
	Payload          string   `json:"payload"`
	ExpectedBehavior string   `json:"expected_behavior"`
	Category         Category `json:"category"`
}

// Evidence is the chain of evidence attached to a finding.
type Evidence map[string]any

// Vulnerability is a single finding. Values are never modified once created.
type Vulnerability struct {
	ID          string    `json:"id"`
	Type        Category  `json:"type"`
	Severity    Severity  `json:"severity"`
	Description string    `json:"description"`
	Endpoint    string    `json:"endpoint"`
	Method      string    `json:"method"`
	Parameter   string    `json:"parameter,omitempty"`
	Evidence    Evidence  `json:"evidence"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewVulnerability builds a finding against ep.
func NewVulnerability(cat Category, sev Severity, description string, ep Endpoint, parameter string, evidence Evidence) Vulnerability {
	if evidence == nil {
		evidence = Evidence{}
	}
	return Vulnerability{
		ID:          uuid.NewString(),
		Type:        cat,
		Severity:    sev,
		Description: description,
		Endpoint:    ep.Path,
		Method:      ep.Method,
		Parameter:   parameter,
		Evidence:    evidence,
		Timestamp:   time.Now().UTC(),
	}
}

// TestResult is the outcome of testing one endpoint.
type TestResult struct {
	Endpoint        Endpoint          `json:"endpoint"`
	TestType        string            `json:"test_type"`
	StatusCode      int               `json:"status_code"`
	ResponseTime    float64           `json:"response_time"`
	Headers         map[string]string `json:"headers,omitempty"`
	Body            string            `json:"body,omitempty"`
	Vulnerabilities []Vulnerability   `json:"vulnerabilities"`
	Errors          []string          `json:"errors,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// RateLimitReport characterizes rate limiting on one endpoint.
type RateLimitReport struct {
	Endpoint           string            `json:"endpoint"`
	Method             string            `json:"method"`
	HasRateLimit       bool              `json:"has_rate_limit"`
	Limit              *int              `json:"limit,omitempty"`
	Window             *int              `json:"window,omitempty"`
	Headers            map[string]string `json:"headers"`
	RetryAfter         *int              `json:"retry_after,omitempty"`
	RequestsSent       int               `json:"requests_sent"`
	SuccessfulRequests int               `json:"successful_requests"`
	ElapsedTime        float64           `json:"elapsed_time"`
	Vulnerability      *Vulnerability    `json:"vulnerability,omitempty"`
}
