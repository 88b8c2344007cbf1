package fuzzer

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// TimeBasedThreshold is the response time above which a sleep payload
// counts as executed.
const TimeBasedThreshold = 4500 * time.Millisecond

// ExpectedDelay is the delay, in seconds, the sleep payloads ask for.
const ExpectedDelay = 5

const previewLength = 500

// sqlErrors are matched case-insensitively.
var sqlErrors = []string{
	"SQL syntax",
	"mysql_fetch",
	"ORA-[0-9]+",
	"PostgreSQL.*ERROR",
	"warning.*mysql",
	"valid MySQL result",
	"mssql_query()",
	"Unclosed quotation mark",
	"PostgreSQL query failed",
	"syntax error",
	"fatal error",
	"SQLSTATE",
}

var sqlErrorRegexps = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(sqlErrors))
	for i, p := range sqlErrors {
		out[i] = regexp.MustCompile("(?i)" + p)
	}
	return out
}()

var xxeIndicators = []string{"root:", "bin:", "/etc/passwd"}

var ssrfIndicators = []string{
	"metadata", "ami-id", "instance-id",
	"localhost", "127.0.0.1",
	"internal", "private",
}

var commandOutputs = []string{
	`uid=\d+.*gid=\d+`,
	`[a-zA-Z]+\\[a-zA-Z]+`,
	`root`,
	`www-data`,
	`apache`,
}

var commandOutputRegexps = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(commandOutputs))
	for i, p := range commandOutputs {
		out[i] = regexp.MustCompile(p)
	}
	return out
}()

var traversalIndicators = []string{"root:", "/bin/bash", "[boot loader]"}

// Detect inspects the response to one fuzz probe. Every check that fires
// yields its own finding, in check order: SQL error, time-based delay, XXE,
// SSRF, command output, path traversal. The command output check looks at
// any payload mentioning id or whoami, whatever its category.
func Detect(ep model.Endpoint, body string, elapsed time.Duration, payload model.FuzzingPayload, location string) []model.Vulnerability {
	var vulns []model.Vulnerability
	add := func(cat model.Category, sev model.Severity, desc string, ev model.Evidence) {
		ev["payload"] = payload.Payload
		vulns = append(vulns, model.NewVulnerability(cat, sev, fmt.Sprintf("%s in %s", desc, location), ep, location, ev))
	}
	preview := truncate(body, previewLength)

	switch payload.Category {
	case model.CategoryInjection:
		for i, re := range sqlErrorRegexps {
			if re.MatchString(body) {
				add(model.CategoryInjection, model.SeverityHigh, "SQL Injection", model.Evidence{
					"error_pattern":    sqlErrors[i],
					"response_preview": preview,
				})
				break
			}
		}

		if isSleepPayload(payload.Payload) && elapsed > TimeBasedThreshold {
			add(model.CategoryInjection, model.SeverityHigh, "Time-based SQL Injection", model.Evidence{
				"response_time":  elapsed.Seconds(),
				"expected_delay": ExpectedDelay,
			})
		}

	case model.CategoryXXE:
		if containsAny(body, xxeIndicators) != "" {
			add(model.CategoryXXE, model.SeverityHigh, "XML External Entity (XXE)", model.Evidence{
				"file_content_found": true,
				"response_preview":   preview,
			})
		}

	case model.CategorySSRF:
		if ind := containsAny(strings.ToLower(body), ssrfIndicators); ind != "" {
			add(model.CategorySSRF, model.SeverityHigh, "Server-Side Request Forgery (SSRF)", model.Evidence{
				"indicator_found":  ind,
				"response_preview": preview,
			})
		}
	}

	if strings.Contains(payload.Payload, "id") || strings.Contains(payload.Payload, "whoami") {
		for i, re := range commandOutputRegexps {
			if re.MatchString(body) {
				add(model.CategoryInjection, model.SeverityCritical, "Command Injection", model.Evidence{
					"command_output_pattern": commandOutputs[i],
					"response_preview":       preview,
				})
				break
			}
		}
	}

	if strings.Contains(payload.Payload, "../") || strings.Contains(payload.Payload, "%2e%2e") {
		if containsAny(body, traversalIndicators) != "" {
			add(model.CategoryInjection, model.SeverityHigh, "Path Traversal", model.Evidence{
				"file_content_found": true,
				"response_preview":   preview,
			})
		}
	}

	return vulns
}

func isSleepPayload(p string) bool {
	lower := strings.ToLower(p)
	return strings.Contains(lower, "waitfor") || strings.Contains(lower, "sleep")
}

// containsAny returns the first indicator found in s, or "".
func containsAny(s string, indicators []string) string {
	for _, ind := range indicators {
		if strings.Contains(s, ind) {
			return ind
		}
	}
	return ""
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
