package scope

import (
	"strings"
)

// DestructivePatterns match paths whose side effects end or damage the
// session under test.
var DestructivePatterns = []string{
	`(?i)/logout`,
	`(?i)/signout`,
	`(?i)/delete-account`,
	`(?i)/unsubscribe`,
	`(?i)/reset-password`,
	`(?i)/shutdown`,
}

// CommonAPIPatterns contains common API path patterns.
var CommonAPIPatterns = []string{
	`/api/`,
	`/v[0-9]+/`,
	`/graphql`,
	`/rest/`,
	`/rpc/`,
	`/json/`,
	`/xml/`,
}

// ClassifyPath labels a discovered path by its likely role. Discovery uses
// the label in endpoint descriptions.
func ClassifyPath(path string) string {
	lower := strings.ToLower(path)

	if strings.Contains(lower, "graphql") {
		return "graphql"
	}

	authIndicators := []string{"login", "signin", "auth", "oauth", "token", "sso"}
	for _, ind := range authIndicators {
		if strings.Contains(lower, ind) {
			return "auth"
		}
	}

	adminIndicators := []string{"admin", "dashboard", "manage", "internal"}
	for _, ind := range adminIndicators {
		if strings.Contains(lower, ind) {
			return "admin"
		}
	}

	docIndicators := []string{"swagger", "openapi", "api-docs", "docs"}
	for _, ind := range docIndicators {
		if strings.Contains(lower, ind) {
			return "docs"
		}
	}

	if strings.Contains(lower, "health") || strings.Contains(lower, "status") || strings.Contains(lower, "metrics") {
		return "ops"
	}

	return "api"
}
