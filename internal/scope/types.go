package scope

// ScopeRules decides which endpoints a session may probe. Patterns are
// regular expressions matched against the endpoint path.
type ScopeRules struct {
	IncludePatterns []string `json:"include_patterns,omitempty" yaml:"include_patterns,omitempty"`
	ExcludePatterns []string `json:"exclude_patterns,omitempty" yaml:"exclude_patterns,omitempty"`
	AllowedHosts    []string `json:"allowed_hosts,omitempty" yaml:"allowed_hosts,omitempty"`
	SkipDestructive bool     `json:"skip_destructive,omitempty" yaml:"skip_destructive,omitempty"`
}
