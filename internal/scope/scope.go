// Package scope filters endpoints against host and path rules before they
// are probed.
package scope

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Checker validates endpoints against scope rules. It is immutable after
// NewChecker and safe for concurrent use.
type Checker struct {
	rules          ScopeRules
	baseHost       string
	includeRegexps []*regexp.Regexp
	excludeRegexps []*regexp.Regexp
	allowedHosts   map[string]struct{}
}

// NewChecker creates a scope checker for a session against baseURL.
func NewChecker(baseURL string, rules ScopeRules) (*Checker, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}

	c := &Checker{
		rules:        rules,
		baseHost:     strings.ToLower(parsed.Host),
		allowedHosts: make(map[string]struct{}),
	}

	excludes := rules.ExcludePatterns
	if rules.SkipDestructive {
		excludes = append(append([]string(nil), excludes...), DestructivePatterns...)
	}

	if c.includeRegexps, err = compileAll(rules.IncludePatterns); err != nil {
		return nil, err
	}
	if c.excludeRegexps, err = compileAll(excludes); err != nil {
		return nil, err
	}

	c.allowedHosts[c.baseHost] = struct{}{}
	for _, host := range rules.AllowedHosts {
		c.allowedHosts[strings.ToLower(host)] = struct{}{}
	}

	return c, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(patterns))
	for _, pattern := range patterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, err
		}
		out = append(out, re)
	}
	return out, nil
}

// InScope reports whether ep may be probed. An endpoint without a URL is
// taken to live on the base host.
func (c *Checker) InScope(ep model.Endpoint) bool {
	if ep.URL != "" {
		parsed, err := url.Parse(ep.URL)
		if err != nil {
			return false
		}
		if parsed.Scheme != "http" && parsed.Scheme != "https" {
			return false
		}
		if !c.IsHostAllowed(parsed.Host) {
			return false
		}
	}
	return c.IsPathInScope(ep.Path)
}

// IsPathInScope applies exclude patterns first, then include patterns if
// any are set.
func (c *Checker) IsPathInScope(path string) bool {
	for _, re := range c.excludeRegexps {
		if re.MatchString(path) {
			return false
		}
	}

	if len(c.includeRegexps) == 0 {
		return true
	}
	for _, re := range c.includeRegexps {
		if re.MatchString(path) {
			return true
		}
	}
	return false
}

// IsHostAllowed checks a host, including subdomains of allowed hosts.
func (c *Checker) IsHostAllowed(host string) bool {
	host = strings.ToLower(host)
	if _, ok := c.allowedHosts[host]; ok {
		return true
	}

	for allowed := range c.allowedHosts {
		if strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}

	return false
}

// Filter returns the in-scope endpoints in order.
func (c *Checker) Filter(endpoints []model.Endpoint) []model.Endpoint {
	out := make([]model.Endpoint, 0, len(endpoints))
	for _, ep := range endpoints {
		if c.InScope(ep) {
			out = append(out, ep)
		}
	}
	return out
}

// NormalizeBaseURL lower-cases scheme and host, drops default ports, the
// fragment and any trailing slash.
func NormalizeBaseURL(rawURL string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}

	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	if (parsed.Scheme == "http" && strings.HasSuffix(parsed.Host, ":80")) ||
		(parsed.Scheme == "https" && strings.HasSuffix(parsed.Host, ":443")) {
		parsed.Host = parsed.Host[:strings.LastIndex(parsed.Host, ":")]
	}

	parsed.Fragment = ""
	parsed.Path = strings.TrimRight(parsed.Path, "/")

	return parsed.String(), nil
}

// IsValidBaseURL checks for an absolute http(s) URL with a host.
func IsValidBaseURL(urlStr string) bool {
	parsed, err := url.Parse(urlStr)
	if err != nil {
		return false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return false
	}
	return parsed.Host != ""
}
