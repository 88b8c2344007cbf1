package discovery

import (
	"bufio"
	"context"
	"net/http"
	"strings"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
)

// fetch GETs target with retries on transient failures. Any status other
// than 200 is an error.
func (d *Discoverer) fetch(ctx context.Context, probe, target, accept string) ([]byte, error) {
	body, result := errors.DoWithResult(ctx, d.retrier, probe, target, func(ctx context.Context) ([]byte, error) {
		req := probehttp.Request{
			Probe:   probe,
			Method:  http.MethodGet,
			URL:     target,
			Headers: withAccept(d.headers, accept),
			Timeout: d.timeout,
		}
		resp, err := d.client.Do(ctx, req)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, errors.CategorizeHTTPStatus(resp.StatusCode, target)
		}
		return resp.Body, nil
	})
	if !result.Success {
		return nil, result.LastError
	}
	return body, nil
}

// RobotsPaths reads robots.txt under baseURL and returns the Allow and
// Disallow paths, wildcards trimmed, in file order. A missing robots.txt
// yields no paths and no error.
func (d *Discoverer) RobotsPaths(ctx context.Context, baseURL string) ([]string, error) {
	target := strings.TrimRight(baseURL, "/") + "/robots.txt"
	body, err := d.fetch(ctx, "discovery_robots", target, "text/plain")
	if err != nil {
		if errors.GetErrorType(err) == errors.NotFound {
			return nil, nil
		}
		return nil, err
	}
	return ParseRobots(string(body)), nil
}

// ParseRobots extracts the paths named by Allow and Disallow directives.
func ParseRobots(content string) []string {
	var paths []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(strings.NewReader(content))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if i := strings.Index(line, "#"); i >= 0 {
			line = strings.TrimSpace(line[:i])
		}
		directive, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}

		switch strings.ToLower(strings.TrimSpace(directive)) {
		case "allow", "disallow":
		default:
			continue
		}

		path := strings.TrimSpace(value)
		if i := strings.IndexAny(path, "*$"); i >= 0 {
			path = path[:i]
		}
		path = strings.TrimRight(path, "/")
		if path == "" || !strings.HasPrefix(path, "/") || seen[path] {
			continue
		}
		seen[path] = true
		paths = append(paths, path)
	}
	return paths
}
