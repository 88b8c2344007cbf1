package fuzzer

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/payloads"
)

var testEP = model.Endpoint{URL: "https://api.test", Method: "GET", Path: "/items"}

func payload(t *testing.T, name string) model.FuzzingPayload {
	t.Helper()
	p, ok := payloads.Find(name)
	require.True(t, ok, name)
	return p
}

func TestDetect_SQLError(t *testing.T) {
	vulns := Detect(testEP, "You have an error in your SQL syntax near ''1'='1'", 100*time.Millisecond,
		payload(t, "SQL Injection - OR 1=1"), "id")

	require.Len(t, vulns, 1)
	v := vulns[0]
	assert.Equal(t, model.CategoryInjection, v.Type)
	assert.Equal(t, model.SeverityHigh, v.Severity)
	assert.Equal(t, "id", v.Parameter)
	assert.Equal(t, "SQL Injection in id", v.Description)
	assert.Equal(t, "SQL syntax", v.Evidence["error_pattern"])
	assert.Equal(t, "' OR '1'='1", v.Evidence["payload"])
}

func TestDetect_SQLErrorCaseInsensitive(t *testing.T) {
	vulns := Detect(testEP, "pg error: sqlstate 42601", 0, payload(t, "SQL Injection - Single Quote"), "q")
	require.Len(t, vulns, 1)
	assert.Equal(t, "SQLSTATE", vulns[0].Evidence["error_pattern"])
}

func TestDetect_TimeBased(t *testing.T) {
	p := payload(t, "SQL Injection - Time-based")

	t.Run("slow response without error body", func(t *testing.T) {
		vulns := Detect(testEP, `{"ok":true}`, 5100*time.Millisecond, p, "id")
		require.Len(t, vulns, 1)
		assert.Equal(t, model.SeverityHigh, vulns[0].Severity)
		assert.Equal(t, "Time-based SQL Injection in id", vulns[0].Description)
		assert.InDelta(t, 5.1, vulns[0].Evidence["response_time"], 0.001)
		assert.Equal(t, 5, vulns[0].Evidence["expected_delay"])
	})

	t.Run("slow response with error body records both", func(t *testing.T) {
		vulns := Detect(testEP, "Unclosed quotation mark", 6*time.Second, p, "id")
		require.Len(t, vulns, 2)
		assert.Equal(t, "SQL Injection in id", vulns[0].Description)
		assert.Equal(t, "Time-based SQL Injection in id", vulns[1].Description)
	})

	t.Run("fast response", func(t *testing.T) {
		assert.Empty(t, Detect(testEP, `{}`, 4*time.Second, p, "id"))
	})

	t.Run("nosql sleep", func(t *testing.T) {
		vulns := Detect(testEP, `{}`, 5*time.Second, payload(t, "NoSQL Injection - MongoDB $where"), "filter")
		require.Len(t, vulns, 1)
	})
}

func TestDetect_XXE(t *testing.T) {
	p := payload(t, "XXE - External Entity")
	vulns := Detect(testEP, "root:x:0:0:root:/root:/bin/sh", 0, p, "doc")
	require.Len(t, vulns, 1)
	assert.Equal(t, model.CategoryXXE, vulns[0].Type)
	assert.Equal(t, true, vulns[0].Evidence["file_content_found"])

	assert.Empty(t, Detect(testEP, "<ok/>", 0, p, "doc"))
}

func TestDetect_SSRF(t *testing.T) {
	p := payload(t, "SSRF - Internal IP")
	vulns := Detect(testEP, `{"Instance-ID":"i-123"}`, 0, p, "url")
	require.Len(t, vulns, 1)
	assert.Equal(t, model.CategorySSRF, vulns[0].Type)
	assert.Equal(t, "instance-id", vulns[0].Evidence["indicator_found"])
}

func TestDetect_CommandInjection(t *testing.T) {
	vulns := Detect(testEP, "uid=33(www-data) gid=33(www-data)", 0, payload(t, "Command Injection - Pipe"), "host")
	require.Len(t, vulns, 1)
	assert.Equal(t, model.SeverityCritical, vulns[0].Severity)
	assert.Equal(t, model.CategoryInjection, vulns[0].Type)
	assert.Equal(t, `uid=\d+.*gid=\d+`, vulns[0].Evidence["command_output_pattern"])
}

func TestDetect_CommandCheckIgnoresCategory(t *testing.T) {
	p := model.FuzzingPayload{Name: "custom", Payload: "whoami", Category: model.CategoryIDOR}
	vulns := Detect(testEP, `CORP\alice`, 0, p, "user")
	require.Len(t, vulns, 1)
	assert.Equal(t, model.SeverityCritical, vulns[0].Severity)
}

func TestDetect_SQLSignatureNeverCritical(t *testing.T) {
	for _, p := range payloads.ByCategory(model.CategoryInjection) {
		for _, v := range Detect(testEP, "SQL syntax error", 0, p, "x") {
			assert.NotEqual(t, model.SeverityCritical, v.Severity, p.Name)
		}
	}
}

func TestDetect_PathTraversal(t *testing.T) {
	vulns := Detect(testEP, "#!/bin/bash\nroot:x:0:0", 0, payload(t, "Path Traversal - URL Encoded"), "file")

	var traversal []model.Vulnerability
	for _, v := range vulns {
		if strings.HasPrefix(v.Description, "Path Traversal") {
			traversal = append(traversal, v)
		}
	}
	require.Len(t, traversal, 1)
	assert.Equal(t, model.SeverityHigh, traversal[0].Severity)
}

func TestDetect_PreviewTruncated(t *testing.T) {
	body := "SQL syntax " + strings.Repeat("x", 2000)
	vulns := Detect(testEP, body, 0, payload(t, "SQL Injection - Single Quote"), "id")
	require.Len(t, vulns, 1)
	assert.Len(t, vulns[0].Evidence["response_preview"], 500)
}

func TestDetect_IDORPayloadsAreQuiet(t *testing.T) {
	for _, p := range payloads.ByCategory(model.CategoryIDOR) {
		assert.Empty(t, Detect(testEP, "root: SQL syntax metadata", 10*time.Second, p, "id"), p.Name)
	}
}
