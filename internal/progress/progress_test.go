package progress

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestDisplay_Render(t *testing.T) {
	var buf bytes.Buffer
	d := NewWithWriter(&buf)

	d.SetTotal(4)
	if buf.Len() != 0 {
		t.Fatal("display should not render before Start")
	}

	d.Start("https://api.example.com")
	d.EndpointTested()
	d.EndpointTested()
	d.Finding(true)
	d.Finding(false)
	d.Update(120, 3)

	out := buf.String()
	for _, want := range []string{" 50%", "Endpoints: 2/4", "Findings: 2 (1 critical)", "Errors: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}

	tested, findings, probes, errs := d.Stats()
	if tested != 2 || findings != 2 || probes != 120 || errs != 3 {
		t.Errorf("Stats() = %d %d %d %d", tested, findings, probes, errs)
	}

	d.Stop()
	n := buf.Len()
	d.EndpointTested()
	if buf.Len() != n {
		t.Error("display should not render after Stop")
	}
}

func TestDisplay_PrintSummary(t *testing.T) {
	d := NewWithWriter(&bytes.Buffer{})
	d.Start("https://api.example.com")

	var out bytes.Buffer
	d.PrintSummary(&out, map[string]int{"HIGH": 2})
	if !strings.Contains(out.String(), "Scan Complete") || !strings.Contains(out.String(), "HIGH:") {
		t.Errorf("summary = %q", out.String())
	}
	if strings.Contains(out.String(), "LOW:") {
		t.Error("zero severities should be omitted")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{5 * time.Second, "5s"},
		{90 * time.Second, "1m30s"},
		{time.Hour + 2*time.Minute + 3*time.Second, "1h02m03s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestTruncateURL(t *testing.T) {
	if got := truncateURL("https://example.com/very/long/path", 20); len(got) != 20 || !strings.HasSuffix(got, "...") {
		t.Errorf("truncateURL = %q", got)
	}
}
