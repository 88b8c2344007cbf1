// Package progress renders a one-line progress bar for a scan on stderr.
package progress

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Display manages progress bar display during a scan.
type Display struct {
	mu      sync.Mutex
	out     io.Writer
	started bool
	stopped bool

	endpointsTotal  atomic.Int64
	endpointsTested atomic.Int64
	findings        atomic.Int64
	critical        atomic.Int64
	probes          atomic.Int64
	errors          atomic.Int64

	startTime time.Time
	target    string
	lastLine  string
}

// New creates a new progress display writing to stderr.
func New() *Display {
	return NewWithWriter(os.Stderr)
}

// NewWithWriter creates a progress display writing to w.
func NewWithWriter(w io.Writer) *Display {
	return &Display{out: w}
}

// Start begins the progress display.
func (d *Display) Start(target string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return
	}

	d.started = true
	d.startTime = time.Now()
	d.target = target
}

// SetTotal sets the number of endpoints queued for testing.
func (d *Display) SetTotal(n int) {
	d.endpointsTotal.Store(int64(n))
	d.render()
}

// EndpointTested counts one finished endpoint.
func (d *Display) EndpointTested() {
	d.endpointsTested.Add(1)
	d.render()
}

// Finding counts one finding; critical ones are also tallied separately.
func (d *Display) Finding(critical bool) {
	d.findings.Add(1)
	if critical {
		d.critical.Add(1)
	}
	d.render()
}

// Update sets probe and error totals, usually from a metrics snapshot.
func (d *Display) Update(probes, errors int64) {
	d.probes.Store(probes)
	d.errors.Store(errors)
	d.render()
}

func (d *Display) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.started || d.stopped {
		return
	}

	total := d.endpointsTotal.Load()
	tested := d.endpointsTested.Load()

	progress := 0
	if total > 0 {
		progress = int(float64(tested) / float64(total) * 100)
		if progress > 100 {
			progress = 100
		}
	}

	elapsed := time.Since(d.startTime)
	speed := float64(0)
	if elapsed.Seconds() > 0 {
		speed = float64(d.probes.Load()) / elapsed.Seconds()
	}

	barWidth := 30
	filled := progress * barWidth / 100
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)

	line := fmt.Sprintf("\r[%s] %3d%% | Endpoints: %d/%d | Findings: %d (%d critical) | Errors: %d | %.1f req/s | %s",
		bar, progress, tested, total, d.findings.Load(), d.critical.Load(), d.errors.Load(), speed, formatDuration(elapsed))

	if len(line) < len(d.lastLine) {
		fmt.Fprint(d.out, "\r"+strings.Repeat(" ", len(d.lastLine)))
	}
	fmt.Fprint(d.out, line)
	d.lastLine = line
}

// Stop stops the progress display.
func (d *Display) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.stopped || !d.started {
		return
	}

	d.stopped = true
	fmt.Fprintln(d.out)
}

// PrintSummary prints a final summary after the scan.
func (d *Display) PrintSummary(w io.Writer, bySeverity map[string]int) {
	duration := time.Since(d.startTime)

	fmt.Fprintln(w)
	fmt.Fprintln(w, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintln(w, "║                        Scan Complete                         ║")
	fmt.Fprintln(w, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "  Target:              %s\n", truncateURL(d.target, 50))
	fmt.Fprintf(w, "  Duration:            %s\n", formatDuration(duration))
	fmt.Fprintf(w, "  Endpoints Tested:    %d/%d\n", d.endpointsTested.Load(), d.endpointsTotal.Load())
	fmt.Fprintf(w, "  Probes Sent:         %d\n", d.probes.Load())
	fmt.Fprintf(w, "  Errors:              %d\n", d.errors.Load())
	fmt.Fprintf(w, "  Findings:            %d\n", d.findings.Load())
	for _, sev := range []string{"CRITICAL", "HIGH", "MEDIUM", "LOW"} {
		if n := bySeverity[sev]; n > 0 {
			fmt.Fprintf(w, "    %-18s %d\n", sev+":", n)
		}
	}
	fmt.Fprintln(w)
}

// Stats returns the current counters.
func (d *Display) Stats() (endpointsTested, findings, probes, errors int64) {
	return d.endpointsTested.Load(), d.findings.Load(), d.probes.Load(), d.errors.Load()
}

func truncateURL(url string, maxLen int) string {
	if len(url) <= maxLen {
		return url
	}
	return url[:maxLen-3] + "..."
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%02dm%02ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%02ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
