// Package metrics collects scan statistics.
package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Collector collects and aggregates metrics. It is safe for concurrent use.
type Collector struct {
	// Counters
	probesTotal         atomic.Int64
	errorsTotal         atomic.Int64
	endpointsDiscovered atomic.Int64
	endpointsTested     atomic.Int64
	findingsTotal       atomic.Int64
	bytesTotal          atomic.Int64
	retriesTotal        atomic.Int64

	// Rate tracking
	probesInWindow atomic.Int64
	errorsInWindow atomic.Int64
	windowStart    atomic.Int64

	// Response time tracking
	responseTimesSum atomic.Int64
	responseTimesNum atomic.Int64

	// Gauges
	activeWorkers atomic.Int64

	// Histogram buckets in ms: <10, <50, <100, <250, <500, <1000, <2500, <5000, <10000, >=10000
	responseTimeBuckets [10]atomic.Int64

	errorCounts map[string]*atomic.Int64
	errorMu     sync.RWMutex

	statusCodes map[int]*atomic.Int64
	statusMu    sync.RWMutex

	severityCounts map[string]*atomic.Int64
	severityMu     sync.RWMutex

	startTime time.Time
}

// New creates a new metrics collector.
func New() *Collector {
	now := time.Now()
	c := &Collector{
		errorCounts:    make(map[string]*atomic.Int64),
		statusCodes:    make(map[int]*atomic.Int64),
		severityCounts: make(map[string]*atomic.Int64),
		startTime:      now,
	}
	c.windowStart.Store(now.UnixNano())
	return c
}

// RecordProbe records one outgoing probe.
func (c *Collector) RecordProbe() {
	c.probesTotal.Add(1)
	c.probesInWindow.Add(1)
}

// RecordError records a failed probe by error type.
func (c *Collector) RecordError(errorType string) {
	c.errorsTotal.Add(1)
	c.errorsInWindow.Add(1)
	incr(&c.errorMu, c.errorCounts, errorType)
}

// RecordResponseTime records a probe round trip.
func (c *Collector) RecordResponseTime(d time.Duration) {
	ms := d.Milliseconds()
	c.responseTimesSum.Add(ms)
	c.responseTimesNum.Add(1)
	c.responseTimeBuckets[bucketFor(ms)].Add(1)
}

func bucketFor(ms int64) int {
	switch {
	case ms < 10:
		return 0
	case ms < 50:
		return 1
	case ms < 100:
		return 2
	case ms < 250:
		return 3
	case ms < 500:
		return 4
	case ms < 1000:
		return 5
	case ms < 2500:
		return 6
	case ms < 5000:
		return 7
	case ms < 10000:
		return 8
	default:
		return 9
	}
}

// RecordStatusCode records an HTTP status code.
func (c *Collector) RecordStatusCode(code int) {
	c.statusMu.Lock()
	if c.statusCodes[code] == nil {
		c.statusCodes[code] = &atomic.Int64{}
	}
	c.statusCodes[code].Add(1)
	c.statusMu.Unlock()
}

// RecordFinding records a vulnerability by severity.
func (c *Collector) RecordFinding(severity string) {
	c.findingsTotal.Add(1)
	incr(&c.severityMu, c.severityCounts, severity)
}

// RecordEndpointDiscovered increments discovered endpoints.
func (c *Collector) RecordEndpointDiscovered() {
	c.endpointsDiscovered.Add(1)
}

// RecordEndpointTested increments tested endpoints.
func (c *Collector) RecordEndpointTested() {
	c.endpointsTested.Add(1)
}

// RecordBytes records response bytes read.
func (c *Collector) RecordBytes(n int64) {
	c.bytesTotal.Add(n)
}

// RecordRetry records a retry of an auxiliary request.
func (c *Collector) RecordRetry() {
	c.retriesTotal.Add(1)
}

// AddActiveWorkers adjusts the number of busy workers.
func (c *Collector) AddActiveWorkers(delta int64) {
	c.activeWorkers.Add(delta)
}

func incr(mu *sync.RWMutex, m map[string]*atomic.Int64, key string) {
	mu.Lock()
	if m[key] == nil {
		m[key] = &atomic.Int64{}
	}
	m[key].Add(1)
	mu.Unlock()
}

// ProbesPerSecond returns the probe rate over the current 10s window.
func (c *Collector) ProbesPerSecond() float64 {
	return c.ratePerSecond(&c.probesInWindow)
}

// ErrorsPerSecond returns the error rate over the current 10s window.
func (c *Collector) ErrorsPerSecond() float64 {
	return c.ratePerSecond(&c.errorsInWindow)
}

func (c *Collector) ratePerSecond(counter *atomic.Int64) float64 {
	windowDuration := 10 * time.Second
	now := time.Now().UnixNano()
	windowStart := c.windowStart.Load()

	elapsed := time.Duration(now - windowStart)
	if elapsed >= windowDuration {
		if c.windowStart.CompareAndSwap(windowStart, now) {
			c.probesInWindow.Store(0)
			c.errorsInWindow.Store(0)
		}
		return 0
	}
	if elapsed <= 0 {
		return 0
	}

	return float64(counter.Load()) / elapsed.Seconds()
}

// AverageResponseTime returns the mean probe round trip.
func (c *Collector) AverageResponseTime() time.Duration {
	sum := c.responseTimesSum.Load()
	num := c.responseTimesNum.Load()
	if num == 0 {
		return 0
	}
	return time.Duration(sum/num) * time.Millisecond
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() *Snapshot {
	s := &Snapshot{
		Timestamp:           time.Now(),
		Uptime:              time.Since(c.startTime),
		ProbesTotal:         c.probesTotal.Load(),
		ErrorsTotal:         c.errorsTotal.Load(),
		EndpointsDiscovered: c.endpointsDiscovered.Load(),
		EndpointsTested:     c.endpointsTested.Load(),
		FindingsTotal:       c.findingsTotal.Load(),
		BytesTotal:          c.bytesTotal.Load(),
		RetriesTotal:        c.retriesTotal.Load(),
		ActiveWorkers:       c.activeWorkers.Load(),
		ProbesPerSecond:     c.ProbesPerSecond(),
		ErrorsPerSecond:     c.ErrorsPerSecond(),
		AverageResponseTime: c.AverageResponseTime(),
		ErrorCounts:         make(map[string]int64),
		StatusCodes:         make(map[int]int64),
		FindingsBySeverity:  make(map[string]int64),
		ResponseTimeHist:    make([]int64, len(c.responseTimeBuckets)),
	}

	c.errorMu.RLock()
	for k, v := range c.errorCounts {
		s.ErrorCounts[k] = v.Load()
	}
	c.errorMu.RUnlock()

	c.statusMu.RLock()
	for k, v := range c.statusCodes {
		s.StatusCodes[k] = v.Load()
	}
	c.statusMu.RUnlock()

	c.severityMu.RLock()
	for k, v := range c.severityCounts {
		s.FindingsBySeverity[k] = v.Load()
	}
	c.severityMu.RUnlock()

	for i := range c.responseTimeBuckets {
		s.ResponseTimeHist[i] = c.responseTimeBuckets[i].Load()
	}

	return s
}

// Snapshot represents a point-in-time view of metrics.
type Snapshot struct {
	Timestamp           time.Time        `json:"timestamp"`
	Uptime              time.Duration    `json:"uptime"`
	ProbesTotal         int64            `json:"probes_total"`
	ErrorsTotal         int64            `json:"errors_total"`
	EndpointsDiscovered int64            `json:"endpoints_discovered"`
	EndpointsTested     int64            `json:"endpoints_tested"`
	FindingsTotal       int64            `json:"findings_total"`
	BytesTotal          int64            `json:"bytes_total"`
	RetriesTotal        int64            `json:"retries_total"`
	ActiveWorkers       int64            `json:"active_workers"`
	ProbesPerSecond     float64          `json:"probes_per_second"`
	ErrorsPerSecond     float64          `json:"errors_per_second"`
	AverageResponseTime time.Duration    `json:"average_response_time"`
	ErrorCounts         map[string]int64 `json:"error_counts"`
	StatusCodes         map[int]int64    `json:"status_codes"`
	FindingsBySeverity  map[string]int64 `json:"findings_by_severity"`
	ResponseTimeHist    []int64          `json:"response_time_histogram"`
}

// ErrorRate returns errors/probes.
func (s *Snapshot) ErrorRate() float64 {
	if s.ProbesTotal == 0 {
		return 0
	}
	return float64(s.ErrorsTotal) / float64(s.ProbesTotal)
}

// Summary returns the fields logged at the end of a scan.
func (s *Snapshot) Summary() map[string]interface{} {
	return map[string]interface{}{
		"uptime":               s.Uptime.String(),
		"probes_total":         s.ProbesTotal,
		"errors_total":         s.ErrorsTotal,
		"error_rate":           s.ErrorRate(),
		"endpoints_discovered": s.EndpointsDiscovered,
		"endpoints_tested":     s.EndpointsTested,
		"findings_total":       s.FindingsTotal,
		"avg_response_time_ms": s.AverageResponseTime.Milliseconds(),
		"bytes_total":          s.BytesTotal,
	}
}
