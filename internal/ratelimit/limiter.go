// Package ratelimit throttles outgoing probes so a scan stays within an
// agreed request budget against the target.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter throttles probes globally and per host. A Limiter built with a
// non-positive rate never blocks.
type Limiter struct {
	mu      sync.Mutex
	global  *rate.Limiter
	perHost map[string]*rate.Limiter
	limit   rate.Limit
	burst   int
	waited  time.Duration
}

// NewLimiter creates a limiter. requestsPerSecond <= 0 disables throttling.
func NewLimiter(requestsPerSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(requestsPerSecond)
	if requestsPerSecond <= 0 {
		limit = rate.Inf
	}
	return &Limiter{
		global:  rate.NewLimiter(limit, burst),
		perHost: make(map[string]*rate.Limiter),
		limit:   limit,
		burst:   burst,
	}
}

// WaitHost blocks until a request to host is allowed by both the global and
// the per-host budget, or ctx is done.
func (l *Limiter) WaitHost(ctx context.Context, host string) error {
	start := time.Now()
	defer func() {
		l.mu.Lock()
		l.waited += time.Since(start)
		l.mu.Unlock()
	}()

	if err := l.global.Wait(ctx); err != nil {
		return err
	}

	l.mu.Lock()
	hostLimiter, ok := l.perHost[host]
	if !ok {
		hostLimiter = rate.NewLimiter(l.limit, l.burst)
		l.perHost[host] = hostLimiter
	}
	l.mu.Unlock()

	return hostLimiter.Wait(ctx)
}

// Stats returns limiter statistics.
func (l *Limiter) Stats() LimiterStats {
	l.mu.Lock()
	defer l.mu.Unlock()

	stats := LimiterStats{
		Hosts:       len(l.perHost),
		Burst:       l.burst,
		TotalWaited: l.waited,
		Unlimited:   l.limit == rate.Inf,
	}
	if !stats.Unlimited {
		stats.Rate = float64(l.limit)
	}
	return stats
}

// LimiterStats contains limiter statistics.
type LimiterStats struct {
	Hosts       int           `json:"hosts"`
	Rate        float64       `json:"rate"`
	Burst       int           `json:"burst"`
	TotalWaited time.Duration `json:"total_waited"`
	Unlimited   bool          `json:"unlimited"`
}

// Fields flattens the stats for the end-of-run stats event.
func (s LimiterStats) Fields() map[string]interface{} {
	return map[string]interface{}{
		"throttle_hosts":     s.Hosts,
		"throttle_rate":      s.Rate,
		"throttle_unlimited": s.Unlimited,
		"throttle_waited_ms": s.TotalWaited.Milliseconds(),
	}
}
