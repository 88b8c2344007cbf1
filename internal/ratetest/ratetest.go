// Package ratetest characterizes rate limiting on an endpoint with a paced,
// strictly sequential burst of identical requests.
package ratetest

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/auth"
	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

const (
	// DefaultRequests is the burst size used when none is given.
	DefaultRequests = 100
	// DefaultPacing separates consecutive requests.
	DefaultPacing = 100 * time.Millisecond
	// DefaultTimeout bounds each request.
	DefaultTimeout = 5 * time.Second
	// MinSuccessful is the number of accepted requests, with no 429, above
	// which missing rate limiting is reported.
	MinSuccessful = 50
)

// Headers lists the rate-limit response headers that are captured.
var Headers = []string{
	"X-RateLimit-Limit",
	"X-RateLimit-Remaining",
	"X-RateLimit-Reset",
	"RateLimit-Limit",
	"RateLimit-Remaining",
	"RateLimit-Reset",
	"X-Rate-Limit-Limit",
	"X-Rate-Limit-Remaining",
	"X-Rate-Limit-Reset",
}

// epochThreshold separates Reset values given as a unix timestamp from
// values given as seconds until reset.
const epochThreshold = 1_000_000_000

// Config configures the rate-limit tester.
type Config struct {
	Timeout  time.Duration
	Pacing   time.Duration
	Requests int
}

// Tester sends rate-limit bursts.
type Tester struct {
	client   probehttp.Doer
	log      *logger.Logger
	timeout  time.Duration
	pacing   time.Duration
	requests int
	now      func() time.Time
}

// New creates a rate-limit tester. A negative pacing disables the pause
// between requests.
func New(client probehttp.Doer, log *logger.Logger, cfg Config) *Tester {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Pacing == 0 {
		cfg.Pacing = DefaultPacing
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = 0
	}
	if cfg.Requests <= 0 {
		cfg.Requests = DefaultRequests
	}
	return &Tester{
		client:   client,
		log:      log.WithComponent("ratetest"),
		timeout:  cfg.Timeout,
		pacing:   cfg.Pacing,
		requests: cfg.Requests,
		now:      time.Now,
	}
}

// TestRateLimits sends up to requestsCount requests (the configured count
// when zero) and reports what rate limiting was observed. A 429 stops the
// burst. The returned error is only set when ctx ends the run early; the
// partial report is still returned.
func (t *Tester) TestRateLimits(ctx context.Context, ep model.Endpoint, cfg *model.AuthConfig, requestsCount int) (model.RateLimitReport, error) {
	if requestsCount <= 0 {
		requestsCount = t.requests
	}
	ep = auth.WithToken(ep, cfg)

	report := model.RateLimitReport{
		Endpoint: ep.Path,
		Method:   ep.Method,
		Headers:  make(map[string]string),
	}

	start := t.now()
	var runErr error

burst:
	for i := 0; i < requestsCount; i++ {
		if ctx.Err() != nil {
			runErr = errors.NewCancelledError(ep.FullURL(), "ratetest")
			break
		}

		req := probehttp.NewRequest("rate_limit", ep)
		req.Timeout = t.timeout
		report.RequestsSent++

		resp, err := t.client.Do(ctx, req)
		if err != nil {
			t.log.WithError(err).Debug("Rate limit probe failed")
		} else {
			collectHeaders(report.Headers, resp.Header)

			if resp.StatusCode == http.StatusTooManyRequests {
				report.HasRateLimit = true
				if ra, ok := atoi(resp.Header.Get("Retry-After")); ok {
					report.RetryAfter = &ra
				}
				break
			}
			if resp.StatusCode < 400 {
				report.SuccessfulRequests++
			}
		}

		if t.pacing > 0 && i < requestsCount-1 {
			timer := time.NewTimer(t.pacing)
			select {
			case <-ctx.Done():
				timer.Stop()
				runErr = errors.NewCancelledError(ep.FullURL(), "ratetest")
				break burst
			case <-timer.C:
			}
		}
	}

	elapsed := t.now().Sub(start).Seconds()
	report.ElapsedTime = elapsed

	if v, ok := firstInt(report.Headers, "X-RateLimit-Limit", "RateLimit-Limit", "X-Rate-Limit-Limit"); ok {
		report.Limit = &v
	}
	if v, ok := firstInt(report.Headers, "X-RateLimit-Reset", "RateLimit-Reset", "X-Rate-Limit-Reset"); ok {
		if w, ok := window(v, t.now()); ok {
			report.Window = &w
		}
	}

	if !report.HasRateLimit && report.SuccessfulRequests >= MinSuccessful {
		rps := 0.0
		if elapsed > 0 {
			rps = float64(report.SuccessfulRequests) / elapsed
		}
		v := model.NewVulnerability(model.CategoryRateLimit, model.SeverityMedium, "No rate limiting detected", ep, "", model.Evidence{
			"requests_sent":       report.SuccessfulRequests,
			"time_elapsed":        elapsed,
			"requests_per_second": rps,
			"recommendation":      "Implement rate limiting to prevent abuse",
		})
		report.Vulnerability = &v
	}

	t.log.WithField("endpoint", ep.Key()).
		WithField("sent", report.RequestsSent).
		WithField("successful", report.SuccessfulRequests).
		WithField("limited", report.HasRateLimit).
		Debug("Rate limit test finished")

	return report, runErr
}

func collectHeaders(dst map[string]string, h http.Header) {
	for _, name := range Headers {
		if v := h.Get(name); v != "" {
			dst[name] = v
		}
	}
}

func firstInt(headers map[string]string, names ...string) (int, bool) {
	for _, name := range names {
		if v, ok := atoi(headers[name]); ok {
			return v, true
		}
	}
	return 0, false
}

// window turns a Reset header value into a window length in seconds. Unix
// timestamps are measured from now.
func window(reset int, now time.Time) (int, bool) {
	if reset >= epochThreshold {
		d := reset - int(now.Unix())
		return d, d > 0
	}
	return reset, reset > 0
}

func atoi(s string) (int, bool) {
	if s == "" {
		return 0, false
	}
	n, err := strconv.Atoi(s)
	return n, err == nil
}
