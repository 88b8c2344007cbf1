package ratetest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

func newTester(requests int) *Tester {
	return New(probehttp.NewClient(probehttp.DefaultClientConfig()), nil, Config{Pacing: -1, Requests: requests})
}

func endpoint(url string) model.Endpoint {
	return model.Endpoint{URL: url, Method: http.MethodGet, Path: "/items"}
}

func TestTestRateLimits_NoLimit(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	report, err := newTester(60).TestRateLimits(context.Background(), endpoint(srv.URL), nil, 0)
	require.NoError(t, err)

	assert.Equal(t, int32(60), atomic.LoadInt32(&hits))
	assert.False(t, report.HasRateLimit)
	assert.Equal(t, 60, report.RequestsSent)
	assert.Equal(t, 60, report.SuccessfulRequests)
	assert.Empty(t, report.Headers)

	require.NotNil(t, report.Vulnerability)
	v := report.Vulnerability
	assert.Equal(t, model.CategoryRateLimit, v.Type)
	assert.Equal(t, model.SeverityMedium, v.Severity)
	assert.Equal(t, "No rate limiting detected", v.Description)
	assert.Equal(t, "/items", v.Endpoint)
	assert.Equal(t, 60, v.Evidence["requests_sent"])
	assert.Equal(t, report.ElapsedTime, v.Evidence["time_elapsed"])
	assert.Equal(t, 60/report.ElapsedTime, v.Evidence["requests_per_second"])
}

func TestTestRateLimits_TooManyRequests(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&hits, 1)
		w.Header().Set("X-RateLimit-Limit", "5")
		w.Header().Set("X-RateLimit-Reset", "60")
		if n > 5 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("X-RateLimit-Remaining", "1")
	}))
	defer srv.Close()

	report, err := newTester(100).TestRateLimits(context.Background(), endpoint(srv.URL), nil, 0)
	require.NoError(t, err)

	assert.Equal(t, int32(6), atomic.LoadInt32(&hits), "a 429 stops the burst")
	assert.True(t, report.HasRateLimit)
	assert.Equal(t, 6, report.RequestsSent)
	assert.Equal(t, 5, report.SuccessfulRequests)
	require.NotNil(t, report.RetryAfter)
	assert.Equal(t, 30, *report.RetryAfter)
	require.NotNil(t, report.Limit)
	assert.Equal(t, 5, *report.Limit)
	require.NotNil(t, report.Window)
	assert.Equal(t, 60, *report.Window)
	assert.Equal(t, "1", report.Headers["X-RateLimit-Remaining"])
	assert.Nil(t, report.Vulnerability)
}

func TestTestRateLimits_FewSuccesses(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1)%2 == 0 {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	report, err := newTester(0).TestRateLimits(context.Background(), endpoint(srv.URL), nil, 98)
	require.NoError(t, err)

	assert.Equal(t, 98, report.RequestsSent)
	assert.Equal(t, 49, report.SuccessfulRequests)
	assert.Nil(t, report.Vulnerability, "49 successes stay below the threshold")
}

func TestTestRateLimits_AddsBearerToken(t *testing.T) {
	var auth atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth.Store(r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	cfg := &model.AuthConfig{Type: model.AuthTypeBearer, CurrentToken: "tok"}
	_, err := newTester(1).TestRateLimits(context.Background(), endpoint(srv.URL), cfg, 0)
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", auth.Load())
}

func TestTestRateLimits_TransportErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	report, err := newTester(3).TestRateLimits(context.Background(), endpoint(url), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, report.RequestsSent)
	assert.Zero(t, report.SuccessfulRequests)
	assert.False(t, report.HasRateLimit)
}

func TestTestRateLimits_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	tester := New(probehttp.NewClient(probehttp.DefaultClientConfig()), nil, Config{Pacing: time.Hour, Requests: 10})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := tester.TestRateLimits(ctx, endpoint(srv.URL), nil, 0)
	assert.Error(t, err)
	assert.Equal(t, 1, report.RequestsSent)
	assert.Nil(t, report.Vulnerability)
}

func TestWindow(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tests := []struct {
		name  string
		reset int
		want  int
		ok    bool
	}{
		{"seconds", 60, 60, true},
		{"zero", 0, 0, false},
		{"epoch", 1_700_000_090, 90, true},
		{"epoch past", 1_699_999_000, -1000, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := window(tt.reset, now)
			assert.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	tester := New(nil, nil, Config{})
	assert.Equal(t, DefaultTimeout, tester.timeout)
	assert.Equal(t, DefaultPacing, tester.pacing)
	assert.Equal(t, DefaultRequests, tester.requests)
}
