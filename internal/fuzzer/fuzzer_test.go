package fuzzer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/payloads"
)

func newFuzzer(cfg Config) *Fuzzer {
	return New(probehttp.NewClient(probehttp.DefaultClientConfig()), nil, cfg)
}

func TestFuzzParameters_SQLInjectionInParameter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("id") == "' OR '1'='1" {
			w.WriteHeader(http.StatusInternalServerError)
			io.WriteString(w, "You have an error in your SQL syntax")
			return
		}
		io.WriteString(w, `{"id":1}`)
	}))
	defer srv.Close()

	ep := model.Endpoint{URL: srv.URL, Method: "GET", Path: "/items", Parameters: map[string]string{"id": "1", "page": "2"}}
	vulns, err := newFuzzer(Config{}).FuzzParameters(context.Background(), ep, nil)
	require.NoError(t, err)

	require.Len(t, vulns, 1)
	assert.Equal(t, model.CategoryInjection, vulns[0].Type)
	assert.Equal(t, model.SeverityHigh, vulns[0].Severity)
	assert.Equal(t, "id", vulns[0].Parameter)
	assert.Equal(t, "/items", vulns[0].Endpoint)
}

func TestFuzzParameters_BodyLeaves(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]bool{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body, err := jsonvalue.Parse(data)
		if err != nil {
			return
		}
		name, _ := body.At(jsonvalue.Path{"user", "profile", "name"})
		mu.Lock()
		seen[name.Text()] = true
		mu.Unlock()
		if name.Text() == "`id`" {
			io.WriteString(w, "uid=0(root) gid=0(root)")
		}
	}))
	defer srv.Close()

	body := jsonvalue.MustParse(`{"user":{"profile":{"name":"bob"},"tags":["a"]},"n":1}`)
	ep := model.Endpoint{URL: srv.URL, Method: "POST", Path: "/users", Body: &body}

	vulns, err := newFuzzer(Config{Headers: []string{"X-Test"}}).FuzzParameters(context.Background(), ep, nil)
	require.NoError(t, err)

	require.Len(t, vulns, 1)
	assert.Equal(t, "user.profile.name", vulns[0].Parameter)
	assert.Equal(t, model.SeverityCritical, vulns[0].Severity)

	mu.Lock()
	defer mu.Unlock()
	for _, p := range payloads.All() {
		assert.True(t, seen[p.Payload], "payload %q not sent to user.profile.name", p.Name)
	}
	assert.True(t, seen["bob"], "other leaves keep the original value")
}

func TestFuzzParameters_SkipsBodyForGet(t *testing.T) {
	var bodies int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		if strings.Contains(string(data), "UNION") {
			mu.Lock()
			bodies++
			mu.Unlock()
		}
	}))
	defer srv.Close()

	body := jsonvalue.MustParse(`{"q":"x"}`)
	ep := model.Endpoint{URL: srv.URL, Method: "GET", Path: "/search", Body: &body}
	_, err := newFuzzer(Config{Headers: []string{"X-Test"}}).FuzzParameters(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Zero(t, bodies)
}

func TestFuzzParameters_HeaderSweep(t *testing.T) {
	var mu sync.Mutex
	count := map[string]int{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()
		for _, h := range FuzzHeaders {
			if v := r.Header.Get(h); v == "http://localhost:8080" {
				count[h]++
				if h == "X-Forwarded-Host" {
					io.WriteString(w, "proxied to internal service")
				}
			}
		}
	}))
	defer srv.Close()

	ep := model.Endpoint{URL: srv.URL, Method: "GET", Path: "/"}
	vulns, err := newFuzzer(Config{}).FuzzParameters(context.Background(), ep, nil)
	require.NoError(t, err)

	require.Len(t, vulns, 1)
	assert.Equal(t, model.CategorySSRF, vulns[0].Type)
	assert.Equal(t, "Header: X-Forwarded-Host", vulns[0].Parameter)

	mu.Lock()
	defer mu.Unlock()
	for _, h := range FuzzHeaders {
		assert.Equal(t, 1, count[h], h)
	}
}

func TestFuzzParameters_AddsBearerToken(t *testing.T) {
	var mu sync.Mutex
	var auths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		auths = append(auths, r.Header.Get("Authorization"))
		mu.Unlock()
	}))
	defer srv.Close()

	cfg := &model.AuthConfig{Type: model.AuthTypeJWT, CurrentToken: "tok"}
	ep := model.Endpoint{URL: srv.URL, Method: "GET", Path: "/"}
	_, err := newFuzzer(Config{Headers: []string{"X-Test"}}).FuzzParameters(context.Background(), ep, cfg)
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, auths)
	for _, a := range auths {
		assert.Equal(t, "Bearer tok", a)
	}
}

func TestFuzzParameters_TransportErrorsSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	ep := model.Endpoint{URL: url, Method: "GET", Path: "/", Parameters: map[string]string{"id": "1"}}
	vulns, err := newFuzzer(Config{Timeout: time.Second}).FuzzParameters(context.Background(), ep, nil)
	assert.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestFuzzParameters_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	ep := model.Endpoint{URL: "http://127.0.0.1:1", Method: "GET", Path: "/"}
	_, err := newFuzzer(Config{}).FuzzParameters(ctx, ep, nil)
	assert.Error(t, err)
}
