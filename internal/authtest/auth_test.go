package authtest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

func newTester() *Tester {
	return New(probehttp.NewClient(probehttp.DefaultClientConfig()), nil, Config{})
}

func endpoint(srv *httptest.Server, method string, authRequired bool) model.Endpoint {
	return model.Endpoint{
		URL:          srv.URL,
		Method:       method,
		Path:         "/api/users",
		Headers:      map[string]string{"Authorization": "Bearer original", "Accept": "application/json"},
		AuthRequired: authRequired,
	}
}

func byType(vulns []model.Vulnerability, cat model.Category, sev model.Severity) []model.Vulnerability {
	var out []model.Vulnerability
	for _, v := range vulns {
		if v.Type == cat && v.Severity == sev {
			out = append(out, v)
		}
	}
	return out
}

func TestTestAuthBypass_OpenEndpoint(t *testing.T) {
	var stripped int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			atomic.AddInt32(&stripped, 1)
		}
		w.Write([]byte(`{"users":[]}`))
	}))
	defer srv.Close()

	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "POST", true), nil)
	require.NoError(t, err)

	bypass := byType(vulns, model.CategoryAuthBypass, model.SeverityHigh)
	require.Len(t, bypass, 1, "exactly one AUTH_BYPASS/HIGH for an open endpoint")
	assert.Equal(t, "/api/users", bypass[0].Endpoint)
	assert.Equal(t, "POST", bypass[0].Method)
	assert.Equal(t, "Endpoint accessible without authentication", bypass[0].Description)
	assert.Equal(t, 200, bypass[0].Evidence["response_status"])
	assert.Equal(t, map[string]string{"Accept": "application/json"}, bypass[0].Evidence["request_headers"])

	// Only the no-auth probe goes out stripped; override and spoof are skipped.
	assert.Equal(t, int32(1), atomic.LoadInt32(&stripped))
}

func TestTestAuthBypass_ProtectedEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer original" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "DELETE", true), nil)
	require.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestTestAuthBypass_SessionHeadersStripped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Auth-Token") != "k3y" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	tester := New(probehttp.NewClient(probehttp.DefaultClientConfig()), nil, Config{
		SessionHeaders: func() []string { return []string{"x-auth-token"} },
	})
	ep := endpoint(srv, "POST", true).WithHeaders(map[string]string{"X-Auth-Token": "k3y"})

	vulns, err := tester.TestAuthBypass(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Empty(t, vulns, "a key header named by the session is not replayed")
}

func TestTestAuthBypass_ClientHeadersSkipped(t *testing.T) {
	var anonymous int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			atomic.AddInt32(&anonymous, 1)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	config := probehttp.DefaultClientConfig()
	config.Headers = map[string]string{"Authorization": "Bearer good"}
	tester := New(probehttp.NewClient(config), nil, Config{})

	ep := model.Endpoint{URL: srv.URL, Method: "POST", Path: "/api/users", AuthRequired: true}
	vulns, err := tester.TestAuthBypass(context.Background(), ep, nil)
	require.NoError(t, err)
	assert.Empty(t, vulns)
	// no-auth, four overrides and five spoofs
	assert.Equal(t, int32(10), atomic.LoadInt32(&anonymous))
}

func TestTestAuthBypass_NoneAlgorithm(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		header, _, err := Decode(token)
		if err != nil || header["alg"] != "none" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	original, err := SignHS256(jwt.MapClaims{"sub": "1", "role": "user"}, "a-strong-secret-nobody-guesses")
	require.NoError(t, err)

	cfg := &model.AuthConfig{Type: model.AuthTypeJWT, CurrentToken: original}
	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "GET", true), cfg)
	require.NoError(t, err)

	critical := byType(vulns, model.CategoryAuthBypass, model.SeverityCritical)
	require.Len(t, critical, 2, "none algorithm and privilege escalation")
	assert.Equal(t, "None algorithm", critical[0].Evidence["modification"])
	assert.Equal(t, "Privilege escalation", critical[1].Evidence["modification"])
	assert.True(t, strings.HasSuffix(critical[0].Evidence["modified_token"].(string), "..."))
}

func TestTestAuthBypass_WeakSecretFirstMatchWins(t *testing.T) {
	var signed int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		header, _, err := Decode(token)
		if err != nil || header["alg"] != "HS256" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		atomic.AddInt32(&signed, 1)
		// Any HS256 token is accepted, so every secret would succeed.
		w.Write([]byte(`ok`))
	}))
	defer srv.Close()

	original, err := SignHS256(jwt.MapClaims{"sub": "1"}, "x")
	require.NoError(t, err)

	cfg := &model.AuthConfig{Type: model.AuthTypeBearer, CurrentToken: original}
	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "GET", false), cfg)
	require.NoError(t, err)

	critical := byType(vulns, model.CategoryAuthBypass, model.SeverityCritical)
	require.Len(t, critical, 1)
	assert.Equal(t, "Weak secret: secret", critical[0].Evidence["modification"])
	assert.Equal(t, int32(1), atomic.LoadInt32(&signed), "brute force stops at the first accepted secret")
}

func TestTestAuthBypass_MalformedTokenDisclosure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "Bearer "+MalformedToken {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte("java.sql.SQLException: bad token at line 42"))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	cfg := &model.AuthConfig{Type: model.AuthTypeBearer, CurrentToken: "opaque"}
	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "GET", true), cfg)
	require.NoError(t, err)

	require.Len(t, vulns, 1)
	assert.Equal(t, model.CategoryInfoDisclosure, vulns[0].Type)
	assert.Equal(t, model.SeverityMedium, vulns[0].Severity)
	assert.Equal(t, "SQLException", vulns[0].Evidence["error_pattern"])
}

func TestTestAuthBypass_MethodOverride(t *testing.T) {
	var posts int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			atomic.AddInt32(&posts, 1)
		}
		if r.Header.Get("X-HTTP-Method") == "GET" {
			w.Write([]byte(`ok`))
			return
		}
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "PUT", false), nil)
	require.NoError(t, err)

	require.Len(t, vulns, 1)
	assert.Equal(t, "HTTP method override vulnerability", vulns[0].Description)
	assert.Equal(t, "X-HTTP-Method", vulns[0].Evidence["override_header"])
	assert.Equal(t, "PUT", vulns[0].Method)
	assert.Equal(t, int32(2), atomic.LoadInt32(&posts), "override probes are sent as POST and stop at the first success")
}

func TestTestAuthBypass_IPSpoof(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Real-IP") == "127.0.0.1" {
			w.Write([]byte(`ok`))
			return
		}
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	t.Run("auth required", func(t *testing.T) {
		vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "GET", true), nil)
		require.NoError(t, err)
		require.Len(t, vulns, 1)
		assert.Equal(t, "IP-based access control bypass", vulns[0].Description)
		assert.Equal(t, map[string]string{"X-Real-IP": "127.0.0.1"}, vulns[0].Evidence["bypass_headers"])
	})

	t.Run("auth not required", func(t *testing.T) {
		vulns, err := newTester().TestAuthBypass(context.Background(), endpoint(srv, "GET", false), nil)
		require.NoError(t, err)
		assert.Empty(t, vulns)
	})
}

func TestTestAuthBypass_TransportErrorsAreSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	ep := endpoint(srv, "POST", true)
	srv.Close()

	cfg := &model.AuthConfig{Type: model.AuthTypeJWT, CurrentToken: "a.b.c"}
	vulns, err := newTester().TestAuthBypass(context.Background(), ep, cfg)
	assert.NoError(t, err)
	assert.Empty(t, vulns)
}

func TestTestAuthBypass_Cancelled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTester().TestAuthBypass(ctx, endpoint(srv, "GET", true), nil)
	assert.Error(t, err)
}
