package auth

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

func createTestJWT(expiry time.Time) string {
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"HS256","typ":"JWT"}`))
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"sub":"1","exp":%d}`, expiry.Unix())))
	sig := base64.RawURLEncoding.EncodeToString([]byte("sig"))
	return header + "." + payload + "." + sig
}

func fastOptions() Options {
	cfg := errors.DefaultRetryConfig()
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = 5 * time.Millisecond
	return Options{Retrier: errors.NewRetrier(cfg)}
}

// =============================================================================
// NewProvider Tests
// =============================================================================

func TestNewProvider(t *testing.T) {
	tests := []struct {
		name     string
		cfg      *model.AuthConfig
		wantType model.AuthType
		wantErr  bool
	}{
		{"nil config", nil, model.AuthTypeNone, false},
		{"none", &model.AuthConfig{Type: model.AuthTypeNone}, model.AuthTypeNone, false},
		{"basic", &model.AuthConfig{Type: model.AuthTypeBasic, Credentials: map[string]string{"username": "u", "password": "p"}}, model.AuthTypeBasic, false},
		{"api key", &model.AuthConfig{Type: model.AuthTypeAPIKey, Credentials: map[string]string{"api_key": "k"}}, model.AuthTypeAPIKey, false},
		{"custom", &model.AuthConfig{Type: model.AuthTypeCustom, Credentials: map[string]string{"Cookie": "sid=1"}}, model.AuthTypeCustom, false},
		{"bearer", &model.AuthConfig{Type: model.AuthTypeBearer, CurrentToken: "tok"}, model.AuthTypeBearer, false},
		{"jwt", &model.AuthConfig{Type: model.AuthTypeJWT, CurrentToken: "tok"}, model.AuthTypeJWT, false},
		{"oauth2", &model.AuthConfig{Type: model.AuthTypeOAuth2, TokenEndpoint: "http://127.0.0.1/token"}, model.AuthTypeOAuth2, false},
		{"oauth2 without endpoint or token", &model.AuthConfig{Type: model.AuthTypeOAuth2}, "", true},
		{"unknown", &model.AuthConfig{Type: "kerberos"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := NewProvider(tt.cfg, Options{})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				if !errors.IsConfigError(err) {
					t.Errorf("error type = %v, want config", errors.GetErrorType(err))
				}
				return
			}
			if err != nil {
				t.Fatalf("NewProvider() error = %v", err)
			}
			if p.Type() != tt.wantType {
				t.Errorf("Type() = %v, want %v", p.Type(), tt.wantType)
			}
		})
	}
}

// =============================================================================
// Static Provider Tests
// =============================================================================

func TestBasicAuth_Headers(t *testing.T) {
	a := NewBasicAuth("admin", "s3cret")
	want := "Basic " + base64.StdEncoding.EncodeToString([]byte("admin:s3cret"))
	if got := a.Headers()["Authorization"]; got != want {
		t.Errorf("Authorization = %q, want %q", got, want)
	}
	if !a.IsAuthenticated() {
		t.Error("basic auth with credentials should be authenticated")
	}

	if NewBasicAuth("", "").Headers() != nil {
		t.Error("empty credentials should produce no headers")
	}
}

func TestAPIKeyAuth_Headers(t *testing.T) {
	tests := []struct {
		name  string
		creds map[string]string
		want  map[string]string
	}{
		{"default header", map[string]string{"api_key": "abc"}, map[string]string{"X-Api-Key": "abc"}},
		{"key alias", map[string]string{"key": "abc"}, map[string]string{"X-Api-Key": "abc"}},
		{"custom header", map[string]string{"api_key": "abc", "header": "Api-Token"}, map[string]string{"Api-Token": "abc"}},
		{"no key", map[string]string{}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NewAPIKeyAuth(tt.creds).Headers()
			if len(got) != len(tt.want) {
				t.Fatalf("Headers() = %v, want %v", got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("Headers()[%s] = %q, want %q", k, got[k], v)
				}
			}
		})
	}
}

func TestCustomAuth_HeadersAreCopied(t *testing.T) {
	src := map[string]string{"Cookie": "sid=1"}
	a := NewCustomAuth(src)
	src["Cookie"] = "changed"

	h := a.Headers()
	if h["Cookie"] != "sid=1" {
		t.Errorf("Cookie = %q", h["Cookie"])
	}
	h["Cookie"] = "mutated"
	if a.Headers()["Cookie"] != "sid=1" {
		t.Error("Headers() should return a copy")
	}
}

func TestApply(t *testing.T) {
	ep := model.Endpoint{Path: "/users", Headers: map[string]string{"Accept": "application/json"}}

	out := Apply(ep, NewJWTAuth("tok"))
	if out.Headers["Authorization"] != "Bearer tok" || out.Headers["Accept"] != "application/json" {
		t.Errorf("headers = %v", out.Headers)
	}
	if _, ok := ep.Headers["Authorization"]; ok {
		t.Error("Apply should not modify the input endpoint")
	}

	if got := Apply(ep, &NoAuth{}); len(got.Headers) != 1 {
		t.Errorf("NoAuth added headers: %v", got.Headers)
	}
}

// =============================================================================
// JWTAuth Tests
// =============================================================================

func TestParseExpiry(t *testing.T) {
	t.Run("valid JWT", func(t *testing.T) {
		expiry := time.Now().Add(time.Hour).Truncate(time.Second)
		exp, err := ParseExpiry(createTestJWT(expiry))
		if err != nil {
			t.Fatalf("ParseExpiry() error = %v", err)
		}
		if exp.Unix() != expiry.Unix() {
			t.Errorf("exp = %v, want %v", exp, expiry)
		}
	})

	t.Run("invalid JWT", func(t *testing.T) {
		if _, err := ParseExpiry("invalid"); err == nil {
			t.Error("expected error for invalid JWT")
		}
	})

	t.Run("JWT without exp", func(t *testing.T) {
		header := base64.RawURLEncoding.EncodeToString([]byte(`{}`))
		payload := base64.RawURLEncoding.EncodeToString([]byte(`{"sub":"123"}`))
		if _, err := ParseExpiry(header + "." + payload + ".sig"); err == nil {
			t.Error("expected error for JWT without exp")
		}
	})
}

func TestJWTAuth_IsAuthenticated(t *testing.T) {
	if !NewJWTAuth(createTestJWT(time.Now().Add(time.Hour))).IsAuthenticated() {
		t.Error("fresh token should be authenticated")
	}
	if NewJWTAuth(createTestJWT(time.Now().Add(-time.Hour))).IsAuthenticated() {
		t.Error("expired token should not be authenticated")
	}
	if !NewJWTAuth("opaque-token").IsAuthenticated() {
		t.Error("opaque token without expiry should be authenticated")
	}
	if NewJWTAuth("").IsAuthenticated() {
		t.Error("empty token should not be authenticated")
	}
}

func TestJWTAuth_Refresh(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		if r.Header.Get("Authorization") != "Bearer refresh_token" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{
			"access_token":  createTestJWT(time.Now().Add(2 * time.Hour)),
			"refresh_token": "new_refresh_token",
		})
	}))
	defer server.Close()

	t.Run("near expiry refreshes", func(t *testing.T) {
		oldToken := createTestJWT(time.Now().Add(time.Minute))
		a := NewJWTAuthWithRefresh(model.AuthTypeJWT, oldToken, "refresh_token", server.URL, fastOptions())

		if err := a.RefreshIfNeeded(context.Background()); err != nil {
			t.Fatalf("RefreshIfNeeded() error = %v", err)
		}
		if a.Token() == oldToken {
			t.Error("token should have been refreshed")
		}
		if time.Until(a.Expiry()) < time.Hour {
			t.Errorf("expiry = %v, want about two hours out", a.Expiry())
		}
	})

	t.Run("fresh token skips refresh", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		a := NewJWTAuthWithRefresh(model.AuthTypeJWT, createTestJWT(time.Now().Add(time.Hour)), "refresh_token", server.URL, fastOptions())
		if err := a.RefreshIfNeeded(context.Background()); err != nil {
			t.Fatal(err)
		}
		if atomic.LoadInt32(&calls) != 0 {
			t.Error("no refresh call expected for a fresh token")
		}
	})

	t.Run("rejected refresh token is not retried", func(t *testing.T) {
		atomic.StoreInt32(&calls, 0)
		a := NewJWTAuthWithRefresh(model.AuthTypeJWT, "", "wrong", server.URL, fastOptions())
		err := a.RefreshIfNeeded(context.Background())
		if errors.GetErrorType(err) != errors.Auth {
			t.Errorf("error type = %v, want auth", errors.GetErrorType(err))
		}
		if atomic.LoadInt32(&calls) != 1 {
			t.Errorf("calls = %d, want 1", calls)
		}
	})
}

func TestJWTAuth_Concurrent(t *testing.T) {
	a := NewJWTAuth(createTestJWT(time.Now().Add(time.Hour)))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = a.Headers()
			_ = a.IsAuthenticated()
		}()
		go func(i int) {
			defer wg.Done()
			a.SetToken(fmt.Sprintf("token-%d", i))
		}(i)
	}
	wg.Wait()
}

// =============================================================================
// OAuthAuth Tests
// =============================================================================

func newTokenServer(t *testing.T, status int, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			return
		}
		switch r.PostForm.Get("grant_type") {
		case "client_credentials":
			if r.PostForm.Get("client_id") != "id" || r.PostForm.Get("client_secret") != "secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token":  "access-1",
				"refresh_token": "refresh-1",
				"token_type":    "Bearer",
				"expires_in":    60,
			})
		case "refresh_token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "access-2",
				"expires_in":   3600,
			})
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestOAuthAuth_ClientCredentials(t *testing.T) {
	var calls int32
	server := newTokenServer(t, http.StatusOK, &calls)
	defer server.Close()

	cfg := &model.AuthConfig{
		Type:          model.AuthTypeOAuth2,
		TokenEndpoint: server.URL,
		Credentials:   map[string]string{"client_id": "id", "client_secret": "secret"},
	}

	resolved, p, err := Resolve(context.Background(), cfg, fastOptions())
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if resolved.CurrentToken != "access-1" {
		t.Errorf("CurrentToken = %q", resolved.CurrentToken)
	}
	if resolved.TokenExpiry.IsZero() {
		t.Error("TokenExpiry should be set from expires_in")
	}
	if cfg.CurrentToken != "" {
		t.Error("Resolve should not modify the input config")
	}
	if p.Headers()["Authorization"] != "Bearer access-1" {
		t.Errorf("headers = %v", p.Headers())
	}

	// expires_in of 60s is inside the refresh window.
	if err := p.RefreshIfNeeded(context.Background()); err != nil {
		t.Fatalf("RefreshIfNeeded() error = %v", err)
	}
	if p.Headers()["Authorization"] != "Bearer access-2" {
		t.Errorf("after refresh headers = %v", p.Headers())
	}
}

func TestOAuthAuth_ExistingToken(t *testing.T) {
	var calls int32
	server := newTokenServer(t, http.StatusOK, &calls)
	defer server.Close()

	cfg := &model.AuthConfig{
		Type:          model.AuthTypeOAuth2,
		TokenEndpoint: server.URL,
		CurrentToken:  "already",
		TokenExpiry:   time.Now().Add(time.Hour),
	}
	resolved, _, err := Resolve(context.Background(), cfg, fastOptions())
	if err != nil {
		t.Fatal(err)
	}
	if resolved.CurrentToken != "already" || atomic.LoadInt32(&calls) != 0 {
		t.Errorf("token = %q, calls = %d", resolved.CurrentToken, calls)
	}
}

func TestOAuthAuth_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantType  errors.ErrorType
		wantCalls int32
	}{
		{"unauthorized", http.StatusUnauthorized, errors.Auth, 1},
		{"server error is retried", http.StatusBadGateway, errors.ServerError, 4},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := newTokenServer(t, tt.status, &calls)
			defer server.Close()

			cfg := &model.AuthConfig{Type: model.AuthTypeOAuth2, TokenEndpoint: server.URL}
			_, _, err := Resolve(context.Background(), cfg, fastOptions())
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.GetErrorType(err) != tt.wantType {
				t.Errorf("error type = %v, want %v", errors.GetErrorType(err), tt.wantType)
			}
			if atomic.LoadInt32(&calls) != tt.wantCalls {
				t.Errorf("calls = %d, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestWithToken(t *testing.T) {
	cfg := &model.AuthConfig{Type: model.AuthTypeBearer, CurrentToken: "tok"}

	got := WithToken(model.Endpoint{Path: "/"}, cfg)
	if got.Headers["Authorization"] != "Bearer tok" {
		t.Errorf("headers = %v", got.Headers)
	}

	existing := model.Endpoint{Headers: map[string]string{"authorization": "Basic x"}}
	if got := WithToken(existing, cfg); got.Headers["authorization"] != "Basic x" || len(got.Headers) != 1 {
		t.Errorf("existing Authorization should win: %v", got.Headers)
	}

	if got := WithToken(model.Endpoint{}, &model.AuthConfig{Type: model.AuthTypeAPIKey, CurrentToken: "tok"}); got.Headers != nil {
		t.Errorf("non-bearer config added headers: %v", got.Headers)
	}
	if got := WithToken(model.Endpoint{}, nil); got.Headers != nil {
		t.Error("nil config added headers")
	}
}

func TestNoAuth(t *testing.T) {
	n := &NoAuth{}
	if n.Headers() != nil || !n.IsAuthenticated() || n.Type() != model.AuthTypeNone {
		t.Error("NoAuth should send nothing and always be authenticated")
	}
	if err := n.Authenticate(context.Background()); err != nil {
		t.Error(err)
	}
}
