// Package auth turns an AuthConfig into request headers, fetching and
// refreshing tokens when the config points at a token endpoint.
package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// Provider defines the interface for authentication providers.
type Provider interface {
	// Authenticate obtains credentials, e.g. a token from a token endpoint
	Authenticate(ctx context.Context) error

	// Headers returns headers to include in requests
	Headers() map[string]string

	// RefreshIfNeeded refreshes the credentials if they are about to expire
	RefreshIfNeeded(ctx context.Context) error

	// IsAuthenticated returns true if credentials are usable
	IsAuthenticated() bool

	// Type returns the authentication type
	Type() model.AuthType
}

// Options configures token endpoint calls.
type Options struct {
	HTTPClient *http.Client
	Retrier    *errors.Retrier
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Retrier == nil {
		o.Retrier = errors.NewDefaultRetrier()
	}
	return o
}

// NewProvider creates an authentication provider for cfg. A nil cfg means
// no authentication.
func NewProvider(cfg *model.AuthConfig, opts Options) (Provider, error) {
	if cfg.IsNone() {
		return &NoAuth{}, nil
	}
	opts = opts.withDefaults()

	switch cfg.Type {
	case model.AuthTypeBasic:
		return NewBasicAuth(cfg.Credential("username"), cfg.Credential("password")), nil
	case model.AuthTypeAPIKey:
		return NewAPIKeyAuth(cfg.Credentials), nil
	case model.AuthTypeCustom:
		return NewCustomAuth(cfg.Credentials), nil
	case model.AuthTypeBearer, model.AuthTypeJWT:
		token := cfg.CurrentToken
		if token == "" {
			token = cfg.Credential("token")
		}
		a := NewJWTAuthWithRefresh(cfg.Type, token, cfg.Credential("refresh_token"), cfg.RefreshEndpoint, opts)
		if !cfg.TokenExpiry.IsZero() {
			a.expiry = cfg.TokenExpiry
		}
		return a, nil
	case model.AuthTypeOAuth2:
		if cfg.TokenEndpoint == "" && cfg.CurrentToken == "" {
			return nil, errors.NewConfigError("auth", "oauth2 requires token_endpoint or current_token")
		}
		return NewOAuthAuth(cfg, opts), nil
	default:
		return nil, errors.NewConfigError("auth", fmt.Sprintf("unsupported auth type %q", cfg.Type))
	}
}

// Resolve authenticates cfg and returns a copy whose CurrentToken and
// TokenExpiry reflect what the provider obtained, plus the provider itself.
// The input is not modified.
func Resolve(ctx context.Context, cfg *model.AuthConfig, opts Options) (*model.AuthConfig, Provider, error) {
	p, err := NewProvider(cfg, opts)
	if err != nil {
		return nil, nil, err
	}
	if err := p.Authenticate(ctx); err != nil {
		return nil, nil, err
	}
	if cfg == nil {
		return nil, p, nil
	}

	out := *cfg
	if tp, ok := p.(tokenProvider); ok {
		out.CurrentToken = tp.Token()
		if exp := tp.Expiry(); !exp.IsZero() {
			out.TokenExpiry = exp
		}
	}
	return &out, p, nil
}

type tokenProvider interface {
	Token() string
	Expiry() time.Time
}

// Apply returns a copy of ep carrying the provider's headers.
func Apply(ep model.Endpoint, p Provider) model.Endpoint {
	if p == nil {
		return ep
	}
	headers := p.Headers()
	if len(headers) == 0 {
		return ep
	}
	return ep.WithHeaders(headers)
}

// WithToken returns ep carrying cfg's current token as a bearer token when
// cfg uses one and ep has no Authorization header yet.
func WithToken(ep model.Endpoint, cfg *model.AuthConfig) model.Endpoint {
	if !cfg.UsesBearerToken() || !cfg.HasToken() {
		return ep
	}
	for k := range ep.Headers {
		if strings.EqualFold(k, "Authorization") {
			return ep
		}
	}
	return ep.WithHeaders(map[string]string{"Authorization": "Bearer " + cfg.CurrentToken})
}

// NoAuth represents no authentication.
type NoAuth struct{}

func (n *NoAuth) Authenticate(ctx context.Context) error    { return nil }
func (n *NoAuth) Headers() map[string]string                { return nil }
func (n *NoAuth) RefreshIfNeeded(ctx context.Context) error { return nil }
func (n *NoAuth) IsAuthenticated() bool                     { return true }
func (n *NoAuth) Type() model.AuthType                      { return model.AuthTypeNone }

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
}

// requestToken posts to a token endpoint with retries on transient failures.
func requestToken(ctx context.Context, opts Options, endpoint string, form url.Values, headers map[string]string) (tokenResponse, error) {
	resp, result := errors.DoWithResult(ctx, opts.Retrier, "token_request", endpoint, func(ctx context.Context) (tokenResponse, error) {
		var body io.Reader
		if form != nil {
			body = strings.NewReader(form.Encode())
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
		if err != nil {
			return tokenResponse{}, errors.NewParseError(endpoint, "token_request", err)
		}
		if form != nil {
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		} else {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		httpResp, err := opts.HTTPClient.Do(req)
		if err != nil {
			return tokenResponse{}, errors.Categorize(err, endpoint)
		}
		defer httpResp.Body.Close()

		if httpResp.StatusCode != http.StatusOK {
			if perr := errors.CategorizeHTTPStatus(httpResp.StatusCode, endpoint); perr != nil {
				return tokenResponse{}, perr
			}
			return tokenResponse{}, errors.NewClientError(endpoint, httpResp.StatusCode, "unexpected token response status")
		}

		var tr tokenResponse
		if err := json.NewDecoder(httpResp.Body).Decode(&tr); err != nil {
			return tokenResponse{}, errors.NewParseError(endpoint, "token_decode", err)
		}
		if tr.AccessToken == "" {
			return tokenResponse{}, errors.NewParseError(endpoint, "token_decode", fmt.Errorf("no access_token in response"))
		}
		return tr, nil
	})
	if !result.Success {
		return tokenResponse{}, result.LastError
	}
	return resp, nil
}
