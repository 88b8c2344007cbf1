package auth

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// OAuthAuth obtains a token with the OAuth 2.0 client credentials grant.
// Credentials: "client_id", "client_secret" and optional "scope".
type OAuthAuth struct {
	mu            sync.RWMutex
	tokenURL      string
	refreshURL    string
	clientID      string
	clientSecret  string
	scope         string
	accessToken   string
	refreshToken  string
	tokenType     string
	expiry        time.Time
	authenticated bool
	opts          Options
}

// NewOAuthAuth creates a new OAuth authentication provider.
func NewOAuthAuth(cfg *model.AuthConfig, opts Options) *OAuthAuth {
	o := &OAuthAuth{
		tokenURL:     cfg.TokenEndpoint,
		refreshURL:   cfg.RefreshEndpoint,
		clientID:     cfg.Credential("client_id"),
		clientSecret: cfg.Credential("client_secret"),
		scope:        cfg.Credential("scope"),
		refreshToken: cfg.Credential("refresh_token"),
		accessToken:  cfg.CurrentToken,
		expiry:       cfg.TokenExpiry,
		tokenType:    "Bearer",
		opts:         opts.withDefaults(),
	}
	o.authenticated = o.accessToken != ""
	if o.refreshURL == "" {
		o.refreshURL = o.tokenURL
	}
	return o
}

// Authenticate runs the client credentials flow unless a usable token is
// already configured.
func (o *OAuthAuth) Authenticate(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.accessToken != "" && (o.expiry.IsZero() || time.Now().Before(o.expiry)) {
		o.authenticated = true
		return nil
	}
	if o.tokenURL == "" {
		return errors.NewConfigError("auth", "oauth2 token_endpoint is required")
	}

	if err := o.clientCredentialsFlow(ctx); err != nil {
		return err
	}
	o.authenticated = true
	return nil
}

func (o *OAuthAuth) clientCredentialsFlow(ctx context.Context) error {
	data := url.Values{}
	data.Set("grant_type", "client_credentials")
	data.Set("client_id", o.clientID)
	data.Set("client_secret", o.clientSecret)
	if o.scope != "" {
		data.Set("scope", o.scope)
	}

	return o.requestToken(ctx, o.tokenURL, data)
}

func (o *OAuthAuth) requestToken(ctx context.Context, endpoint string, data url.Values) error {
	tr, err := requestToken(ctx, o.opts, endpoint, data, nil)
	if err != nil {
		return err
	}

	o.accessToken = tr.AccessToken
	if tr.RefreshToken != "" {
		o.refreshToken = tr.RefreshToken
	}
	if tr.TokenType != "" {
		o.tokenType = tr.TokenType
	}
	if tr.ExpiresIn > 0 {
		o.expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}
	return nil
}

// Headers returns the Authorization header.
func (o *OAuthAuth) Headers() map[string]string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if o.accessToken == "" {
		return nil
	}

	return map[string]string{
		"Authorization": o.tokenType + " " + o.accessToken,
	}
}

// RefreshIfNeeded refreshes the token if it expires within five minutes.
func (o *OAuthAuth) RefreshIfNeeded(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if !o.expiry.IsZero() && time.Until(o.expiry) > refreshWindow {
		return nil
	}

	if o.refreshToken == "" || o.refreshURL == "" {
		return nil
	}

	data := url.Values{}
	data.Set("grant_type", "refresh_token")
	data.Set("refresh_token", o.refreshToken)
	data.Set("client_id", o.clientID)
	data.Set("client_secret", o.clientSecret)

	return o.requestToken(ctx, o.refreshURL, data)
}

// IsAuthenticated returns true if we have a valid token.
func (o *OAuthAuth) IsAuthenticated() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if !o.authenticated || o.accessToken == "" {
		return false
	}

	return o.expiry.IsZero() || time.Now().Before(o.expiry)
}

// Type returns the authentication type.
func (o *OAuthAuth) Type() model.AuthType {
	return model.AuthTypeOAuth2
}

// Token returns the current access token.
func (o *OAuthAuth) Token() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.accessToken
}

// Expiry returns the token expiry, zero when unknown.
func (o *OAuthAuth) Expiry() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.expiry
}
