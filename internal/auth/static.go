package auth

import (
	"context"
	"encoding/base64"
	"sync"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// DefaultAPIKeyHeader carries the key when no header name is configured.
const DefaultAPIKeyHeader = "X-Api-Key"

// APIKeyAuth sends an API key in a header. Credentials: "api_key" (or
// "key") and an optional "header" naming the header.
type APIKeyAuth struct {
	mu     sync.RWMutex
	header string
	key    string
}

// NewAPIKeyAuth creates a new API key authentication provider.
func NewAPIKeyAuth(credentials map[string]string) *APIKeyAuth {
	key := credentials["api_key"]
	if key == "" {
		key = credentials["key"]
	}
	header := credentials["header"]
	if header == "" {
		header = DefaultAPIKeyHeader
	}
	return &APIKeyAuth{header: header, key: key}
}

// Authenticate is a no-op for API key auth.
func (a *APIKeyAuth) Authenticate(ctx context.Context) error {
	return nil
}

// Headers returns the API key header.
func (a *APIKeyAuth) Headers() map[string]string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.key == "" {
		return nil
	}
	return map[string]string{a.header: a.key}
}

// RefreshIfNeeded is a no-op for API key auth.
func (a *APIKeyAuth) RefreshIfNeeded(ctx context.Context) error {
	return nil
}

// IsAuthenticated returns true if a key is set.
func (a *APIKeyAuth) IsAuthenticated() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.key != ""
}

// Type returns the authentication type.
func (a *APIKeyAuth) Type() model.AuthType {
	return model.AuthTypeAPIKey
}

// CustomAuth sends every credential verbatim as a header, e.g. a Cookie.
type CustomAuth struct {
	mu      sync.RWMutex
	headers map[string]string
}

// NewCustomAuth creates a provider sending headers as-is.
func NewCustomAuth(headers map[string]string) *CustomAuth {
	copied := make(map[string]string, len(headers))
	for k, v := range headers {
		copied[k] = v
	}
	return &CustomAuth{headers: copied}
}

// Authenticate is a no-op for custom auth.
func (c *CustomAuth) Authenticate(ctx context.Context) error {
	return nil
}

// Headers returns a copy of the configured headers.
func (c *CustomAuth) Headers() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make(map[string]string, len(c.headers))
	for k, v := range c.headers {
		result[k] = v
	}
	return result
}

// RefreshIfNeeded is a no-op for custom auth.
func (c *CustomAuth) RefreshIfNeeded(ctx context.Context) error {
	return nil
}

// IsAuthenticated returns true if headers are set.
func (c *CustomAuth) IsAuthenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.headers) > 0
}

// Type returns the authentication type.
func (c *CustomAuth) Type() model.AuthType {
	return model.AuthTypeCustom
}

// BasicAuth provides HTTP Basic authentication.
type BasicAuth struct {
	mu       sync.RWMutex
	username string
	password string
}

// NewBasicAuth creates a new Basic authentication provider.
func NewBasicAuth(username, password string) *BasicAuth {
	return &BasicAuth{
		username: username,
		password: password,
	}
}

// Authenticate is a no-op for Basic auth.
func (b *BasicAuth) Authenticate(ctx context.Context) error {
	return nil
}

// Headers returns the Authorization header.
func (b *BasicAuth) Headers() map[string]string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.username == "" && b.password == "" {
		return nil
	}

	creds := base64.StdEncoding.EncodeToString([]byte(b.username + ":" + b.password))

	return map[string]string{
		"Authorization": "Basic " + creds,
	}
}

// RefreshIfNeeded is a no-op for Basic auth.
func (b *BasicAuth) RefreshIfNeeded(ctx context.Context) error {
	return nil
}

// IsAuthenticated returns true if credentials are set.
func (b *BasicAuth) IsAuthenticated() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.username != "" || b.password != ""
}

// Type returns the authentication type.
func (b *BasicAuth) Type() model.AuthType {
	return model.AuthTypeBasic
}
