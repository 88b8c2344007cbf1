package model

import "time"

// AuthType is how requests authenticate against the API.
type AuthType string

// Authentication types.
const (
	AuthTypeNone   AuthType = "none"
	AuthTypeBasic  AuthType = "basic"
	AuthTypeBearer AuthType = "bearer"
	AuthTypeAPIKey AuthType = "api_key"
	AuthTypeOAuth2 AuthType = "oauth2"
	AuthTypeJWT    AuthType = "jwt"
	AuthTypeCustom AuthType = "custom"
)

// AuthConfig describes how probes authenticate. It is owned by the caller of
// a test run and only read by testers.
type AuthConfig struct {
	Type            AuthType          `json:"type" yaml:"type"`
	Credentials     map[string]string `json:"credentials,omitempty" yaml:"credentials,omitempty"`
	TokenEndpoint   string            `json:"token_endpoint,omitempty" yaml:"token_endpoint,omitempty"`
	RefreshEndpoint string            `json:"refresh_endpoint,omitempty" yaml:"refresh_endpoint,omitempty"`
	CurrentToken    string            `json:"current_token,omitempty" yaml:"current_token,omitempty"`
	TokenExpiry     time.Time         `json:"token_expiry,omitempty" yaml:"token_expiry,omitempty"`
}

// IsNone reports whether the config carries no authentication.
func (a *AuthConfig) IsNone() bool {
	return a == nil || a.Type == "" || a.Type == AuthTypeNone
}

// UsesBearerToken reports whether the current token is sent as a bearer token.
func (a *AuthConfig) UsesBearerToken() bool {
	return a != nil && (a.Type == AuthTypeBearer || a.Type == AuthTypeJWT || a.Type == AuthTypeOAuth2)
}

// HasToken reports whether a current token is set.
func (a *AuthConfig) HasToken() bool {
	return a != nil && a.CurrentToken != ""
}

// Expired reports whether the token expiry is set and in the past.
func (a *AuthConfig) Expired() bool {
	return a != nil && !a.TokenExpiry.IsZero() && time.Now().After(a.TokenExpiry)
}

// Credential returns a credential value, empty when absent.
func (a *AuthConfig) Credential(key string) string {
	if a == nil || a.Credentials == nil {
		return ""
	}
	return a.Credentials[key]
}
