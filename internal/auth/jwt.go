package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/PentesterFlow/apiprobe/internal/model"
)

// refreshWindow is how close to expiry a token gets refreshed.
const refreshWindow = 5 * time.Minute

// JWTAuth sends a bearer token and refreshes it against a refresh endpoint.
// It serves both the bearer and jwt auth types.
type JWTAuth struct {
	mu            sync.RWMutex
	authType      model.AuthType
	token         string
	refreshToken  string
	expiry        time.Time
	refreshURL    string
	authenticated bool
	opts          Options
}

// NewJWTAuth creates a new bearer token provider.
func NewJWTAuth(token string) *JWTAuth {
	return NewJWTAuthWithRefresh(model.AuthTypeJWT, token, "", "", Options{})
}

// NewJWTAuthWithRefresh creates a bearer token provider with refresh capability.
func NewJWTAuthWithRefresh(authType model.AuthType, token, refreshToken, refreshURL string, opts Options) *JWTAuth {
	a := &JWTAuth{
		authType:      authType,
		token:         token,
		refreshToken:  refreshToken,
		refreshURL:    refreshURL,
		authenticated: token != "",
		opts:          opts.withDefaults(),
	}
	if token != "" {
		if exp, err := ParseExpiry(token); err == nil {
			a.expiry = exp
		}
	}
	return a
}

// Authenticate refreshes an expired token when possible.
func (j *JWTAuth) Authenticate(ctx context.Context) error {
	return j.RefreshIfNeeded(ctx)
}

// Headers returns the Authorization header.
func (j *JWTAuth) Headers() map[string]string {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if j.token == "" {
		return nil
	}

	return map[string]string{
		"Authorization": "Bearer " + j.token,
	}
}

// RefreshIfNeeded refreshes the token if expired or expiring soon.
func (j *JWTAuth) RefreshIfNeeded(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.token != "" && (j.expiry.IsZero() || time.Until(j.expiry) > refreshWindow) {
		return nil
	}

	if j.refreshToken == "" || j.refreshURL == "" {
		return nil
	}

	return j.doRefresh(ctx)
}

func (j *JWTAuth) doRefresh(ctx context.Context) error {
	tr, err := requestToken(ctx, j.opts, j.refreshURL, nil, map[string]string{
		"Authorization": "Bearer " + j.refreshToken,
	})
	if err != nil {
		return err
	}

	j.token = tr.AccessToken
	j.authenticated = true
	if tr.RefreshToken != "" {
		j.refreshToken = tr.RefreshToken
	}
	if exp, err := ParseExpiry(j.token); err == nil {
		j.expiry = exp
	} else if tr.ExpiresIn > 0 {
		j.expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	}

	return nil
}

// ParseExpiry extracts the exp claim from a JWT without verifying it.
func ParseExpiry(token string) (time.Time, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, claims); err != nil {
		return time.Time{}, fmt.Errorf("invalid JWT: %w", err)
	}
	exp, err := claims.GetExpirationTime()
	if err != nil {
		return time.Time{}, err
	}
	if exp == nil {
		return time.Time{}, fmt.Errorf("no exp claim")
	}
	return exp.Time, nil
}

// IsAuthenticated returns true if we have an unexpired token.
func (j *JWTAuth) IsAuthenticated() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()

	if !j.authenticated || j.token == "" {
		return false
	}
	return j.expiry.IsZero() || time.Now().Before(j.expiry)
}

// Type returns the authentication type.
func (j *JWTAuth) Type() model.AuthType {
	return j.authType
}

// SetToken replaces the token.
func (j *JWTAuth) SetToken(token string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	j.token = token
	j.authenticated = token != ""
	j.expiry = time.Time{}
	if exp, err := ParseExpiry(token); err == nil {
		j.expiry = exp
	}
}

// Token returns the current token.
func (j *JWTAuth) Token() string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.token
}

// Expiry returns the token expiry, zero when unknown.
func (j *JWTAuth) Expiry() time.Time {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.expiry
}
