// Package authtest probes whether an endpoint enforces authentication:
// access without credentials, forged tokens, method override and
// client-IP spoofing.
package authtest

import (
	"context"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	probehttp "github.com/PentesterFlow/apiprobe/internal/http"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// DefaultTimeout bounds every auth probe.
const DefaultTimeout = 10 * time.Second

// CredentialHeaders are removed for the no-auth probe.
var CredentialHeaders = []string{"Authorization", "X-Api-Key", "Cookie"}

// MalformedToken is a well-formed but bogus bearer token.
const MalformedToken = "malformed.token.here"

var overrideHeaders = []string{
	"X-HTTP-Method-Override",
	"X-HTTP-Method",
	"X-Method-Override",
	"_method",
}

var spoofHeaders = []map[string]string{
	{"X-Forwarded-For": "127.0.0.1"},
	{"X-Forwarded-For": "10.0.0.1"},
	{"X-Forwarded-For": "localhost"},
	{"X-Real-IP": "127.0.0.1"},
	{"X-Originating-IP": "127.0.0.1"},
}

// disclosurePatterns flag error bodies that leak internals.
var disclosurePatterns = compile(
	`stack trace`,
	`file.*\.py.*line`,
	`SQLException`,
	`ORA-\d+`,
	`PG::`,
	`MongoDB`,
	`mysql_`,
	`Warning:.*in.*on line`,
)

func compile(patterns ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(patterns))
	for i, p := range patterns {
		out[i] = regexp.MustCompile(`(?i)` + p)
	}
	return out
}

// Config configures the auth tester.
type Config struct {
	Timeout time.Duration
	// Secrets overrides WeakSecrets when set.
	Secrets []string
	// SessionHeaders names the headers the session adds to authenticate.
	// They are removed along with CredentialHeaders when probing without
	// credentials.
	SessionHeaders func() []string
}

// Tester runs the authentication bypass probes. It holds no per-session
// state and is safe for concurrent use.
type Tester struct {
	client  probehttp.Doer
	log     *logger.Logger
	timeout time.Duration
	secrets []string
	session func() []string
}

// New creates an auth tester sending probes through client.
func New(client probehttp.Doer, log *logger.Logger, cfg Config) *Tester {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if len(cfg.Secrets) == 0 {
		cfg.Secrets = WeakSecrets
	}
	return &Tester{
		client:  client,
		log:     log.WithComponent("authtest"),
		timeout: cfg.Timeout,
		secrets: cfg.Secrets,
		session: cfg.SessionHeaders,
	}
}

// TestAuthBypass runs every auth probe against ep. Probe failures are
// skipped; the error is non-nil only when ctx is done.
func (t *Tester) TestAuthBypass(ctx context.Context, ep model.Endpoint, cfg *model.AuthConfig) ([]model.Vulnerability, error) {
	var vulns []model.Vulnerability

	stripped := t.withoutCredentials(ep)
	open := false
	if v := t.testNoAuth(ctx, stripped); v != nil {
		vulns = append(vulns, *v)
		open = true
	}

	if cfg != nil && (cfg.Type == model.AuthTypeBearer || cfg.Type == model.AuthTypeJWT) && cfg.CurrentToken != "" {
		vulns = append(vulns, t.testTokenTampering(ctx, stripped, cfg.CurrentToken)...)
	}

	// Once plain unauthenticated access works, the header tricks below
	// cannot add anything.
	if !open {
		if v := t.testMethodOverride(ctx, stripped); v != nil {
			vulns = append(vulns, *v)
		}
		if v := t.testIPSpoof(ctx, stripped); v != nil {
			vulns = append(vulns, *v)
		}
	}

	if ctx.Err() != nil {
		return vulns, errors.NewCancelledError(ep.FullURL(), "auth_bypass")
	}
	return vulns, nil
}

// withoutCredentials strips ep of every header that may carry a credential.
func (t *Tester) withoutCredentials(ep model.Endpoint) model.Endpoint {
	names := CredentialHeaders
	if t.session != nil {
		names = append(append([]string(nil), CredentialHeaders...), t.session()...)
	}
	return ep.WithoutHeaders(names...)
}

// anonymous builds a request for a stripped endpoint that skips the
// client's session-wide headers. Forged tokens go out the same way, so
// only the forged credential reaches the server.
func anonymous(probe string, ep model.Endpoint) probehttp.Request {
	req := probehttp.NewRequest(probe, ep)
	req.NoDefaultHeaders = true
	return req
}

func (t *Tester) send(ctx context.Context, req probehttp.Request) (*probehttp.Response, bool) {
	if ctx.Err() != nil {
		return nil, false
	}
	req.Timeout = t.timeout
	resp, err := t.client.Do(ctx, req)
	if err != nil {
		return nil, false
	}
	return resp, true
}

func (t *Tester) testNoAuth(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	resp, ok := t.send(ctx, anonymous("no_auth", ep))
	if !ok || resp.StatusCode >= 400 {
		return nil
	}

	headers := ep.Headers
	if headers == nil {
		headers = map[string]string{}
	}
	v := model.NewVulnerability(model.CategoryAuthBypass, model.SeverityHigh,
		"Endpoint accessible without authentication", ep, "", model.Evidence{
			"request_headers":  headers,
			"response_status":  resp.StatusCode,
			"response_preview": resp.Preview(500),
		})
	return &v
}

func (t *Tester) testTokenTampering(ctx context.Context, ep model.Endpoint, token string) []model.Vulnerability {
	var vulns []model.Vulnerability

	_, claims, err := Decode(token)
	if err != nil {
		t.log.WithError(err).Debug("Current token is not a JWT, skipping forgery")
	} else {
		if forged, err := ForgeNone(claims); err == nil {
			if v := t.testModifiedToken(ctx, ep, forged, "None algorithm"); v != nil {
				vulns = append(vulns, *v)
			}
		}

		for _, secret := range t.secrets {
			if ctx.Err() != nil {
				break
			}
			signed, err := SignHS256(claims, secret)
			if err != nil {
				continue
			}
			if v := t.testModifiedToken(ctx, ep, signed, "Weak secret: "+secret); v != nil {
				vulns = append(vulns, *v)
				break
			}
		}

		if HasPrivilegeClaims(claims) {
			if forged, err := ForgeNone(Escalate(claims)); err == nil {
				if v := t.testModifiedToken(ctx, ep, forged, "Privilege escalation"); v != nil {
					vulns = append(vulns, *v)
				}
			}
		}
	}

	if v := t.testMalformedToken(ctx, ep); v != nil {
		vulns = append(vulns, *v)
	}
	return vulns
}

func (t *Tester) testModifiedToken(ctx context.Context, ep model.Endpoint, token, modification string) *model.Vulnerability {
	probe := ep.WithHeaders(map[string]string{"Authorization": "Bearer " + token})
	resp, ok := t.send(ctx, anonymous("token_tampering", probe))
	if !ok || resp.StatusCode >= 400 {
		return nil
	}

	v := model.NewVulnerability(model.CategoryAuthBypass, model.SeverityCritical,
		"JWT vulnerability - "+modification, ep, "", model.Evidence{
			"modification":    modification,
			"modified_token":  shorten(token),
			"response_status": resp.StatusCode,
		})
	return &v
}

func (t *Tester) testMalformedToken(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	probe := ep.WithHeaders(map[string]string{"Authorization": "Bearer " + MalformedToken})
	resp, ok := t.send(ctx, anonymous("malformed_token", probe))
	if !ok || resp.StatusCode < 400 || len(resp.Body) == 0 {
		return nil
	}

	body := resp.Text()
	for _, re := range disclosurePatterns {
		if re.MatchString(body) {
			v := model.NewVulnerability(model.CategoryInfoDisclosure, model.SeverityMedium,
				"Sensitive information in error response", ep, "", model.Evidence{
					"error_pattern":    strings.TrimPrefix(re.String(), "(?i)"),
					"response_preview": resp.Preview(500),
				})
			return &v
		}
	}
	return nil
}

func (t *Tester) testMethodOverride(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	if strings.EqualFold(ep.Method, http.MethodGet) {
		return nil
	}

	for _, name := range overrideHeaders {
		req := anonymous("method_override", ep.WithHeaders(map[string]string{name: http.MethodGet}))
		req.Method = http.MethodPost
		resp, ok := t.send(ctx, req)
		if !ok || resp.StatusCode >= 400 {
			continue
		}

		v := model.NewVulnerability(model.CategoryAuthBypass, model.SeverityHigh,
			"HTTP method override vulnerability", ep, "", model.Evidence{
				"override_header": name,
				"override_value":  http.MethodGet,
				"response_status": resp.StatusCode,
			})
		return &v
	}
	return nil
}

func (t *Tester) testIPSpoof(ctx context.Context, ep model.Endpoint) *model.Vulnerability {
	if !ep.AuthRequired {
		return nil
	}

	for _, headers := range spoofHeaders {
		resp, ok := t.send(ctx, anonymous("ip_spoof", ep.WithHeaders(headers)))
		if !ok || resp.StatusCode >= 400 {
			continue
		}

		sent := make(map[string]string, len(headers))
		for k, val := range headers {
			sent[k] = val
		}
		v := model.NewVulnerability(model.CategoryAuthBypass, model.SeverityHigh,
			"IP-based access control bypass", ep, "", model.Evidence{
				"bypass_headers":  sent,
				"response_status": resp.StatusCode,
			})
		return &v
	}
	return nil
}
