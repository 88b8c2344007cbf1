package model

import (
	"strings"

	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
)

// ContentTypeJSON is the default endpoint content type.
const ContentTypeJSON = "application/json"

// ContentTypeForm is used for endpoints found as HTML forms.
const ContentTypeForm = "application/x-www-form-urlencoded"

// Endpoint is one addressable (method, path) target on the API under test.
// Testers treat it as read-only and derive copies for modified probes.
type Endpoint struct {
	URL          string            `json:"url" yaml:"url"`
	Method       string            `json:"method" yaml:"method"`
	Path         string            `json:"path" yaml:"path"`
	Parameters   map[string]string `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Headers      map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body         *jsonvalue.Value  `json:"body,omitempty" yaml:"-"`
	ContentType  string            `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	AuthRequired bool              `json:"auth_required" yaml:"auth_required"`
	Description  string            `json:"description,omitempty" yaml:"description,omitempty"`
}

// FullURL joins the base URL and the path.
func (e Endpoint) FullURL() string {
	return strings.TrimRight(e.URL, "/") + e.Path
}

// Key identifies the endpoint by method and path.
func (e Endpoint) Key() string {
	return strings.ToUpper(e.Method) + " " + e.Path
}

// IsJSON reports whether the body is sent as JSON. An empty content type
// counts as JSON.
func (e Endpoint) IsJSON() bool {
	return e.ContentType == "" || strings.Contains(strings.ToLower(e.ContentType), "json")
}

// HasObjectBody reports whether the endpoint carries a JSON object body.
func (e Endpoint) HasObjectBody() bool {
	return e.Body != nil && e.Body.IsObject()
}

// Clone returns a copy with its own parameter and header maps. The body is
// shared because jsonvalue trees are never modified in place.
func (e Endpoint) Clone() Endpoint {
	out := e
	out.Parameters = copyMap(e.Parameters)
	out.Headers = copyMap(e.Headers)
	return out
}

// WithHeaders returns a copy with the given headers set on top of the
// existing ones. Header names are matched case-insensitively.
func (e Endpoint) WithHeaders(headers map[string]string) Endpoint {
	out := e.Clone()
	if out.Headers == nil {
		out.Headers = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		for existing := range out.Headers {
			if strings.EqualFold(existing, k) {
				delete(out.Headers, existing)
			}
		}
		out.Headers[k] = v
	}
	return out
}

// WithoutHeaders returns a copy with the named headers removed, ignoring case.
func (e Endpoint) WithoutHeaders(names ...string) Endpoint {
	out := e.Clone()
	for k := range out.Headers {
		for _, name := range names {
			if strings.EqualFold(k, name) {
				delete(out.Headers, k)
				break
			}
		}
	}
	return out
}

// WithBody returns a copy carrying body.
func (e Endpoint) WithBody(body jsonvalue.Value) Endpoint {
	out := e.Clone()
	out.Body = &body
	return out
}

// WithParameters returns a copy with the parameter map replaced.
func (e Endpoint) WithParameters(params map[string]string) Endpoint {
	out := e.Clone()
	out.Parameters = copyMap(params)
	return out
}

func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
