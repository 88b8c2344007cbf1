package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi2"
	"github.com/getkin/kin-openapi/openapi2conv"
	"github.com/getkin/kin-openapi/openapi3"
	"gopkg.in/yaml.v3"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// maxSampleDepth bounds body synthesis for recursive schemas.
const maxSampleDepth = 6

// ImportOpenAPI loads an OpenAPI 3 or Swagger 2 document from a file path or
// http(s) URL and turns every operation into an endpoint under baseURL.
// When baseURL is empty the first server of the document is used.
func (d *Discoverer) ImportOpenAPI(ctx context.Context, location, baseURL string) ([]model.Endpoint, error) {
	var data []byte
	var err error
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		data, err = d.fetch(ctx, "openapi_fetch", location, "application/json, application/yaml")
	} else {
		data, err = os.ReadFile(location)
		if err != nil {
			err = errors.NewParseError(location, "openapi_read", err)
		}
	}
	if err != nil {
		return nil, err
	}

	doc, err := LoadOpenAPI(ctx, data)
	if err != nil {
		return nil, errors.NewParseError(location, "openapi_load", err)
	}
	if verr := doc.Validate(ctx); verr != nil {
		d.log.WithError(verr).Warn("OpenAPI document does not validate; importing anyway")
	}

	base, prefix := d.serverBase(doc, baseURL)
	if base == "" {
		return nil, errors.NewConfigError("openapi_import", "no base URL given and the document declares no absolute server")
	}

	var found []model.Endpoint
	for _, ep := range Endpoints(doc, base, prefix) {
		if d.accept(ep, SourceOpenAPI, 0) {
			found = append(found, ep)
		}
	}
	return found, nil
}

// LoadOpenAPI parses a document, converting Swagger 2 to OpenAPI 3.
func LoadOpenAPI(ctx context.Context, data []byte) (*openapi3.T, error) {
	var head struct {
		Swagger string `yaml:"swagger"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("document is neither JSON nor YAML: %w", err)
	}

	if head.Swagger != "" {
		jsonData, err := toJSON(data)
		if err != nil {
			return nil, err
		}
		var v2 openapi2.T
		if err := json.Unmarshal(jsonData, &v2); err != nil {
			return nil, fmt.Errorf("invalid swagger document: %w", err)
		}
		return openapi2conv.ToV3(&v2)
	}

	loader := openapi3.NewLoader()
	loader.Context = ctx
	return loader.LoadFromData(data)
}

func toJSON(data []byte) ([]byte, error) {
	if json.Valid(data) {
		return data, nil
	}
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return json.Marshal(doc)
}

// serverBase picks the base URL and path prefix for imported endpoints. A
// server on a host outside the scan scope only contributes its path.
func (d *Discoverer) serverBase(doc *openapi3.T, baseURL string) (string, string) {
	base := strings.TrimRight(baseURL, "/")
	if len(doc.Servers) == 0 || doc.Servers[0] == nil {
		return base, ""
	}

	u, err := url.Parse(doc.Servers[0].URL)
	if err != nil {
		return base, ""
	}
	prefix := strings.TrimRight(u.Path, "/")

	if u.Host == "" {
		return base, prefix
	}
	if base == "" {
		return u.Scheme + "://" + u.Host, prefix
	}
	if b, err := url.Parse(base); err == nil && !strings.EqualFold(b.Host, u.Host) {
		if d.scope == nil || !d.scope.IsHostAllowed(u.Host) {
			d.log.WithField("server", doc.Servers[0].URL).Warn("OpenAPI server is outside scope; using its path only")
		}
	}
	return base, prefix
}

// Endpoints converts every operation of doc into an endpoint, ordered by
// path and then method.
func Endpoints(doc *openapi3.T, base, prefix string) []model.Endpoint {
	if doc.Paths == nil {
		return nil
	}
	items := doc.Paths.Map()
	paths := make([]string, 0, len(items))
	for p := range items {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var out []model.Endpoint
	for _, p := range paths {
		item := items[p]
		ops := item.Operations()
		for _, method := range model.Methods {
			op, ok := ops[method]
			if !ok || op == nil {
				continue
			}
			out = append(out, endpointFor(doc, base, prefix+p, method, item, op))
		}
	}
	return out
}

func endpointFor(doc *openapi3.T, base, path, method string, item *openapi3.PathItem, op *openapi3.Operation) model.Endpoint {
	ep := model.Endpoint{
		URL:          base,
		Method:       method,
		Description:  op.Summary,
		AuthRequired: requiresAuth(doc, op),
	}
	if ep.Description == "" {
		ep.Description = op.OperationID
	}

	params := append(append(openapi3.Parameters{}, item.Parameters...), op.Parameters...)
	for _, ref := range params {
		if ref == nil || ref.Value == nil {
			continue
		}
		p := ref.Value
		value := scalarText(parameterSample(p))
		switch p.In {
		case openapi3.ParameterInPath:
			path = strings.ReplaceAll(path, "{"+p.Name+"}", url.PathEscape(value))
		case openapi3.ParameterInQuery:
			if ep.Parameters == nil {
				ep.Parameters = make(map[string]string)
			}
			ep.Parameters[p.Name] = value
		case openapi3.ParameterInHeader:
			if strings.EqualFold(p.Name, "Authorization") {
				continue
			}
			if ep.Headers == nil {
				ep.Headers = make(map[string]string)
			}
			ep.Headers[p.Name] = value
		}
	}
	ep.Path = path

	if op.RequestBody != nil && op.RequestBody.Value != nil {
		ep.ContentType, ep.Body = requestBody(op.RequestBody.Value)
	}
	return ep
}

// requiresAuth applies operation security, falling back to the document
// default. An empty requirement makes auth optional.
func requiresAuth(doc *openapi3.T, op *openapi3.Operation) bool {
	reqs := doc.Security
	if op.Security != nil {
		reqs = *op.Security
	}
	if len(reqs) == 0 {
		return false
	}
	for _, r := range reqs {
		if len(r) == 0 {
			return false
		}
	}
	return true
}

var bodyContentTypes = []string{"application/json", "application/x-www-form-urlencoded", "multipart/form-data"}

func requestBody(rb *openapi3.RequestBody) (string, *jsonvalue.Value) {
	for _, ct := range bodyContentTypes {
		mt := rb.Content.Get(ct)
		if mt == nil {
			continue
		}
		sample := mediaSample(mt)
		if sample == nil {
			return ct, nil
		}
		v, err := jsonvalue.FromInterface(sample)
		if err != nil {
			return ct, nil
		}
		return ct, &v
	}
	return "", nil
}

func mediaSample(mt *openapi3.MediaType) any {
	if mt.Example != nil {
		return mt.Example
	}
	names := make([]string, 0, len(mt.Examples))
	for name := range mt.Examples {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ex := mt.Examples[name]; ex != nil && ex.Value != nil && ex.Value.Value != nil {
			return ex.Value.Value
		}
	}
	if mt.Schema != nil {
		return SchemaSample(mt.Schema.Value, 0)
	}
	return nil
}

func parameterSample(p *openapi3.Parameter) any {
	if p.Example != nil {
		return p.Example
	}
	if p.Schema != nil {
		return SchemaSample(p.Schema.Value, 0)
	}
	return "test"
}

// SchemaSample builds an example value for a schema, preferring declared
// examples, defaults and enum values.
func SchemaSample(s *openapi3.Schema, depth int) any {
	if s == nil || depth > maxSampleDepth {
		return nil
	}
	switch {
	case s.Example != nil:
		return s.Example
	case s.Default != nil:
		return s.Default
	case len(s.Enum) > 0:
		return s.Enum[0]
	}

	if len(s.AllOf) > 0 {
		merged := map[string]any{}
		for _, ref := range s.AllOf {
			if ref == nil {
				continue
			}
			if m, ok := SchemaSample(ref.Value, depth+1).(map[string]any); ok {
				for k, v := range m {
					merged[k] = v
				}
			}
		}
		return merged
	}
	for _, refs := range []openapi3.SchemaRefs{s.OneOf, s.AnyOf} {
		if len(refs) > 0 && refs[0] != nil {
			return SchemaSample(refs[0].Value, depth+1)
		}
	}

	switch {
	case s.Type.Is("object") || len(s.Properties) > 0:
		obj := make(map[string]any, len(s.Properties))
		for name, ref := range s.Properties {
			if ref == nil {
				continue
			}
			obj[name] = SchemaSample(ref.Value, depth+1)
		}
		return obj
	case s.Type.Is("array"):
		if s.Items == nil {
			return []any{}
		}
		return []any{SchemaSample(s.Items.Value, depth+1)}
	case s.Type.Is("integer"):
		return 1
	case s.Type.Is("number"):
		return 1.5
	case s.Type.Is("boolean"):
		return true
	case s.Type.Is("string"):
		return stringSample(s.Format)
	}
	return nil
}

func stringSample(format string) string {
	switch format {
	case "email":
		return "user@example.com"
	case "uuid":
		return "00000000-0000-0000-0000-000000000001"
	case "date":
		return "2024-01-01"
	case "date-time":
		return "2024-01-01T00:00:00Z"
	case "uri", "url":
		return "https://example.com"
	}
	return "test"
}

// scalarText renders a sample as a parameter value.
func scalarText(v any) string {
	switch x := v.(type) {
	case nil:
		return "1"
	case string:
		return x
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
