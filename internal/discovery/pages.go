package discovery

import (
	"context"
	"net/http"
	"net/url"
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/model"
)

// MaxScripts bounds the same-origin scripts fetched by PageEndpoints.
const MaxScripts = 10

// staticExtensions are never API endpoints.
var staticExtensions = map[string]bool{
	".css": true, ".js": true, ".map": true, ".png": true, ".jpg": true,
	".jpeg": true, ".gif": true, ".svg": true, ".ico": true, ".woff": true,
	".woff2": true, ".ttf": true, ".pdf": true, ".html": true, ".htm": true,
}

// apiCall matches an HTTP call site in JavaScript. method is the fixed
// method of the call, or empty when the pattern captures it.
type apiCall struct {
	re     *regexp.Regexp
	method string
	// urlGroup and methodGroup index the submatches.
	urlGroup, methodGroup int
}

var apiCalls = []apiCall{
	{regexp.MustCompile(`fetch\s*\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]\s*,\s*\{[^}]*method\s*:\s*["'](\w+)["']`), "", 1, 2},
	{regexp.MustCompile(`fetch\s*\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`), http.MethodGet, 1, 0},
	{regexp.MustCompile(`axios\.(get|post|put|patch|delete)\s*\(\s*["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`), "", 2, 1},
	{regexp.MustCompile(`\$\.(get|post)\s*\(\s*["']([^"']+)["']`), "", 2, 1},
	{regexp.MustCompile(`\$\.ajax\s*\(\s*\{[^}]*url\s*:\s*["']([^"']+)["'][^}]*(?:type|method)\s*:\s*["'](\w+)["']`), "", 1, 2},
	{regexp.MustCompile(`\.open\s*\(\s*["'](\w+)["']\s*,\s*["']([^"']+)["']`), "", 2, 1},
}

// apiLiteral matches quoted path literals that look like API routes.
var apiLiteral = regexp.MustCompile(`["'](/(?:api|v[0-9]+|graphql|rest)(?:/[^"'\s<>]*)?)["']`)

// Route placeholders such as /:id and ${id}, rewritten to {id}.
var (
	colonParam    = regexp.MustCompile(`/:(\w+)`)
	templateParam = regexp.MustCompile(`\$\{(\w+)\}`)
)

// pageRef is an endpoint reference found in a page or script.
type pageRef struct {
	method string
	target string
	form   bool
	// fields are the input names of a form sent in the body.
	fields []string
}

// PageEndpoints fetches the landing page under baseURL and the same-origin
// scripts it loads, and returns the API endpoints referenced by links,
// forms and JavaScript HTTP calls. A missing landing page yields no
// endpoints and no error.
func (d *Discoverer) PageEndpoints(ctx context.Context, baseURL string) ([]model.Endpoint, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/") + "/")
	if err != nil {
		return nil, errors.NewConfigError("discovery_pages", err.Error())
	}

	body, err := d.fetch(ctx, "discovery_page", base.String(), "text/html")
	if err != nil {
		if errors.GetErrorType(err) == errors.NotFound {
			return nil, nil
		}
		return nil, err
	}

	refs, scripts := ParseHTML(string(body))
	for i, src := range scripts {
		if i >= MaxScripts || ctx.Err() != nil {
			break
		}
		target, ok := resolve(base, src)
		if !ok {
			continue
		}
		js, err := d.fetch(ctx, "discovery_script", target.String(), "*/*")
		if err != nil {
			d.log.WithError(err).Debugf("Script %s not fetched", target)
			continue
		}
		refs = append(refs, ParseJavaScript(string(js))...)
	}

	var found []model.Endpoint
	for _, ref := range refs {
		ep, ok := refEndpoint(base, ref)
		if !ok {
			continue
		}
		if d.accept(ep, SourcePage, 0) {
			found = append(found, ep)
		}
	}
	if ctx.Err() != nil {
		return found, errors.NewCancelledError(baseURL, "discovery_pages")
	}
	return found, nil
}

// ParseHTML returns the endpoint references of an HTML document (anchors,
// forms and inline scripts) and the src of its external scripts.
func ParseHTML(html string) ([]pageRef, []string) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, nil
	}

	var refs []pageRef
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href := strings.TrimSpace(s.AttrOr("href", ""))
		if looksLikeAPI(href) {
			refs = append(refs, pageRef{method: http.MethodGet, target: href})
		}
	})

	doc.Find("form").Each(func(_ int, s *goquery.Selection) {
		action := strings.TrimSpace(s.AttrOr("action", ""))
		if action == "" || strings.HasPrefix(action, "#") {
			return
		}
		method := strings.ToUpper(strings.TrimSpace(s.AttrOr("method", http.MethodGet)))
		if !model.ValidMethod(method) {
			method = http.MethodGet
		}

		var names []string
		s.Find("input[name], select[name], textarea[name]").Each(func(_ int, in *goquery.Selection) {
			names = append(names, in.AttrOr("name", ""))
		})

		ref := pageRef{method: method, target: action, form: true}
		if method != http.MethodGet {
			ref.fields = names
		} else if len(names) > 0 && !strings.Contains(action, "?") {
			query := url.Values{}
			for _, name := range names {
				query.Set(name, "")
			}
			ref.target += "?" + query.Encode()
		}
		refs = append(refs, ref)
	})

	var scripts []string
	doc.Find("script").Each(func(_ int, s *goquery.Selection) {
		if src, ok := s.Attr("src"); ok {
			if src = strings.TrimSpace(src); src != "" {
				scripts = append(scripts, src)
			}
			return
		}
		refs = append(refs, ParseJavaScript(s.Text())...)
	})

	return refs, scripts
}

// ParseJavaScript returns the HTTP calls and API path literals of a script.
func ParseJavaScript(js string) []pageRef {
	var refs []pageRef
	seen := make(map[string]bool)
	called := make(map[string]bool)
	add := func(method, target string) {
		key := method + " " + target
		if target == "" || seen[key] {
			return
		}
		seen[key] = true
		called[target] = true
		refs = append(refs, pageRef{method: method, target: target})
	}

	// Patterns with an explicit method run first, so a plain fetch of
	// the same target does not add a second GET.
	for _, call := range apiCalls {
		for _, m := range call.re.FindAllStringSubmatch(js, -1) {
			target := m[call.urlGroup]
			method := call.method
			if method == "" {
				method = strings.ToUpper(m[call.methodGroup])
			} else if called[target] {
				continue
			}
			if !model.ValidMethod(method) {
				continue
			}
			add(method, target)
		}
	}

	for _, m := range apiLiteral.FindAllStringSubmatch(js, -1) {
		if !called[m[1]] {
			add(http.MethodGet, m[1])
		}
	}
	return refs
}

// refEndpoint resolves ref against base. References to another host or
// to static assets are dropped.
func refEndpoint(base *url.URL, ref pageRef) (model.Endpoint, bool) {
	raw := colonParam.ReplaceAllString(ref.target, "/{$1}")
	raw = templateParam.ReplaceAllString(raw, "{$1}")
	target, ok := resolve(base, raw)
	if !ok {
		return model.Endpoint{}, false
	}
	if staticExtensions[strings.ToLower(path.Ext(target.Path))] {
		return model.Endpoint{}, false
	}

	p := target.Path
	if prefix := strings.TrimRight(base.Path, "/"); prefix != "" {
		if !strings.HasPrefix(p, prefix) {
			return model.Endpoint{}, false
		}
		p = strings.TrimPrefix(p, prefix)
	}
	if p == "" || p == "/" {
		return model.Endpoint{}, false
	}

	ep := model.Endpoint{
		URL:         strings.TrimRight(base.String(), "/"),
		Method:      ref.method,
		Path:        p,
		Description: "referenced by " + base.Host + " page",
	}
	if q := target.Query(); len(q) > 0 {
		ep.Parameters = make(map[string]string, len(q))
		for name := range q {
			ep.Parameters[name] = q.Get(name)
		}
	}
	switch {
	case ref.method == http.MethodGet || ref.method == http.MethodHead:
	case ref.form:
		ep.ContentType = model.ContentTypeForm
		if len(ref.fields) > 0 {
			members := make([]jsonvalue.Member, 0, len(ref.fields))
			for _, name := range ref.fields {
				members = append(members, jsonvalue.Member{Key: name, Value: jsonvalue.NewString("")})
			}
			body := jsonvalue.NewObject(members...)
			ep.Body = &body
		}
	default:
		ep.ContentType = model.ContentTypeJSON
	}
	return ep, true
}

// resolve resolves ref against base and keeps it only when it stays on the
// same host.
func resolve(base *url.URL, ref string) (*url.URL, bool) {
	if strings.HasPrefix(ref, "javascript:") || strings.HasPrefix(ref, "mailto:") || strings.Contains(ref, "{{") {
		return nil, false
	}
	u, err := url.Parse(ref)
	if err != nil {
		return nil, false
	}
	u = base.ResolveReference(u)
	if u.Host != base.Host || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, false
	}
	u.Fragment = ""
	return u, true
}

// looksLikeAPI reports whether an anchor href points at an API route.
func looksLikeAPI(href string) bool {
	return apiLiteral.MatchString(`"` + href + `"`) || strings.Contains(href, "/api/")
}
