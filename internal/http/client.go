// Package http sends probes to the API under test and captures what came back.
package http

import (
	"bytes"
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PentesterFlow/apiprobe/internal/errors"
	"github.com/PentesterFlow/apiprobe/internal/jsonvalue"
	"github.com/PentesterFlow/apiprobe/internal/logger"
	"github.com/PentesterFlow/apiprobe/internal/metrics"
	"github.com/PentesterFlow/apiprobe/internal/model"
	"github.com/PentesterFlow/apiprobe/internal/ratelimit"
)

// DefaultMaxBodySize caps how much of a response body is kept.
const DefaultMaxBodySize = 5 * 1024 * 1024

// Doer sends a single probe. *Client implements it.
type Doer interface {
	Do(ctx context.Context, req Request) (*Response, error)
}

// Client is the probe client shared by every tester in a session.
type Client struct {
	client     *http.Client
	noRedirect *http.Client
	userAgent  string
	headers    map[string]string
	timeout    time.Duration
	maxBody    int64
	limiter    *ratelimit.Limiter
	metrics    *metrics.Collector
	log        *logger.Logger
}

// ClientConfig holds configuration for the probe client.
type ClientConfig struct {
	Timeout             time.Duration
	MaxIdleConns        int
	MaxIdleConnsPerHost int
	MaxConnsPerHost     int
	MaxBodySize         int64
	UserAgent           string
	Headers             map[string]string
	SkipTLSVerify       bool

	// Optional collaborators. Nil values disable throttling, metrics and
	// logging respectively.
	Limiter *ratelimit.Limiter
	Metrics *metrics.Collector
	Logger  *logger.Logger
}

// DefaultClientConfig returns defaults suited to probing a single API.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Timeout:             10 * time.Second,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		MaxConnsPerHost:     20,
		MaxBodySize:         DefaultMaxBodySize,
		UserAgent:           "apiprobe/1.0",
		SkipTLSVerify:       true,
	}
}

// NewClient creates a probe client.
func NewClient(config ClientConfig) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:          config.MaxIdleConns,
		MaxIdleConnsPerHost:   config.MaxIdleConnsPerHost,
		MaxConnsPerHost:       config.MaxConnsPerHost,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   5 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: config.SkipTLSVerify,
		},
	}

	maxBody := config.MaxBodySize
	if maxBody <= 0 {
		maxBody = DefaultMaxBodySize
	}
	log := config.Logger
	if log == nil {
		log = logger.Nop()
	}

	return &Client{
		client: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 10 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		noRedirect: &http.Client{
			Transport: transport,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		userAgent: config.UserAgent,
		headers:   config.Headers,
		timeout:   config.Timeout,
		maxBody:   maxBody,
		limiter:   config.Limiter,
		metrics:   config.Metrics,
		log:       log,
	}
}

// Request describes one probe.
type Request struct {
	// Probe labels the request in logs, e.g. "no_auth" or "fuzz".
	Probe   string
	Method  string
	URL     string
	Query   map[string]string
	Headers map[string]string

	// At most one body form is used, in this order.
	JSON    *jsonvalue.Value
	Form    map[string]string
	RawBody *string

	ContentType string
	Timeout     time.Duration
	NoRedirect  bool
	// NoDefaultHeaders leaves out the client's session-wide headers, so
	// only req.Headers reach the server.
	NoDefaultHeaders bool
}

// NewRequest builds a probe replaying ep: its method, full URL, parameters as
// query string, headers and body. JSON endpoints send the body as JSON;
// others send an object body form-encoded and any other body as raw text.
func NewRequest(probe string, ep model.Endpoint) Request {
	req := Request{
		Probe:       probe,
		Method:      strings.ToUpper(ep.Method),
		URL:         ep.FullURL(),
		Query:       ep.Parameters,
		Headers:     ep.Headers,
		ContentType: ep.ContentType,
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	if ep.Body == nil {
		return req
	}

	switch {
	case ep.IsJSON():
		body := *ep.Body
		req.JSON = &body
	case ep.Body.IsObject():
		form := make(map[string]string, ep.Body.Len())
		ep.Body.Walk(func(path jsonvalue.Path, leaf jsonvalue.Value) {
			form[path.String()] = leaf.Text()
		})
		req.Form = form
	default:
		raw := ep.Body.Text()
		req.RawBody = &raw
	}
	return req
}

// Response is the captured result of a probe.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
	Elapsed    time.Duration
	Truncated  bool
}

// Text returns the body as a string.
func (r *Response) Text() string {
	return string(r.Body)
}

// Preview returns at most n runes of the raw body.
func (r *Response) Preview(n int) string {
	return Truncate(r.Text(), n)
}

// JSON decodes the body. A non-JSON body is a parse error.
func (r *Response) JSON() (jsonvalue.Value, error) {
	v, err := jsonvalue.Parse(r.Body)
	if err != nil {
		return jsonvalue.Value{}, errors.NewParseError("", "decode_json", err)
	}
	return v, nil
}

// Headers flattens the response headers to their first values.
func (r *Response) Headers() map[string]string {
	out := make(map[string]string, len(r.Header))
	for k, v := range r.Header {
		if len(v) > 0 {
			out[k] = v[0]
		}
	}
	return out
}

// Seconds returns the elapsed time in seconds.
func (r *Response) Seconds() float64 {
	return r.Elapsed.Seconds()
}

// Do sends req and captures the response. Any HTTP status is a successful
// probe; only transport failures return an error, always a *errors.ProbeError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, errors.NewParseError(req.URL, "request_creation", err)
	}

	body, contentType, err := encodeBody(req)
	if err != nil {
		return nil, errors.NewParseError(target, "encode_body", err)
	}

	if c.limiter != nil {
		host := ""
		if u, perr := url.Parse(target); perr == nil {
			host = u.Host
		}
		if err := c.limiter.WaitHost(ctx, host); err != nil {
			return nil, errors.Categorize(err, target)
		}
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = c.timeout
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, errors.NewParseError(target, "request_creation", err)
	}

	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if !req.NoDefaultHeaders {
		for k, v := range c.headers {
			httpReq.Header.Set(k, v)
		}
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	client := c.client
	if req.NoRedirect {
		client = c.noRedirect
	}

	if c.metrics != nil {
		c.metrics.RecordProbe()
	}
	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		probeErr := errors.Categorize(err, target)
		probeErr.Operation = req.Probe
		c.recordError(probeErr)
		c.log.ProbeFailed(req.Probe, target, probeErr)
		return nil, probeErr
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBody+1))
	elapsed := time.Since(start)
	if err != nil {
		probeErr := errors.Categorize(err, target)
		probeErr.Operation = req.Probe
		c.recordError(probeErr)
		c.log.ProbeFailed(req.Probe, target, probeErr)
		return nil, probeErr
	}

	out := &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       data,
		Elapsed:    elapsed,
	}
	if int64(len(data)) > c.maxBody {
		out.Body = data[:c.maxBody]
		out.Truncated = true
	}

	if c.metrics != nil {
		c.metrics.RecordResponseTime(elapsed)
		c.metrics.RecordStatusCode(resp.StatusCode)
		c.metrics.RecordBytes(int64(len(out.Body)))
	}
	c.log.ProbeEvent(req.Probe, method, target, resp.StatusCode, elapsed)

	return out, nil
}

func (c *Client) recordError(err *errors.ProbeError) {
	if c.metrics != nil {
		c.metrics.RecordError(err.Type.String())
	}
}

// Close releases idle connections.
func (c *Client) Close() {
	c.client.CloseIdleConnections()
}

func buildURL(raw string, query map[string]string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", &url.Error{Op: "parse", URL: raw, Err: errMissingHost}
	}
	if len(query) == 0 {
		return u.String(), nil
	}

	q := u.Query()
	keys := make([]string, 0, len(query))
	for k := range query {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		q.Set(k, query[k])
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func encodeBody(req Request) (io.Reader, string, error) {
	switch {
	case req.JSON != nil:
		data, err := req.JSON.MarshalJSON()
		if err != nil {
			return nil, "", err
		}
		ct := req.ContentType
		if ct == "" {
			ct = model.ContentTypeJSON
		}
		return bytes.NewReader(data), ct, nil
	case req.Form != nil:
		values := url.Values{}
		for k, v := range req.Form {
			values.Set(k, v)
		}
		ct := req.ContentType
		if ct == "" || strings.Contains(strings.ToLower(ct), "json") {
			ct = "application/x-www-form-urlencoded"
		}
		return strings.NewReader(values.Encode()), ct, nil
	case req.RawBody != nil:
		return strings.NewReader(*req.RawBody), req.ContentType, nil
	}
	return nil, "", nil
}

type urlError string

func (e urlError) Error() string { return string(e) }

const errMissingHost = urlError("missing scheme or host")

// Truncate returns at most n runes of s.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if len(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
