package downstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/prestus_bff/internal/logging"
	"github.com/austindbirch/prestus_bff/internal/metrics"
	"github.com/austindbirch/prestus_bff/internal/requestid"
	"github.com/austindbirch/prestus_bff/internal/tracing"
)

// Spec describes one outbound call. Path is appended to the client's base address.
type Spec struct {
	Method string
	Path   string
	Body   []byte      // raw JSON payload, nil for none
	Query  url.Values  // merged into any query already present on the base address
	Header http.Header // sent as-is; callers strip what must not travel
}

// Result is a downstream answer with a 2xx status
type Result struct {
	Status int
	Header http.Header
	Body   []byte
}

// Caller is the contract the gateway components depend on
type Caller interface {
	Name() string
	Do(ctx context.Context, spec Spec) (*Result, error)
}

// Client calls one downstream service rooted at a fixed base address
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	logger  *logging.Logger
}

type Option func(*Client)

// WithHTTPClient overrides the transport; the default client has no timeout
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func WithLogger(l *logging.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New returns a client for the named service at baseURL
func New(name, baseURL string, opts ...Option) *Client {
	c := &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{},
		logger:  logging.New("prestus-bff"),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string { return c.name }

// URL returns the absolute target address for spec
func (c *Client) URL(spec Spec) (string, error) {
	u, err := url.Parse(c.baseURL + spec.Path)
	if err != nil {
		return "", fmt.Errorf("%s: build url: %w", c.name, err)
	}
	if len(spec.Query) > 0 {
		q := u.Query()
		for k, vs := range spec.Query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Do performs the call. A 2xx answer yields a Result; anything else yields a *Failure.
func (c *Client) Do(ctx context.Context, spec Spec) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "downstream."+c.name,
		attribute.String("downstream.service", c.name),
		attribute.String("http.method", spec.Method),
		attribute.String("http.path", spec.Path),
	)
	defer span.End()

	target, err := c.URL(spec)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, unreachable(c.name, err)
	}

	var body io.Reader
	if spec.Body != nil && methodAllowsBody(spec.Method) {
		body = bytes.NewReader(spec.Body)
	}
	req, err := http.NewRequestWithContext(ctx, spec.Method, target, body)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, unreachable(c.name, err)
	}
	if spec.Header != nil {
		req.Header = spec.Header.Clone()
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	if id := requestid.FromContext(ctx); id != "" && req.Header.Get(requestid.Header) == "" {
		req.Header.Set(requestid.Header, id)
	}
	tracing.InjectHTTP(ctx, req.Header)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		metrics.RecordDownstream(c.name, metrics.OutcomeUnreachable, latency)
		tracing.SetSpanError(ctx, err)
		c.logger.WithContext(ctx).WithDownstream(c.name).WithError(err).WithFields(map[string]any{
			"method":     spec.Method,
			"path":       spec.Path,
			"latency_ms": latency.Milliseconds(),
		}).Warn("downstream unreachable")
		return nil, unreachable(c.name, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.RecordDownstream(c.name, metrics.OutcomeUnreachable, latency)
		tracing.SetSpanError(ctx, err)
		return nil, unreachable(c.name, fmt.Errorf("read response: %w", err))
	}

	span.SetAttributes(
		attribute.Int("http.status_code", resp.StatusCode),
		attribute.Int64("http.latency_ms", latency.Milliseconds()),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		metrics.RecordDownstream(c.name, metrics.OutcomeHTTPError, latency)
		f := &Failure{
			Service:   c.name,
			Status:    resp.StatusCode,
			Header:    resp.Header,
			Body:      respBody,
			Responded: true,
		}
		tracing.SetSpanError(ctx, f)
		c.logger.WithContext(ctx).WithDownstream(c.name).WithFields(map[string]any{
			"method":     spec.Method,
			"path":       spec.Path,
			"status":     resp.StatusCode,
			"latency_ms": latency.Milliseconds(),
		}).Info("downstream answered with error status")
		return nil, f
	}

	metrics.RecordDownstream(c.name, metrics.OutcomeSuccess, latency)
	return &Result{Status: resp.StatusCode, Header: resp.Header, Body: respBody}, nil
}

// PostJSON sends an already-encoded JSON body with POST
func (c *Client) PostJSON(ctx context.Context, path string, body []byte) (*Result, error) {
	return c.Do(ctx, Spec{Method: http.MethodPost, Path: path, Body: body})
}

func methodAllowsBody(method string) bool {
	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions:
		return false
	}
	return true
}
