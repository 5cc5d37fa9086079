// Package httpclient provides a JSON HTTP client with OTEL tracing and metrics.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptrace"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/httptrace/otelhttptrace"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-engine/internal/apperror"
)

const (
	defaultDialKeepAlive   = 10 * time.Second
	defaultRequestTimeout  = 10 * time.Second
	defaultMaxConnsPerHost = 5
	defaultIdleConnTimeout = 2 * time.Minute

	// maxErrorBody bounds how much of a failed reply is kept for diagnostics.
	maxErrorBody = 512

	instrumentationName = "flashloan_http_client"
	metricRequests      = "http_client_requests_total"
	metricDuration      = "http_client_request_duration_seconds"
)

// Client issues JSON requests against a single base URL.
type Client struct {
	http     *http.Client
	baseURL  string
	name     string
	headers  map[string]string
	tracer   trace.Tracer
	requests metric.Int64Counter
	duration metric.Float64Histogram
}

type options struct {
	name          string
	timeout       time.Duration
	headers       map[string]string
	transport     http.RoundTripper
	meterProvider metric.MeterProvider
	tracer        trace.Tracer
}

// Option configures a Client.
type Option func(*options)

// WithName labels metrics and spans, typically with the provider name.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *options) { o.timeout = d }
}

// WithHeaders sets headers sent with every request.
func WithHeaders(h map[string]string) Option {
	return func(o *options) { o.headers = h }
}

// WithTransport replaces the base transport. It is still wrapped by otelhttp.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithMeterProvider sets the meter provider; defaults to the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) { o.meterProvider = mp }
}

// WithTracer sets the tracer; defaults to the global provider.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// New creates a Client for baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	o := &options{name: "default", timeout: defaultRequestTimeout}
	for _, opt := range opts {
		opt(o)
	}

	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", baseURL, err)
	}

	base := o.transport
	if base == nil {
		base = &http.Transport{
			DialContext:     (&net.Dialer{KeepAlive: defaultDialKeepAlive}).DialContext,
			MaxConnsPerHost: defaultMaxConnsPerHost,
			IdleConnTimeout: defaultIdleConnTimeout,
		}
	}

	mp := o.meterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(instrumentationName)

	requests, err := meter.Int64Counter(metricRequests,
		metric.WithDescription("Total number of HTTP requests"))
	if err != nil {
		return nil, err
	}
	duration, err := meter.Float64Histogram(metricDuration,
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	tracer := o.tracer
	if tracer == nil {
		tracer = otel.GetTracerProvider().Tracer(instrumentationName)
	}

	return &Client{
		http: &http.Client{
			Timeout: o.timeout,
			Transport: otelhttp.NewTransport(base,
				otelhttp.WithClientTrace(func(ctx context.Context) *httptrace.ClientTrace {
					return otelhttptrace.NewClientTrace(ctx)
				}),
			),
		},
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		name:     o.name,
		headers:  o.headers,
		tracer:   tracer,
		requests: requests,
		duration: duration,
	}, nil
}

// GetJSON issues a GET and decodes the reply into out.
func (c *Client) GetJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.do(ctx, http.MethodGet, path, query, nil, out)
}

// PostJSON encodes in, issues a POST and decodes the reply into out.
func (c *Client) PostJSON(ctx context.Context, path string, in, out any) error {
	return c.do(ctx, http.MethodPost, path, nil, in, out)
}

// StatusError reports a non-2xx reply.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.StatusCode, e.Body)
}

// Temporary reports whether the server signalled a transient condition.
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) (err error) {
	ctx, span := c.tracer.Start(ctx, "http."+strings.ToLower(method),
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
			attribute.String("provider", c.name),
		),
	)
	start := time.Now()
	defer func() {
		c.record(ctx, method, time.Since(start), err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	target := c.baseURL + "/" + strings.TrimPrefix(path, "/")
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var body io.Reader
	if in != nil {
		raw, mErr := json.Marshal(in)
		if mErr != nil {
			return apperror.New(apperror.CodeInternalError,
				apperror.WithContext("encode request body"), apperror.WithCause(mErr))
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return apperror.New(apperror.CodeInternalError,
			apperror.WithContext("build request"), apperror.WithCause(err))
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return classifyTransportError(c.name, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperror.New(apperror.CodeExternalServiceError,
			apperror.WithContextf("%s %s", c.name, path),
			apperror.WithCause(&StatusError{StatusCode: resp.StatusCode, Body: string(snippet)}))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperror.New(apperror.CodeMalformedResponse,
			apperror.WithContextf("%s %s", c.name, path), apperror.WithCause(err))
	}
	return nil
}

func classifyTransportError(name string, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return apperror.New(apperror.CodeServiceTimeout, apperror.WithContext(name), apperror.WithCause(err))
	default:
		return apperror.New(apperror.CodeExternalServiceError, apperror.WithContext(name), apperror.WithCause(err))
	}
}

func (c *Client) record(ctx context.Context, method string, elapsed time.Duration, err error) {
	attrs := metric.WithAttributes(
		attribute.String("provider", c.name),
		attribute.String("method", method),
		attribute.Bool("success", err == nil),
	)
	c.requests.Add(ctx, 1, attrs)
	c.duration.Record(ctx, elapsed.Seconds(), attrs)
}
