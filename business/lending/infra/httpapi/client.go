// Package httpapi talks to lending providers over their JSON HTTP API.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	executionDomain "github.com/fd1az/flashloan-engine/business/execution/domain"
	"github.com/fd1az/flashloan-engine/business/lending/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/circuitbreaker"
	"github.com/fd1az/flashloan-engine/internal/httpclient"
	"github.com/fd1az/flashloan-engine/internal/logger"
	"github.com/fd1az/flashloan-engine/internal/ratelimit"
)

const (
	tracerName = "github.com/fd1az/flashloan-engine/business/lending/infra/httpapi"
	meterName  = "github.com/fd1az/flashloan-engine/business/lending/infra/httpapi"

	opportunitiesPath = "/v1/opportunities"
	bundlesPath       = "/v1/bundles"
)

// Config holds transport settings shared by every provider.
type Config struct {
	RequestTimeout  time.Duration
	PollInterval    time.Duration
	RateLimitRPS    float64
	RateLimitBurst  int
	BreakerFailures uint32
	BreakerCooldown time.Duration
	Headers         map[string]string
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		RequestTimeout:  10 * time.Second,
		PollInterval:    500 * time.Millisecond,
		RateLimitRPS:    5,
		RateLimitBurst:  2,
		BreakerFailures: 5,
		BreakerCooldown: 30 * time.Second,
	}
}

type clientMetrics struct {
	submissions   metric.Int64Counter
	confirmations metric.Int64Counter
	polls         metric.Int64Counter
	breakerTrips  metric.Int64Counter
}

// endpoint is the per-provider transport state.
type endpoint struct {
	http    *httpclient.Client
	breaker *circuitbreaker.CircuitBreaker[struct{}]
}

// Client implements the provider contract for every configured provider.
// Each provider gets its own HTTP client, circuit breaker and rate limiter.
type Client struct {
	cfg    Config
	logger logger.LoggerInterface
	limits *ratelimit.Set

	mu        sync.Mutex
	endpoints map[string]*endpoint

	tracer  trace.Tracer
	metrics *clientMetrics
}

// NewClient creates a Client.
func NewClient(cfg Config, log logger.LoggerInterface) (*Client, error) {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultConfig().PollInterval
	}
	c := &Client{
		cfg:       cfg,
		logger:    log,
		limits:    ratelimit.NewSet(cfg.RateLimitRPS, cfg.RateLimitBurst),
		endpoints: make(map[string]*endpoint),
		tracer:    otel.Tracer(tracerName),
	}
	if err := c.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return c, nil
}

func (c *Client) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	c.metrics = &clientMetrics{}

	c.metrics.submissions, err = meter.Int64Counter(
		"bundle_submissions_total",
		metric.WithDescription("Bundle submissions by provider and outcome"),
	)
	if err != nil {
		return err
	}

	c.metrics.confirmations, err = meter.Int64Counter(
		"bundle_confirmations_total",
		metric.WithDescription("Terminal bundle statuses by provider"),
	)
	if err != nil {
		return err
	}

	c.metrics.polls, err = meter.Int64Counter(
		"bundle_status_polls_total",
		metric.WithDescription("Bundle status polls"),
	)
	if err != nil {
		return err
	}

	c.metrics.breakerTrips, err = meter.Int64Counter(
		"provider_breaker_transitions_total",
		metric.WithDescription("Circuit breaker state transitions by provider"),
	)
	return err
}

func (c *Client) endpointFor(p *domain.Provider) (*endpoint, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ep, ok := c.endpoints[p.Name]; ok {
		return ep, nil
	}

	hc, err := httpclient.New(p.Endpoint,
		httpclient.WithName(p.Name),
		httpclient.WithTimeout(c.cfg.RequestTimeout),
		httpclient.WithHeaders(c.cfg.Headers),
	)
	if err != nil {
		return nil, apperror.New(apperror.CodeConfigurationError,
			apperror.WithContext(p.Name), apperror.WithCause(err))
	}

	cbCfg := circuitbreaker.DefaultConfig(p.Name)
	if c.cfg.BreakerFailures > 0 {
		cbCfg.ConsecutiveFailures = c.cfg.BreakerFailures
	}
	if c.cfg.BreakerCooldown > 0 {
		cbCfg.Timeout = c.cfg.BreakerCooldown
	}
	cbCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn(context.Background(), "provider circuit breaker state changed",
			"provider", name, "from", from.String(), "to", to.String())
		c.metrics.breakerTrips.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("provider", name), attribute.String("to", to.String())))
	}

	ep := &endpoint{
		http:    hc,
		breaker: circuitbreaker.New[struct{}](cbCfg),
	}
	c.endpoints[p.Name] = ep
	return ep, nil
}

// call paces and guards fn behind the provider's limiter and breaker.
func (c *Client) call(ctx context.Context, p *domain.Provider, fn func(*httpclient.Client) error) error {
	ep, err := c.endpointFor(p)
	if err != nil {
		return err
	}
	if err := c.limits.Wait(ctx, p.Name); err != nil {
		return err
	}
	_, err = ep.breaker.Execute(func() (struct{}, error) {
		return struct{}{}, fn(ep.http)
	})
	return err
}

// Probe fetches the provider's current opportunities for its supported tokens.
func (c *Client) Probe(ctx context.Context, p *domain.Provider) ([]oppDomain.Opportunity, error) {
	ctx, span := c.tracer.Start(ctx, "httpapi.Probe",
		trace.WithAttributes(attribute.String("provider", p.Name)))
	defer span.End()

	query := url.Values{"tokens": {strings.Join(p.Tokens.Sorted(), ",")}}

	var resp opportunitiesResponse
	err := c.call(ctx, p, func(hc *httpclient.Client) error {
		return hc.GetJSON(ctx, opportunitiesPath, query, &resp)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "probe failed")
		return nil, apperror.New(apperror.CodeProviderUnavailable,
			apperror.WithContext(p.Name), apperror.WithCause(err))
	}

	out := make([]oppDomain.Opportunity, 0, len(resp.Opportunities))
	for _, dto := range resp.Opportunities {
		o, err := dto.toDomain()
		if err != nil {
			span.SetStatus(codes.Error, "malformed opportunity")
			return nil, apperror.New(apperror.CodeProviderUnavailable,
				apperror.WithContext(p.Name),
				apperror.WithCause(apperror.New(apperror.CodeMalformedResponse, apperror.WithCause(err))))
		}
		o.Provider = p.Name
		out = append(out, o)
	}

	span.SetAttributes(attribute.Int("opportunities", len(out)))
	return out, nil
}

// Submit sends the bundle and returns the provider's transaction id.
func (c *Client) Submit(ctx context.Context, p *domain.Provider, b executionDomain.Bundle) (string, error) {
	ctx, span := c.tracer.Start(ctx, "httpapi.Submit",
		trace.WithAttributes(attribute.String("provider", p.Name)))
	defer span.End()

	var resp submitResponse
	err := c.call(ctx, p, func(hc *httpclient.Client) error {
		if err := hc.PostJSON(ctx, bundlesPath, newBundleRequest(b), &resp); err != nil {
			return err
		}
		if resp.TxID == "" {
			return apperror.New(apperror.CodeMalformedResponse, apperror.WithContext("empty tx_id"))
		}
		return nil
	})

	outcome := "accepted"
	if err != nil {
		outcome = "rejected"
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit failed")
	}
	if err != nil {
		err = classifySubmitError(p.Name, err)
		if apperror.HasCode(err, apperror.CodeUnknownOutcome) {
			outcome = "unknown"
		}
	}
	c.metrics.submissions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", p.Name), attribute.String("outcome", outcome)))
	if err != nil {
		return "", err
	}

	span.SetAttributes(attribute.String("tx_id", resp.TxID))
	return resp.TxID, nil
}

// classifySubmitError separates submissions that never reached the provider
// or were refused from those the provider may have accepted. A timeout, a
// dropped connection, a gateway timeout or an unreadable 2xx reply all leave
// the bundle possibly in flight and map to UnknownOutcome.
func classifySubmitError(provider string, err error) error {
	var status *httpclient.StatusError
	if errors.As(err, &status) {
		switch {
		case status.StatusCode == http.StatusTooManyRequests:
			return apperror.New(apperror.CodeRateLimitExceeded,
				apperror.WithContext(provider), apperror.WithCause(err))
		case status.StatusCode == http.StatusGatewayTimeout:
			return apperror.New(apperror.CodeUnknownOutcome,
				apperror.WithContextf("%s: submit", provider), apperror.WithCause(err))
		case status.StatusCode >= 500:
			return err
		default:
			return apperror.New(apperror.CodeBundleRejected,
				apperror.WithContextf("%s: status %d", provider, status.StatusCode), apperror.WithCause(err))
		}
	}

	var opErr *net.OpError
	switch {
	case apperror.HasCode(err, apperror.CodeCircuitOpen),
		apperror.HasCode(err, apperror.CodeInternalError),
		apperror.HasCode(err, apperror.CodeConfigurationError):
		return err
	case errors.As(err, &opErr) && opErr.Op == "dial":
		return err
	case apperror.HasCode(err, apperror.CodeServiceTimeout),
		apperror.HasCode(err, apperror.CodeMalformedResponse),
		apperror.HasCode(err, apperror.CodeExternalServiceError),
		errors.Is(err, context.DeadlineExceeded):
		return apperror.New(apperror.CodeUnknownOutcome,
			apperror.WithContextf("%s: submit", provider), apperror.WithCause(err))
	}
	return err
}

// AwaitConfirmation polls the bundle status until it is confirmed or failed,
// or until ctx ends. Transient poll errors are retried on the next tick; the
// breaker is bypassed because the bundle is already submitted.
func (c *Client) AwaitConfirmation(ctx context.Context, p *domain.Provider, txID string) (executionDomain.Receipt, error) {
	ctx, span := c.tracer.Start(ctx, "httpapi.AwaitConfirmation",
		trace.WithAttributes(attribute.String("provider", p.Name), attribute.String("tx_id", txID)))
	defer span.End()

	ep, err := c.endpointFor(p)
	if err != nil {
		return executionDomain.Receipt{}, err
	}

	path := bundlesPath + "/" + url.PathEscape(txID)
	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if err := c.limits.Wait(ctx, p.Name); err != nil {
			span.SetStatus(codes.Error, "confirmation wait ended")
			return executionDomain.Receipt{}, err
		}

		var status bundleStatusResponse
		err := ep.http.GetJSON(ctx, path, nil, &status)
		c.metrics.polls.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", p.Name)))

		switch {
		case err != nil:
			if ctx.Err() != nil {
				span.SetStatus(codes.Error, "confirmation wait ended")
				return executionDomain.Receipt{}, ctx.Err()
			}
			c.logger.Debug(ctx, "bundle status poll failed, retrying",
				"provider", p.Name, "tx_id", txID, "error", err)
		case status.Status == statusConfirmed || status.Status == statusFailed:
			c.metrics.confirmations.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", p.Name), attribute.String("status", status.Status)))
			span.SetAttributes(attribute.String("status", status.Status))
			return status.toReceipt(txID), nil
		case status.Status != statusPending:
			err := apperror.New(apperror.CodeMalformedResponse,
				apperror.WithContextf("%s: unknown bundle status %q", p.Name, status.Status))
			span.RecordError(err)
			return executionDomain.Receipt{}, err
		}

		select {
		case <-ctx.Done():
			span.SetStatus(codes.Error, "confirmation wait ended")
			return executionDomain.Receipt{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

// BreakerState reports the breaker state of a provider, or closed when unused.
func (c *Client) BreakerState(name string) gobreaker.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ep, ok := c.endpoints[name]; ok {
		return ep.breaker.State()
	}
	return gobreaker.StateClosed
}
