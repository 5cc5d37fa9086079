package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

const (
	tracerName = "github.com/fd1az/flashloan-engine/business/opportunity/app"
	meterName  = "github.com/fd1az/flashloan-engine/business/opportunity/app"

	// DefaultProbeTimeout bounds a single provider probe.
	DefaultProbeTimeout = 5 * time.Second
)

type scannerMetrics struct {
	probes        metric.Int64Counter
	probeDuration metric.Float64Histogram
	found         metric.Int64Counter
}

// Scanner probes every approved provider concurrently. A failing provider is
// logged and skipped; it never fails the scan.
type Scanner struct {
	providers ProviderSource
	prober    Prober
	timeout   time.Duration
	now       func() time.Time
	logger    logger.LoggerInterface

	tracer  trace.Tracer
	metrics *scannerMetrics
}

// NewScanner creates a Scanner. A non-positive timeout uses DefaultProbeTimeout.
func NewScanner(providers ProviderSource, prober Prober, timeout time.Duration, log logger.LoggerInterface) (*Scanner, error) {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	s := &Scanner{
		providers: providers,
		prober:    prober,
		timeout:   timeout,
		now:       time.Now,
		logger:    log,
		tracer:    otel.Tracer(tracerName),
	}
	if err := s.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return s, nil
}

func (s *Scanner) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	s.metrics = &scannerMetrics{}

	s.metrics.probes, err = meter.Int64Counter(
		"provider_probes_total",
		metric.WithDescription("Provider probes by outcome"),
		metric.WithUnit("{probe}"),
	)
	if err != nil {
		return err
	}

	s.metrics.probeDuration, err = meter.Float64Histogram(
		"provider_probe_duration_seconds",
		metric.WithDescription("Provider probe latency"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return err
	}

	s.metrics.found, err = meter.Int64Counter(
		"opportunities_discovered_total",
		metric.WithDescription("Opportunities returned by provider probes"),
		metric.WithUnit("{opportunity}"),
	)
	return err
}

// Scan returns the union of every provider's opportunities. An empty result
// is valid. Opportunity ids are unique within the result.
func (s *Scanner) Scan(ctx context.Context) []domain.Opportunity {
	ctx, span := s.tracer.Start(ctx, "Scanner.Scan")
	defer span.End()

	providers := s.providers.Approved()
	span.SetAttributes(attribute.Int("providers", len(providers)))

	var (
		mu  sync.Mutex
		all []domain.Opportunity
		// plain Group: one provider's failure must not cancel the others
		g errgroup.Group
	)
	for _, p := range providers {
		g.Go(func() error {
			opps, err := s.probe(ctx, p)
			if err != nil {
				s.logger.Warn(ctx, "provider unavailable, skipping this cycle",
					"provider", p.Name, "code", apperror.GetCode(err), "error", err)
				return nil
			}
			mu.Lock()
			all = append(all, opps...)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	all = s.normalizeIDs(all)
	span.SetAttributes(attribute.Int("opportunities", len(all)))
	s.logger.Debug(ctx, "scan complete", "providers", len(providers), "opportunities", len(all))
	return all
}

func (s *Scanner) probe(ctx context.Context, p *lendingDomain.Provider) ([]domain.Opportunity, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := s.now()
	opps, err := s.prober.Probe(ctx, p)
	elapsed := s.now().Sub(start)

	outcome := "ok"
	if err != nil {
		outcome = "error"
		if errors.Is(err, context.DeadlineExceeded) || apperror.HasCode(err, apperror.CodeServiceTimeout) {
			outcome = "timeout"
		}
		if !apperror.HasCode(err, apperror.CodeProviderUnavailable) {
			err = apperror.New(apperror.CodeProviderUnavailable,
				apperror.WithContext(p.Name), apperror.WithCause(err))
		}
	}
	attrs := metric.WithAttributes(attribute.String("provider", p.Name), attribute.String("outcome", outcome))
	s.metrics.probes.Add(ctx, 1, attrs)
	s.metrics.probeDuration.Record(ctx, elapsed.Seconds(), attrs)
	if err != nil {
		return nil, err
	}

	now := s.now()
	for i := range opps {
		opps[i].Provider = p.Name
		if opps[i].CreatedAt.IsZero() {
			opps[i].CreatedAt = now
		}
	}
	s.metrics.found.Add(ctx, int64(len(opps)), metric.WithAttributes(attribute.String("provider", p.Name)))
	return opps, nil
}

// normalizeIDs assigns fresh ids to blank or repeated ones.
func (s *Scanner) normalizeIDs(opps []domain.Opportunity) []domain.Opportunity {
	seen := make(map[string]struct{}, len(opps))
	for i := range opps {
		if _, dup := seen[opps[i].ID]; opps[i].ID == "" || dup {
			opps[i].ID = uuid.NewString()
		}
		seen[opps[i].ID] = struct{}{}
	}
	return opps
}
