package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

// Engine is the entry point for executions and read-only queries.
type Engine struct {
	providers     ProviderLookup
	selector      ProviderSelector
	gate          *Gate
	executor      *Executor
	stats         *StatsTracker
	opportunities OpportunitySource
	logger        logger.LoggerInterface

	tracer     trace.Tracer
	rejections metric.Int64Counter
}

// NewEngine wires the engine services together.
func NewEngine(
	providers ProviderLookup,
	selector ProviderSelector,
	gate *Gate,
	executor *Executor,
	stats *StatsTracker,
	opportunities OpportunitySource,
	log logger.LoggerInterface,
) (*Engine, error) {
	rejections, err := otel.Meter(meterName).Int64Counter(
		"admission_rejections_total",
		metric.WithDescription("Requests refused before execution, by reason code"),
	)
	if err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return &Engine{
		providers:     providers,
		selector:      selector,
		gate:          gate,
		executor:      executor,
		stats:         stats,
		opportunities: opportunities,
		logger:        log,
		tracer:        otel.Tracer(tracerName),
		rejections:    rejections,
	}, nil
}

// Execute validates and admits req, then runs it. An empty provider is
// filled by the selector. Rejections return a nil result.
func (e *Engine) Execute(ctx context.Context, req domain.Request) (*domain.Result, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Execute")
	defer span.End()

	p, release, err := e.admit(ctx, req)
	if err != nil {
		code := apperror.GetCode(err)
		e.rejections.Add(ctx, 1, metric.WithAttributes(attribute.String("code", string(code))))
		span.RecordError(err)
		span.SetStatus(codes.Error, string(code))
		e.logger.Warn(ctx, "execution request rejected",
			"provider", req.Provider, "token", req.Token, "amount", req.Amount.String(), "code", string(code))
		return nil, err
	}
	defer release()

	req.Provider = p.Name
	span.SetAttributes(attribute.String("provider", p.Name))

	res, err := e.executor.Execute(ctx, p, req)
	return &res, err
}

func (e *Engine) admit(ctx context.Context, req domain.Request) (*lendingDomain.Provider, func(), error) {
	if strings.TrimSpace(req.Token) == "" {
		return nil, nil, apperror.New(apperror.CodeInvalidInput, apperror.WithContext("token is required"))
	}
	if !common.IsHexAddress(req.Receiver) {
		return nil, nil, apperror.New(apperror.CodeInvalidReceiver,
			apperror.WithContextf("receiver %q", req.Receiver))
	}

	if req.Provider == "" {
		p, ok := e.selector.Select(req.Token, req.Amount)
		if !ok {
			return nil, nil, apperror.New(apperror.CodeNoEligibleProvider,
				apperror.WithContextf("%s %s", req.Amount, req.Token))
		}
		e.logger.Debug(ctx, "provider selected", "provider", p.Name, "rating", p.Rating)
		req.Provider = p.Name
	}

	release, err := e.gate.Admit(req)
	if err != nil {
		return nil, nil, err
	}

	p, _ := e.providers.Lookup(req.Provider)
	if !p.Supports(req.Token) {
		release()
		return nil, nil, apperror.New(apperror.CodeInvalidInput,
			apperror.WithContextf("%s does not lend %s", p.Name, req.Token))
	}
	return p, release, nil
}

// ExecuteOpportunity runs a cached opportunity on its own provider and
// removes it from the snapshot once it succeeds.
func (e *Engine) ExecuteOpportunity(ctx context.Context, id, receiver string) (*domain.Result, error) {
	snap, err := e.opportunities.Get(ctx)
	if err != nil {
		return nil, err
	}
	o, ok := snap.Find(id)
	if !ok {
		return nil, apperror.New(apperror.CodeOpportunityNotFound, apperror.WithContextf("id %q", id))
	}

	res, err := e.Execute(ctx, domain.Request{
		Provider:      o.Provider,
		Token:         o.LoanToken,
		Amount:        o.LoanAmount,
		Receiver:      receiver,
		Route:         o.Route,
		OpportunityID: o.ID,
	})
	if err == nil && res.Success {
		e.opportunities.Consume(id)
	}
	return res, err
}

// OpportunityCount returns the size of the current snapshot without refreshing.
func (e *Engine) OpportunityCount() int {
	return e.opportunities.Peek().Len()
}

// LastScan returns when the current snapshot was taken; ok is false before
// the first scan.
func (e *Engine) LastScan() (time.Time, bool) {
	snap := e.opportunities.Peek()
	if snap == nil {
		return time.Time{}, false
	}
	return snap.Timestamp, true
}

// Stats returns the community aggregates.
func (e *Engine) Stats() domain.CommunityStats {
	return e.stats.Snapshot()
}

// InFlight returns the number of running executions.
func (e *Engine) InFlight() int {
	return e.gate.InFlight()
}
