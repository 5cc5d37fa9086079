package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
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

const (
	tracerName = "github.com/fd1az/flashloan-engine/business/execution/app"
	meterName  = "github.com/fd1az/flashloan-engine/business/execution/app"
)

// ExecutorConfig holds retry and timeout settings.
type ExecutorConfig struct {
	MaxRetries int
	RetryDelay time.Duration
	// ExecutionTimeout bounds the wait for confirmation after a submit.
	ExecutionTimeout time.Duration
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxRetries:       2,
		RetryDelay:       2 * time.Second,
		ExecutionTimeout: 60 * time.Second,
	}
}

type executorMetrics struct {
	executions metric.Int64Counter
	attempts   metric.Int64Counter
	duration   metric.Float64Histogram
}

// Executor runs admitted requests as one borrow, swap and repay bundle.
type Executor struct {
	client BundleClient
	sinks  []CompletionSink
	cfg    ExecutorConfig
	now    func() time.Time
	logger logger.LoggerInterface

	tracer  trace.Tracer
	metrics *executorMetrics
}

// NewExecutor creates an Executor. Every terminal result is passed to sinks.
func NewExecutor(client BundleClient, cfg ExecutorConfig, log logger.LoggerInterface, sinks ...CompletionSink) (*Executor, error) {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.ExecutionTimeout <= 0 {
		cfg.ExecutionTimeout = DefaultExecutorConfig().ExecutionTimeout
	}
	e := &Executor{
		client: client,
		sinks:  sinks,
		cfg:    cfg,
		now:    time.Now,
		logger: log,
		tracer: otel.Tracer(tracerName),
	}
	if err := e.initMetrics(); err != nil {
		return nil, fmt.Errorf("init metrics: %w", err)
	}
	return e, nil
}

func (e *Executor) initMetrics() error {
	meter := otel.Meter(meterName)
	var err error
	e.metrics = &executorMetrics{}

	e.metrics.executions, err = meter.Int64Counter(
		"executions_total",
		metric.WithDescription("Terminal executions by provider and code"),
	)
	if err != nil {
		return err
	}

	e.metrics.attempts, err = meter.Int64Counter(
		"execution_attempts_total",
		metric.WithDescription("Bundle attempts including retries"),
	)
	if err != nil {
		return err
	}

	e.metrics.duration, err = meter.Float64Histogram(
		"execution_duration_seconds",
		metric.WithDescription("Wall-clock time from first submit to terminal result"),
		metric.WithUnit("s"),
	)
	return err
}

// Execute runs req on p, retrying failed or unconfirmed attempts up to
// MaxRetries times. The request must already be admitted. On failure both
// the result and a coded error are returned; the code is UnknownOutcome when
// no attempt succeeded and at least one was submitted without a verdict.
func (e *Executor) Execute(ctx context.Context, p *lendingDomain.Provider, req domain.Request) (domain.Result, error) {
	ctx, span := e.tracer.Start(ctx, "Executor.Execute", trace.WithAttributes(
		attribute.String("provider", p.Name),
		attribute.String("token", req.Token),
		attribute.String("amount", req.Amount.String()),
	))
	defer span.End()

	start := e.now()
	bundle := domain.NewBundle(p.ProgramID, common.HexToAddress(req.Receiver),
		req.Token, req.Amount, p.Fee(req.Amount), req.Route)

	res := domain.Result{
		ID:            uuid.NewString(),
		Provider:      p.Name,
		Token:         req.Token,
		Amount:        req.Amount,
		Receiver:      req.Receiver,
		OpportunityID: req.OpportunityID,
		Logs:          bundle.Describe(),
	}

	var (
		lastErr    error
		sawUnknown bool
		succeeded  bool
	)
	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		if attempt > 1 {
			res.Logs = append(res.Logs, fmt.Sprintf("retrying in %s", e.cfg.RetryDelay))
			if err := sleep(ctx, e.cfg.RetryDelay); err != nil {
				break
			}
		}

		res.Attempts = attempt
		e.metrics.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("provider", p.Name)))

		err := e.attempt(ctx, p, bundle, attempt, &res)
		if err == nil {
			succeeded = true
			break
		}
		lastErr = err
		if apperror.HasCode(err, apperror.CodeUnknownOutcome) {
			sawUnknown = true
		}
		if ctx.Err() != nil {
			break
		}
		if !retryable(err) {
			res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: not retryable", attempt))
			break
		}
	}

	end := e.now()
	res.Elapsed = end.Sub(start)
	res.CompletedAt = end

	var finalErr error
	if succeeded {
		res.Success = true
		e.logger.Info(ctx, "execution succeeded",
			"execution_id", res.ID, "provider", p.Name, "tx_id", res.TxID,
			"realized_profit", res.RealizedProfit.String(), "attempts", res.Attempts,
			"elapsed_ms", res.Elapsed.Milliseconds())
	} else {
		code := apperror.CodeExecutionFailure
		if sawUnknown {
			code = apperror.CodeUnknownOutcome
		}
		finalErr = apperror.New(code,
			apperror.WithContextf("%s after %d attempt(s)", p.Name, res.Attempts),
			apperror.WithCause(lastErr))
		res.Code = code
		res.Error = finalErr.Error()
		span.RecordError(finalErr)
		span.SetStatus(codes.Error, string(code))
		args := []any{"execution_id", res.ID, "provider", p.Name, "attempts", res.Attempts, "tx_ids", res.TxIDs}
		var appErr *apperror.AppError
		if errors.As(lastErr, &appErr) {
			args = append(args, appErr.LogArgs()...)
		}
		e.logger.Error(ctx, "execution failed", append(args, "final_code", string(code))...)
	}

	outcome := "success"
	if !succeeded {
		outcome = string(res.Code)
	}
	attrs := metric.WithAttributes(attribute.String("provider", p.Name), attribute.String("outcome", outcome))
	e.metrics.executions.Add(ctx, 1, attrs)
	e.metrics.duration.Record(ctx, res.Elapsed.Seconds(), attrs)

	e.complete(ctx, res)
	return res, finalErr
}

// attempt submits the bundle once and waits for its verdict.
func (e *Executor) attempt(ctx context.Context, p *lendingDomain.Provider, bundle domain.Bundle, n int, res *domain.Result) error {
	txID, err := e.client.Submit(ctx, p, bundle)
	if err != nil {
		if submitOutcomeUnknown(err) {
			// The provider may have accepted the bundle before the reply was lost.
			res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: submit outcome unknown: %v", n, err))
			e.logUnknown(ctx, p, "", n, err)
			return apperror.New(apperror.CodeUnknownOutcome,
				apperror.WithContext("submit"), apperror.WithCause(err))
		}
		res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: submit rejected: %v", n, err))
		return apperror.New(apperror.CodeExecutionFailure,
			apperror.WithContext("submit"), apperror.WithCause(err))
	}
	res.TxID = txID
	res.TxIDs = append(res.TxIDs, txID)
	res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: submitted tx %s", n, txID))

	confirmCtx, cancel := context.WithTimeout(ctx, e.cfg.ExecutionTimeout)
	receipt, err := e.client.AwaitConfirmation(confirmCtx, p, txID)
	cancel()
	if err != nil {
		// The bundle may still land; it is never assumed failed.
		res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: outcome of tx %s unknown: %v", n, txID, err))
		e.logUnknown(ctx, p, txID, n, err)
		return apperror.New(apperror.CodeUnknownOutcome,
			apperror.WithContextf("tx %s", txID), apperror.WithCause(err))
	}

	res.ComputeUnits = receipt.ComputeUnits
	res.Logs = append(res.Logs, receipt.Logs...)

	if !receipt.Success {
		step := receipt.FailedStep
		if step == "" {
			step = "bundle"
		}
		res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: %s step failed: %s", n, step, receipt.Error))
		e.logger.Warn(ctx, "bundle step failed",
			"provider", p.Name, "tx_id", txID, "attempt", n, "step", string(step), "reason", receipt.Error)
		return apperror.New(apperror.CodeExecutionFailure,
			apperror.WithContextf("tx %s: %s step: %s", txID, step, receipt.Error))
	}

	res.RealizedProfit = receipt.RealizedProfit
	res.Logs = append(res.Logs, fmt.Sprintf("attempt %d: confirmed tx %s", n, txID))
	return nil
}

func (e *Executor) logUnknown(ctx context.Context, p *lendingDomain.Provider, txID string, n int, err error) {
	e.logger.Warn(ctx, "execution outcome unknown",
		"provider", p.Name, "tx_id", txID, "attempt", n,
		"timeout", e.cfg.ExecutionTimeout.String(), "error", err)
}

// submitOutcomeUnknown reports whether a submit error leaves the bundle
// possibly accepted: a timeout or an unreadable reply after the request left.
func submitOutcomeUnknown(err error) bool {
	return apperror.HasCode(err, apperror.CodeUnknownOutcome) ||
		apperror.HasCode(err, apperror.CodeServiceTimeout) ||
		apperror.HasCode(err, apperror.CodeMalformedResponse) ||
		errors.Is(err, context.DeadlineExceeded)
}

// retryable decides from a failed attempt whether another submit is allowed.
// Unknown outcomes follow the retry policy. Otherwise the underlying cause
// decides; a step failure has no cause and an unclassified cause is retried.
func retryable(err error) bool {
	if apperror.GetCode(err) == apperror.CodeUnknownOutcome {
		return apperror.Retryable(apperror.CodeUnknownOutcome)
	}
	cause := errors.Unwrap(err)
	if !apperror.IsAppError(cause) {
		return true
	}
	return apperror.Retryable(apperror.GetCode(cause))
}

// complete hands the result to every sink. Sink failures are logged only.
func (e *Executor) complete(ctx context.Context, res domain.Result) {
	ctx = context.WithoutCancel(ctx)
	for _, s := range e.sinks {
		if err := s.Record(ctx, res); err != nil {
			e.logger.Warn(ctx, "completion sink failed",
				"execution_id", res.ID, "sink", fmt.Sprintf("%T", s), "error", err)
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
