// Package main is the entry point for the flash-loan engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution"
	"github.com/fd1az/flashloan-engine/business/lending"
	"github.com/fd1az/flashloan-engine/business/opportunity"
	"github.com/fd1az/flashloan-engine/internal/apm"
	"github.com/fd1az/flashloan-engine/internal/config"
	"github.com/fd1az/flashloan-engine/internal/logger"
	"github.com/fd1az/flashloan-engine/internal/metrics"
	"github.com/fd1az/flashloan-engine/internal/monolith"
)

var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

const (
	modeServe   = "serve"
	modeScan    = "scan"
	modeExecute = "execute"
)

type options struct {
	configPath string
	mode       string

	// execute mode
	provider    string
	token       string
	amount      string
	receiver    string
	opportunity string

	// scan mode
	limit int
}

func main() {
	// Load .env file if present (ignore error if not found)
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.mode, "mode", modeServe, "Run mode: serve, scan or execute")
	flag.StringVar(&opts.provider, "provider", "", "Provider name; empty selects the best eligible provider")
	flag.StringVar(&opts.token, "token", "", "Token to borrow")
	flag.StringVar(&opts.amount, "amount", "", "Amount to borrow")
	flag.StringVar(&opts.receiver, "receiver", "", "Receiver address for realized profit")
	flag.StringVar(&opts.opportunity, "opportunity", "", "Cached opportunity id to execute")
	flag.IntVar(&opts.limit, "limit", 20, "Rows printed in scan mode")
	showVersion := flag.Bool("version", false, "Show version information")
	flag.Parse()

	if *showVersion {
		fmt.Printf("flashloan-engine %s (commit: %s, built: %s)\n", version, commit, buildDate)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	switch opts.mode {
	case modeServe, modeScan, modeExecute:
	default:
		return fmt.Errorf("unknown mode %q", opts.mode)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.New(os.Stderr, logger.ParseLevel(cfg.App.LogLevel), cfg.App.Name, nil)
	log.Info(ctx, "starting flash-loan engine",
		"version", version,
		"environment", cfg.App.Environment,
		"mode", opts.mode,
	)

	tel, err := startTelemetry(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer tel.stop(ctx)

	mono := monolith.New(cfg, log)
	defer func() {
		if err := mono.Close(); err != nil {
			log.Warn(ctx, "error releasing resources", "error", err)
		}
	}()

	// Dependency order: opportunity needs lending; execution needs both.
	modules := []monolith.Module{
		&lending.Module{},
		&opportunity.Module{},
		&execution.Module{},
	}
	if err := mono.RegisterModules(modules...); err != nil {
		return fmt.Errorf("failed to register modules: %w", err)
	}
	if err := recoverStartup(func() error { return mono.StartModules(ctx, modules...) }); err != nil {
		return err
	}

	switch opts.mode {
	case modeScan:
		return runScan(ctx, mono, opts.limit)
	case modeExecute:
		return runExecute(ctx, mono, opts)
	default:
		return runServe(ctx, mono, tel.metrics)
	}
}

// recoverStartup turns factory panics (bad configuration) into errors.
func recoverStartup(start func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("failed to start modules: %v", r)
		}
	}()
	if err := start(); err != nil {
		return fmt.Errorf("failed to start modules: %w", err)
	}
	return nil
}

type telemetry struct {
	traces  apm.TraceProvider
	metrics *metrics.Provider
	log     logger.LoggerInterface
}

func startTelemetry(ctx context.Context, cfg *config.Config, log logger.LoggerInterface) (*telemetry, error) {
	t := &telemetry{log: log}
	if !cfg.Telemetry.Enabled {
		return t, nil
	}

	traces, err := apm.NewTraceProvider(ctx, log, apm.Options{
		Provider:    apm.Provider(cfg.Telemetry.TraceProvider),
		ServiceName: cfg.Telemetry.ServiceName,
		Endpoint:    cfg.Telemetry.OTLPEndpoint,
		Headers:     os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to init tracing: %w", err)
	}
	t.traces = traces

	mp, err := metrics.NewProvider(ctx, metrics.Options{ServiceName: cfg.Telemetry.ServiceName})
	if err != nil {
		_ = traces.Stop()
		return nil, fmt.Errorf("failed to init metrics: %w", err)
	}
	t.metrics = mp
	log.Info(ctx, "telemetry initialized", "trace_provider", cfg.Telemetry.TraceProvider)
	return t, nil
}

func (t *telemetry) stop(ctx context.Context) {
	if t.metrics != nil {
		if err := t.metrics.Shutdown(context.WithoutCancel(ctx)); err != nil {
			t.log.Warn(ctx, "metrics shutdown failed", "error", err)
		}
	}
	if t.traces != nil {
		if err := t.traces.Stop(); err != nil {
			t.log.Warn(ctx, "trace provider shutdown failed", "error", err)
		}
	}
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, fmt.Errorf("-amount is required")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid -amount %q: %w", s, err)
	}
	return d, nil
}
