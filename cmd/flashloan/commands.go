package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	executionDI "github.com/fd1az/flashloan-engine/business/execution/di"
	executionDomain "github.com/fd1az/flashloan-engine/business/execution/domain"
	lendingDI "github.com/fd1az/flashloan-engine/business/lending/di"
	opportunityDI "github.com/fd1az/flashloan-engine/business/opportunity/di"
	"github.com/fd1az/flashloan-engine/business/opportunity/infra/console"
	"github.com/fd1az/flashloan-engine/internal/health"
	"github.com/fd1az/flashloan-engine/internal/metrics"
	"github.com/fd1az/flashloan-engine/internal/monolith"
)

const shutdownTimeout = 10 * time.Second

func runScan(ctx context.Context, mono monolith.Monolith, limit int) error {
	cache := opportunityDI.GetCache(mono.Services())
	reporter := opportunityDI.GetReporter(mono.Services())
	reporter.Limit = limit

	snap, err := cache.Get(ctx)
	if err != nil {
		return fmt.Errorf("scan: %w", err)
	}
	return reporter.Report(ctx, snap)
}

func runExecute(ctx context.Context, mono monolith.Monolith, opts options) error {
	engine := executionDI.GetEngine(mono.Services())
	reporter := opportunityDI.GetReporter(mono.Services())

	var (
		res *executionDomain.Result
		err error
	)
	if opts.opportunity != "" {
		res, err = engine.ExecuteOpportunity(ctx, opts.opportunity, opts.receiver)
	} else {
		amount, perr := parseAmount(opts.amount)
		if perr != nil {
			return perr
		}
		res, err = engine.Execute(ctx, executionDomain.Request{
			Provider: opts.provider,
			Token:    opts.token,
			Amount:   amount,
			Receiver: opts.receiver,
		})
	}

	if res != nil {
		reportResult(reporter, res)
	}
	if err != nil {
		return fmt.Errorf("execute: %w", err)
	}
	return nil
}

func reportResult(r *console.Reporter, res *executionDomain.Result) {
	title := "execution succeeded"
	if !res.Success {
		title = "execution failed: " + string(res.Code)
	}
	fields := []console.Field{
		{Label: "id", Value: res.ID},
		{Label: "provider", Value: res.Provider},
		{Label: "loan", Value: res.Amount.String() + " " + res.Token},
		{Label: "tx", Value: strings.Join(res.TxIDs, ", ")},
		{Label: "attempts", Value: strconv.Itoa(res.Attempts)},
		{Label: "elapsed", Value: res.Elapsed.Round(time.Millisecond).String()},
		{Label: "compute units", Value: strconv.FormatUint(res.ComputeUnits, 10)},
	}
	if res.Success {
		fields = append(fields, console.Field{Label: "profit", Value: console.Signed(res.RealizedProfit)})
	} else {
		fields = append(fields, console.Field{Label: "error", Value: res.Error})
	}
	r.Summary(title, fields...)
	for _, line := range res.Logs {
		fmt.Println("  " + line)
	}
}

func runServe(ctx context.Context, mono monolith.Monolith, mp *metrics.Provider) error {
	cfg := mono.Config()
	log := mono.Logger()
	sr := mono.Services()

	engine := executionDI.GetEngine(sr)
	cache := opportunityDI.GetCache(sr)
	registry := lendingDI.GetRegistry(sr)

	server := health.NewServer(cfg.App.HealthPort, version)
	server.RegisterCheck("providers", func(context.Context) (bool, string) {
		n := len(registry.Approved())
		return n > 0, fmt.Sprintf("%d approved", n)
	})
	server.RegisterCheck("snapshot", func(context.Context) (bool, string) {
		ts, ok := engine.LastScan()
		if !ok {
			return false, "no scan completed"
		}
		age := time.Since(ts)
		limit := 2 * cfg.Engine.CacheTTL
		if limit > 0 && age > limit {
			return false, "stale: " + age.Round(time.Second).String()
		}
		return true, fmt.Sprintf("%d opportunities, %s old", engine.OpportunityCount(), age.Round(time.Second))
	})
	if journal := executionDI.GetJournal(sr); journal != nil {
		server.RegisterCheck("journal", pingCheck(journal.Ping))
		server.Handle("/v1/executions", executionsHandler(journal))
	}
	if feed := executionDI.GetFeed(sr); feed != nil {
		server.RegisterCheck("feed", pingCheck(feed.Ping))
	}
	promPort := cfg.Telemetry.PrometheusPort
	if mp != nil && (promPort <= 0 || promPort == cfg.App.HealthPort) {
		server.Handle("/metrics", mp.Handler())
	} else if mp != nil {
		go func() {
			if err := mp.Serve(ctx, promPort); err != nil {
				log.Error(ctx, "metrics server failed", "port", promPort, "error", err)
			}
		}()
		log.Info(ctx, "metrics server started", "port", promPort)
	}
	server.Handle("/v1/status", statusHandler(engine))
	server.Handle("/v1/opportunities", opportunitiesHandler(cache))
	server.Handle("/v1/execute", executeHandler(engine))

	server.Start(func(err error) {
		log.Error(ctx, "health server failed", "error", err)
	})
	log.Info(ctx, "http server started", "port", cfg.App.HealthPort)

	go cache.Run(ctx, cfg.Engine.RefreshInterval)

	<-ctx.Done()
	log.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	return server.Stop(shutdownCtx)
}

func pingCheck(ping func(context.Context) error) health.CheckFunc {
	return func(ctx context.Context) (bool, string) {
		if err := ping(ctx); err != nil {
			return false, err.Error()
		}
		return true, ""
	}
}
