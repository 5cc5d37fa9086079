// Package execution implements the execution bounded context: admission, execution and stats.
package execution

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution/app"
	executionDI "github.com/fd1az/flashloan-engine/business/execution/di"
	"github.com/fd1az/flashloan-engine/business/execution/infra/redisfeed"
	"github.com/fd1az/flashloan-engine/business/execution/infra/sqlite"
	lendingDI "github.com/fd1az/flashloan-engine/business/lending/di"
	opportunityDI "github.com/fd1az/flashloan-engine/business/opportunity/di"
	"github.com/fd1az/flashloan-engine/internal/config"
	"github.com/fd1az/flashloan-engine/internal/di"
	"github.com/fd1az/flashloan-engine/internal/logger"
	"github.com/fd1az/flashloan-engine/internal/monolith"
)

const feedConnectTimeout = 5 * time.Second

// Module implements the execution bounded context.
type Module struct{}

// RegisterServices registers all execution services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, executionDI.Gate, func(sr di.ServiceRegistry) *app.Gate {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		return app.NewGate(lendingDI.GetRegistry(sr), app.GateConfig{
			MinLoanAmount: cfg.Engine.MinLoanAmountDecimal(),
			MaxConcurrent: cfg.Engine.MaxConcurrent,
		})
	})

	di.RegisterToken(c, executionDI.Stats, func(sr di.ServiceRegistry) *app.StatsTracker {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		return app.NewStatsTracker(cfg.Stats.TopPerformers, decimal.NewFromFloat(cfg.Stats.FundShare))
	})

	di.RegisterToken(c, executionDI.Journal, func(sr di.ServiceRegistry) *sqlite.Journal {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		if !cfg.Journal.Enabled {
			return nil
		}
		journal, err := sqlite.Open(cfg.Journal.DSN, log)
		if err != nil {
			panic("failed to open execution journal: " + err.Error())
		}
		return journal
	})

	di.RegisterToken(c, executionDI.Feed, func(sr di.ServiceRegistry) *redisfeed.Publisher {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)
		if !cfg.Feed.Enabled {
			return nil
		}

		ctx, cancel := context.WithTimeout(context.Background(), feedConnectTimeout)
		defer cancel()
		feed, err := redisfeed.New(ctx, redisfeed.Config{
			Addr:        cfg.Feed.Addr,
			Password:    cfg.Feed.Password,
			DB:          cfg.Feed.DB,
			Prefix:      cfg.Feed.Prefix,
			SnapshotTTL: 2 * cfg.Engine.CacheTTL,
		}, log)
		if err != nil {
			// the feed is best effort; run without it
			log.Warn(ctx, "redis feed unavailable, continuing without it", "addr", cfg.Feed.Addr, "error", err)
			return nil
		}
		return feed
	})

	di.RegisterToken(c, executionDI.Executor, func(sr di.ServiceRegistry) *app.Executor {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		sinks := []app.CompletionSink{executionDI.GetStats(sr)}
		if journal := executionDI.GetJournal(sr); journal != nil {
			sinks = append(sinks, journal)
		}
		if feed := executionDI.GetFeed(sr); feed != nil {
			sinks = append(sinks, feed)
		}

		executor, err := app.NewExecutor(lendingDI.GetProviderClient(sr), app.ExecutorConfig{
			MaxRetries:       cfg.Engine.MaxRetries,
			RetryDelay:       cfg.Engine.RetryDelay,
			ExecutionTimeout: cfg.Engine.ExecutionTimeout,
		}, log, sinks...)
		if err != nil {
			panic("failed to create executor: " + err.Error())
		}
		return executor
	})

	di.RegisterToken(c, executionDI.Engine, func(sr di.ServiceRegistry) *app.Engine {
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		engine, err := app.NewEngine(
			lendingDI.GetRegistry(sr),
			lendingDI.GetSelector(sr),
			executionDI.GetGate(sr),
			executionDI.GetExecutor(sr),
			executionDI.GetStats(sr),
			opportunityDI.GetCache(sr),
			log,
		)
		if err != nil {
			panic("failed to create engine: " + err.Error())
		}
		return engine
	})

	return nil
}

// Startup resolves the engine and attaches the optional sinks' lifecycles.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	log := mono.Logger()
	sr := mono.Services()

	executionDI.GetEngine(sr)

	if journal := executionDI.GetJournal(sr); journal != nil {
		mono.OnClose(journal)
		log.Info(ctx, "execution journal enabled", "dsn", mono.Config().Journal.DSN)
	}
	if feed := executionDI.GetFeed(sr); feed != nil {
		mono.OnClose(feed)
		opportunityDI.GetCache(sr).OnRefresh(feed.PublishSnapshot)
		log.Info(ctx, "redis feed enabled", "addr", mono.Config().Feed.Addr)
	}

	log.Info(ctx, "execution module started")
	return nil
}
