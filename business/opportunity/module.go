// Package opportunity implements the opportunity bounded context: scanning, ranking and caching.
package opportunity

import (
	"context"
	"os"

	lendingDI "github.com/fd1az/flashloan-engine/business/lending/di"
	"github.com/fd1az/flashloan-engine/business/opportunity/app"
	opportunityDI "github.com/fd1az/flashloan-engine/business/opportunity/di"
	"github.com/fd1az/flashloan-engine/business/opportunity/infra/console"
	"github.com/fd1az/flashloan-engine/internal/config"
	"github.com/fd1az/flashloan-engine/internal/di"
	"github.com/fd1az/flashloan-engine/internal/logger"
	"github.com/fd1az/flashloan-engine/internal/monolith"
)

// Module implements the opportunity bounded context.
type Module struct{}

// RegisterServices registers all opportunity services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, opportunityDI.Ranker, func(sr di.ServiceRegistry) *app.Ranker {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		registry := lendingDI.GetRegistry(sr)
		return app.NewRanker(app.RankerConfig{
			TrustedRating: cfg.Ranking.TrustedRating,
			PenaltyFactor: cfg.Ranking.PenaltyFactor,
		}, registry.Lookup)
	})

	di.RegisterToken(c, opportunityDI.Scanner, func(sr di.ServiceRegistry) *app.Scanner {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		scanner, err := app.NewScanner(lendingDI.GetRegistry(sr), lendingDI.GetProviderClient(sr),
			cfg.Engine.ProbeTimeout, log)
		if err != nil {
			panic("failed to create scanner: " + err.Error())
		}
		return scanner
	})

	di.RegisterToken(c, opportunityDI.Cache, func(sr di.ServiceRegistry) *app.Cache {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		cache, err := app.NewCache(opportunityDI.GetScanner(sr), opportunityDI.GetRanker(sr),
			cfg.Engine.CacheTTL, log)
		if err != nil {
			panic("failed to create opportunity cache: " + err.Error())
		}
		return cache
	})

	di.RegisterToken(c, opportunityDI.Reporter, func(sr di.ServiceRegistry) *console.Reporter {
		return console.NewReporter(os.Stdout)
	})

	return nil
}

// Startup initializes the opportunity module.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	cfg := mono.Config()
	opportunityDI.GetCache(mono.Services())
	mono.Logger().Info(ctx, "opportunity module started",
		"cache_ttl", cfg.Engine.CacheTTL.String(), "probe_timeout", cfg.Engine.ProbeTimeout.String())
	return nil
}
