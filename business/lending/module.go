// Package lending implements the lending bounded context: providers, selection and transport.
package lending

import (
	"context"

	"github.com/fd1az/flashloan-engine/business/lending/app"
	lendingDI "github.com/fd1az/flashloan-engine/business/lending/di"
	"github.com/fd1az/flashloan-engine/business/lending/infra/httpapi"
	"github.com/fd1az/flashloan-engine/internal/config"
	"github.com/fd1az/flashloan-engine/internal/di"
	"github.com/fd1az/flashloan-engine/internal/logger"
	"github.com/fd1az/flashloan-engine/internal/monolith"
)

// Module implements the lending bounded context.
type Module struct{}

// RegisterServices registers all lending services with the DI container.
func (m *Module) RegisterServices(c di.Container) error {
	di.RegisterToken(c, lendingDI.Registry, func(sr di.ServiceRegistry) *app.Registry {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)

		providers, err := app.ProvidersFromConfig(cfg.Providers)
		if err != nil {
			panic("failed to build providers: " + err.Error())
		}
		registry, err := app.NewRegistry(providers)
		if err != nil {
			panic("failed to create provider registry: " + err.Error())
		}
		return registry
	})

	di.RegisterToken(c, lendingDI.Selector, func(sr di.ServiceRegistry) *app.Selector {
		return app.NewSelector(lendingDI.GetRegistry(sr))
	})

	di.RegisterToken(c, lendingDI.ProviderClient, func(sr di.ServiceRegistry) *httpapi.Client {
		cfg := sr.Get(monolith.ConfigService).(*config.Config)
		log := sr.Get(monolith.LoggerService).(logger.LoggerInterface)

		t := cfg.Transport
		client, err := httpapi.NewClient(httpapi.Config{
			RequestTimeout:  t.RequestTimeout,
			PollInterval:    t.PollInterval,
			RateLimitRPS:    t.RateLimitRPS,
			RateLimitBurst:  t.RateLimitBurst,
			BreakerFailures: t.BreakerFailures,
			BreakerCooldown: t.BreakerCooldown,
		}, log)
		if err != nil {
			panic("failed to create provider client: " + err.Error())
		}
		return client
	})

	return nil
}

// Startup builds the registry so configuration errors surface before any work starts.
func (m *Module) Startup(ctx context.Context, mono monolith.Monolith) error {
	registry := lendingDI.GetRegistry(mono.Services())
	mono.Logger().Info(ctx, "lending module started",
		"providers", len(registry.All()), "approved", len(registry.Approved()))
	return nil
}
