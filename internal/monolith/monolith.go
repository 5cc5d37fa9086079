// Package monolith provides the application container and module interface.
package monolith

import (
	"context"

	"github.com/fd1az/flashloan-engine/internal/config"
	"github.com/fd1az/flashloan-engine/internal/di"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

// Monolith gives modules access to shared infrastructure.
type Monolith interface {
	Config() *config.Config
	Logger() logger.LoggerInterface
	Services() di.ServiceRegistry
	OnClose(Closer)
}

// Module is a bounded context that registers services and starts up.
type Module interface {
	RegisterServices(di.Container) error
	Startup(context.Context, Monolith) error
}

// Closer is a resource released when the application stops.
type Closer interface {
	Close() error
}

// Service names registered by New.
const (
	ConfigService = "config"
	LoggerService = "logger"
)

type app struct {
	config    *config.Config
	logger    logger.LoggerInterface
	container di.Container
	closers   []Closer
}

// New creates the application container with config and logger registered.
func New(cfg *config.Config, log logger.LoggerInterface) *app {
	container := di.NewContainer()
	container.Register(ConfigService, cfg)
	container.Register(LoggerService, log)

	return &app{
		config:    cfg,
		logger:    log,
		container: container,
	}
}

func (a *app) Config() *config.Config {
	return a.config
}

func (a *app) Logger() logger.LoggerInterface {
	return a.logger
}

func (a *app) Services() di.ServiceRegistry {
	return a.container
}

// Container returns the DI container for module registration.
func (a *app) Container() di.Container {
	return a.container
}

// RegisterModules registers all provided modules, in order.
func (a *app) RegisterModules(modules ...Module) error {
	for _, m := range modules {
		if err := m.RegisterServices(a.container); err != nil {
			return err
		}
	}
	return nil
}

// StartModules starts all provided modules, in order.
func (a *app) StartModules(ctx context.Context, modules ...Module) error {
	for _, m := range modules {
		if err := m.Startup(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

// OnClose registers a resource to release in Close, last registered first.
func (a *app) OnClose(c Closer) {
	a.closers = append(a.closers, c)
}

// Close releases registered resources and returns the first error.
func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
