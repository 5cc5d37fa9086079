// Package di contains dependency injection tokens for the execution context.
package di

import (
	"github.com/fd1az/flashloan-engine/business/execution/app"
	"github.com/fd1az/flashloan-engine/business/execution/infra/redisfeed"
	"github.com/fd1az/flashloan-engine/business/execution/infra/sqlite"
	"github.com/fd1az/flashloan-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Engine = di.NewToken[*app.Engine]("execution.Engine")
)

// Private dependency tokens - internal to execution module.
// Journal and Feed resolve to nil when disabled.
var (
	Gate     = di.NewToken[*app.Gate]("execution:gate")
	Executor = di.NewToken[*app.Executor]("execution:executor")
	Stats    = di.NewToken[*app.StatsTracker]("execution:stats")
	Journal  = di.NewToken[*sqlite.Journal]("execution:journal")
	Feed     = di.NewToken[*redisfeed.Publisher]("execution:feed")
)

func GetEngine(c di.ServiceRegistry) *app.Engine {
	return di.GetToken(c, Engine)
}

func GetGate(c di.ServiceRegistry) *app.Gate {
	return di.GetToken(c, Gate)
}

func GetExecutor(c di.ServiceRegistry) *app.Executor {
	return di.GetToken(c, Executor)
}

func GetStats(c di.ServiceRegistry) *app.StatsTracker {
	return di.GetToken(c, Stats)
}

func GetJournal(c di.ServiceRegistry) *sqlite.Journal {
	return di.GetToken(c, Journal)
}

func GetFeed(c di.ServiceRegistry) *redisfeed.Publisher {
	return di.GetToken(c, Feed)
}
