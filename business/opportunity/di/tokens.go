// Package di contains dependency injection tokens for the opportunity context.
package di

import (
	"github.com/fd1az/flashloan-engine/business/opportunity/app"
	"github.com/fd1az/flashloan-engine/business/opportunity/infra/console"
	"github.com/fd1az/flashloan-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Cache    = di.NewToken[*app.Cache]("opportunity.Cache")
	Reporter = di.NewToken[*console.Reporter]("opportunity.Reporter")
)

// Private dependency tokens - internal to opportunity module
var (
	Scanner = di.NewToken[*app.Scanner]("opportunity:scanner")
	Ranker  = di.NewToken[*app.Ranker]("opportunity:ranker")
)

func GetCache(c di.ServiceRegistry) *app.Cache {
	return di.GetToken(c, Cache)
}

func GetReporter(c di.ServiceRegistry) *console.Reporter {
	return di.GetToken(c, Reporter)
}

func GetScanner(c di.ServiceRegistry) *app.Scanner {
	return di.GetToken(c, Scanner)
}

func GetRanker(c di.ServiceRegistry) *app.Ranker {
	return di.GetToken(c, Ranker)
}
