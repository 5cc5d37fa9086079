// Package di contains dependency injection tokens for the lending context.
package di

import (
	"github.com/fd1az/flashloan-engine/business/lending/app"
	"github.com/fd1az/flashloan-engine/business/lending/infra/httpapi"
	"github.com/fd1az/flashloan-engine/internal/di"
)

// Public service tokens - exposed to other modules
var (
	Registry       = di.NewToken[*app.Registry]("lending.Registry")
	Selector       = di.NewToken[*app.Selector]("lending.Selector")
	ProviderClient = di.NewToken[*httpapi.Client]("lending.ProviderClient")
)

func GetRegistry(c di.ServiceRegistry) *app.Registry {
	return di.GetToken(c, Registry)
}

func GetSelector(c di.ServiceRegistry) *app.Selector {
	return di.GetToken(c, Selector)
}

func GetProviderClient(c di.ServiceRegistry) *httpapi.Client {
	return di.GetToken(c, ProviderClient)
}
