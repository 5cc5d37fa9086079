// Package app contains application services and port definitions for the opportunity context.
package app

import (
	"context"

	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

// Prober fetches the opportunities one provider currently offers.
type Prober interface {
	Probe(ctx context.Context, p *lendingDomain.Provider) ([]domain.Opportunity, error)
}

// ProviderSource lists the providers a scan covers.
type ProviderSource interface {
	Approved() []*lendingDomain.Provider
}

// ProviderLookup resolves a provider by name.
type ProviderLookup func(name string) (*lendingDomain.Provider, bool)

// Reporter renders ranked scan results.
type Reporter interface {
	Report(ctx context.Context, snap *domain.Snapshot) error
}
