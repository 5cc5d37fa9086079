// Package app contains application services and port definitions for the execution context.
package app

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

// BundleClient submits bundles to a provider and waits for their outcome.
type BundleClient interface {
	Submit(ctx context.Context, p *lendingDomain.Provider, b domain.Bundle) (txID string, err error)
	AwaitConfirmation(ctx context.Context, p *lendingDomain.Provider, txID string) (domain.Receipt, error)
}

// CompletionSink receives every terminal execution result.
type CompletionSink interface {
	Record(ctx context.Context, r domain.Result) error
}

// ProviderLookup resolves providers by name.
type ProviderLookup interface {
	Lookup(name string) (*lendingDomain.Provider, bool)
}

// ProviderSelector picks a provider for a loan.
type ProviderSelector interface {
	Select(token string, amount decimal.Decimal) (*lendingDomain.Provider, bool)
}

// OpportunitySource is the cached, ranked view of opportunities.
type OpportunitySource interface {
	Get(ctx context.Context) (*oppDomain.Snapshot, error)
	Peek() *oppDomain.Snapshot
	Consume(id string) bool
}
