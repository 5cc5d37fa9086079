// Package app contains application services and port definitions for the lending context.
package app

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
	"github.com/fd1az/flashloan-engine/internal/config"
)

// Registry is the immutable provider table. It has no mutation API and is
// safe for concurrent reads without locking.
type Registry struct {
	providers []*domain.Provider
	byName    map[string]*domain.Provider
}

// NewRegistry builds a registry. It fails with StartupConfigurationError on
// duplicate names or when no provider is approved.
func NewRegistry(providers []*domain.Provider) (*Registry, error) {
	r := &Registry{
		providers: make([]*domain.Provider, 0, len(providers)),
		byName:    make(map[string]*domain.Provider, len(providers)),
	}

	approved := 0
	for _, p := range providers {
		if p == nil {
			continue
		}
		if _, dup := r.byName[p.Name]; dup {
			return nil, apperror.New(apperror.CodeStartupConfiguration,
				apperror.WithContextf("duplicate provider name %q", p.Name))
		}
		r.byName[p.Name] = p
		r.providers = append(r.providers, p)
		if p.Approved {
			approved++
		}
	}

	if approved == 0 {
		return nil, apperror.New(apperror.CodeStartupConfiguration,
			apperror.WithContext("no approved provider configured"))
	}
	return r, nil
}

// ProvidersFromConfig converts configuration entries into domain providers.
func ProvidersFromConfig(cfgs []config.ProviderConfig) ([]*domain.Provider, error) {
	out := make([]*domain.Provider, 0, len(cfgs))
	for _, c := range cfgs {
		if !common.IsHexAddress(c.ProgramID) {
			return nil, apperror.New(apperror.CodeStartupConfiguration,
				apperror.WithContextf("provider %q: invalid program id %q", c.Name, c.ProgramID))
		}
		out = append(out, &domain.Provider{
			Name:            c.Name,
			ProgramID:       common.HexToAddress(c.ProgramID),
			Endpoint:        strings.TrimSuffix(c.Endpoint, "/"),
			MaxLoan:         c.MaxLoanDecimal(),
			FeeRate:         c.FeeRateDecimal(),
			Tokens:          domain.NewTokenSet(c.Tokens...),
			MinHealthFactor: decimal.NewFromFloat(c.MinHealthFactor),
			Rating:          c.Rating,
			Approved:        c.Approved,
		})
	}
	return out, nil
}

// All returns every configured provider in configuration order.
func (r *Registry) All() []*domain.Provider {
	out := make([]*domain.Provider, len(r.providers))
	copy(out, r.providers)
	return out
}

// Approved returns the approved providers in configuration order.
func (r *Registry) Approved() []*domain.Provider {
	out := make([]*domain.Provider, 0, len(r.providers))
	for _, p := range r.providers {
		if p.Approved {
			out = append(out, p)
		}
	}
	return out
}

// Lookup finds a provider by name.
func (r *Registry) Lookup(name string) (*domain.Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Eligible returns approved providers that lend token and cover amount.
func (r *Registry) Eligible(token string, amount decimal.Decimal) []*domain.Provider {
	var out []*domain.Provider
	for _, p := range r.providers {
		if p.CanLend(token, amount) {
			out = append(out, p)
		}
	}
	return out
}

// String is used in startup logs.
func (r *Registry) String() string {
	return fmt.Sprintf("registry(%d providers, %d approved)", len(r.providers), len(r.Approved()))
}
