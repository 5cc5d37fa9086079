package app

import (
	"sort"

	"github.com/shopspring/decimal"

	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

// DefaultPenaltyFactor weights opportunities from providers below the trusted rating.
const DefaultPenaltyFactor = 0.8

// RankerConfig holds the rating weighting.
type RankerConfig struct {
	TrustedRating float64
	PenaltyFactor float64
}

// DefaultRankerConfig returns the stock weighting.
func DefaultRankerConfig() RankerConfig {
	return RankerConfig{
		TrustedRating: lendingDomain.TrustedRating,
		PenaltyFactor: DefaultPenaltyFactor,
	}
}

// Ranker scores and orders opportunities. It performs no I/O.
type Ranker struct {
	cfg    RankerConfig
	lookup ProviderLookup
}

// NewRanker creates a Ranker. Providers lookup cannot resolve are penalised.
func NewRanker(cfg RankerConfig, lookup ProviderLookup) *Ranker {
	return &Ranker{cfg: cfg, lookup: lookup}
}

// RatingWeight is 1 for trusted providers and the penalty factor otherwise.
func (r *Ranker) RatingWeight(provider string) decimal.Decimal {
	if p, ok := r.lookup(provider); ok && p.IsTrusted(r.cfg.TrustedRating) {
		return decimal.NewFromInt(1)
	}
	return decimal.NewFromFloat(r.cfg.PenaltyFactor)
}

// Score is profit potential × (1 − overall risk) × rating weight.
func (r *Ranker) Score(o domain.Opportunity) decimal.Decimal {
	safety := decimal.NewFromInt(1).Sub(decimal.NewFromFloat(o.Risk.Overall()))
	return o.ProfitPotential().Mul(safety).Mul(r.RatingWeight(o.Provider))
}

// Rank returns scored copies of the profitable opps sorted by descending
// score, then by earlier creation time, then by id. Opportunities whose profit
// potential is not positive are dropped. The input slice is not modified.
func (r *Ranker) Rank(opps []domain.Opportunity) []domain.Opportunity {
	out := make([]domain.Opportunity, 0, len(opps))
	for _, o := range opps {
		if o.ProfitPotential().Sign() <= 0 {
			continue
		}
		o.Score = r.Score(o)
		out = append(out, o)
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if c := a.Score.Cmp(b.Score); c != 0 {
			return c > 0
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
