// Package domain contains the core domain types for the opportunity context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Opportunity is an arbitrage discovered by a provider probe. Values are
// treated as immutable once placed in a Snapshot.
type Opportunity struct {
	ID       string
	Provider string
	Kind     Kind

	// LoanToken is the token borrowed, the first hop of Route.
	LoanToken  string
	LoanAmount decimal.Decimal

	EstimatedProfit decimal.Decimal
	EstimatedFee    decimal.Decimal
	EstimatedGas    decimal.Decimal

	Route      []string
	Confidence float64
	// Complexity is the number of instructions the bundle needs; higher is riskier.
	Complexity int
	CreatedAt  time.Time
	Risk       RiskFactors

	// Score is set by ranking.
	Score decimal.Decimal
}

// ProfitPotential is profit net of fee and gas.
func (o Opportunity) ProfitPotential() decimal.Decimal {
	return o.EstimatedProfit.Sub(o.EstimatedFee).Sub(o.EstimatedGas)
}

// Snapshot is one complete ranked scan result.
type Snapshot struct {
	Timestamp     time.Time
	Opportunities []Opportunity
}

// Len returns the number of opportunities; nil snapshots are empty.
func (s *Snapshot) Len() int {
	if s == nil {
		return 0
	}
	return len(s.Opportunities)
}

// Find returns the opportunity with id.
func (s *Snapshot) Find(id string) (Opportunity, bool) {
	if s == nil {
		return Opportunity{}, false
	}
	for _, o := range s.Opportunities {
		if o.ID == id {
			return o, true
		}
	}
	return Opportunity{}, false
}

// Without returns a new snapshot lacking id, keeping order and timestamp.
// ok is false when id is absent, in which case s is returned unchanged.
func (s *Snapshot) Without(id string) (*Snapshot, bool) {
	if s == nil {
		return nil, false
	}
	for i, o := range s.Opportunities {
		if o.ID != id {
			continue
		}
		rest := make([]Opportunity, 0, len(s.Opportunities)-1)
		rest = append(rest, s.Opportunities[:i]...)
		rest = append(rest, s.Opportunities[i+1:]...)
		return &Snapshot{Timestamp: s.Timestamp, Opportunities: rest}, true
	}
	return s, false
}
