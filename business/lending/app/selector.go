package app

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/lending/domain"
)

// Selector picks the best provider for a loan.
type Selector struct {
	registry *Registry
}

// NewSelector creates a Selector over registry.
func NewSelector(registry *Registry) *Selector {
	return &Selector{registry: registry}
}

// Select returns the highest-rated eligible provider, breaking ties by lower
// fee rate and then by name. ok is false when nothing is eligible.
func (s *Selector) Select(token string, amount decimal.Decimal) (*domain.Provider, bool) {
	candidates := s.registry.Eligible(token, amount)
	if len(candidates) == 0 {
		return nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Rating != b.Rating {
			return a.Rating > b.Rating
		}
		if c := a.FeeRate.Cmp(b.FeeRate); c != 0 {
			return c < 0
		}
		return a.Name < b.Name
	})
	return candidates[0], true
}
