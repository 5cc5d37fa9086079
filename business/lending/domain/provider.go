// Package domain contains the core domain types for the lending context.
package domain

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// TrustedRating is the default rating at or above which a provider is fully trusted.
const TrustedRating = 4.0

// TokenSet is a set of token identifiers.
type TokenSet map[string]struct{}

// NewTokenSet builds a set from identifiers, ignoring blanks.
func NewTokenSet(tokens ...string) TokenSet {
	s := make(TokenSet, len(tokens))
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			s[t] = struct{}{}
		}
	}
	return s
}

// Has reports whether token is in the set.
func (s TokenSet) Has(token string) bool {
	_, ok := s[token]
	return ok
}

// Sorted returns the identifiers in lexical order.
func (s TokenSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for t := range s {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Provider is a flash-loan lending source. Values are built once at startup
// and never mutated afterwards.
type Provider struct {
	Name            string
	ProgramID       common.Address
	Endpoint        string
	MaxLoan         decimal.Decimal
	FeeRate         decimal.Decimal
	Tokens          TokenSet
	MinHealthFactor decimal.Decimal
	Rating          float64
	Approved        bool
}

// Supports reports whether the provider lends token.
func (p *Provider) Supports(token string) bool {
	return p.Tokens.Has(token)
}

// CanLend reports whether the provider is approved, lends token and
// can cover amount.
func (p *Provider) CanLend(token string, amount decimal.Decimal) bool {
	return p.Approved && p.Supports(token) && amount.LessThanOrEqual(p.MaxLoan)
}

// Fee returns the flash-loan fee for amount.
func (p *Provider) Fee(amount decimal.Decimal) decimal.Decimal {
	return amount.Mul(p.FeeRate)
}

// IsTrusted reports whether the rating reaches threshold.
func (p *Provider) IsTrusted(threshold float64) bool {
	return p.Rating >= threshold
}
