package app

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
)

// DefaultMinLoanAmount is the smallest loan admitted when none is configured.
var DefaultMinLoanAmount = decimal.NewFromInt(10)

// DefaultMaxConcurrent is the default concurrency ceiling.
const DefaultMaxConcurrent = 3

// GateConfig holds the hard admission limits.
type GateConfig struct {
	MinLoanAmount decimal.Decimal
	MaxConcurrent int
}

// Gate admits execution requests against hard limits before any capital moves.
type Gate struct {
	providers ProviderLookup
	minAmount decimal.Decimal
	ceiling   int

	mu       sync.Mutex
	inFlight int
}

// NewGate creates a Gate. Zero values use the defaults.
func NewGate(providers ProviderLookup, cfg GateConfig) *Gate {
	g := &Gate{
		providers: providers,
		minAmount: cfg.MinLoanAmount,
		ceiling:   cfg.MaxConcurrent,
	}
	if !g.minAmount.IsPositive() {
		g.minAmount = DefaultMinLoanAmount
	}
	if g.ceiling <= 0 {
		g.ceiling = DefaultMaxConcurrent
	}
	return g
}

// Admit checks, in order: the provider is known and approved, the amount is
// within its max loan, the amount reaches the minimum, and a slot is free.
// On success the returned release frees the slot; calling it more than once
// is harmless.
func (g *Gate) Admit(req domain.Request) (release func(), err error) {
	p, ok := g.providers.Lookup(req.Provider)
	if !ok || !p.Approved {
		return nil, apperror.New(apperror.CodeProviderNotApproved,
			apperror.WithContextf("provider %q", req.Provider))
	}
	if req.Amount.GreaterThan(p.MaxLoan) {
		return nil, apperror.New(apperror.CodeAmountOutOfBounds,
			apperror.WithContextf("amount %s above %s max loan %s", req.Amount, p.Name, p.MaxLoan))
	}
	if req.Amount.LessThan(g.minAmount) {
		return nil, apperror.New(apperror.CodeAmountOutOfBounds,
			apperror.WithContextf("amount %s below minimum %s", req.Amount, g.minAmount))
	}

	if err := g.acquire(); err != nil {
		return nil, err
	}

	var once sync.Once
	return func() { once.Do(g.releaseSlot) }, nil
}

// InFlight returns the number of admitted, unreleased executions.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

func (g *Gate) acquire() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.inFlight >= g.ceiling {
		return apperror.New(apperror.CodeConcurrencyLimitExceeded,
			apperror.WithContextf("%d executions in flight", g.inFlight))
	}
	g.inFlight++
	return nil
}

func (g *Gate) releaseSlot() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.inFlight--
}
