package app

import (
	"context"

	"github.com/shopspring/decimal"

	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	"github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

// mockLogger implements logger.LoggerInterface for testing.
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Info(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Warn(ctx context.Context, msg string, args ...any)               {}
func (m *mockLogger) Error(ctx context.Context, msg string, args ...any)              {}
func (m *mockLogger) Debugc(ctx context.Context, caller int, msg string, args ...any) {}
func (m *mockLogger) Infoc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Warnc(ctx context.Context, caller int, msg string, args ...any)  {}
func (m *mockLogger) Errorc(ctx context.Context, caller int, msg string, args ...any) {}

var _ logger.LoggerInterface = (*mockLogger)(nil)

func opp(id, provider, profit string) domain.Opportunity {
	return domain.Opportunity{
		ID:              id,
		Provider:        provider,
		Kind:            domain.Simple{Base: "SOL", Quote: "USDC"},
		LoanToken:       "USDC",
		LoanAmount:      decimal.NewFromInt(1000),
		EstimatedProfit: decimal.RequireFromString(profit),
		EstimatedFee:    decimal.Zero,
		EstimatedGas:    decimal.Zero,
		Route:           []string{"USDC", "SOL", "USDC"},
		Confidence:      0.9,
	}
}

func ratings(m map[string]float64) ProviderLookup {
	return func(name string) (*lendingDomain.Provider, bool) {
		rating, ok := m[name]
		if !ok {
			return nil, false
		}
		return &lendingDomain.Provider{Name: name, Rating: rating, Approved: true}, true
	}
}
