package app

import (
	"context"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	lendingDomain "github.com/fd1az/flashloan-engine/business/lending/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/logger"
)

const receiver = "0x2222222222222222222222222222222222222222"

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

func provider(name string, rating float64, maxLoan string, approved bool, tokens ...string) *lendingDomain.Provider {
	return &lendingDomain.Provider{
		Name:      name,
		ProgramID: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		MaxLoan:   decimal.RequireFromString(maxLoan),
		FeeRate:   decimal.RequireFromString("0.001"),
		Tokens:    lendingDomain.NewTokenSet(tokens...),
		Rating:    rating,
		Approved:  approved,
	}
}

// providerSet is a minimal lookup and selector over a fixed list.
type providerSet []*lendingDomain.Provider

func (s providerSet) Lookup(name string) (*lendingDomain.Provider, bool) {
	for _, p := range s {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

func (s providerSet) Select(token string, amount decimal.Decimal) (*lendingDomain.Provider, bool) {
	var best *lendingDomain.Provider
	for _, p := range s {
		if p.CanLend(token, amount) && (best == nil || p.Rating > best.Rating) {
			best = p
		}
	}
	return best, best != nil
}

// fakeClient scripts Submit and AwaitConfirmation per attempt (1-based).
type fakeClient struct {
	mu      sync.Mutex
	submits int
	waits   int
	bundles []domain.Bundle

	submit func(n int) (string, error)
	await  func(ctx context.Context, n int) (domain.Receipt, error)
}

func (f *fakeClient) Submit(_ context.Context, _ *lendingDomain.Provider, b domain.Bundle) (string, error) {
	f.mu.Lock()
	f.submits++
	n := f.submits
	f.bundles = append(f.bundles, b)
	f.mu.Unlock()
	if f.submit == nil {
		return "tx-1", nil
	}
	return f.submit(n)
}

func (f *fakeClient) AwaitConfirmation(ctx context.Context, _ *lendingDomain.Provider, _ string) (domain.Receipt, error) {
	f.mu.Lock()
	f.waits++
	n := f.waits
	f.mu.Unlock()
	if f.await == nil {
		return confirmed("12.5"), nil
	}
	return f.await(ctx, n)
}

func (f *fakeClient) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.submits
}

func confirmed(profit string) domain.Receipt {
	return domain.Receipt{
		TxID:           "tx-1",
		Success:        true,
		RealizedProfit: decimal.RequireFromString(profit),
		ComputeUnits:   180000,
		Logs:           []string{"program log: repaid"},
	}
}

func blockUntilDone(ctx context.Context, _ int) (domain.Receipt, error) {
	<-ctx.Done()
	return domain.Receipt{}, ctx.Err()
}

type recordingSink struct {
	mu      sync.Mutex
	results []domain.Result
	err     error
}

func (s *recordingSink) Record(_ context.Context, r domain.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, r)
	return s.err
}

func (s *recordingSink) all() []domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Result(nil), s.results...)
}

// fakeSource serves a fixed snapshot.
type fakeSource struct {
	mu       sync.Mutex
	snap     *oppDomain.Snapshot
	consumed []string
}

func (f *fakeSource) Get(context.Context) (*oppDomain.Snapshot, error) {
	return f.Peek(), nil
}

func (f *fakeSource) Peek() *oppDomain.Snapshot {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.snap
}

func (f *fakeSource) Consume(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	next, ok := f.snap.Without(id)
	if ok {
		f.snap = next
		f.consumed = append(f.consumed, id)
	}
	return ok
}

func request(providerName, amount string) domain.Request {
	return domain.Request{
		Provider: providerName,
		Token:    "USDC",
		Amount:   decimal.RequireFromString(amount),
		Receiver: receiver,
	}
}
