package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/flashloan-engine/business/execution/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
)

type engineFixture struct {
	engine *Engine
	client *fakeClient
	source *fakeSource
	stats  *StatsTracker
}

func newEngineFixture(t *testing.T, client *fakeClient, sinks ...CompletionSink) engineFixture {
	t.Helper()
	providers := providerSet{
		provider("A", 4.5, "1000000", true, "X", "USDC"),
		provider("B", 4.2, "500000", true, "Y"),
		provider("C", 4.8, "250000", true, "X"),
	}
	source := &fakeSource{}
	stats := NewStatsTracker(10, decimal.Zero)
	executor := newTestExecutor(t, client, fastConfig(0), append([]CompletionSink{stats}, sinks...)...)
	gate := NewGate(providers, GateConfig{MinLoanAmount: decimal.NewFromInt(10), MaxConcurrent: 3})

	e, err := NewEngine(providers, providers, gate, executor, stats, source, &mockLogger{})
	require.NoError(t, err)
	return engineFixture{engine: e, client: client, source: source, stats: stats}
}

func TestEngine_RejectsSmallAmountBeforeProviderCall(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{})

	res, err := f.engine.Execute(context.Background(), request("A", "5"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.Equal(t, apperror.CodeAmountOutOfBounds, apperror.GetCode(err))
	assert.Zero(t, f.client.submitCount())
	assert.Zero(t, f.engine.Stats().TotalExecutions)
}

func TestEngine_InvalidRequests(t *testing.T) {
	tests := []struct {
		name     string
		mutate   func(*domain.Request)
		wantCode apperror.Code
	}{
		{"bad receiver", func(r *domain.Request) { r.Receiver = "alice" }, apperror.CodeInvalidReceiver},
		{"empty token", func(r *domain.Request) { r.Token = "" }, apperror.CodeInvalidInput},
		{"unsupported token", func(r *domain.Request) { r.Token = "BONK" }, apperror.CodeInvalidInput},
		{"unknown provider", func(r *domain.Request) { r.Provider = "Z" }, apperror.CodeProviderNotApproved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newEngineFixture(t, &fakeClient{})
			req := request("A", "100")
			tt.mutate(&req)

			_, err := f.engine.Execute(context.Background(), req)
			assert.Equal(t, tt.wantCode, apperror.GetCode(err))
			assert.Zero(t, f.client.submitCount())
			assert.Zero(t, f.engine.InFlight())
		})
	}
}

func TestEngine_AutoSelectsProvider(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{})

	req := request("", "2000")
	req.Token = "X"
	res, err := f.engine.Execute(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "C", res.Provider)
	assert.Equal(t, 1, f.engine.Stats().SuccessfulExecutions)
}

func TestEngine_NoEligibleProvider(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{})

	req := request("", "5000000")
	req.Token = "X"
	_, err := f.engine.Execute(context.Background(), req)
	assert.Equal(t, apperror.CodeNoEligibleProvider, apperror.GetCode(err))
}

func TestEngine_ReleasesSlotOnFailure(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{
		submit: func(int) (string, error) { return "", errors.New("boom") },
	})

	for range 5 {
		_, err := f.engine.Execute(context.Background(), request("A", "100"))
		assert.Equal(t, apperror.CodeExecutionFailure, apperror.GetCode(err))
	}
	assert.Zero(t, f.engine.InFlight())
	assert.Equal(t, 5, f.engine.Stats().TotalExecutions)
}

func TestEngine_ExecuteOpportunity(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{})
	now := time.Now()
	f.source.snap = &oppDomain.Snapshot{
		Timestamp: now,
		Opportunities: []oppDomain.Opportunity{{
			ID:         "opp-1",
			Provider:   "A",
			LoanToken:  "USDC",
			LoanAmount: decimal.NewFromInt(250),
			Route:      []string{"USDC", "SOL", "USDC"},
		}},
	}

	assert.Equal(t, 1, f.engine.OpportunityCount())
	ts, ok := f.engine.LastScan()
	require.True(t, ok)
	assert.Equal(t, now, ts)

	res, err := f.engine.ExecuteOpportunity(context.Background(), "opp-1", receiver)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "opp-1", res.OpportunityID)
	assert.Equal(t, []string{"opp-1"}, f.source.consumed)
	assert.Zero(t, f.engine.OpportunityCount())

	_, err = f.engine.ExecuteOpportunity(context.Background(), "opp-1", receiver)
	assert.Equal(t, apperror.CodeOpportunityNotFound, apperror.GetCode(err))
}

func TestEngine_QueriesBeforeFirstScan(t *testing.T) {
	f := newEngineFixture(t, &fakeClient{})

	assert.Zero(t, f.engine.OpportunityCount())
	_, ok := f.engine.LastScan()
	assert.False(t, ok)
}

type panickingSink struct{}

func (panickingSink) Record(context.Context, domain.Result) error { panic("sink bug") }

func TestEngine_ConcurrencyCeiling(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	f := newEngineFixture(t, &fakeClient{
		await: func(ctx context.Context, _ int) (domain.Receipt, error) {
			started <- struct{}{}
			select {
			case <-release:
				return confirmed("1"), nil
			case <-ctx.Done():
				return domain.Receipt{}, ctx.Err()
			}
		},
	})

	waitStarted := func() {
		t.Helper()
		select {
		case <-started:
		case <-time.After(time.Second):
			t.Fatal("execution did not reach confirmation")
		}
	}

	results := make(chan error, 4)
	run := func() {
		_, err := f.engine.Execute(context.Background(), request("A", "100"))
		results <- err
	}
	for range 3 {
		go run()
	}
	for range 3 {
		waitStarted()
	}
	assert.Equal(t, 3, f.engine.InFlight())

	res, err := f.engine.Execute(context.Background(), request("A", "100"))
	assert.Nil(t, res)
	assert.Equal(t, apperror.CodeConcurrencyLimitExceeded, apperror.GetCode(err))
	assert.Equal(t, 3, f.client.submitCount(), "rejected request never reaches the provider")

	release <- struct{}{}
	require.NoError(t, <-results)
	require.Eventually(t, func() bool { return f.engine.InFlight() == 2 }, time.Second, 5*time.Millisecond)

	go run()
	waitStarted()
	assert.Equal(t, 3, f.engine.InFlight())

	close(release)
	for range 3 {
		assert.NoError(t, <-results)
	}
	assert.Zero(t, f.engine.InFlight())
	assert.Equal(t, 4, f.engine.Stats().SuccessfulExecutions)
}

func TestEngine_ReleasesSlotOnPanic(t *testing.T) {
	t.Run("executor", func(t *testing.T) {
		f := newEngineFixture(t, &fakeClient{
			submit: func(int) (string, error) { panic("client bug") },
		})
		assert.Panics(t, func() {
			_, _ = f.engine.Execute(context.Background(), request("A", "100"))
		})
		assert.Zero(t, f.engine.InFlight())
	})

	t.Run("sink", func(t *testing.T) {
		f := newEngineFixture(t, &fakeClient{}, panickingSink{})
		// More runs than the ceiling: a leaked slot would turn a panic into a rejection.
		for range 4 {
			assert.Panics(t, func() {
				_, _ = f.engine.Execute(context.Background(), request("A", "100"))
			})
		}
		assert.Zero(t, f.engine.InFlight())
		assert.Equal(t, 4, f.client.submitCount())
	})
}
