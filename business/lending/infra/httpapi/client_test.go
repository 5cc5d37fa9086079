package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	executionDomain "github.com/fd1az/flashloan-engine/business/execution/domain"
	"github.com/fd1az/flashloan-engine/business/lending/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
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

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RateLimitRPS = 0 // unlimited
	cfg.PollInterval = 10 * time.Millisecond
	cfg.RequestTimeout = time.Second
	return cfg
}

func testProvider(endpoint string) *domain.Provider {
	return &domain.Provider{
		Name:      "solend",
		ProgramID: common.HexToAddress("0x1111111111111111111111111111111111111111"),
		Endpoint:  endpoint,
		MaxLoan:   decimal.NewFromInt(1_000_000),
		Tokens:    domain.NewTokenSet("USDC", "SOL"),
		Rating:    4.5,
		Approved:  true,
	}
}

func TestProbe_ParsesOpportunities(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/opportunities", r.URL.Path)
		assert.Equal(t, "SOL,USDC", r.URL.Query().Get("tokens"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"opportunities":[
			{"id":"o1","kind":"triangular","tokens":["USDC","SOL","RAY"],"loan_amount":"2000",
			 "estimated_profit":"12.5","estimated_fee":1.8,"estimated_gas":"0.2","confidence":0.9,
			 "complexity":4,"risk":{"liquidity":0.1,"slippage":0.2,"max_slippage":0.01},
			 "created_at":"2026-01-02T03:04:05Z"},
			{"id":"o2","kind":"cross_exchange","tokens":["SOL","USDC"],"venues":["orca","raydium"],
			 "loan_amount":500,"route":["USDC","SOL","USDC"],"estimated_profit":3,"confidence":0.5}
		]}`))
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	opps, err := c.Probe(context.Background(), testProvider(server.URL))
	require.NoError(t, err)
	require.Len(t, opps, 2)

	o := opps[0]
	assert.Equal(t, "o1", o.ID)
	assert.Equal(t, "solend", o.Provider)
	assert.Equal(t, oppDomain.Triangular{Cycle: [3]string{"USDC", "SOL", "RAY"}}, o.Kind)
	assert.Equal(t, "USDC", o.LoanToken)
	assert.Equal(t, []string{"USDC", "SOL", "RAY"}, o.Route)
	assert.Equal(t, "10.5", o.ProfitPotential().String())
	assert.Equal(t, 0.2, o.Risk.Slippage)
	assert.Equal(t, time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), o.CreatedAt.UTC())

	assert.Equal(t, "USDC", opps[1].LoanToken)
	assert.IsType(t, oppDomain.CrossExchange{}, opps[1].Kind)
}

func TestProbe_MalformedIsProviderUnavailable(t *testing.T) {
	bodies := []string{
		`{not json`,
		`{"opportunities":[{"id":"x","kind":"spiral","tokens":["A","B"],"loan_amount":1}]}`,
		`{"opportunities":[{"id":"x","kind":"simple","tokens":["A","B"],"loan_amount":0}]}`,
		`{"opportunities":[{"id":"x","kind":"simple","tokens":["A","B"],"loan_amount":1,"confidence":1.5}]}`,
	}
	for _, body := range bodies {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))

		c, err := NewClient(testConfig(), &mockLogger{})
		require.NoError(t, err)

		_, err = c.Probe(context.Background(), testProvider(server.URL))
		require.Error(t, err, body)
		assert.Equal(t, apperror.CodeProviderUnavailable, apperror.GetCode(err), body)
		assert.True(t, apperror.HasCode(err, apperror.CodeMalformedResponse), body)
		server.Close()
	}
}

func TestProbe_BreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.BreakerFailures = 2
	cfg.BreakerCooldown = time.Minute
	c, err := NewClient(cfg, &mockLogger{})
	require.NoError(t, err)
	p := testProvider(server.URL)

	for range 2 {
		_, err := c.Probe(context.Background(), p)
		require.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, c.BreakerState(p.Name))

	_, err = c.Probe(context.Background(), p)
	assert.Equal(t, apperror.CodeProviderUnavailable, apperror.GetCode(err))
	assert.True(t, apperror.HasCode(err, apperror.CodeCircuitOpen))
	assert.Equal(t, int32(2), hits.Load(), "open breaker must not reach the server")
	assert.Equal(t, gobreaker.StateClosed, c.BreakerState("other"))
}

func testBundle() executionDomain.Bundle {
	return executionDomain.NewBundle(
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		common.HexToAddress("0x2222222222222222222222222222222222222222"),
		"USDC", decimal.NewFromInt(2000), decimal.RequireFromString("1.8"),
		[]string{"USDC", "SOL", "USDC"})
}

func TestSubmitAndConfirm(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/bundles":
			var req bundleRequest
			assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Len(t, req.Steps, 3)
			assert.Equal(t, "borrow", req.Steps[0].Kind)
			assert.Equal(t, "repay", req.Steps[2].Kind)
			assert.Equal(t, "2001.8", req.Steps[2].Amount.String())
			assert.True(t, strings.EqualFold("0x2222222222222222222222222222222222222222", req.Receiver))
			_, _ = w.Write([]byte(`{"tx_id":"tx-1"}`))
		case r.Method == http.MethodGet && r.URL.Path == "/v1/bundles/tx-1":
			if polls.Add(1) < 3 {
				_, _ = w.Write([]byte(`{"status":"pending"}`))
				return
			}
			_, _ = w.Write([]byte(`{"status":"confirmed","realized_profit":"9.75","compute_units":120000,"logs":["borrowed","swapped","repaid"]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)
	p := testProvider(server.URL)

	txID, err := c.Submit(context.Background(), p, testBundle())
	require.NoError(t, err)
	assert.Equal(t, "tx-1", txID)

	receipt, err := c.AwaitConfirmation(context.Background(), p, txID)
	require.NoError(t, err)
	assert.True(t, receipt.Success)
	assert.Equal(t, "9.75", receipt.RealizedProfit.String())
	assert.Equal(t, uint64(120000), receipt.ComputeUnits)
	assert.Equal(t, []string{"borrowed", "swapped", "repaid"}, receipt.Logs)
	assert.Equal(t, int32(3), polls.Load())
}

func TestAwaitConfirmation_FailedStep(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"failed","failed_step":"swap","error":"slippage exceeded"}`))
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	receipt, err := c.AwaitConfirmation(context.Background(), testProvider(server.URL), "tx-9")
	require.NoError(t, err)
	assert.False(t, receipt.Success)
	assert.Equal(t, executionDomain.StepSwap, receipt.FailedStep)
	assert.Equal(t, "slippage exceeded", receipt.Error)
	assert.Equal(t, "tx-9", receipt.TxID)
}

func TestAwaitConfirmation_DeadlineWhilePending(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending"}`))
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Millisecond)
	defer cancel()

	_, err = c.AwaitConfirmation(ctx, testProvider(server.URL), "tx-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwaitConfirmation_UnknownStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"exploded"}`))
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	_, err = c.AwaitConfirmation(context.Background(), testProvider(server.URL), "tx-1")
	assert.Equal(t, apperror.CodeMalformedResponse, apperror.GetCode(err))
}

func TestSubmit_EmptyTxID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testProvider(server.URL), testBundle())
	assert.Equal(t, apperror.CodeUnknownOutcome, apperror.GetCode(err))
	assert.True(t, apperror.HasCode(err, apperror.CodeMalformedResponse))
}

func TestSubmit_ClassifiesReplies(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   apperror.Code
	}{
		{"bad request is final", http.StatusBadRequest, apperror.CodeBundleRejected},
		{"unprocessable is final", http.StatusUnprocessableEntity, apperror.CodeBundleRejected},
		{"throttled", http.StatusTooManyRequests, apperror.CodeRateLimitExceeded},
		{"server error", http.StatusServiceUnavailable, apperror.CodeExternalServiceError},
		{"gateway timeout may have landed", http.StatusGatewayTimeout, apperror.CodeUnknownOutcome},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.status)
			}))
			defer server.Close()

			c, err := NewClient(testConfig(), &mockLogger{})
			require.NoError(t, err)

			_, err = c.Submit(context.Background(), testProvider(server.URL), testBundle())
			require.Error(t, err)
			assert.Equal(t, tt.want, apperror.GetCode(err))
		})
	}
}

func TestSubmit_TimeoutIsUnknownOutcome(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer server.Close()
	defer close(release)

	cfg := testConfig()
	cfg.RequestTimeout = 50 * time.Millisecond
	c, err := NewClient(cfg, &mockLogger{})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testProvider(server.URL), testBundle())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeUnknownOutcome, apperror.GetCode(err))
	assert.True(t, apperror.HasCode(err, apperror.CodeServiceTimeout))
}

func TestSubmit_RefusedConnectionIsNotUnknown(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	endpoint := server.URL
	server.Close()

	c, err := NewClient(testConfig(), &mockLogger{})
	require.NoError(t, err)

	_, err = c.Submit(context.Background(), testProvider(endpoint), testBundle())
	require.Error(t, err)
	assert.Equal(t, apperror.CodeExternalServiceError, apperror.GetCode(err))
}
