package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	executionDomain "github.com/fd1az/flashloan-engine/business/execution/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
	"github.com/fd1az/flashloan-engine/internal/apperror"
)

const (
	// maxRequestBody bounds POST /v1/execute bodies.
	maxRequestBody = 1 << 16

	defaultHistoryLimit = 20
	maxHistoryLimit     = 500
)

type engineView interface {
	OpportunityCount() int
	LastScan() (time.Time, bool)
	Stats() executionDomain.CommunityStats
	InFlight() int
}

type executor interface {
	Execute(ctx context.Context, req executionDomain.Request) (*executionDomain.Result, error)
	ExecuteOpportunity(ctx context.Context, id, receiver string) (*executionDomain.Result, error)
}

type snapshotPeeker interface {
	Peek() *oppDomain.Snapshot
}

type executionHistory interface {
	Recent(ctx context.Context, limit int) ([]executionDomain.Result, error)
}

type performerJSON struct {
	Receiver   string `json:"receiver"`
	Profit     string `json:"profit"`
	Executions int    `json:"executions"`
}

type statusJSON struct {
	Opportunities        int             `json:"opportunities"`
	LastScan             *time.Time      `json:"last_scan,omitempty"`
	InFlight             int             `json:"in_flight"`
	TotalExecutions      int             `json:"total_executions"`
	SuccessfulExecutions int             `json:"successful_executions"`
	SuccessRate          float64         `json:"success_rate"`
	TotalProfit          string          `json:"total_profit"`
	FundBalance          string          `json:"fund_balance"`
	TopPerformers        []performerJSON `json:"top_performers"`
}

func newStatus(e engineView) statusJSON {
	stats := e.Stats()
	out := statusJSON{
		Opportunities:        e.OpportunityCount(),
		InFlight:             e.InFlight(),
		TotalExecutions:      stats.TotalExecutions,
		SuccessfulExecutions: stats.SuccessfulExecutions,
		SuccessRate:          stats.SuccessRate(),
		TotalProfit:          stats.TotalProfit.String(),
		FundBalance:          stats.FundBalance.String(),
		TopPerformers:        make([]performerJSON, 0, len(stats.TopPerformers)),
	}
	if ts, ok := e.LastScan(); ok {
		out.LastScan = &ts
	}
	for _, p := range stats.TopPerformers {
		out.TopPerformers = append(out.TopPerformers, performerJSON{
			Receiver: p.Receiver, Profit: p.Profit.String(), Executions: p.Executions,
		})
	}
	return out
}

func statusHandler(e engineView) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, newStatus(e))
	})
}

type opportunityJSON struct {
	ID       string   `json:"id"`
	Provider string   `json:"provider"`
	Token    string   `json:"token"`
	Amount   string   `json:"amount"`
	Net      string   `json:"net_profit"`
	Risk     float64  `json:"risk"`
	Score    string   `json:"score"`
	Route    []string `json:"route"`
}

// opportunitiesHandler serves the current snapshot without refreshing it.
func opportunitiesHandler(src snapshotPeeker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := src.Peek()
		out := make([]opportunityJSON, 0, snap.Len())
		if snap != nil {
			for _, o := range snap.Opportunities {
				out = append(out, opportunityJSON{
					ID:       o.ID,
					Provider: o.Provider,
					Token:    o.LoanToken,
					Amount:   o.LoanAmount.String(),
					Net:      o.ProfitPotential().String(),
					Risk:     o.Risk.Overall(),
					Score:    o.Score.String(),
					Route:    o.Route,
				})
			}
		}
		writeJSON(w, http.StatusOK, out)
	})
}

type executeRequest struct {
	Provider      string          `json:"provider"`
	Token         string          `json:"token"`
	Amount        decimal.Decimal `json:"amount"`
	Receiver      string          `json:"receiver"`
	OpportunityID string          `json:"opportunity_id"`
}

type executionJSON struct {
	ID             string    `json:"id"`
	Provider       string    `json:"provider"`
	Token          string    `json:"token"`
	Amount         string    `json:"amount"`
	Receiver       string    `json:"receiver"`
	Success        bool      `json:"success"`
	TxID           string    `json:"tx_id,omitempty"`
	TxIDs          []string  `json:"tx_ids,omitempty"`
	RealizedProfit string    `json:"realized_profit"`
	Attempts       int       `json:"attempts"`
	ElapsedMs      int64     `json:"elapsed_ms"`
	ComputeUnits   uint64    `json:"compute_units"`
	Code           string    `json:"code,omitempty"`
	Error          string    `json:"error,omitempty"`
	Logs           []string  `json:"logs"`
	CompletedAt    time.Time `json:"completed_at"`
}

func newExecutionJSON(res *executionDomain.Result) executionJSON {
	return executionJSON{
		ID:             res.ID,
		Provider:       res.Provider,
		Token:          res.Token,
		Amount:         res.Amount.String(),
		Receiver:       res.Receiver,
		Success:        res.Success,
		TxID:           res.TxID,
		TxIDs:          res.TxIDs,
		RealizedProfit: res.RealizedProfit.String(),
		Attempts:       res.Attempts,
		ElapsedMs:      res.Elapsed.Milliseconds(),
		ComputeUnits:   res.ComputeUnits,
		Code:           string(res.Code),
		Error:          res.Error,
		Logs:           res.Logs,
		CompletedAt:    res.CompletedAt,
	}
}

func executeHandler(e executor) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.Header().Set("Allow", http.MethodPost)
			writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
			return
		}

		var in executeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&in); err != nil {
			writeError(w, apperror.New(apperror.CodeInvalidInput, apperror.WithCause(err)))
			return
		}

		var (
			res *executionDomain.Result
			err error
		)
		if in.OpportunityID != "" {
			res, err = e.ExecuteOpportunity(r.Context(), in.OpportunityID, in.Receiver)
		} else {
			res, err = e.Execute(r.Context(), executionDomain.Request{
				Provider: in.Provider,
				Token:    in.Token,
				Amount:   in.Amount,
				Receiver: in.Receiver,
			})
		}
		if res == nil {
			writeError(w, err)
			return
		}

		status := http.StatusOK
		if err != nil {
			status = statusFor(err)
		}
		writeJSON(w, status, newExecutionJSON(res))
	})
}

// executionsHandler lists journaled executions, newest first.
func executionsHandler(h executionHistory) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		limit := defaultHistoryLimit
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n <= 0 {
				writeError(w, apperror.New(apperror.CodeInvalidInput,
					apperror.WithContextf("limit must be a positive integer, got %q", raw)))
				return
			}
			limit = min(n, maxHistoryLimit)
		}

		results, err := h.Recent(r.Context(), limit)
		if err != nil {
			writeError(w, apperror.Wrap(err, apperror.CodeInternalError, "read journal"))
			return
		}
		out := make([]executionJSON, 0, len(results))
		for i := range results {
			out = append(out, newExecutionJSON(&results[i]))
		}
		writeJSON(w, http.StatusOK, out)
	})
}

func statusFor(err error) int {
	if errors.Is(err, context.Canceled) {
		return http.StatusServiceUnavailable
	}
	switch apperror.GetCode(err) {
	case apperror.CodeInvalidInput, apperror.CodeInvalidReceiver, apperror.CodeAmountOutOfBounds,
		apperror.CodeProviderNotApproved, apperror.CodeNoEligibleProvider:
		return http.StatusBadRequest
	case apperror.CodeOpportunityNotFound:
		return http.StatusNotFound
	case apperror.CodeConcurrencyLimitExceeded:
		return http.StatusTooManyRequests
	case apperror.CodeUnknownOutcome:
		return http.StatusAccepted
	case apperror.CodeExecutionFailure:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{
		"code":  string(apperror.GetCode(err)),
		"error": err.Error(),
	})
}
