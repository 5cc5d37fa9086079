package httpapi

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	executionDomain "github.com/fd1az/flashloan-engine/business/execution/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

// Bundle statuses reported by GET /v1/bundles/{tx_id}.
const (
	statusPending   = "pending"
	statusConfirmed = "confirmed"
	statusFailed    = "failed"
)

type opportunitiesResponse struct {
	Opportunities []opportunityDTO `json:"opportunities"`
}

type riskDTO struct {
	Liquidity    float64 `json:"liquidity"`
	Slippage     float64 `json:"slippage"`
	Execution    float64 `json:"execution"`
	FrontRunning float64 `json:"front_running"`
	MaxSlippage  float64 `json:"max_slippage"`
}

type opportunityDTO struct {
	ID              string          `json:"id"`
	Kind            string          `json:"kind"`
	Tokens          []string        `json:"tokens"`
	Venues          []string        `json:"venues,omitempty"`
	LoanToken       string          `json:"loan_token,omitempty"`
	LoanAmount      decimal.Decimal `json:"loan_amount"`
	EstimatedProfit decimal.Decimal `json:"estimated_profit"`
	EstimatedFee    decimal.Decimal `json:"estimated_fee"`
	EstimatedGas    decimal.Decimal `json:"estimated_gas"`
	Route           []string        `json:"route"`
	Confidence      float64         `json:"confidence"`
	Complexity      int             `json:"complexity"`
	Risk            riskDTO         `json:"risk"`
	CreatedAt       time.Time       `json:"created_at"`
}

func (d opportunityDTO) toDomain() (oppDomain.Opportunity, error) {
	kind, err := oppDomain.ParseKind(d.Kind, d.Tokens, d.Venues)
	if err != nil {
		return oppDomain.Opportunity{}, err
	}
	if !d.LoanAmount.IsPositive() {
		return oppDomain.Opportunity{}, fmt.Errorf("opportunity %q: loan_amount must be positive", d.ID)
	}
	if d.Confidence < 0 || d.Confidence > 1 {
		return oppDomain.Opportunity{}, fmt.Errorf("opportunity %q: confidence %v outside [0,1]", d.ID, d.Confidence)
	}

	route := d.Route
	if len(route) == 0 {
		route = kind.Tokens()
	}
	loanToken := d.LoanToken
	if loanToken == "" {
		loanToken = route[0]
	}

	return oppDomain.Opportunity{
		ID:              d.ID,
		Kind:            kind,
		LoanToken:       loanToken,
		LoanAmount:      d.LoanAmount,
		EstimatedProfit: d.EstimatedProfit,
		EstimatedFee:    d.EstimatedFee,
		EstimatedGas:    d.EstimatedGas,
		Route:           route,
		Confidence:      d.Confidence,
		Complexity:      d.Complexity,
		CreatedAt:       d.CreatedAt,
		Risk: oppDomain.RiskFactors{
			Liquidity:    d.Risk.Liquidity,
			Slippage:     d.Risk.Slippage,
			Execution:    d.Risk.Execution,
			FrontRunning: d.Risk.FrontRunning,
			MaxSlippage:  d.Risk.MaxSlippage,
		},
	}, nil
}

type stepDTO struct {
	Kind   string          `json:"kind"`
	Token  string          `json:"token"`
	Amount decimal.Decimal `json:"amount"`
	Route  []string        `json:"route,omitempty"`
}

type bundleRequest struct {
	ProgramID string    `json:"program_id"`
	Receiver  string    `json:"receiver"`
	Steps     []stepDTO `json:"steps"`
}

func newBundleRequest(b executionDomain.Bundle) bundleRequest {
	steps := make([]stepDTO, 0, len(b.Steps))
	for _, s := range b.Steps {
		steps = append(steps, stepDTO{
			Kind:   string(s.Kind),
			Token:  s.Token,
			Amount: s.Amount,
			Route:  s.Route,
		})
	}
	return bundleRequest{
		ProgramID: b.ProgramID.Hex(),
		Receiver:  b.Receiver.Hex(),
		Steps:     steps,
	}
}

type submitResponse struct {
	TxID string `json:"tx_id"`
}

type bundleStatusResponse struct {
	Status         string          `json:"status"`
	FailedStep     string          `json:"failed_step,omitempty"`
	RealizedProfit decimal.Decimal `json:"realized_profit"`
	ComputeUnits   uint64          `json:"compute_units"`
	Logs           []string        `json:"logs"`
	Error          string          `json:"error,omitempty"`
}

func (r bundleStatusResponse) toReceipt(txID string) executionDomain.Receipt {
	return executionDomain.Receipt{
		TxID:           txID,
		Success:        r.Status == statusConfirmed,
		FailedStep:     executionDomain.StepKind(r.FailedStep),
		RealizedProfit: r.RealizedProfit,
		ComputeUnits:   r.ComputeUnits,
		Logs:           r.Logs,
		Error:          r.Error,
	}
}
