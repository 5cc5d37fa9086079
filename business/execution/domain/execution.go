// Package domain contains the core domain types for the execution context.
package domain

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/fd1az/flashloan-engine/internal/apperror"
)

// Request asks the engine to run one flash loan. An empty Provider lets the
// engine pick one.
type Request struct {
	Provider string
	Token    string
	Amount   decimal.Decimal
	Receiver string

	// Route and OpportunityID are set when the request comes from a cached opportunity.
	Route         []string
	OpportunityID string
}

// Result is the terminal outcome of an execution.
type Result struct {
	ID            string
	Provider      string
	Token         string
	Amount        decimal.Decimal
	Receiver      string
	OpportunityID string

	Success bool
	// TxID is the last submitted transaction; TxIDs lists every submission
	// in order so an unknown outcome can be reconciled.
	TxID           string
	TxIDs          []string
	RealizedProfit decimal.Decimal
	Elapsed        time.Duration
	ComputeUnits   uint64
	Attempts       int

	// Code and Error are empty on success.
	Code  apperror.Code
	Error string

	Logs        []string
	CompletedAt time.Time
}

// Performer is one entry of the top performer board.
type Performer struct {
	Receiver   string
	Profit     decimal.Decimal
	Executions int
}

// CommunityStats aggregates execution outcomes.
type CommunityStats struct {
	TotalExecutions      int
	SuccessfulExecutions int
	TotalProfit          decimal.Decimal
	FundBalance          decimal.Decimal
	TopPerformers        []Performer
}

// SuccessRate is successes over total, or 0 before any execution.
func (s CommunityStats) SuccessRate() float64 {
	if s.TotalExecutions == 0 {
		return 0
	}
	return float64(s.SuccessfulExecutions) / float64(s.TotalExecutions)
}
