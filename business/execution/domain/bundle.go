package domain

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// StepKind names one leg of a flash-loan bundle.
type StepKind string

const (
	StepBorrow StepKind = "borrow"
	StepSwap   StepKind = "swap"
	StepRepay  StepKind = "repay"
)

// Step is one instruction of a bundle. Route is set only for swaps.
type Step struct {
	Kind   StepKind
	Token  string
	Amount decimal.Decimal
	Route  []string
}

// Bundle is the borrow, swap and repay sequence submitted as one atomic unit.
type Bundle struct {
	ProgramID common.Address
	Receiver  common.Address
	Steps     []Step
}

// NewBundle builds the three-step bundle. The repay leg returns the
// principal plus fee. A route shorter than two hops is a round trip on token.
func NewBundle(programID, receiver common.Address, token string, amount, fee decimal.Decimal, route []string) Bundle {
	if len(route) < 2 {
		route = []string{token, token}
	}
	return Bundle{
		ProgramID: programID,
		Receiver:  receiver,
		Steps: []Step{
			{Kind: StepBorrow, Token: token, Amount: amount},
			{Kind: StepSwap, Token: token, Amount: amount, Route: route},
			{Kind: StepRepay, Token: token, Amount: amount.Add(fee)},
		},
	}
}

// Describe renders the bundle as one line per step for the log trail.
func (b Bundle) Describe() []string {
	out := make([]string, 0, len(b.Steps))
	for i, s := range b.Steps {
		line := fmt.Sprintf("step %d %s %s %s", i+1, s.Kind, s.Amount.String(), s.Token)
		if len(s.Route) > 0 {
			line += fmt.Sprintf(" via %v", s.Route)
		}
		out = append(out, line)
	}
	return out
}

// Receipt is the provider's final report on a confirmed or failed bundle.
type Receipt struct {
	TxID           string
	Success        bool
	FailedStep     StepKind
	RealizedProfit decimal.Decimal
	ComputeUnits   uint64
	Logs           []string
	Error          string
}
