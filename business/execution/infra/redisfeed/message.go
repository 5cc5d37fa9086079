package redisfeed

import (
	"github.com/fd1az/flashloan-engine/business/execution/domain"
	oppDomain "github.com/fd1az/flashloan-engine/business/opportunity/domain"
)

type resultMessage struct {
	ID             string   `json:"id"`
	Provider       string   `json:"provider"`
	Token          string   `json:"token"`
	Amount         string   `json:"amount"`
	Receiver       string   `json:"receiver"`
	OpportunityID  string   `json:"opportunity_id,omitempty"`
	Success        bool     `json:"success"`
	TxID           string   `json:"tx_id,omitempty"`
	TxIDs          []string `json:"tx_ids,omitempty"`
	RealizedProfit string   `json:"realized_profit"`
	ElapsedMs      int64    `json:"elapsed_ms"`
	ComputeUnits   uint64   `json:"compute_units"`
	Attempts       int      `json:"attempts"`
	Code           string   `json:"code,omitempty"`
	Error          string   `json:"error,omitempty"`
	Logs           []string `json:"logs,omitempty"`
	CompletedAt    int64    `json:"completed_at"`
}

func newResultMessage(r domain.Result) resultMessage {
	return resultMessage{
		ID:             r.ID,
		Provider:       r.Provider,
		Token:          r.Token,
		Amount:         r.Amount.String(),
		Receiver:       r.Receiver,
		OpportunityID:  r.OpportunityID,
		Success:        r.Success,
		TxID:           r.TxID,
		TxIDs:          r.TxIDs,
		RealizedProfit: r.RealizedProfit.String(),
		ElapsedMs:      r.Elapsed.Milliseconds(),
		ComputeUnits:   r.ComputeUnits,
		Attempts:       r.Attempts,
		Code:           string(r.Code),
		Error:          r.Error,
		Logs:           r.Logs,
		CompletedAt:    r.CompletedAt.UnixMilli(),
	}
}

type opportunityMessage struct {
	ID         string   `json:"id"`
	Provider   string   `json:"provider"`
	Kind       string   `json:"kind"`
	Token      string   `json:"token"`
	Amount     string   `json:"amount"`
	Profit     string   `json:"profit"`
	Score      string   `json:"score"`
	Risk       float64  `json:"risk"`
	Confidence float64  `json:"confidence"`
	Route      []string `json:"route"`
}

type snapshotMessage struct {
	Timestamp     int64                `json:"timestamp"`
	Opportunities []opportunityMessage `json:"opportunities"`
}

func newSnapshotMessage(s *oppDomain.Snapshot) snapshotMessage {
	msg := snapshotMessage{Opportunities: make([]opportunityMessage, 0, s.Len())}
	if s == nil {
		return msg
	}
	msg.Timestamp = s.Timestamp.UnixMilli()
	for _, o := range s.Opportunities {
		kind := ""
		if o.Kind != nil {
			kind = o.Kind.Name()
		}
		msg.Opportunities = append(msg.Opportunities, opportunityMessage{
			ID:         o.ID,
			Provider:   o.Provider,
			Kind:       kind,
			Token:      o.LoanToken,
			Amount:     o.LoanAmount.String(),
			Profit:     o.ProfitPotential().String(),
			Score:      o.Score.String(),
			Risk:       o.Risk.Overall(),
			Confidence: o.Confidence,
			Route:      o.Route,
		})
	}
	return msg
}
