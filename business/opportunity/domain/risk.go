package domain

// Component weights for the overall risk.
const (
	LiquidityWeight    = 1.0
	SlippageWeight     = 1.0
	ExecutionWeight    = 0.8
	FrontRunningWeight = 0.6
)

// RiskFactors scores the risks of an opportunity, each in [0,1].
type RiskFactors struct {
	Liquidity    float64
	Slippage     float64
	Execution    float64
	FrontRunning float64
	// MaxSlippage is the largest acceptable price movement, as a fraction.
	MaxSlippage float64
}

// Overall combines the weighted components as independent failure chances:
// 1 - Π(1 - wᵢ·cᵢ). The result is in [0,1], non-decreasing in every
// component and never below the largest weighted component.
func (r RiskFactors) Overall() float64 {
	survive := 1.0
	for _, wc := range [...]struct{ w, c float64 }{
		{LiquidityWeight, r.Liquidity},
		{SlippageWeight, r.Slippage},
		{ExecutionWeight, r.Execution},
		{FrontRunningWeight, r.FrontRunning},
	} {
		survive *= 1 - wc.w*clamp01(wc.c)
	}
	return clamp01(1 - survive)
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || v != v:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
