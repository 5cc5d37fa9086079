package domain

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBundle(t *testing.T) {
	b := NewBundle(common.HexToAddress("0x01"), common.HexToAddress("0x02"), "USDC",
		decimal.NewFromInt(2000), decimal.RequireFromString("1.8"), []string{"USDC", "SOL", "USDC"})

	require.Len(t, b.Steps, 3)
	assert.Equal(t, []StepKind{StepBorrow, StepSwap, StepRepay},
		[]StepKind{b.Steps[0].Kind, b.Steps[1].Kind, b.Steps[2].Kind})
	assert.Equal(t, "2001.8", b.Steps[2].Amount.String())
	assert.Equal(t, []string{"USDC", "SOL", "USDC"}, b.Steps[1].Route)

	lines := b.Describe()
	require.Len(t, lines, 3)
	assert.Equal(t, "step 1 borrow 2000 USDC", lines[0])
	assert.Contains(t, lines[1], "via [USDC SOL USDC]")
}

func TestNewBundle_DefaultRoute(t *testing.T) {
	b := NewBundle(common.Address{}, common.Address{}, "SOL", decimal.NewFromInt(1), decimal.Zero, nil)
	assert.Equal(t, []string{"SOL", "SOL"}, b.Steps[1].Route)
}

func TestCommunityStats_SuccessRate(t *testing.T) {
	assert.Equal(t, 0.0, CommunityStats{}.SuccessRate())
	assert.Equal(t, 0.75, CommunityStats{TotalExecutions: 4, SuccessfulExecutions: 3}.SuccessRate())
}
