package app

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fd1az/flashloan-engine/business/lending/domain"
)

func TestSelector_PicksHighestRatedEligible(t *testing.T) {
	r, err := NewRegistry([]*domain.Provider{
		provider("A", 4.5, "1000000", true, "X"),
		provider("B", 4.2, "500000", true, "Y"),
		provider("C", 4.8, "250000", true, "X"),
	})
	require.NoError(t, err)

	p, ok := NewSelector(r).Select("X", decimal.NewFromInt(2000))
	require.True(t, ok)
	assert.Equal(t, "C", p.Name)
}

func TestSelector_AmountAboveEveryMax(t *testing.T) {
	r, err := NewRegistry([]*domain.Provider{
		provider("A", 4.5, "1000", true, "X"),
	})
	require.NoError(t, err)

	p, ok := NewSelector(r).Select("X", decimal.NewFromInt(1001))
	assert.False(t, ok)
	assert.Nil(t, p)

	_, ok = NewSelector(r).Select("Z", decimal.NewFromInt(1))
	assert.False(t, ok)
}

func TestSelector_TieBreaks(t *testing.T) {
	cheap := provider("zeta", 4.0, "1000", true, "X")
	cheap.FeeRate = decimal.RequireFromString("0.0005")
	pricey := provider("alpha", 4.0, "1000", true, "X")
	beta := provider("beta", 4.0, "1000", true, "X")
	beta.FeeRate = pricey.FeeRate

	r, err := NewRegistry([]*domain.Provider{pricey, beta, cheap})
	require.NoError(t, err)

	p, ok := NewSelector(r).Select("X", decimal.NewFromInt(10))
	require.True(t, ok)
	assert.Equal(t, "zeta", p.Name, "lower fee wins on equal rating")

	r, err = NewRegistry([]*domain.Provider{beta, pricey})
	require.NoError(t, err)
	p, _ = NewSelector(r).Select("X", decimal.NewFromInt(10))
	assert.Equal(t, "alpha", p.Name, "name breaks remaining ties")
}

func TestSelector_ResultSatisfiesConstraints(t *testing.T) {
	r, err := NewRegistry([]*domain.Provider{
		provider("a", 5.0, "10", false, "X"),
		provider("b", 4.9, "100", true, "Y"),
		provider("c", 4.0, "100", true, "X"),
	})
	require.NoError(t, err)

	amount := decimal.NewFromInt(50)
	p, ok := NewSelector(r).Select("X", amount)
	require.True(t, ok)
	assert.True(t, p.Approved)
	assert.True(t, p.Supports("X"))
	assert.True(t, amount.LessThanOrEqual(p.MaxLoan))
	assert.Equal(t, "c", p.Name)
}
