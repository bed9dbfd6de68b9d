package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEffectivePriceForNotionalPushesPriceAgainstTheTaker(t *testing.T) {
	c := CostModel{MakerFeeBps: 10, TakerFeeBps: 10, SlipBps: 5}

	buy := c.EffectivePriceForNotional(100, Buy, RoleTaker, 1000)
	sell := c.EffectivePriceForNotional(100, Sell, RoleTaker, 1000)

	assert.Greater(t, buy, 100.0, "a BUY should fill at or above the base price")
	assert.Less(t, sell, 100.0, "a SELL should fill at or below the base price")
	assert.InDelta(t, 100.05, buy, 1e-6)
	assert.InDelta(t, 99.95, sell, 1e-6)
}

func TestFeeAmountUsesMakerOrTakerRate(t *testing.T) {
	c := CostModel{MakerFeeBps: 5, TakerFeeBps: 10}
	assert.InDelta(t, 0.1, c.FeeAmount(1000, RoleTaker), 1e-9)
	assert.InDelta(t, 0.05, c.FeeAmount(1000, RoleMaker), 1e-9)
}

func TestFeeAmountUsesAbsoluteNotional(t *testing.T) {
	c := CostModel{TakerFeeBps: 10}
	assert.InDelta(t, 0.1, c.FeeAmount(-1000, RoleTaker), 1e-9)
}

func TestDynamicSlippageIsCappedAt80Bps(t *testing.T) {
	c := CostModel{DynamicBaseBps: 2, DynamicAlpha: 400, DynamicBeta: 4, Volatility: 10}
	rate := c.slipRateBps(1_000_000)
	assert.Equal(t, maxDynamicSlipBps, rate)
}

func TestDynamicSlippageNeverNegative(t *testing.T) {
	c := CostModel{DynamicBaseBps: -50}
	assert.Equal(t, 0.0, c.slipRateBps(0))
}

func TestConstantSlipOverridesDynamicFormula(t *testing.T) {
	c := CostModel{SlipBps: 3, DynamicBaseBps: 999}
	assert.Equal(t, 3.0, c.slipRateBps(1_000_000))
}
