package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMomentumStrategyRejectsOutOfRangeParameters(t *testing.T) {
	base := MomentumStrategy{
		LookbackTicks: 20, EntryThreshold: 0.002, ExitThreshold: 0.001,
		StopLossPct: 0.01, TakeProfitPct: 0.02, MinVolatility: 0.0001,
		MaxVolatility: 0.01, MinProfitBps: 60, QtyFrac: 1,
	}

	cases := map[string]func(MomentumStrategy) MomentumStrategy{
		"lookback too small": func(p MomentumStrategy) MomentumStrategy { p.LookbackTicks = 1; return p },
		"entry threshold zero": func(p MomentumStrategy) MomentumStrategy { p.EntryThreshold = 0; return p },
		"exit exceeds entry": func(p MomentumStrategy) MomentumStrategy { p.ExitThreshold = p.EntryThreshold * 2; return p },
		"take profit below stop loss": func(p MomentumStrategy) MomentumStrategy { p.TakeProfitPct = p.StopLossPct / 2; return p },
		"volatility band inverted": func(p MomentumStrategy) MomentumStrategy { p.MinVolatility = p.MaxVolatility; return p },
		"min profit bps too low": func(p MomentumStrategy) MomentumStrategy { p.MinProfitBps = 1; return p },
		"qty frac out of range": func(p MomentumStrategy) MomentumStrategy { p.QtyFrac = 0; return p },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewMomentumStrategy(mutate(base))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNewMomentumStrategyAcceptsValidParameters(t *testing.T) {
	_, err := NewMomentumStrategy(MomentumStrategy{
		LookbackTicks: 20, EntryThreshold: 0.002, ExitThreshold: 0.001,
		StopLossPct: 0.01, TakeProfitPct: 0.02, MinVolatility: 0.0001,
		MaxVolatility: 0.01, MinProfitBps: 60, QtyFrac: 1,
	})
	require.NoError(t, err)
}

func TestDisableEdgeCheckAlwaysReportsProfitable(t *testing.T) {
	s := &MomentumStrategy{DisableEdgeCheck: true}
	assert.True(t, s.isProfitable(Buy, 0, 0, 0), "disabled edge check bypasses even the qty<=0 guard")
}

func TestIsProfitableRejectsEdgeSmallerThanCost(t *testing.T) {
	s := &MomentumStrategy{Cost: CostModel{TakerFeeBps: 50, SlipBps: 50}}
	assert.False(t, s.isProfitable(Buy, 100, 1, 0.0001), "a tiny momentum edge can't cover 50+50bps of cost")
}

func TestProfitBpsFlipsSignForSellSide(t *testing.T) {
	assert.InDelta(t, 100.0, profitBps(100, 101, Buy), 1e-9)
	assert.InDelta(t, -100.0, profitBps(100, 101, Sell), 1e-9)
}

// enters a long position once enough bars establish an upward momentum
// signal, then exits on take-profit once the gain clears both the
// take-profit threshold and the minimum net-profit gate.
func TestMomentumStrategyEntersAndExitsOnTakeProfit(t *testing.T) {
	s, err := NewMomentumStrategy(MomentumStrategy{
		LookbackTicks: 10, EntryThreshold: 0.001, ExitThreshold: 0.0005,
		StopLossPct: 0.05, TakeProfitPct: 0.02, MinVolatility: 0, MaxVolatility: 1,
		MinProfitBps: 20, QtyFrac: 1, OrderNotional: 100, MaxHoldBars: 9999,
		TrendConfirmation: false, DisableEdgeCheck: true,
	})
	require.NoError(t, err)

	broker := NewPaperBroker(10000, CostModel{})
	executor := NewFireAndForgetExecutor(broker)
	symbol := "BTC-USD"

	price := 100.0
	ts := int64(0)
	for i := 0; i < 10; i++ {
		broker.Mark(symbol, price, ts)
		s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
		ts += 100
	}

	// Push price up sharply to trigger the momentum entry predicate.
	price = 103
	broker.Mark(symbol, price, ts)
	decisions := s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
	require.NotEmpty(t, decisions, "a strong upward move above entry_threshold should trigger a BUY")
	assert.Equal(t, "BUY", decisions[0].Action)
	assert.True(t, s.inPosition)

	// Rally further past the take-profit band; the position should close.
	ts += 100
	price = 110
	broker.Mark(symbol, price, ts)
	decisions = s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
	require.NotEmpty(t, decisions)
	assert.Equal(t, "SELL", decisions[0].Action)
	assert.Equal(t, "take_profit", decisions[0].Reason)
	assert.False(t, s.inPosition)
}

func TestMomentumStrategyStopLossIsGatedByTheNetProfitProtection(t *testing.T) {
	s, err := NewMomentumStrategy(MomentumStrategy{
		LookbackTicks: 10, EntryThreshold: 0.001, ExitThreshold: 0.0005,
		StopLossPct: 0.01, TakeProfitPct: 0.05, MinVolatility: 0, MaxVolatility: 1,
		MinProfitBps: 20, QtyFrac: 1, OrderNotional: 100, MaxHoldBars: 9999,
		TrendConfirmation: false, DisableEdgeCheck: true,
	})
	require.NoError(t, err)

	broker := NewPaperBroker(10000, CostModel{})
	executor := NewFireAndForgetExecutor(broker)
	symbol := "BTC-USD"

	price := 100.0
	ts := int64(0)
	for i := 0; i < 10; i++ {
		broker.Mark(symbol, price, ts)
		s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
		ts += 100
	}
	price = 103
	ts += 100
	broker.Mark(symbol, price, ts)
	s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
	require.True(t, s.inPosition)

	// Drop below the stop-loss band while still net-negative: the +30bps
	// protection should keep the position open rather than crystallizing a
	// loss-making exit.
	ts += 100
	price = 99
	broker.Mark(symbol, price, ts)
	decisions := s.OnBar(broker, executor, symbol, Bar{Close: price, EndTime: ts})
	assert.Empty(t, decisions, "stop-loss exit is gated by netProfitBps > 30, which a loss can't satisfy")
	assert.True(t, s.inPosition)
}
