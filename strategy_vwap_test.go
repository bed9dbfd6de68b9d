package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewVWAPReversionStrategyRejectsOutOfRangeParameters(t *testing.T) {
	base := VWAPReversionStrategy{
		Window: 20, ZEntry: 1.5, ZExit: 0.5,
		StopLossPct: 0.004, TakeProfitPct: 0.006, QtyFrac: 1,
	}
	cases := map[string]func(VWAPReversionStrategy) VWAPReversionStrategy{
		"window too small":     func(p VWAPReversionStrategy) VWAPReversionStrategy { p.Window = 1; return p },
		"z_entry zero":         func(p VWAPReversionStrategy) VWAPReversionStrategy { p.ZEntry = 0; return p },
		"z_exit exceeds entry": func(p VWAPReversionStrategy) VWAPReversionStrategy { p.ZExit = p.ZEntry * 2; return p },
		"stop loss zero":       func(p VWAPReversionStrategy) VWAPReversionStrategy { p.StopLossPct = 0; return p },
		"take profit zero":     func(p VWAPReversionStrategy) VWAPReversionStrategy { p.TakeProfitPct = 0; return p },
		"qty frac out of range": func(p VWAPReversionStrategy) VWAPReversionStrategy { p.QtyFrac = 0; return p },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewVWAPReversionStrategy(mutate(base))
			assert.ErrorIs(t, err, ErrConfiguration)
		})
	}
}

func TestNewVWAPReversionStrategyAcceptsValidParametersAndDefaultsMaxHoldBars(t *testing.T) {
	s, err := NewVWAPReversionStrategy(VWAPReversionStrategy{
		Window: 20, ZEntry: 1.5, ZExit: 0.5,
		StopLossPct: 0.004, TakeProfitPct: 0.006, QtyFrac: 1,
	})
	require.NoError(t, err)
	assert.Equal(t, 9999, s.MaxHoldBars, "zero MaxHoldBars falls back to an effectively unlimited hold")
}

func TestVWAPReversionWaitsForAFullWindowBeforeActing(t *testing.T) {
	s, err := NewVWAPReversionStrategy(VWAPReversionStrategy{
		Window: 5, ZEntry: 1.5, ZExit: 0.5,
		StopLossPct: 0.2, TakeProfitPct: 0.2, QtyFrac: 1, OrderNotional: 100,
	})
	require.NoError(t, err)
	broker := NewPaperBroker(10000, CostModel{})
	executor := NewFireAndForgetExecutor(broker)

	for i := 0; i < 4; i++ {
		decisions := s.OnBar(broker, executor, "BTC-USD", Bar{Close: 100, Volume: 1, EndTime: int64(i * 100)})
		assert.Empty(t, decisions, "strategy must stay silent until it has Window samples")
	}
}

// Five identical warm-up bars establish a zero-variance window (no z-score
// is defined yet), then a sharp dip pushes the z-score of the new price
// past -z_entry and triggers a long entry; a mild bounce back toward the
// window mean then closes it out on reversion.
func TestVWAPReversionEntersOnDipAndExitsOnReversion(t *testing.T) {
	s, err := NewVWAPReversionStrategy(VWAPReversionStrategy{
		Window: 5, ZEntry: 1.5, ZExit: 0.5,
		StopLossPct: 0.2, TakeProfitPct: 0.2, QtyFrac: 1, OrderNotional: 100, CooldownBars: 0,
	})
	require.NoError(t, err)
	broker := NewPaperBroker(10000, CostModel{})
	executor := NewFireAndForgetExecutor(broker)
	symbol := "BTC-USD"

	ts := int64(0)
	for i := 0; i < 5; i++ {
		broker.Mark(symbol, 100, ts)
		decisions := s.OnBar(broker, executor, symbol, Bar{Close: 100, Volume: 1, EndTime: ts})
		assert.Empty(t, decisions, "a zero-variance window has no z-score, so no entry can fire yet")
		ts += 100
	}

	// Window becomes [100,100,100,100,97]: mean 99.4, std 1.2, z(97) = -2.0.
	broker.Mark(symbol, 97, ts)
	decisions := s.OnBar(broker, executor, symbol, Bar{Close: 97, Volume: 1, EndTime: ts})
	require.NotEmpty(t, decisions, "a z-score beyond -z_entry should trigger a BUY")
	assert.Equal(t, "BUY", decisions[0].Action)
	assert.True(t, s.inPosition)
	ts += 100

	// Window becomes [100,100,100,97,99]: mean 99.2, std ~1.166, z(99) ~ -0.17.
	broker.Mark(symbol, 99, ts)
	decisions = s.OnBar(broker, executor, symbol, Bar{Close: 99, Volume: 1, EndTime: ts})
	require.NotEmpty(t, decisions, "reversion back inside the z_exit band should close the position")
	assert.Equal(t, "SELL", decisions[0].Action)
	assert.Equal(t, "z_exit", decisions[0].Reason)
	assert.False(t, s.inPosition)
}
