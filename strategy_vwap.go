// FILE: strategy_vwap.go
// Package main – VWAPReversionStrategy: fades transient deviations of price
// from a rolling volume-weighted average, using z-score bands rather than a
// flat percent band so the entry/exit thresholds scale with how noisy the
// window currently is.
package main

import (
	"fmt"
	"math"
)

// VWAPReversionStrategy opens a position when price strays z_entry standard
// deviations from the rolling VWAP and closes it either on reversion back
// inside the z_exit band or on a stop-loss/take-profit/max-hold guard.
type VWAPReversionStrategy struct {
	Window        int
	ZEntry        float64
	ZExit         float64
	TakeProfitPct float64
	StopLossPct   float64
	QtyFrac       float64
	OrderNotional float64
	CooldownBars  int
	MaxHoldBars   int

	prices, vols             []float64
	sumPV, sumV, sumP, sumP2 float64

	inPosition    bool
	side          Side
	entryPrice    float64
	barsSinceExit int
	barsInPos     int
}

func NewVWAPReversionStrategy(p VWAPReversionStrategy) (*VWAPReversionStrategy, error) {
	if p.Window < 5 || p.Window > 500 {
		return nil, fmt.Errorf("%w: window must be in [5,500], got %d", ErrConfiguration, p.Window)
	}
	if p.ZEntry <= 0 {
		return nil, fmt.Errorf("%w: z_entry must be > 0, got %v", ErrConfiguration, p.ZEntry)
	}
	if p.ZExit < 0 || p.ZExit >= p.ZEntry {
		return nil, fmt.Errorf("%w: z_exit must be in [0, z_entry), got %v", ErrConfiguration, p.ZExit)
	}
	if p.StopLossPct <= 0 || p.TakeProfitPct <= 0 {
		return nil, fmt.Errorf("%w: stop_loss_pct and take_profit_pct must be > 0", ErrConfiguration)
	}
	if p.QtyFrac <= 0 || p.QtyFrac > 1 {
		return nil, fmt.Errorf("%w: qty_frac must be in (0,1], got %v", ErrConfiguration, p.QtyFrac)
	}
	if p.MaxHoldBars <= 0 {
		p.MaxHoldBars = 9999
	}
	s := p
	return &s, nil
}

func init() {
	RegisterStrategy("vwap_reversion", func(params map[string]any) (Strategy, error) {
		return NewVWAPReversionStrategy(VWAPReversionStrategy{
			Window:        paramInt(params, "vwap_window", 50),
			ZEntry:        paramFloat(params, "z_entry", 1.5),
			ZExit:         paramFloat(params, "z_exit", 0.5),
			TakeProfitPct: paramFloat(params, "take_profit_pct", 0.006),
			StopLossPct:   paramFloat(params, "stop_loss_pct", 0.004),
			QtyFrac:       paramFloat(params, "qty_frac", 1.0),
			OrderNotional: paramFloat(params, "order_notional", 5.0),
			CooldownBars:  paramInt(params, "cooldown_bars", 3),
			MaxHoldBars:   paramInt(params, "max_hold_bars", 200),
		})
	})
}

func (s *VWAPReversionStrategy) Name() string { return "vwap_reversion" }

// push folds price/vol into the rolling window, subtracting the evicted
// sample's contribution rather than resumming the whole window each bar.
func (s *VWAPReversionStrategy) push(price, vol float64) {
	if len(s.prices) == s.Window {
		oldP, oldV := s.prices[0], s.vols[0]
		s.sumPV -= oldP * oldV
		s.sumV -= oldV
		s.sumP -= oldP
		s.sumP2 -= oldP * oldP
		s.prices = s.prices[1:]
		s.vols = s.vols[1:]
	}
	s.prices = append(s.prices, price)
	s.vols = append(s.vols, vol)
	s.sumPV += price * vol
	s.sumV += vol
	s.sumP += price
	s.sumP2 += price * price
}

func (s *VWAPReversionStrategy) vwap() (float64, bool) {
	if s.sumV <= 1e-12 {
		return 0, false
	}
	return s.sumPV / s.sumV, true
}

func (s *VWAPReversionStrategy) meanStd() (mean, std float64, ok bool) {
	m := len(s.prices)
	if m < 2 {
		return 0, 0, false
	}
	mean = s.sumP / float64(m)
	variance := s.sumP2/float64(m) - mean*mean
	if variance < 0 {
		variance = 0
	}
	std = math.Sqrt(variance)
	if std <= 0 {
		return mean, 0, false
	}
	return mean, std, true
}

func (s *VWAPReversionStrategy) zscore(price float64) (float64, bool) {
	mean, std, ok := s.meanStd()
	if !ok {
		return 0, false
	}
	return (price - mean) / std, true
}

func (s *VWAPReversionStrategy) OnBar(broker Broker, executor Executor, symbol string, bar Bar) []DecisionRow {
	vol := bar.Volume
	if vol <= 0 {
		vol = 1
	}
	s.push(bar.Close, vol)
	if len(s.prices) < s.Window {
		return nil
	}

	var out []DecisionRow

	if s.inPosition {
		s.barsInPos++
		pnl := (bar.Close - s.entryPrice) / s.entryPrice
		if s.side == Sell {
			pnl = -pnl
		}

		var exit bool
		var reason string
		if pnl <= -s.StopLossPct {
			exit, reason = true, "stop_loss"
		} else if pnl >= s.TakeProfitPct {
			exit, reason = true, "take_profit"
		} else if z, ok := s.zscore(bar.Close); ok && math.Abs(z) <= s.ZExit {
			exit, reason = true, "z_exit"
		}
		if !exit && s.barsInPos >= s.MaxHoldBars {
			exit, reason = true, "max_hold"
		}
		if exit {
			qty := broker.Position(symbol).Qty
			if qty < 0 {
				qty = -qty
			}
			var order *Order
			var err error
			if s.side == Buy {
				order, err = executor.MarketSell(symbol, qty)
			} else {
				order, err = executor.MarketBuy(symbol, qty)
			}
			filled := qty
			if err == nil {
				filled = order.FilledQty
			}
			s.inPosition = false
			s.barsSinceExit = 0
			out = append(out, DecisionRow{TimestampMs: bar.EndTime, Action: string(oppositeSide(s.side)), Reason: reason, Qty: filled, Price: bar.Close})
		}
		return out
	}

	if s.barsSinceExit < s.CooldownBars {
		s.barsSinceExit++
		return nil
	}

	z, ok := s.zscore(bar.Close)
	if !ok {
		return nil
	}
	if _, ok := s.vwap(); !ok {
		return nil
	}

	qty := (s.OrderNotional * s.QtyFrac) / bar.Close
	if qty <= 0 {
		return nil
	}

	switch {
	case z <= -s.ZEntry:
		order, err := executor.MarketBuy(symbol, qty)
		if err != nil {
			return nil
		}
		s.inPosition, s.side, s.entryPrice, s.barsInPos = true, Buy, bar.Close, 0
		out = append(out, DecisionRow{TimestampMs: bar.EndTime, Action: "BUY", Reason: "z_entry_long", Qty: order.FilledQty, Price: bar.Close})
	case z >= s.ZEntry:
		order, err := executor.MarketSell(symbol, qty)
		if err != nil {
			return nil
		}
		s.inPosition, s.side, s.entryPrice, s.barsInPos = true, Sell, bar.Close, 0
		out = append(out, DecisionRow{TimestampMs: bar.EndTime, Action: "SELL", Reason: "z_entry_short", Qty: order.FilledQty, Price: bar.Close})
	}
	return out
}

func oppositeSide(s Side) Side {
	if s == Buy {
		return Sell
	}
	return Buy
}
