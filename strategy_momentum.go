// FILE: strategy_momentum.go
// Package main – Momentum strategy: volatility/trend-strength indicators
// feeding an ordered exit-then-entry evaluation, with dynamic stop/target/
// cooldown modifiers and construction-time parameter validation.
//
// The profitability pre-trade gate can be turned off outright via the
// named DisableEdgeCheck flag — an explicit, auditable opt-in rather than
// a silently hard-wired bypass.
package main

import (
	"fmt"
	"math"
)

const bpsDivisor = 10000.0

// MomentumStrategy implements a momentum entry/exit ladder with optional
// dynamic (volatility-scaled) stop-loss, take-profit, entry threshold,
// cooldown, and minimum-profit modifiers.
type MomentumStrategy struct {
	// Construction-time parameters.
	LookbackTicks     int
	EntryThreshold    float64
	ExitThreshold     float64
	QtyFrac           float64
	OrderNotional     float64
	StopLossPct       float64
	TakeProfitPct     float64
	VolatilityWindow  int
	MinVolatility     float64
	MaxVolatility     float64
	CooldownBars      int
	MaxHoldBars       int
	FlatCooldown      int
	TrendConfirmation bool
	MinProfitBps      float64
	UseTrendStrength  bool

	UseDynamicSL        bool
	UseDynamicTP        bool
	UseDynamicEntry     bool
	UseDynamicCooldown  bool
	UseDynamicMinProfit bool

	// DisableEdgeCheck, when true, skips the edge-vs-cost pre-trade check
	// entirely instead of silently always passing it. Default: false (the
	// edge-vs-cost check runs).
	DisableEdgeCheck bool
	MinEdgeBps       float64
	Cost             CostModel

	Debug bool

	// Rolling state.
	prices    []float64
	momentums []float64

	inPosition    bool
	entryPrice    float64
	barsSinceExit int
	barsInPos     int
	lastTradeBps  float64
	flatCooldown  int
}

// NewMomentumStrategy validates parameters at construction, so an
// incoherent configuration fails immediately rather than misbehaving
// mid-session.
func NewMomentumStrategy(p MomentumStrategy) (*MomentumStrategy, error) {
	if p.LookbackTicks < 10 || p.LookbackTicks > 200 {
		return nil, fmt.Errorf("%w: lookback_ticks must be in [10,200], got %d", ErrConfiguration, p.LookbackTicks)
	}
	if p.EntryThreshold <= 0 || p.EntryThreshold > 0.01 {
		return nil, fmt.Errorf("%w: entry_threshold must be in (0,0.01], got %v", ErrConfiguration, p.EntryThreshold)
	}
	if p.ExitThreshold <= 0 || p.ExitThreshold > p.EntryThreshold {
		return nil, fmt.Errorf("%w: exit_threshold must be in (0, entry_threshold], got %v", ErrConfiguration, p.ExitThreshold)
	}
	if p.StopLossPct <= 0 || p.StopLossPct > 0.1 {
		return nil, fmt.Errorf("%w: stop_loss_pct must be in (0,0.1], got %v", ErrConfiguration, p.StopLossPct)
	}
	if p.TakeProfitPct <= 0 || p.TakeProfitPct < p.StopLossPct || p.TakeProfitPct > 0.2 {
		return nil, fmt.Errorf("%w: take_profit_pct must be in [stop_loss_pct,0.2], got %v", ErrConfiguration, p.TakeProfitPct)
	}
	if p.MinVolatility >= p.MaxVolatility {
		return nil, fmt.Errorf("%w: min_volatility must be < max_volatility", ErrConfiguration)
	}
	if p.MinProfitBps < 20 || p.MinProfitBps > 200 {
		return nil, fmt.Errorf("%w: min_profit_bps must be in [20,200], got %v", ErrConfiguration, p.MinProfitBps)
	}
	if p.QtyFrac <= 0 || p.QtyFrac > 1 {
		return nil, fmt.Errorf("%w: qty_frac must be in (0,1], got %v", ErrConfiguration, p.QtyFrac)
	}
	if p.VolatilityWindow < 2 {
		p.VolatilityWindow = 2
	}
	s := p
	return &s, nil
}

func init() {
	RegisterStrategy("momentum", func(params map[string]any) (Strategy, error) {
		return NewMomentumStrategy(MomentumStrategy{
			LookbackTicks:     paramInt(params, "lookback_ticks", 50),
			EntryThreshold:    paramFloat(params, "entry_threshold", 0.0011),
			ExitThreshold:     paramFloat(params, "exit_threshold", 0.0008),
			QtyFrac:           paramFloat(params, "qty_frac", 1.0),
			OrderNotional:     paramFloat(params, "order_notional", 5.0),
			StopLossPct:       paramFloat(params, "stop_loss_pct", 0.008),
			TakeProfitPct:     paramFloat(params, "take_profit_pct", 0.015),
			VolatilityWindow:  paramInt(params, "volatility_window", 50),
			MinVolatility:     paramFloat(params, "min_volatility", 0.0003),
			MaxVolatility:     paramFloat(params, "max_volatility", 0.015),
			CooldownBars:      paramInt(params, "cooldown_bars", 3),
			MaxHoldBars:       paramInt(params, "max_hold_bars", 9999),
			FlatCooldown:      paramInt(params, "flat_cooldown", 0),
			TrendConfirmation: paramBool(params, "trend_confirmation", true),
			MinProfitBps:      paramFloat(params, "min_profit_bps", 60.0),
			UseTrendStrength:  paramBool(params, "use_trend_strength", false),

			UseDynamicSL:        paramBool(params, "use_dynamic_sl", false),
			UseDynamicTP:        paramBool(params, "use_dynamic_tp", false),
			UseDynamicEntry:     paramBool(params, "use_dynamic_entry", false),
			UseDynamicCooldown:  paramBool(params, "use_dynamic_cooldown", false),
			UseDynamicMinProfit: paramBool(params, "use_dynamic_min_profit", false),

			DisableEdgeCheck: paramBool(params, "disable_edge_check", false),
			MinEdgeBps:       paramFloat(params, "min_edge_bps", 0.0),
			Debug:            paramBool(params, "debug", false),
		})
	})
}

func (s *MomentumStrategy) Name() string { return "momentum" }

func sma(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	n := len(xs)
	if n < 2 {
		return 0
	}
	m := sma(xs)
	var acc float64
	for _, x := range xs {
		d := x - m
		acc += d * d
	}
	return math.Sqrt(acc / float64(n-1))
}

// calculateVolatility is the sample stddev of returns over VolatilityWindow,
// grounded on strategy.py's _calculate_volatility.
func (s *MomentumStrategy) calculateVolatility() float64 {
	n := len(s.prices)
	if n < 2 {
		return 0
	}
	start := n - s.VolatilityWindow - 1
	if start < 0 {
		start = 0
	}
	window := s.prices[start:]
	if len(window) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(window)-1)
	for i := 1; i < len(window); i++ {
		prev := window[i-1]
		if prev == 0 {
			continue
		}
		rets = append(rets, (window[i]-prev)/prev)
	}
	return stddev(rets)
}

// trendStrength is the fraction of increasing momentum over the last three
// samples, grounded on strategy.py's _calculate_trend_strength.
func (s *MomentumStrategy) trendStrength() float64 {
	n := len(s.momentums)
	if n < 4 {
		return 0
	}
	last4 := s.momentums[n-4:]
	increases := 0
	for i := 1; i < len(last4); i++ {
		if last4[i] > last4[i-1] {
			increases++
		}
	}
	return float64(increases) / float64(len(last4)-1)
}

// checkTrendConfirmation compares a short SMA against a long SMA (long =
// 2*lookback) for sign agreement, grounded on
// strategy.py's _check_trend_confirmation.
func (s *MomentumStrategy) checkTrendConfirmation() bool {
	n := len(s.prices)
	longN := 2 * s.LookbackTicks
	if n < longN {
		return true // not enough history yet; don't block entries on warmup
	}
	shortSMA := sma(s.prices[n-s.LookbackTicks:])
	longSMA := sma(s.prices[n-longN:])
	last := s.prices[n-1]
	shortUp := last > shortSMA
	longUp := shortSMA > longSMA
	return shortUp == longUp
}

func (s *MomentumStrategy) dynamicStopLoss(vol float64) float64 {
	if !s.UseDynamicSL {
		return s.StopLossPct
	}
	factor := 1.0 + (vol-s.MinVolatility)/(s.MaxVolatility-s.MinVolatility)
	return s.StopLossPct * factor
}

func (s *MomentumStrategy) dynamicTakeProfit(vol float64) float64 {
	if !s.UseDynamicTP {
		return s.TakeProfitPct
	}
	factor := 1.0 + (vol-s.MinVolatility)/(s.MaxVolatility-s.MinVolatility)
	return s.TakeProfitPct * factor
}

func (s *MomentumStrategy) dynamicEntryThreshold(vol float64) float64 {
	if !s.UseDynamicEntry {
		return s.EntryThreshold
	}
	if vol > s.MaxVolatility*0.8 {
		return s.EntryThreshold * 1.5
	}
	return s.EntryThreshold
}

func (s *MomentumStrategy) dynamicCooldown() int {
	if !s.UseDynamicCooldown {
		return s.CooldownBars
	}
	if s.lastTradeBps > 0 {
		c := s.CooldownBars / 2
		if c < 1 {
			c = 1
		}
		return c
	}
	return s.CooldownBars
}

func (s *MomentumStrategy) dynamicMinProfitBps(orderNotional float64) float64 {
	if !s.UseDynamicMinProfit {
		return s.MinProfitBps
	}
	costBps := s.Cost.TakerFeeBps*2 + s.Cost.SlipBps
	floor := costBps * 1.5
	if floor > s.MinProfitBps {
		return floor
	}
	return s.MinProfitBps
}

func profitBps(entry, price float64, side Side) float64 {
	if entry == 0 {
		return 0
	}
	delta := (price - entry) / entry
	if side == Sell {
		delta = -delta
	}
	return delta * bpsDivisor
}

// isProfitable is the edge-vs-cost pre-trade gate. When DisableEdgeCheck is
// set, it always returns true — an explicit, named opt-in rather than
// silent dead code.
func (s *MomentumStrategy) isProfitable(side Side, price, qty, mom float64) bool {
	if s.DisableEdgeCheck {
		return true
	}
	if qty <= 0 || price <= 0 {
		return false
	}
	notional := price * qty
	edgeAbs := math.Abs(mom) * notional
	role := RoleTaker
	eff := s.Cost.EffectivePriceForNotional(price, side, role, notional)
	fee := s.Cost.FeeAmount(notional, role)
	slipAbs := math.Abs(eff-price) * qty
	costAbs := fee + slipAbs
	if s.MinEdgeBps > 0 && notional > 0 {
		edgeBps := (edgeAbs / notional) * bpsDivisor
		if edgeBps < s.MinEdgeBps {
			return false
		}
	}
	return edgeAbs > costAbs
}

// OnBar evaluates exits before entries on every bar close, since a position
// can't be both closed and re-opened in the same bar.
func (s *MomentumStrategy) OnBar(broker Broker, executor Executor, symbol string, bar Bar) []DecisionRow {
	price := bar.Close
	s.prices = append(s.prices, price)
	if len(s.prices) > 2*s.LookbackTicks+5 {
		s.prices = s.prices[len(s.prices)-(2*s.LookbackTicks+5):]
	}

	if len(s.prices) < s.LookbackTicks {
		return nil
	}

	window := s.prices[len(s.prices)-s.LookbackTicks:]
	mean := sma(window)
	if mean <= 0 {
		return nil
	}
	mom := (price - mean) / mean
	s.momentums = append(s.momentums, mom)
	if len(s.momentums) > 8 {
		s.momentums = s.momentums[len(s.momentums)-8:]
	}

	vol := s.calculateVolatility()
	var decisions []DecisionRow

	if s.flatCooldown > 0 {
		s.flatCooldown--
	}

	if s.inPosition {
		s.barsInPos++
		netProfitBps := profitBps(s.entryPrice, price, Buy)

		// 1) Max-hold timeout.
		if s.barsInPos >= s.MaxHoldBars && netProfitBps > 30 {
			decisions = append(decisions, s.exit(broker, executor, symbol, bar, price, "max_hold"))
			return decisions
		}

		// 2) Stop-loss, gated by the +30bps protection.
		slPct := s.dynamicStopLoss(vol)
		loss := (price - s.entryPrice) / s.entryPrice
		if loss < -slPct {
			if netProfitBps > 30 {
				decisions = append(decisions, s.exit(broker, executor, symbol, bar, price, "stop_loss"))
				return decisions
			}
			// else: hold, protected.
		}

		// 3) Take-profit, gated by min_profit_bps.
		tpPct := s.dynamicTakeProfit(vol)
		gain := (price - s.entryPrice) / s.entryPrice
		minProfit := s.dynamicMinProfitBps(s.OrderNotional)
		if gain > tpPct && netProfitBps >= minProfit {
			decisions = append(decisions, s.exit(broker, executor, symbol, bar, price, "take_profit"))
			return decisions
		}

		// 4) Momentum reversal, gated by min_profit_bps and non-negative
		// net-after-costs.
		if mom < -s.ExitThreshold && netProfitBps >= minProfit {
			qty := broker.Position(symbol).Qty
			if s.isProfitable(Sell, price, qty, -mom) {
				decisions = append(decisions, s.exit(broker, executor, symbol, bar, price, "momentum_reversal"))
				return decisions
			}
		}
		return decisions
	}

	// Entry predicate (flat -> long): all conditions below must hold.
	if s.flatCooldown > 0 {
		return decisions
	}
	if s.barsSinceExit < s.dynamicCooldown() {
		s.barsSinceExit++
		return decisions
	}
	if vol < s.MinVolatility || vol > s.MaxVolatility {
		return decisions
	}
	entryThresh := s.dynamicEntryThreshold(vol)
	if mom <= entryThresh {
		return decisions
	}
	if s.TrendConfirmation && !s.checkTrendConfirmation() {
		return decisions
	}
	if s.UseTrendStrength && s.trendStrength() < 0.6 {
		return decisions
	}

	account := broker.Account()
	notional := s.OrderNotional
	if notional <= 0 {
		notional = account.Cash * s.QtyFrac
	}
	if notional > account.Cash*s.QtyFrac {
		notional = account.Cash * s.QtyFrac
	}
	qty := 0.0
	if price > 0 {
		qty = notional / price
	}
	if qty <= 0 {
		return decisions
	}
	if !s.isProfitable(Buy, price, qty, mom) {
		return decisions
	}

	order, err := executor.MarketBuy(symbol, qty)
	if err != nil {
		return decisions
	}
	s.inPosition = true
	s.entryPrice = price
	s.barsInPos = 0
	decisions = append(decisions, DecisionRow{
		TimestampMs: bar.EndTime,
		Action:      "BUY",
		Reason:      "momentum_entry",
		Qty:         order.FilledQty,
		Price:       price,
	})
	return decisions
}

func (s *MomentumStrategy) exit(broker Broker, executor Executor, symbol string, bar Bar, price float64, reason string) DecisionRow {
	qty := broker.Position(symbol).Qty
	order, err := executor.MarketSell(symbol, qty)
	filled := qty
	if err == nil {
		filled = order.FilledQty
	}
	s.lastTradeBps = profitBps(s.entryPrice, price, Buy)
	s.inPosition = false
	s.entryPrice = 0
	s.barsSinceExit = 0
	s.barsInPos = 0
	s.flatCooldown = s.FlatCooldown
	return DecisionRow{
		TimestampMs: bar.EndTime,
		Action:      "SELL",
		Reason:      reason,
		Qty:         filled,
		Price:       price,
	}
}
