// FILE: tradesource.go
// Package main – Deterministic trade source simulator.
//
// Stands in for a live exchange feed so the engine is runnable end-to-end
// without credentials or a network connection: a seeded random walk emits
// {t, price, qty, is_buyer_maker} trades as a pull-style iterator fed into
// the engine loop, never emitting an out-of-order timestamp.
package main

import (
	"context"
	"math/rand"
)

// TradeSource yields Trades in non-decreasing timestamp order until the
// session ends or ctx is canceled.
type TradeSource interface {
	// Next blocks until a trade is available, the source is exhausted
	// (ok=false), or ctx is canceled (err=ctx.Err()).
	Next(ctx context.Context) (t Trade, ok bool, err error)
}

// SimulatedTradeSource generates a seeded geometric random walk of trades at
// a fixed tick interval, with a configurable buy/sell imbalance.
type SimulatedTradeSource struct {
	rng *rand.Rand

	price       float64
	tickSizeBps float64
	imbalance   float64 // in [0,1]; probability a trade is buyer-initiated
	qtyMean     float64
	qtyJitter   float64
	tickMs      int64

	ts       int64
	emitted  int64
	maxTicks int64 // 0 = unbounded (caller cancels via ctx or duration)
}

// SimulatedTradeSourceConfig configures SimulatedTradeSource.
type SimulatedTradeSourceConfig struct {
	Seed        int64
	StartPrice  float64
	TickSizeBps float64 // stddev of each step, in bps of price
	Imbalance   float64 // 0.5 = unbiased
	QtyMean     float64
	QtyJitter   float64
	TickMs      int64
	MaxTicks    int64
}

func NewSimulatedTradeSource(cfg SimulatedTradeSourceConfig) *SimulatedTradeSource {
	if cfg.TickSizeBps <= 0 {
		cfg.TickSizeBps = 5
	}
	if cfg.Imbalance == 0 {
		cfg.Imbalance = 0.5
	}
	if cfg.QtyMean <= 0 {
		cfg.QtyMean = 0.01
	}
	if cfg.QtyJitter <= 0 {
		cfg.QtyJitter = cfg.QtyMean * 0.5
	}
	if cfg.TickMs <= 0 {
		cfg.TickMs = 200
	}
	if cfg.StartPrice <= 0 {
		cfg.StartPrice = 100
	}
	return &SimulatedTradeSource{
		rng:         rand.New(rand.NewSource(cfg.Seed)),
		price:       cfg.StartPrice,
		tickSizeBps: cfg.TickSizeBps,
		imbalance:   cfg.Imbalance,
		qtyMean:     cfg.QtyMean,
		qtyJitter:   cfg.QtyJitter,
		tickMs:      cfg.TickMs,
		maxTicks:    cfg.MaxTicks,
	}
}

func (s *SimulatedTradeSource) Next(ctx context.Context) (Trade, bool, error) {
	select {
	case <-ctx.Done():
		return Trade{}, false, ctx.Err()
	default:
	}
	if s.maxTicks > 0 && s.emitted >= s.maxTicks {
		return Trade{}, false, nil
	}

	isBuy := s.rng.Float64() < s.imbalance
	stepBps := s.rng.NormFloat64() * s.tickSizeBps
	if !isBuy {
		stepBps = -stepBps
	}
	s.price *= 1 + stepBps/10000.0
	if s.price <= 0 {
		s.price = 0.01
	}

	qty := s.qtyMean + (s.rng.Float64()*2-1)*s.qtyJitter
	if qty <= 0 {
		qty = s.qtyMean
	}

	s.ts += s.tickMs
	s.emitted++

	return Trade{
		Price:        s.price,
		Qty:          qty,
		TimestampMs:  s.ts,
		IsBuyerMaker: !isBuy,
	}, true, nil
}
