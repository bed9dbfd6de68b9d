// FILE: executor.go
// Package main – Executor: turns strategy intents into broker orders.
//
// Two modes: fire-and-forget submits and returns (sufficient for
// backtests, where the engine's next Mark call drives matching);
// wait-for-terminal polls the broker until a terminal state or timeout,
// then cancels and reports the last snapshot.
package main

import (
	"context"
	"time"
)

// Executor is the interface strategies call to submit orders.
type Executor interface {
	MarketBuy(symbol string, qty float64) (*Order, error)
	MarketSell(symbol string, qty float64) (*Order, error)
	LimitBuy(symbol string, qty, price float64, tif TimeInForce) (*Order, error)
	LimitSell(symbol string, qty, price float64, tif TimeInForce) (*Order, error)
}

// FireAndForgetExecutor submits and returns immediately; used in backtests,
// where the engine's subsequent Mark calls perform matching.
type FireAndForgetExecutor struct {
	Broker Broker
}

func NewFireAndForgetExecutor(b Broker) *FireAndForgetExecutor {
	return &FireAndForgetExecutor{Broker: b}
}

func (e *FireAndForgetExecutor) MarketBuy(symbol string, qty float64) (*Order, error) {
	return e.Broker.Submit(context.Background(), OrderRequest{Symbol: symbol, Side: Buy, Type: Market, Qty: qty, TIF: GTC})
}

func (e *FireAndForgetExecutor) MarketSell(symbol string, qty float64) (*Order, error) {
	return e.Broker.Submit(context.Background(), OrderRequest{Symbol: symbol, Side: Sell, Type: Market, Qty: qty, TIF: GTC})
}

func (e *FireAndForgetExecutor) LimitBuy(symbol string, qty, price float64, tif TimeInForce) (*Order, error) {
	return e.Broker.Submit(context.Background(), OrderRequest{Symbol: symbol, Side: Buy, Type: Limit, Qty: qty, Price: price, TIF: tif})
}

func (e *FireAndForgetExecutor) LimitSell(symbol string, qty, price float64, tif TimeInForce) (*Order, error) {
	return e.Broker.Submit(context.Background(), OrderRequest{Symbol: symbol, Side: Sell, Type: Limit, Qty: qty, Price: price, TIF: tif})
}

// LiveExecConfig controls poll/timeout behavior for LiveExecutor.
type LiveExecConfig struct {
	PollInterval time.Duration
	MaxWait      time.Duration
}

// DefaultLiveExecConfig returns reasonable poll/timeout defaults for
// LiveExecutor.
func DefaultLiveExecConfig() LiveExecConfig {
	return LiveExecConfig{PollInterval: 50 * time.Millisecond, MaxWait: 5 * time.Second}
}

// LiveExecResult is the final outcome of a wait-for-terminal submission.
type LiveExecResult struct {
	Order            *Order
	LatencyMs        *float64
	CanceledByTimeout bool
}

// LiveExecutor submits orders and blocks (via wall-clock polling) until a
// terminal state or MaxWait elapses, at which point it cancels and returns
// the last observed snapshot. This is the one place in the system that
// uses wall-clock time; everything else runs on event time.
type LiveExecutor struct {
	Broker Broker
	Config LiveExecConfig
}

func NewLiveExecutor(b Broker, cfg LiveExecConfig) *LiveExecutor {
	return &LiveExecutor{Broker: b, Config: cfg}
}

func (e *LiveExecutor) MarketBuy(symbol string, qty float64) (*Order, error) {
	res, err := e.placeAndWait(OrderRequest{Symbol: symbol, Side: Buy, Type: Market, Qty: qty, TIF: GTC})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

func (e *LiveExecutor) MarketSell(symbol string, qty float64) (*Order, error) {
	res, err := e.placeAndWait(OrderRequest{Symbol: symbol, Side: Sell, Type: Market, Qty: qty, TIF: GTC})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

func (e *LiveExecutor) LimitBuy(symbol string, qty, price float64, tif TimeInForce) (*Order, error) {
	res, err := e.placeAndWait(OrderRequest{Symbol: symbol, Side: Buy, Type: Limit, Qty: qty, Price: price, TIF: tif})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

func (e *LiveExecutor) LimitSell(symbol string, qty, price float64, tif TimeInForce) (*Order, error) {
	res, err := e.placeAndWait(OrderRequest{Symbol: symbol, Side: Sell, Type: Limit, Qty: qty, Price: price, TIF: tif})
	if err != nil {
		return nil, err
	}
	return res.Order, nil
}

// PlaceAndWait exposes the full result, including latency and the
// canceled-by-timeout flag, for callers that need more than the order.
func (e *LiveExecutor) PlaceAndWait(req OrderRequest) (LiveExecResult, error) {
	return e.placeAndWait(req)
}

func (e *LiveExecutor) placeAndWait(req OrderRequest) (LiveExecResult, error) {
	ctx := context.Background()
	o, err := e.Broker.Submit(ctx, req)
	if err != nil {
		return LiveExecResult{}, err
	}
	if o.Status.IsTerminal() {
		return LiveExecResult{Order: o, LatencyMs: latencyMs(o)}, nil
	}

	deadline := time.Now().Add(e.Config.MaxWait)
	lastSeen := o
	for time.Now().Before(deadline) {
		updated, ok := e.Broker.GetOrder(req.Symbol, o.ID)
		if ok {
			lastSeen = updated
			if updated.Status.IsTerminal() {
				return LiveExecResult{Order: updated, LatencyMs: latencyMs(updated)}, nil
			}
		}
		time.Sleep(e.Config.PollInterval)
	}

	canceled, err := e.Broker.Cancel(ctx, req.Symbol, o.ID)
	if err != nil {
		canceled = lastSeen
	}
	return LiveExecResult{Order: canceled, LatencyMs: latencyMs(canceled), CanceledByTimeout: true}, nil
}

// SyncPosition returns the net position reported by the broker for symbol.
// Kept from executor_live.py's sync_position convenience accessor.
func (e *LiveExecutor) SyncPosition(symbol string) float64 {
	return e.Broker.Position(symbol).Qty
}

// latencyMs reports submitted_ts -> updated_ts only for FILLED orders,
// matching executor_live.py's _latency_ms.
func latencyMs(o *Order) *float64 {
	if o.Status != StatusFilled {
		return nil
	}
	v := float64(o.UpdatedTs - o.SubmittedTs)
	if v < 0 {
		v = 0
	}
	return &v
}
