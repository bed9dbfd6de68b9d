// FILE: broker.go
// Package main – Paper-broker surface.
//
// Broker exposes only what the engine and executor actually drive: submit,
// mark, cancel, query, and filters. There is no live exchange adapter in
// this repo — the paper broker is the only implementation.
package main

import "context"

// Broker is the minimal surface the engine/executor need.
type Broker interface {
	// Submit validates and accepts a new order, returning it in whatever
	// state resulted from any immediate matching attempt.
	Submit(ctx context.Context, req OrderRequest) (*Order, error)
	// Mark feeds the latest mid-price for symbol at event time ts,
	// triggering matching attempts against all open orders of that symbol.
	Mark(symbol string, mid float64, ts int64)
	// Cancel cancels an order; idempotent on an already-terminal order.
	Cancel(ctx context.Context, symbol string, orderID int64) (*Order, error)
	// GetOrder returns the current snapshot of an order.
	GetOrder(symbol string, orderID int64) (*Order, bool)
	// GetOpenOrders returns all non-terminal orders for symbol.
	GetOpenOrders(symbol string) []*Order
	// Filters returns the symbol's trading filters, if configured.
	Filters(symbol string) (SymbolFilters, bool)
	// Account returns a snapshot of the account.
	Account() Account
	// Position returns a snapshot of the position for symbol.
	Position(symbol string) Position
}

// OrderRequest is the caller-supplied intent to submit an order.
type OrderRequest struct {
	Symbol   string
	Side     Side
	Type     OrderType
	Price    float64 // required for LIMIT
	Qty      float64
	TIF      TimeInForce
	Reason   string
	ClientOrderID string
}

// FillEvent is delivered to an optional fill observer for instrumentation.
// Observer errors/panics must be swallowed, never propagated — see
// PaperBroker.notifyFill.
type FillEvent struct {
	TimestampMs   int64
	Symbol        string
	Side          Side
	Role          Role
	MidPrice      float64
	EffectivePrice float64
	Qty           float64
	Fee           float64
	Type          OrderType
	LimitPrice    float64
	// RealizedPnL is non-zero only on fills that reduce or flip an existing
	// position; it is the closed portion's (exit - avg_entry) * qty.
	RealizedPnL float64
	Reason      string
}

// FillObserver is notified once per executed Fill.
type FillObserver func(FillEvent)
