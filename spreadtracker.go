// FILE: spreadtracker.go
// Package main – optional rolling spread/volatility tracker.
//
// Maintains a rolling window of recent trade returns and exposes a
// volatility estimate the cost model (costmodel.go) consumes for its
// dynamic slippage term. Runs as its own background goroutine, one of only
// two in the system (the other being the optional async row writer), both
// strictly single-producer/single-consumer over a bounded queue; the
// broker reads the latest cached value without locking beyond the
// channel's own synchronization.
package main

import (
	"context"
	"math"
	"sync/atomic"
)

// SpreadTracker consumes a stream of mid-prices and maintains a rolling
// stddev-of-returns estimate, published atomically so the engine can read
// it without blocking the producer.
type SpreadTracker struct {
	window  int
	prices  chan float64
	current atomic.Uint64 // bits of a float64 volatility estimate
}

// NewSpreadTracker starts the consumer goroutine. queueLen bounds the
// producer channel; a full queue drops the oldest pending sample, the same
// policy persistence.go's AsyncRowWriter uses.
func NewSpreadTracker(window, queueLen int) *SpreadTracker {
	if window < 2 {
		window = 2
	}
	if queueLen < 1 {
		queueLen = 256
	}
	t := &SpreadTracker{window: window, prices: make(chan float64, queueLen)}
	return t
}

// Run drives the consumer loop until ctx is canceled.
func (t *SpreadTracker) Run(ctx context.Context) error {
	history := make([]float64, 0, t.window+1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case p, ok := <-t.prices:
			if !ok {
				return nil
			}
			history = append(history, p)
			if len(history) > t.window+1 {
				history = history[len(history)-(t.window+1):]
			}
			t.current.Store(math.Float64bits(volatilityOf(history)))
		}
	}
}

// Observe enqueues a new mid-price; never blocks the caller.
func (t *SpreadTracker) Observe(mid float64) {
	select {
	case t.prices <- mid:
		return
	default:
	}
	select {
	case <-t.prices:
	default:
	}
	select {
	case t.prices <- mid:
	default:
	}
}

// Close signals the consumer to stop.
func (t *SpreadTracker) Close() { close(t.prices) }

// Volatility returns the latest rolling-return stddev estimate.
func (t *SpreadTracker) Volatility() float64 {
	return math.Float64frombits(t.current.Load())
}

func volatilityOf(prices []float64) float64 {
	if len(prices) < 2 {
		return 0
	}
	rets := make([]float64, 0, len(prices)-1)
	for i := 1; i < len(prices); i++ {
		prev := prices[i-1]
		if prev == 0 {
			continue
		}
		rets = append(rets, (prices[i]-prev)/prev)
	}
	return stddev(rets)
}
