package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpreadTrackerPublishesVolatilityAsPricesArrive(t *testing.T) {
	tracker := NewSpreadTracker(10, 64)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		_ = tracker.Run(ctx)
		close(done)
	}()

	assert.Equal(t, 0.0, tracker.Volatility(), "no samples yet")

	for _, p := range []float64{100, 101, 99, 102, 98} {
		tracker.Observe(p)
	}

	require.Eventually(t, func() bool {
		return tracker.Volatility() > 0
	}, time.Second, 2*time.Millisecond)

	tracker.Close()
	<-done
}

func TestSpreadTrackerObserveNeverBlocksWhenQueueIsFull(t *testing.T) {
	tracker := NewSpreadTracker(5, 2)
	// No consumer running: the bounded channel fills up immediately.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			tracker.Observe(float64(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Observe blocked despite the bounded-queue eviction policy")
	}
}
