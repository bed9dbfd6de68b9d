package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedTradeSourceIsDeterministicForAGivenSeed(t *testing.T) {
	cfg := SimulatedTradeSourceConfig{Seed: 42, StartPrice: 100, MaxTicks: 20}
	a := NewSimulatedTradeSource(cfg)
	b := NewSimulatedTradeSource(cfg)

	ctx := context.Background()
	for i := 0; i < 20; i++ {
		ta, okA, errA := a.Next(ctx)
		tb, okB, errB := b.Next(ctx)
		require.NoError(t, errA)
		require.NoError(t, errB)
		require.True(t, okA)
		require.True(t, okB)
		assert.Equal(t, ta, tb)
	}
}

func TestSimulatedTradeSourceTimestampsAreNonDecreasing(t *testing.T) {
	src := NewSimulatedTradeSource(SimulatedTradeSourceConfig{Seed: 7, TickMs: 50, MaxTicks: 50})
	ctx := context.Background()

	var prev int64
	for i := 0; i < 50; i++ {
		tr, ok, err := src.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		assert.GreaterOrEqual(t, tr.TimestampMs, prev)
		prev = tr.TimestampMs
	}
}

func TestSimulatedTradeSourceStopsAtMaxTicks(t *testing.T) {
	src := NewSimulatedTradeSource(SimulatedTradeSourceConfig{Seed: 1, MaxTicks: 3})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, ok, err := src.Next(ctx)
		require.NoError(t, err)
		require.True(t, ok)
	}
	_, ok, err := src.Next(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestSimulatedTradeSourceRespectsContextCancellation(t *testing.T) {
	src := NewSimulatedTradeSource(SimulatedTradeSourceConfig{Seed: 1})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok, err := src.Next(ctx)
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
}
