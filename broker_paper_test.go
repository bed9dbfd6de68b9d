package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarketBuyScalesDownRatherThanGoingCashNegative(t *testing.T) {
	broker := NewPaperBroker(100, CostModel{TakerFeeBps: 10})
	broker.Mark("BTC-USD", 50, 0)

	order, err := broker.Submit(context.Background(), OrderRequest{
		Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 3, TIF: GTC,
	})
	require.NoError(t, err)
	require.Equal(t, StatusFilled, order.Status)
	assert.Less(t, order.FilledQty, 3.0, "a 3-unit buy at $50 needs $150+fees, more than the $100 balance")

	acct := broker.Account()
	assert.GreaterOrEqual(t, acct.Cash, 0.0)
}

func TestMarketBuyRejectsWhenNoCashRemains(t *testing.T) {
	broker := NewPaperBroker(0, CostModel{TakerFeeBps: 10})
	broker.Mark("BTC-USD", 50, 0)

	order, err := broker.Submit(context.Background(), OrderRequest{
		Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 1, TIF: GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, order.Status)
	assert.Equal(t, "insufficient_funds", order.Reason)
}

func TestLimitBuyRestsUntouchedWhenPriceNeverCrosses(t *testing.T) {
	broker := NewPaperBroker(1000, CostModel{})
	broker.Mark("BTC-USD", 100, 0)

	order, err := broker.Submit(context.Background(), OrderRequest{
		Symbol: "BTC-USD", Side: Buy, Type: Limit, Price: 90, Qty: 1, TIF: GTC,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusNew, order.Status)

	broker.Mark("BTC-USD", 95, 100)
	order, _ = broker.GetOrder("BTC-USD", order.ID)
	assert.Equal(t, StatusNew, order.Status, "mid never touched the limit price of 90")

	broker.Mark("BTC-USD", 90, 200)
	order, _ = broker.GetOrder("BTC-USD", order.ID)
	assert.Equal(t, StatusFilled, order.Status)
}

func TestIOCLimitCancelsAnyUnfilledRemainderImmediately(t *testing.T) {
	broker := NewPaperBroker(1000, CostModel{})
	broker.Mark("BTC-USD", 100, 0)

	order, err := broker.Submit(context.Background(), OrderRequest{
		Symbol: "BTC-USD", Side: Buy, Type: Limit, Price: 90, Qty: 1, TIF: IOC,
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCanceled, order.Status, "IOC with a non-crossing price cancels on the spot")
}

func TestPositionAveragingTracksVolumeWeightedEntryPrice(t *testing.T) {
	broker := NewPaperBroker(10000, CostModel{})
	broker.Mark("BTC-USD", 100, 0)
	_, err := broker.Submit(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 1, TIF: GTC})
	require.NoError(t, err)
	broker.Mark("BTC-USD", 200, 10)
	_, err = broker.Submit(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 1, TIF: GTC})
	require.NoError(t, err)

	pos := broker.Position("BTC-USD")
	assert.Equal(t, 2.0, pos.Qty)
	assert.InDelta(t, 150.0, pos.AvgPrice, 0.5)
}

func TestRealizedPnLOnlyCountsTheClosingPortionOfAFill(t *testing.T) {
	var fills []FillEvent
	broker := NewPaperBroker(10000, CostModel{})
	broker.OnFill(func(ev FillEvent) { fills = append(fills, ev) })

	broker.Mark("BTC-USD", 100, 0)
	_, err := broker.Submit(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 2, TIF: GTC})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, 0.0, fills[0].RealizedPnL, "opening a position realizes nothing")

	broker.Mark("BTC-USD", 110, 10)
	_, err = broker.Submit(context.Background(), OrderRequest{Symbol: "BTC-USD", Side: Sell, Type: Market, Qty: 1, TIF: GTC})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Greater(t, fills[1].RealizedPnL, 0.0, "selling above the average entry realizes a gain")

	pos := broker.Position("BTC-USD")
	assert.Equal(t, 1.0, pos.Qty, "half the position remains open")
}

func TestUpdatePositionOnFillFlipsSideAndResetsAvgPriceAtTheFlip(t *testing.T) {
	pos := &Position{Symbol: "BTC-USD", Qty: 1, AvgPrice: 100}
	realized := updatePositionOnFill(pos, Sell, 3, 110)

	assert.InDelta(t, 10.0, realized, 1e-9, "only the closing 1 unit realizes (110-100)*1")
	assert.Equal(t, -2.0, pos.Qty)
	assert.Equal(t, 110.0, pos.AvgPrice, "the flipped short's basis is the fill price")
}

func TestCashNeverGoesNegativeAcrossRepeatedFills(t *testing.T) {
	broker := NewPaperBroker(37, CostModel{TakerFeeBps: 25, SlipBps: 5})
	for i, price := range []float64{50, 51, 49, 52} {
		broker.Mark("BTC-USD", price, int64(i)*10)
		_, err := broker.Submit(context.Background(), OrderRequest{
			Symbol: "BTC-USD", Side: Buy, Type: Market, Qty: 10, TIF: GTC,
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, broker.Account().Cash, 0.0)
	}
}
