// FILE: timebars.go
// Package main – TimeBarAggregator: fixed-interval binning for dashboards.
//
// Unlike the trade-driven BarBuilder implementations in bars.go, this
// aggregator closes a bar whenever event time crosses an interval boundary
// rather than on any trade-count/volume/dollar/imbalance threshold. It
// never emits a bar for an empty interval unless GapFill is set, in which
// case it emits a flat bar at the last known close.
package main

// TimeBarAggregator bins trades into fixed intervals of event time.
type TimeBarAggregator struct {
	IntervalMs int64
	GapFill    bool

	bucketStart  int64
	bucketActive bool
	buf          []Trade
	lastClose    float64
	haveLast     bool
}

func NewTimeBarAggregator(intervalMs int64, gapFill bool) *TimeBarAggregator {
	if intervalMs <= 0 {
		intervalMs = 1000
	}
	return &TimeBarAggregator{IntervalMs: intervalMs, GapFill: gapFill}
}

// Update feeds one trade. It may return multiple completed bars if the
// trade's timestamp skips over empty intervals and GapFill is enabled.
func (a *TimeBarAggregator) Update(t Trade) []Bar {
	bucket := t.TimestampMs - (t.TimestampMs % a.IntervalMs)

	if !a.bucketActive {
		a.bucketStart = bucket
		a.bucketActive = true
		a.buf = append(a.buf[:0], t)
		return nil
	}

	if bucket == a.bucketStart {
		a.buf = append(a.buf, t)
		return nil
	}

	var closed []Bar
	closed = append(closed, a.closeBucket())

	next := a.bucketStart + a.IntervalMs
	for a.GapFill && next < bucket {
		closed = append(closed, a.flatBar(next))
		next += a.IntervalMs
	}

	a.bucketStart = bucket
	a.buf = append(a.buf[:0], t)
	return closed
}

// Flush closes any in-progress bucket at session end, for the caller to
// persist a final partial bar if desired.
func (a *TimeBarAggregator) Flush() (Bar, bool) {
	if !a.bucketActive || len(a.buf) == 0 {
		return Bar{}, false
	}
	return a.closeBucket(), true
}

func (a *TimeBarAggregator) closeBucket() Bar {
	b := buildBar(a.buf)
	b.StartTime = a.bucketStart
	b.EndTime = a.bucketStart + a.IntervalMs - 1
	a.lastClose = b.Close
	a.haveLast = true
	return b
}

func (a *TimeBarAggregator) flatBar(bucketStart int64) Bar {
	return Bar{
		Open: a.lastClose, High: a.lastClose, Low: a.lastClose, Close: a.lastClose,
		Volume: 0, DollarVal: 0, TradeCount: 0,
		StartTime: bucketStart, EndTime: bucketStart + a.IntervalMs - 1,
	}
}
