// FILE: bars.go
// Package main – Micro-bar builders: bounded streaming state machines that
// turn a sequence of Trades into closed Bars under a closing rule.
//
// Every builder implements the same two-method public contract:
//
//	Update(t Trade) (Bar, bool)  // true if a bar closed
//	Reset()
//
// Each builder appends to an in-memory buffer, and once its closing
// predicate is satisfied, builds the OHLCV bar from the whole buffer and
// resets. The triggering trade is always included whole; bars never split
// a trade.
//
// Internally every builder also satisfies the unexported barAccumulator
// interface (accumulate/closed/build), which CompositeBarBuilder uses so it
// — not the sub-builder itself — decides when a sub-builder's buffer is
// actually cleared. Without that split, a sub-builder reaching its own
// threshold under an ALL policy would reset itself immediately even though
// the composite has not closed, silently discarding progress the other
// sub-builders still need to catch up to.
package main

import "fmt"

// BarBuilder is the common interface for all closing-rule variants.
type BarBuilder interface {
	Update(t Trade) (Bar, bool)
	Reset()
}

// barAccumulator is the internal split of Update into its non-mutating
// threshold check (closed) and its mutating trade absorption (accumulate),
// so a composite can drive many sub-builders off one trade without forcing
// a premature build+reset on whichever sub-builder happens to cross its
// threshold first.
type barAccumulator interface {
	BarBuilder
	accumulate(t Trade)
	closed() bool
	build() Bar
}

func buildBar(buf []Trade) Bar {
	first := buf[0]
	last := buf[len(buf)-1]
	high, low := first.Price, first.Price
	var volume, dollar float64
	for _, t := range buf {
		if t.Price > high {
			high = t.Price
		}
		if t.Price < low {
			low = t.Price
		}
		volume += t.Qty
		dollar += t.Price * t.Qty
	}
	return Bar{
		Open:       first.Price,
		High:       high,
		Low:        low,
		Close:      last.Price,
		Volume:     volume,
		DollarVal:  dollar,
		TradeCount: len(buf),
		StartTime:  first.TimestampMs,
		EndTime:    last.TimestampMs,
		DurationMs: last.TimestampMs - first.TimestampMs,
	}
}

func withGap(bar Bar, prevEndMs int64, havePrev bool) Bar {
	if havePrev {
		bar.GapMs = bar.StartTime - prevEndMs
	}
	return bar
}

// TickCountBarBuilder closes once TickLimit trades have accumulated.
type TickCountBarBuilder struct {
	TickLimit int

	buf         []Trade
	prevEndMs   int64
	havePrevEnd bool
}

// NewTickCountBarBuilder validates TickLimit at construction so a bad
// configuration fails immediately instead of surfacing mid-session.
func NewTickCountBarBuilder(tickLimit int) (*TickCountBarBuilder, error) {
	if tickLimit < 1 {
		return nil, fmt.Errorf("%w: tick_limit must be >= 1, got %d", ErrConfiguration, tickLimit)
	}
	return &TickCountBarBuilder{TickLimit: tickLimit}, nil
}

func (b *TickCountBarBuilder) accumulate(t Trade) {
	b.buf = append(b.buf, t)
}

func (b *TickCountBarBuilder) closed() bool {
	return len(b.buf) >= b.TickLimit
}

func (b *TickCountBarBuilder) build() Bar {
	bar := buildBar(b.buf)
	bar.Target = float64(b.TickLimit)
	bar.Overshoot = float64(len(b.buf) - b.TickLimit)
	if b.TickLimit > 0 {
		bar.OvershootPct = bar.Overshoot / float64(b.TickLimit)
	}
	return withGap(bar, b.prevEndMs, b.havePrevEnd)
}

func (b *TickCountBarBuilder) Update(t Trade) (Bar, bool) {
	b.accumulate(t)
	if !b.closed() {
		return Bar{}, false
	}
	bar := b.build()
	b.Reset()
	return bar, true
}

func (b *TickCountBarBuilder) Reset() {
	if len(b.buf) > 0 {
		b.prevEndMs = b.buf[len(b.buf)-1].TimestampMs
		b.havePrevEnd = true
	}
	b.buf = b.buf[:0]
}

// VolumeBarBuilder closes once the accumulated traded quantity reaches
// QtyLimit. The triggering trade is included whole (no splitting), so the
// emitted bar's volume may overshoot QtyLimit by at most the last trade's
// qty.
type VolumeBarBuilder struct {
	QtyLimit float64

	buf       []Trade
	volSum    float64
	prevEndMs int64
	havePrev  bool
}

func NewVolumeBarBuilder(qtyLimit float64) (*VolumeBarBuilder, error) {
	if qtyLimit <= 0 {
		return nil, fmt.Errorf("%w: qty_limit must be > 0, got %v", ErrConfiguration, qtyLimit)
	}
	return &VolumeBarBuilder{QtyLimit: qtyLimit}, nil
}

func (b *VolumeBarBuilder) accumulate(t Trade) {
	b.buf = append(b.buf, t)
	b.volSum += t.Qty
}

func (b *VolumeBarBuilder) closed() bool {
	return b.volSum >= b.QtyLimit
}

func (b *VolumeBarBuilder) build() Bar {
	bar := buildBar(b.buf)
	bar.Target = b.QtyLimit
	bar.Overshoot = bar.Volume - b.QtyLimit
	bar.OvershootPct = bar.Overshoot / b.QtyLimit
	return withGap(bar, b.prevEndMs, b.havePrev)
}

func (b *VolumeBarBuilder) Update(t Trade) (Bar, bool) {
	b.accumulate(t)
	if !b.closed() {
		return Bar{}, false
	}
	bar := b.build()
	b.Reset()
	return bar, true
}

func (b *VolumeBarBuilder) Reset() {
	if len(b.buf) > 0 {
		b.prevEndMs = b.buf[len(b.buf)-1].TimestampMs
		b.havePrev = true
	}
	b.buf = b.buf[:0]
	b.volSum = 0
}

// DollarBarBuilder closes once the accumulated notional (Σ price·qty)
// reaches ValueLimit.
type DollarBarBuilder struct {
	ValueLimit float64

	buf       []Trade
	valueSum  float64
	prevEndMs int64
	havePrev  bool
}

func NewDollarBarBuilder(valueLimit float64) (*DollarBarBuilder, error) {
	if valueLimit <= 0 {
		return nil, fmt.Errorf("%w: value_limit must be > 0, got %v", ErrConfiguration, valueLimit)
	}
	return &DollarBarBuilder{ValueLimit: valueLimit}, nil
}

func (b *DollarBarBuilder) accumulate(t Trade) {
	b.buf = append(b.buf, t)
	b.valueSum += t.Price * t.Qty
}

func (b *DollarBarBuilder) closed() bool {
	return b.valueSum >= b.ValueLimit
}

func (b *DollarBarBuilder) build() Bar {
	bar := buildBar(b.buf)
	bar.Target = b.ValueLimit
	bar.Overshoot = bar.DollarVal - b.ValueLimit
	bar.OvershootPct = bar.Overshoot / b.ValueLimit
	return withGap(bar, b.prevEndMs, b.havePrev)
}

func (b *DollarBarBuilder) Update(t Trade) (Bar, bool) {
	b.accumulate(t)
	if !b.closed() {
		return Bar{}, false
	}
	bar := b.build()
	b.Reset()
	return bar, true
}

func (b *DollarBarBuilder) Reset() {
	if len(b.buf) > 0 {
		b.prevEndMs = b.buf[len(b.buf)-1].TimestampMs
		b.havePrev = true
	}
	b.buf = b.buf[:0]
	b.valueSum = 0
}

// ImbalanceMode selects whether the running imbalance accumulates signed
// quantity or signed tick count.
type ImbalanceMode string

const (
	ImbalanceByQty  ImbalanceMode = "qty"
	ImbalanceByTick ImbalanceMode = "tick"
)

// ImbalanceBarBuilder closes once the absolute value of a signed running
// imbalance (buyer-initiated positive, seller-initiated negative) reaches
// ImbalanceLimit.
type ImbalanceBarBuilder struct {
	ImbalanceLimit float64
	Mode           ImbalanceMode

	buf       []Trade
	imbalance float64
	prevEndMs int64
	havePrev  bool
}

func NewImbalanceBarBuilder(limit float64, mode ImbalanceMode) (*ImbalanceBarBuilder, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: imbal_limit must be > 0, got %v", ErrConfiguration, limit)
	}
	if mode != ImbalanceByQty && mode != ImbalanceByTick {
		return nil, fmt.Errorf("%w: unknown imbalance mode %q", ErrConfiguration, mode)
	}
	return &ImbalanceBarBuilder{ImbalanceLimit: limit, Mode: mode}, nil
}

// signedContribution returns the signed contribution of a trade to the
// running imbalance: buyer-initiated (IsBuyerMaker == false, i.e. the
// aggressor was a buyer) is positive, seller-initiated is negative.
func (b *ImbalanceBarBuilder) signedContribution(t Trade) float64 {
	sign := 1.0
	if t.IsBuyerMaker {
		sign = -1.0
	}
	if b.Mode == ImbalanceByTick {
		return sign
	}
	return sign * t.Qty
}

func (b *ImbalanceBarBuilder) accumulate(t Trade) {
	b.buf = append(b.buf, t)
	b.imbalance += b.signedContribution(t)
}

func (b *ImbalanceBarBuilder) closed() bool {
	return absFloat(b.imbalance) >= b.ImbalanceLimit
}

func (b *ImbalanceBarBuilder) build() Bar {
	bar := buildBar(b.buf)
	bar.Target = b.ImbalanceLimit
	bar.Overshoot = absFloat(b.imbalance) - b.ImbalanceLimit
	bar.OvershootPct = bar.Overshoot / b.ImbalanceLimit
	return withGap(bar, b.prevEndMs, b.havePrev)
}

func (b *ImbalanceBarBuilder) Update(t Trade) (Bar, bool) {
	b.accumulate(t)
	if !b.closed() {
		return Bar{}, false
	}
	bar := b.build()
	b.Reset()
	return bar, true
}

func (b *ImbalanceBarBuilder) Reset() {
	if len(b.buf) > 0 {
		b.prevEndMs = b.buf[len(b.buf)-1].TimestampMs
		b.havePrev = true
	}
	b.buf = b.buf[:0]
	b.imbalance = 0
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

// CompositePolicy selects the closing policy across sub-builders.
type CompositePolicy string

const (
	CompositeAny CompositePolicy = "ANY"
	CompositeAll CompositePolicy = "ALL"
)

// CompositeBarBuilder holds a set of sub-builders and closes under an ANY or
// ALL policy. On close, every sub-builder is reset atomically, and the
// emitted bar is built from the trades buffered since the last composite
// close (tracked independently of the sub-builders' own buffers).
//
// Sub-builders are driven through the barAccumulator split rather than
// their own Update/Reset: accumulate(t) is applied to every sub-builder on
// every trade regardless of outcome, closed() is read (never causing a
// build+reset as a side effect), and only when the composite itself decides
// to close does Reset() run across every sub-builder. This is what lets an
// ALL policy wait for a sub-builder that already crossed its own threshold
// — it stays "closed" (and keeps accumulating) until the slower sub-builder
// catches up, instead of silently resetting and losing that signal.
type CompositeBarBuilder struct {
	Policy CompositePolicy
	Sub    []BarBuilder

	accs      []barAccumulator
	buf       []Trade
	prevEndMs int64
	havePrev  bool
}

func NewCompositeBarBuilder(policy CompositePolicy, sub ...BarBuilder) (*CompositeBarBuilder, error) {
	if policy != CompositeAny && policy != CompositeAll {
		return nil, fmt.Errorf("%w: unknown composite policy %q", ErrConfiguration, policy)
	}
	if len(sub) == 0 {
		return nil, fmt.Errorf("%w: composite builder needs at least one sub-builder", ErrConfiguration)
	}
	accs := make([]barAccumulator, len(sub))
	for i, sb := range sub {
		accs[i] = toAccumulator(sb)
	}
	return &CompositeBarBuilder{Policy: policy, Sub: sub, accs: accs}, nil
}

// fallbackAccumulator adapts a plain BarBuilder to barAccumulator for sub-builders
// that only implement the public interface (e.g. a caller's own type);
// accumulate/closed/build are then simulated via Update, at the cost of the
// same premature-reset risk this type exists to avoid for the builtin
// variants, which all implement barAccumulator natively.
type fallbackAccumulator struct {
	BarBuilder
	lastClosed bool
	lastBar    Bar
}

func (f *fallbackAccumulator) accumulate(t Trade) {
	bar, closed := f.BarBuilder.Update(t)
	f.lastClosed, f.lastBar = closed, bar
}
func (f *fallbackAccumulator) closed() bool { return f.lastClosed }
func (f *fallbackAccumulator) build() Bar   { return f.lastBar }

func toAccumulator(sb BarBuilder) barAccumulator {
	if acc, ok := sb.(barAccumulator); ok {
		return acc
	}
	return &fallbackAccumulator{BarBuilder: sb}
}

func (b *CompositeBarBuilder) accumulate(t Trade) {
	b.buf = append(b.buf, t)
}

func (b *CompositeBarBuilder) closed() bool {
	return b.evaluate()
}

func (b *CompositeBarBuilder) build() Bar {
	return withGap(buildBar(b.buf), b.prevEndMs, b.havePrev)
}

// evaluate applies the composite's policy across the current sub-builder
// trigger states.
func (b *CompositeBarBuilder) evaluate() bool {
	anyTriggered := false
	allTriggered := true
	for _, acc := range b.accs {
		if acc.closed() {
			anyTriggered = true
		} else {
			allTriggered = false
		}
	}
	switch b.Policy {
	case CompositeAny:
		return anyTriggered
	case CompositeAll:
		return allTriggered
	default:
		return false
	}
}

func (b *CompositeBarBuilder) Update(t Trade) (Bar, bool) {
	b.accumulate(t)
	for _, acc := range b.accs {
		acc.accumulate(t)
	}

	if !b.evaluate() {
		return Bar{}, false
	}

	bar := b.build()
	b.Reset()
	return bar, true
}

// Reset atomically resets every sub-builder and the composite's own buffer.
func (b *CompositeBarBuilder) Reset() {
	if len(b.buf) > 0 {
		b.prevEndMs = b.buf[len(b.buf)-1].TimestampMs
		b.havePrev = true
	}
	b.buf = b.buf[:0]
	for _, sb := range b.Sub {
		sb.Reset()
	}
}
