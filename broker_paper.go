// FILE: broker_paper.go
// Package main – In-memory paper broker: validation, mark-driven matching,
// TIF semantics, cash/position effects.
//
// Order submission validates against configured filters, then a mark-price
// update sweeps every open order of that symbol: MARKET orders fill
// immediately, LIMIT orders fill when the mark crosses their price, IOC
// remainders are cancelled, and cash/position bookkeeping happens on every
// fill. Fill-observer panics are swallowed so instrumentation never takes
// down the broker.
package main

import (
	"context"
	"fmt"
	"log"
	"math"
	"sync"

	"github.com/shopspring/decimal"
)

// PaperBroker simulates execution against an externally supplied mark price
// stream (see Mark). All matching is driven by event time; no wall-clock is
// consulted here.
type PaperBroker struct {
	mu sync.Mutex

	cost    CostModel
	filters map[string]SymbolFilters

	account   Account
	positions map[string]*Position

	orders   map[int64]*Order
	bySymbol map[string][]int64
	nextID   int64

	lastMid map[string]float64
	lastTs  map[string]int64

	observer FillObserver
}

// NewPaperBroker constructs a broker with the given starting cash and cost
// model. Symbol filters may be registered with SetFilters.
func NewPaperBroker(startingCash float64, cost CostModel) *PaperBroker {
	return &PaperBroker{
		cost:      cost,
		filters:   map[string]SymbolFilters{},
		account:   Account{Cash: startingCash},
		positions: map[string]*Position{},
		orders:    map[int64]*Order{},
		bySymbol:  map[string][]int64{},
		lastMid:   map[string]float64{},
		lastTs:    map[string]int64{},
	}
}

// SetVolatility updates the cost model's rolling volatility input, fed by
// the spread tracker; the dynamic slippage formula in costmodel.go reads
// it on every fill.
func (p *PaperBroker) SetVolatility(vol float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cost.Volatility = vol
}

// SetFilters registers SymbolFilters for symbol, enforced at submission.
func (p *PaperBroker) SetFilters(symbol string, f SymbolFilters) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.filters[symbol] = f
}

// OnFill registers a fill observer. Only one observer is supported; this
// matches the engine's single-consumer usage.
func (p *PaperBroker) OnFill(obs FillObserver) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observer = obs
}

func (p *PaperBroker) positionFor(symbol string) *Position {
	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}
	return pos
}

func alignedTo(value, step float64) bool {
	if step <= 0 {
		return true
	}
	v := decimal.NewFromFloat(value)
	s := decimal.NewFromFloat(step)
	q := v.Div(s)
	nearest := q.Round(0)
	diff := q.Sub(nearest).Abs()
	tol := decimal.NewFromFloat(1e-9)
	return diff.LessThanOrEqual(tol)
}

func (p *PaperBroker) validate(req OrderRequest) error {
	if req.Side != Buy && req.Side != Sell {
		return fmt.Errorf("%w: side must be BUY or SELL, got %q", ErrValidation, req.Side)
	}
	if req.Type == Limit && req.Price <= 0 {
		return fmt.Errorf("%w: LIMIT order requires a price", ErrValidation)
	}
	f, ok := p.filters[req.Symbol]
	if !ok {
		return nil
	}
	if req.Type == Limit && f.TickSize > 0 && !alignedTo(req.Price, f.TickSize) {
		return fmt.Errorf("%w: price %v not aligned to tick_size %v", ErrValidation, req.Price, f.TickSize)
	}
	if f.StepSize > 0 && !alignedTo(req.Qty, f.StepSize) {
		return fmt.Errorf("%w: qty %v not aligned to step_size %v", ErrValidation, req.Qty, f.StepSize)
	}
	if req.Type == Limit && f.MinNotional > 0 && req.Price*req.Qty < f.MinNotional {
		return fmt.Errorf("%w: notional %v below min_notional %v", ErrValidation, req.Price*req.Qty, f.MinNotional)
	}
	return nil
}

// Submit validates and accepts a new order. MARKET orders attempt an
// immediate fill against the last known mark for the symbol, if any.
func (p *PaperBroker) Submit(ctx context.Context, req OrderRequest) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.validate(req); err != nil {
		return nil, err
	}

	ts := p.lastTs[req.Symbol]
	p.nextID++
	o := &Order{
		ID:            p.nextID,
		Symbol:        req.Symbol,
		Side:          req.Side,
		Type:          req.Type,
		Price:         req.Price,
		RequestedQty:  req.Qty,
		Status:        StatusNew,
		TIF:           req.TIF,
		SubmittedTs:   ts,
		UpdatedTs:     ts,
		Reason:        req.Reason,
		ClientOrderID: req.ClientOrderID,
	}
	p.orders[o.ID] = o
	p.bySymbol[req.Symbol] = append(p.bySymbol[req.Symbol], o.ID)

	if mid, ok := p.lastMid[req.Symbol]; ok {
		p.attemptMatch(o, mid, ts)
	}
	return o, nil
}

// Mark feeds the latest mid-price for symbol at event time ts, attempting to
// match every open order of that symbol.
func (p *PaperBroker) Mark(symbol string, mid float64, ts int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastMid[symbol] = mid
	p.lastTs[symbol] = ts

	ids := p.bySymbol[symbol]
	for _, id := range ids {
		o := p.orders[id]
		if o.Status.IsTerminal() {
			continue
		}
		p.attemptMatch(o, mid, ts)
	}
}

// attemptMatch runs one matching attempt for an order against mid at event
// time ts; caller holds p.mu.
func (p *PaperBroker) attemptMatch(o *Order, mid float64, ts int64) {
	switch o.Type {
	case Market:
		p.fillMarket(o, mid, ts)
	case Limit:
		crosses := (o.Side == Buy && mid <= o.Price) || (o.Side == Sell && mid >= o.Price)
		if crosses {
			p.fillLimit(o, ts)
		}
	}
	if o.TIF == IOC && !o.Status.IsTerminal() && o.RemainingQty() > 0 {
		p.cancelLocked(o, ts)
	}
}

// fillMarket fills a MARKET order immediately at effective_price(mid,
// side, taker), scaling down the quantity for insufficient cash on BUY
// rather than failing the order — cash must never go negative.
func (p *PaperBroker) fillMarket(o *Order, mid float64, ts int64) {
	qty := o.RemainingQty()
	if qty <= 0 {
		return
	}
	notional := mid * qty
	eff := p.cost.EffectivePriceForNotional(mid, o.Side, RoleTaker, notional)

	if o.Side == Buy {
		fee := p.cost.FeeAmount(eff*qty, RoleTaker)
		cost := eff*qty + fee
		if cost > p.account.Cash {
			// Scale the fill down so cash never goes negative.
			if eff > 0 {
				// Solve qty' such that eff*qty' + fee(eff*qty') == cash.
				feeRate := p.cost.TakerFeeBps / 10000.0
				denom := eff * (1 + feeRate)
				if denom > 0 {
					qty = p.account.Cash / denom
				} else {
					qty = 0
				}
			} else {
				qty = 0
			}
			notional = eff * qty
			fee = p.cost.FeeAmount(notional, RoleTaker)
			cost = notional + fee
		}
		if qty <= 0 {
			p.rejectLocked(o, ts, "insufficient_funds")
			return
		}
		p.applyFill(o, eff, qty, fee, RoleTaker, mid, ts)
	} else {
		fee := p.cost.FeeAmount(eff*qty, RoleTaker)
		p.applyFill(o, eff, qty, fee, RoleTaker, mid, ts)
	}
}

// fillLimit fills a resting LIMIT order at effective_price(limit, side, maker)
// once its cross condition has been confirmed by the caller.
func (p *PaperBroker) fillLimit(o *Order, ts int64) {
	qty := o.RemainingQty()
	if qty <= 0 {
		return
	}
	notional := o.Price * qty
	eff := p.cost.EffectivePriceForNotional(o.Price, o.Side, RoleMaker, notional)
	fee := p.cost.FeeAmount(eff*qty, RoleMaker)

	if o.Side == Buy {
		cost := eff*qty + fee
		if cost > p.account.Cash {
			feeRate := p.cost.MakerFeeBps / 10000.0
			denom := eff * (1 + feeRate)
			if denom > 0 {
				qty = p.account.Cash / denom
			} else {
				qty = 0
			}
			if qty <= 0 {
				p.rejectLocked(o, ts, "insufficient_funds")
				return
			}
			notional = eff * qty
			fee = p.cost.FeeAmount(notional, RoleMaker)
		}
	}
	p.applyFill(o, eff, qty, fee, RoleMaker, o.Price, ts)
}

// applyFill records a Fill, updates order status, applies the cash/position
// effects, and notifies the fill observer; caller holds p.mu.
func (p *PaperBroker) applyFill(o *Order, effPrice, qty, fee float64, role Role, mid float64, ts int64) {
	o.Fills = append(o.Fills, Fill{Price: effPrice, Qty: qty, TimestampMs: ts, Commission: fee})
	o.FilledQty += qty
	o.UpdatedTs = ts
	if o.RemainingQty() <= posTolerance {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}

	pos := p.positionFor(o.Symbol)
	if o.Side == Buy {
		p.account.Cash -= effPrice*qty + fee
	} else {
		p.account.Cash += effPrice*qty - fee
	}
	realized := updatePositionOnFill(pos, o.Side, qty, effPrice)
	p.account.FeesPaidTotal += fee
	if p.account.Cash < 0 {
		p.account.Cash = 0
	}

	p.notifyFill(FillEvent{
		TimestampMs:    ts,
		Symbol:         o.Symbol,
		Side:           o.Side,
		Role:           role,
		MidPrice:       mid,
		EffectivePrice: effPrice,
		Qty:            qty,
		Fee:            fee,
		Type:           o.Type,
		LimitPrice:     o.Price,
		RealizedPnL:    realized,
		Reason:         o.Reason,
	})
}

// updatePositionOnFill applies a fill's signed quantity to pos, tracking a
// volume-weighted average entry price, and returns the realized PnL of
// whatever portion of the fill closed existing exposure. Opening or adding
// to a position realizes nothing; reducing or flipping realizes
// (exit_price - avg_entry) * closed_qty (sign-adjusted for side).
func updatePositionOnFill(pos *Position, side Side, qty, effPrice float64) float64 {
	signed := qty
	if side == Sell {
		signed = -qty
	}
	if pos.Qty == 0 || sameSign(pos.Qty, signed) {
		newQty := pos.Qty + signed
		if math.Abs(newQty) <= posTolerance {
			pos.Qty, pos.AvgPrice = 0, 0
			return 0
		}
		pos.AvgPrice = (pos.AvgPrice*math.Abs(pos.Qty) + effPrice*math.Abs(signed)) / math.Abs(newQty)
		pos.Qty = newQty
		return 0
	}

	closing := math.Min(math.Abs(signed), math.Abs(pos.Qty))
	var realized float64
	if pos.Qty > 0 {
		realized = (effPrice - pos.AvgPrice) * closing
	} else {
		realized = (pos.AvgPrice - effPrice) * closing
	}
	newQty := pos.Qty + signed
	switch {
	case math.Abs(newQty) <= posTolerance:
		pos.Qty, pos.AvgPrice = 0, 0
	case sameSign(newQty, signed):
		pos.Qty, pos.AvgPrice = newQty, effPrice
	default:
		pos.Qty = newQty
	}
	return realized
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func (p *PaperBroker) rejectLocked(o *Order, ts int64, reason string) {
	o.Status = StatusRejected
	o.UpdatedTs = ts
	o.Reason = reason
}

func (p *PaperBroker) cancelLocked(o *Order, ts int64) {
	if o.Status.IsTerminal() {
		return
	}
	o.Status = StatusCanceled
	o.UpdatedTs = ts
}

// notifyFill invokes the registered observer, swallowing any panic so
// instrumentation failures never affect the broker.
func (p *PaperBroker) notifyFill(ev FillEvent) {
	if p.observer == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			log.Printf("paper broker: fill observer panicked: %v", r)
		}
	}()
	p.observer(ev)
}

// Cancel cancels an order; idempotent on an already-terminal order.
func (p *PaperBroker) Cancel(ctx context.Context, symbol string, orderID int64) (*Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown order %d", ErrValidation, orderID)
	}
	ts := p.lastTs[symbol]
	p.cancelLocked(o, ts)
	return o, nil
}

func (p *PaperBroker) GetOrder(symbol string, orderID int64) (*Order, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.orders[orderID]
	return o, ok
}

func (p *PaperBroker) GetOpenOrders(symbol string) []*Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []*Order
	for _, id := range p.bySymbol[symbol] {
		o := p.orders[id]
		if !o.Status.IsTerminal() {
			out = append(out, o)
		}
	}
	return out
}

func (p *PaperBroker) Filters(symbol string) (SymbolFilters, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.filters[symbol]
	return f, ok
}

func (p *PaperBroker) Account() Account {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.account
}

func (p *PaperBroker) Position(symbol string) Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	if pos, ok := p.positions[symbol]; ok {
		return *pos
	}
	return Position{Symbol: symbol}
}
