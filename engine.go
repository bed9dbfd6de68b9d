// FILE: engine.go
// Package main – Live Engine: single-pass-per-trade loop.
//
// Each iteration pulls one trade, marks the broker, closes a bar if the
// builder's rule is satisfied, invokes the strategy on bar close, then
// marks equity and appends an equity.csv row — one pass per trade, no
// replay or lookahead. The loop checks ctx.Done() every iteration for a
// graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"
)

// EngineConfig configures one trading session.
type EngineConfig struct {
	Symbol       string
	RunDir       string
	StartingCash float64
	Cost         CostModel
	Filters      SymbolFilters

	StrategyName   string
	StrategyParams map[string]any

	// Live wires a LiveExecutor (wait-for-terminal semantics) instead of
	// the default FireAndForgetExecutor.
	Live           bool
	LiveExecConfig LiveExecConfig

	SpreadTrackerWindow int // 0 disables the spread tracker
	AsyncWriters        bool
	WriterQueueLen      int

	// VizBarIntervalMs > 0 enables a secondary wall-clock bar stream
	// (bars.csv) for dashboards, independent of the strategy-facing builder.
	VizBarIntervalMs int64
	VizGapFill       bool

	RunID   string
	Testnet bool
}

// LiveEngine drives one trading session end to end: trade source, bar
// builder, broker, strategy, executor, and persistence all wired together.
type LiveEngine struct {
	cfg      EngineConfig
	source   TradeSource
	builder  BarBuilder
	broker   *PaperBroker
	strategy Strategy
	executor Executor
	spread   *SpreadTracker
	vizAgg   *TimeBarAggregator

	dataW      *DataWriter
	equityW    *EquityWriter
	tradesW    *TradesWriter
	decisionsW *DecisionsWriter
	returnsW   *ReturnsWriter
	vizW       *VizBarWriter

	pendingFills []FillEvent

	tradesProcessed int
	barsEmitted     int
	ordersExecuted  int
	ordersBuy       int
	ordersSell      int

	cumReturnPct float64
	equityPeak   float64
	maxDrawdown  float64
	equitySeries []float64
	winAmounts   []float64
	lossAmounts  []float64
}

// NewLiveEngine wires the broker, strategy, executor, writers, and
// optional spread tracker for one session. builder and source are supplied
// by the caller (main.go) so engine.go stays decoupled from CLI wiring.
func NewLiveEngine(cfg EngineConfig, source TradeSource, builder BarBuilder) (*LiveEngine, error) {
	strategy, err := NewStrategy(cfg.StrategyName, cfg.StrategyParams)
	if err != nil {
		return nil, err
	}

	broker := NewPaperBroker(cfg.StartingCash, cfg.Cost)
	broker.SetFilters(cfg.Symbol, cfg.Filters)

	var executor Executor
	if cfg.Live {
		executor = NewLiveExecutor(broker, cfg.LiveExecConfig)
	} else {
		executor = NewFireAndForgetExecutor(broker)
	}

	var dataW *DataWriter
	if cfg.AsyncWriters && cfg.WriterQueueLen > 0 {
		dataW, err = NewAsyncDataWriter(cfg.RunDir, cfg.WriterQueueLen)
	} else {
		dataW, err = NewDataWriter(cfg.RunDir)
	}
	if err != nil {
		return nil, err
	}
	equityW, err := NewEquityWriter(cfg.RunDir)
	if err != nil {
		return nil, err
	}
	tradesW, err := NewTradesWriter(cfg.RunDir)
	if err != nil {
		return nil, err
	}
	decisionsW, err := NewDecisionsWriter(cfg.RunDir)
	if err != nil {
		return nil, err
	}
	returnsW, err := NewReturnsWriter(cfg.RunDir)
	if err != nil {
		return nil, err
	}
	var vizW *VizBarWriter
	if cfg.VizBarIntervalMs > 0 {
		vizW, err = NewVizBarWriter(cfg.RunDir)
		if err != nil {
			return nil, err
		}
	}

	e := &LiveEngine{
		cfg:        cfg,
		source:     source,
		builder:    builder,
		broker:     broker,
		strategy:   strategy,
		executor:   executor,
		dataW:      dataW,
		equityW:    equityW,
		tradesW:    tradesW,
		decisionsW: decisionsW,
		returnsW:   returnsW,
		vizW:       vizW,
	}

	if cfg.SpreadTrackerWindow > 0 {
		e.spread = NewSpreadTracker(cfg.SpreadTrackerWindow, 1024)
	}
	if cfg.VizBarIntervalMs > 0 {
		e.vizAgg = NewTimeBarAggregator(cfg.VizBarIntervalMs, cfg.VizGapFill)
	}

	broker.OnFill(func(ev FillEvent) {
		e.pendingFills = append(e.pendingFills, ev)
		metricsFillObserved(ev)
	})

	return e, nil
}

// Run drives the session to completion: trade source exhaustion, ctx
// cancellation, or a configured wall-clock duration, whichever comes
// first. On any exit path it liquidates the open position, flushes
// writers, and emits quality.json/summary.json.
func (e *LiveEngine) Run(ctx context.Context, maxDuration time.Duration) error {
	startedAt := nowRFC3339()
	start := time.Now()

	if err := WriteManifest(e.cfg.RunDir, RunManifest{
		Symbol:        e.cfg.Symbol,
		Testnet:       e.cfg.Testnet,
		DurationS:     maxDuration.Seconds(),
		Cash:          e.cfg.StartingCash,
		FeesBps:       e.cfg.Cost.TakerFeeBps,
		SlipBps:       e.cfg.Cost.SlipBps,
		StrategyName:  e.cfg.StrategyName,
		StrategyParam: e.cfg.StrategyParams,
		RunID:         e.cfg.RunID,
		StartedAt:     startedAt,
	}); err != nil {
		return err
	}

	// The spread tracker runs as a supervised background goroutine: an
	// errgroup ties its lifetime to the session context and surfaces any
	// non-cancellation error instead of leaking a fire-and-forget goroutine.
	group, groupCtx := errgroup.WithContext(ctx)
	if e.spread != nil {
		group.Go(func() error {
			if err := e.spread.Run(groupCtx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("spread tracker: %w", err)
			}
			return nil
		})
	}

	var deadline <-chan time.Time
	if maxDuration > 0 {
		timer := time.NewTimer(maxDuration)
		defer timer.Stop()
		deadline = timer.C
	}

	loopErr := e.loop(ctx, deadline)

	e.liquidateAtEnd()
	if e.spread != nil {
		e.spread.Close()
	}
	if e.vizAgg != nil {
		if vb, ok := e.vizAgg.Flush(); ok {
			if err := e.vizW.Write(vb); err != nil {
				log.Printf("engine: %v", err)
			}
		}
	}
	if err := group.Wait(); err != nil {
		log.Printf("engine: %v", err)
	}

	closeErr := e.closeWriters()

	if err := WriteQuality(e.cfg.RunDir, QualityReport{
		BarsProcessed: e.barsEmitted,
		DurationSec:   time.Since(start).Seconds(),
		BarsPerSec:    float64(e.barsEmitted) / math.Max(time.Since(start).Seconds(), 1e-9),
	}); err != nil {
		return err
	}
	if err := WriteSummary(e.cfg.RunDir, e.summary(start)); err != nil {
		return err
	}

	if loopErr != nil && !errors.Is(loopErr, context.Canceled) {
		return loopErr
	}
	return closeErr
}

func (e *LiveEngine) loop(ctx context.Context, deadline <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-deadline:
			return nil
		default:
		}

		trade, ok, err := e.source.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("%w: trade source: %v", ErrSource, err)
		}
		if !ok {
			return nil
		}
		e.tradesProcessed++
		e.onTrade(trade)
	}
}

func (e *LiveEngine) onTrade(trade Trade) {
	if e.spread != nil {
		e.spread.Observe(trade.Price)
		e.broker.SetVolatility(e.spread.Volatility())
	}
	if e.vizAgg != nil {
		for _, vb := range e.vizAgg.Update(trade) {
			if err := e.vizW.Write(vb); err != nil {
				log.Printf("engine: %v", err)
			}
		}
	}

	bar, closed := e.builder.Update(trade)
	if !closed {
		e.broker.Mark(e.cfg.Symbol, trade.Price, trade.TimestampMs)
		return
	}

	e.barsEmitted++
	metricsBarEmitted()
	if err := e.dataW.Write(bar); err != nil {
		log.Printf("engine: %v", err)
	}

	e.pendingFills = e.pendingFills[:0]
	e.broker.Mark(e.cfg.Symbol, bar.Close, bar.EndTime)

	decisions := e.runStrategy(bar)

	for _, fill := range e.pendingFills {
		e.recordFill(bar, fill)
	}
	for _, d := range decisions {
		if err := e.decisionsW.Write(d); err != nil {
			log.Printf("engine: %v", err)
		}
		metricsDecisionRecorded(d)
	}

	e.appendEquityAndReturn(bar)
}

func (e *LiveEngine) runStrategy(bar Bar) (decisions []DecisionRow) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("engine: %v: strategy panicked on bar ending %d: %v", ErrStrategy, bar.EndTime, r)
			decisions = nil
		}
	}()
	return e.strategy.OnBar(e.broker, e.executor, e.cfg.Symbol, bar)
}

func (e *LiveEngine) recordFill(bar Bar, fill FillEvent) {
	pos := e.broker.Position(e.cfg.Symbol)
	acct := e.broker.Account()
	equity := acct.Equity(&pos, bar.Close)
	reason := fill.Reason
	if reason == "" {
		reason = "fill"
	}
	row := TradeRow{
		TimestampMs: fill.TimestampMs,
		Side:        fill.Side,
		Price:       fill.EffectivePrice,
		Qty:         fill.Qty,
		Cash:        acct.Cash,
		Equity:      equity,
		Reason:      reason,
	}
	if err := e.tradesW.Write(row); err != nil {
		log.Printf("engine: %v", err)
	}
	e.ordersExecuted++
	if fill.Side == Buy {
		e.ordersBuy++
	} else {
		e.ordersSell++
	}
	if fill.RealizedPnL > 0 {
		e.winAmounts = append(e.winAmounts, fill.RealizedPnL)
	} else if fill.RealizedPnL < 0 {
		e.lossAmounts = append(e.lossAmounts, fill.RealizedPnL)
	}
	metricsOrderExecuted(fill.Side)
}

func (e *LiveEngine) appendEquityAndReturn(bar Bar) {
	pos := e.broker.Position(e.cfg.Symbol)
	acct := e.broker.Account()
	equity := acct.Equity(&pos, bar.Close)

	if err := e.equityW.Write(EquityRow{
		TimestampMs: bar.EndTime,
		Symbol:      e.cfg.Symbol,
		Close:       bar.Close,
		PosQty:      pos.Qty,
		CashUSDT:    acct.Cash,
		EquityUSDT:  equity,
	}); err != nil {
		log.Printf("engine: %v", err)
	}
	metricsEquityUpdated(equity)

	var retPct float64
	if len(e.equitySeries) > 0 && e.equitySeries[len(e.equitySeries)-1] != 0 {
		prev := e.equitySeries[len(e.equitySeries)-1]
		retPct = (equity - prev) / prev * 100
	}
	e.equitySeries = append(e.equitySeries, equity)
	if equity > e.equityPeak {
		e.equityPeak = equity
	}
	if e.equityPeak > 0 {
		dd := (e.equityPeak - equity) / e.equityPeak * 100
		if dd > e.maxDrawdown {
			e.maxDrawdown = dd
		}
	}
	cum := 0.0
	if e.cfg.StartingCash > 0 {
		cum = (equity - e.cfg.StartingCash) / e.cfg.StartingCash * 100
	}
	e.cumReturnPct = cum

	if err := e.returnsW.Write(ReturnRow{
		TimestampMs:         bar.EndTime,
		Equity:              equity,
		ReturnPct:           retPct,
		CumulativeReturnPct: cum,
	}); err != nil {
		log.Printf("engine: %v", err)
	}
}

// liquidateAtEnd closes any open position at the last seen mark and
// cancels any resting orders, so a session never ends holding inventory
// or open orders it can no longer manage.
func (e *LiveEngine) liquidateAtEnd() {
	pos := e.broker.Position(e.cfg.Symbol)
	if !pos.HasPosition() {
		return
	}

	e.pendingFills = e.pendingFills[:0]
	qty := pos.Qty
	req := OrderRequest{Symbol: e.cfg.Symbol, Type: Market, Reason: "close_position_end"}
	if qty > 0 {
		req.Side, req.Qty = Sell, qty
	} else {
		req.Side, req.Qty = Buy, -qty
	}
	if _, err := e.broker.Submit(context.Background(), req); err != nil {
		log.Printf("engine: liquidation at session end failed: %v", err)
		return
	}

	lastBar := Bar{Close: pos.AvgPrice, EndTime: 0}
	for _, fill := range e.pendingFills {
		fill.Reason = "close_position_end"
		e.recordFill(lastBar, fill)
	}
}

func (e *LiveEngine) closeWriters() error {
	closers := []interface{ Close() error }{e.dataW, e.equityW, e.tradesW, e.decisionsW, e.returnsW}
	if e.vizW != nil {
		closers = append(closers, e.vizW)
	}
	var firstErr error
	for _, c := range closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *LiveEngine) summary(start time.Time) SummaryReport {
	pos := e.broker.Position(e.cfg.Symbol)
	acct := e.broker.Account()
	lastClose := pos.AvgPrice
	if len(e.equitySeries) > 0 {
		lastClose = e.equitySeries[len(e.equitySeries)-1]
	}
	finalEquity := acct.Equity(&pos, lastClose)
	if len(e.equitySeries) > 0 {
		finalEquity = e.equitySeries[len(e.equitySeries)-1]
	}

	sharpe, sortino := riskRatios(e.equitySeries)
	profitFactor, winRate, avgWin, avgLoss, avgTrade := tradeStats(e.winAmounts, e.lossAmounts)

	return SummaryReport{
		TradesProcessed: e.tradesProcessed,
		BarsEmitted:     e.barsEmitted,
		OrdersExecuted:  e.ordersExecuted,
		OrdersBuy:       e.ordersBuy,
		OrdersSell:      e.ordersSell,
		StartingCash:    e.cfg.StartingCash,
		FinalEquity:     finalEquity,
		PnL:             finalEquity - e.cfg.StartingCash,
		ReturnPct:       e.cumReturnPct,
		DurationS:       time.Since(start).Seconds(),
		SharpeRatio:     sharpe,
		SortinoRatio:    sortino,
		MaxDrawdownPct:  e.maxDrawdown,
		ProfitFactor:    profitFactor,
		WinRatePct:      winRate,
		NumWinningTrade: len(e.winAmounts),
		NumLosingTrade:  len(e.lossAmounts),
		AvgWin:          avgWin,
		AvgLoss:         avgLoss,
		AvgTrade:        avgTrade,
	}
}

// riskRatios computes annualization-free Sharpe/Sortino ratios (mean return
// over stddev of returns, and mean return over downside-deviation) from the
// per-bar equity series. Returns 0 when there isn't enough history.
func riskRatios(equity []float64) (sharpe, sortino float64) {
	if len(equity) < 2 {
		return 0, 0
	}
	rets := make([]float64, 0, len(equity)-1)
	for i := 1; i < len(equity); i++ {
		if equity[i-1] == 0 {
			continue
		}
		rets = append(rets, (equity[i]-equity[i-1])/equity[i-1])
	}
	if len(rets) < 2 {
		return 0, 0
	}
	mean := sma(rets)
	sd := stddev(rets)
	if sd > 0 {
		sharpe = mean / sd
	}
	var downside []float64
	for _, r := range rets {
		if r < 0 {
			downside = append(downside, r)
		}
	}
	dd := stddev(downside)
	if dd > 0 {
		sortino = mean / dd
	}
	return sharpe, sortino
}

func tradeStats(wins, losses []float64) (profitFactor, winRatePct, avgWin, avgLoss, avgTrade float64) {
	var grossWin, grossLoss, totalPnL float64
	for _, w := range wins {
		grossWin += w
		totalPnL += w
	}
	for _, l := range losses {
		grossLoss += -l
		totalPnL += l
	}
	n := len(wins) + len(losses)
	if n > 0 {
		winRatePct = float64(len(wins)) / float64(n) * 100
		avgTrade = totalPnL / float64(n)
	}
	if len(wins) > 0 {
		avgWin = grossWin / float64(len(wins))
	}
	if len(losses) > 0 {
		avgLoss = -grossLoss / float64(len(losses))
	}
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	}
	return
}
