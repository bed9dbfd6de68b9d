// FILE: config.go
// Package main – Runtime configuration model and loader.
//
// Session knobs (symbol, duration, cash, fees/slip, strategy name+params,
// run dir, poll/wait intervals) are loaded through the getEnv* helpers in
// env.go via the loadRunEnv()-then-loadConfigFromEnv() two-step sequence
// main.go follows at boot.
package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// Config holds all runtime knobs for one session.
type Config struct {
	Symbol       string
	RunDir       string
	DurationSec  float64
	StartingCash float64

	MakerFeeBps float64
	TakerFeeBps float64
	SlipBps     float64 // 0 => dynamic slippage

	TickSize    float64
	StepSize    float64
	MinNotional float64

	StrategyName   string
	StrategyParams map[string]any

	Testnet bool
	Live    bool

	PollIntervalMs int
	MaxWaitMs      int

	SpreadTrackerWindow int
	Seed                int64

	BarRule  string // tick|volume|dollar|imbalance
	BarLimit float64

	AsyncWriters   bool
	WriterQueueLen int

	VizBarIntervalMs int64
	VizGapFill       bool

	Port int
}

// loadConfigFromEnv reads the process env (already hydrated by
// loadRunEnv()) and returns a Config with sane defaults for missing keys.
func loadConfigFromEnv() (Config, error) {
	cfg := Config{
		Symbol:       getEnv("SYMBOL", "BTC-USD"),
		RunDir:       getEnv("RUN_DIR", "./runs/default"),
		DurationSec:  getEnvFloat("DURATION_SEC", 3600),
		StartingCash: getEnvFloat("STARTING_CASH", 10000),

		MakerFeeBps: getEnvFloat("FEES_MAKER_BPS", 10),
		TakerFeeBps: getEnvFloat("FEES_TAKER_BPS", 10),
		SlipBps:     getEnvFloat("SLIP_BPS", 0),

		TickSize:    getEnvFloat("TICK_SIZE", 0.01),
		StepSize:    getEnvFloat("STEP_SIZE", 0.0001),
		MinNotional: getEnvFloat("MIN_NOTIONAL", 5),

		StrategyName: getEnv("STRATEGY", "momentum"),

		Testnet: getEnvBool("TESTNET", true),
		Live:    getEnvBool("LIVE", false),

		PollIntervalMs: getEnvInt("POLL_INTERVAL_MS", 50),
		MaxWaitMs:      getEnvInt("MAX_WAIT_MS", 5000),

		SpreadTrackerWindow: getEnvInt("SPREAD_TRACKER_WINDOW", 50),
		Seed:                int64(getEnvInt("SEED", 1)),

		BarRule:  getEnv("BAR_RULE", "tick"),
		BarLimit: getEnvFloat("BAR_LIMIT", 50),

		AsyncWriters:   getEnvBool("ASYNC_WRITERS", false),
		WriterQueueLen: getEnvInt("WRITER_QUEUE_LEN", 4096),

		VizBarIntervalMs: int64(getEnvInt("VIZ_BAR_INTERVAL_MS", 0)),
		VizGapFill:       getEnvBool("VIZ_GAP_FILL", true),

		Port: getEnvInt("PORT", 8080),
	}

	raw := getEnv("STRATEGY_PARAMS", "")
	if raw != "" {
		var params map[string]any
		if err := json.Unmarshal([]byte(raw), &params); err != nil {
			return Config{}, fmt.Errorf("%w: STRATEGY_PARAMS is not valid JSON: %v", ErrConfiguration, err)
		}
		cfg.StrategyParams = params
	}

	if cfg.Symbol == "" {
		return Config{}, fmt.Errorf("%w: SYMBOL is required", ErrConfiguration)
	}
	if cfg.StartingCash <= 0 {
		return Config{}, fmt.Errorf("%w: STARTING_CASH must be > 0", ErrConfiguration)
	}
	if cfg.DurationSec <= 0 {
		return Config{}, fmt.Errorf("%w: DURATION_SEC must be > 0", ErrConfiguration)
	}

	return cfg, nil
}

func (c Config) duration() time.Duration {
	return time.Duration(c.DurationSec * float64(time.Second))
}

func (c Config) cost() CostModel {
	return CostModel{
		MakerFeeBps:    c.MakerFeeBps,
		TakerFeeBps:    c.TakerFeeBps,
		SlipBps:        c.SlipBps,
		DynamicBaseBps: 2,
		DynamicAlpha:   400,
		DynamicBeta:    4,
	}
}

func (c Config) filters() SymbolFilters {
	return SymbolFilters{
		StepSize:    c.StepSize,
		TickSize:    c.TickSize,
		MinNotional: c.MinNotional,
	}
}

func (c Config) liveExecConfig() LiveExecConfig {
	return LiveExecConfig{
		PollInterval: time.Duration(c.PollIntervalMs) * time.Millisecond,
		MaxWait:      time.Duration(c.MaxWaitMs) * time.Millisecond,
	}
}

// barBuilder resolves BarRule/BarLimit to a BarBuilder.
func (c Config) barBuilder() (BarBuilder, error) {
	switch c.BarRule {
	case "tick":
		return NewTickCountBarBuilder(int(c.BarLimit))
	case "volume":
		return NewVolumeBarBuilder(c.BarLimit)
	case "dollar":
		return NewDollarBarBuilder(c.BarLimit)
	case "imbalance":
		return NewImbalanceBarBuilder(c.BarLimit, ImbalanceByQty)
	default:
		return nil, fmt.Errorf("%w: unknown BAR_RULE %q", ErrConfiguration, c.BarRule)
	}
}
