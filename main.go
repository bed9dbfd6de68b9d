// FILE: main.go
// Package main – Program entrypoint and HTTP/metrics server.
//
// Boot sequence:
//   1) loadRunEnv()             – read .env (no shell exports required)
//   2) cfg, err := loadConfigFromEnv()
//   3) wire trade source, bar builder, engine (strategy resolved by name
//      from the registry)
//   4) start Prometheus /healthz + /metrics server on cfg.Port
//   5) run the engine until the trade source ends, DURATION_SEC elapses,
//      or SIGINT/SIGTERM — then shut down the HTTP server gracefully.
//
// Flags let a caller override the run directory and strategy without
// touching .env.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	var runDir string
	var strategyName string
	flag.StringVar(&runDir, "run-dir", "", "Override RUN_DIR")
	flag.StringVar(&strategyName, "strategy", "", "Override STRATEGY")
	flag.Parse()

	loadRunEnv()
	cfg, err := loadConfigFromEnv()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if runDir != "" {
		cfg.RunDir = runDir
	}
	if strategyName != "" {
		cfg.StrategyName = strategyName
	}

	runID := uuid.NewString()

	source := NewSimulatedTradeSource(SimulatedTradeSourceConfig{
		Seed:       cfg.Seed,
		StartPrice: 100,
	})
	builder, err := cfg.barBuilder()
	if err != nil {
		log.Fatalf("bar builder: %v", err)
	}

	engine, err := NewLiveEngine(EngineConfig{
		Symbol:              cfg.Symbol,
		RunDir:              cfg.RunDir,
		StartingCash:        cfg.StartingCash,
		Cost:                cfg.cost(),
		Filters:             cfg.filters(),
		StrategyName:        cfg.StrategyName,
		StrategyParams:      cfg.StrategyParams,
		Live:                cfg.Live,
		LiveExecConfig:      cfg.liveExecConfig(),
		SpreadTrackerWindow: cfg.SpreadTrackerWindow,
		AsyncWriters:        cfg.AsyncWriters,
		WriterQueueLen:      cfg.WriterQueueLen,
		VizBarIntervalMs:    cfg.VizBarIntervalMs,
		VizGapFill:          cfg.VizGapFill,
		RunID:               runID,
		Testnet:             cfg.Testnet,
	}, source, builder)
	if err != nil {
		log.Fatalf("engine: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", cfg.Port), Handler: mux}
	go func() {
		log.Printf("serving metrics on :%d/metrics", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("server: %v", err)
		}
	}()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("run %s: symbol=%s strategy=%s run_dir=%s", runID, cfg.Symbol, cfg.StrategyName, cfg.RunDir)
	if err := engine.Run(ctx, cfg.duration()); err != nil {
		log.Printf("engine run ended with error: %v", err)
	}

	shutdownCtx, c := context.WithTimeout(context.Background(), 2*time.Second)
	defer c()
	_ = srv.Shutdown(shutdownCtx)
}
