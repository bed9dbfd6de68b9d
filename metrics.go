// FILE: metrics.go
// Package main – Prometheus metrics for observability.
//
// Package-level CounterVec/GaugeVec/Gauge values registered in init(),
// served by promhttp.Handler() from main.go at /metrics: bars emitted,
// orders placed/rejected, fills, strategy decisions, equity, and
// writer-queue drops.
package main

import "github.com/prometheus/client_golang/prometheus"

var (
	mtxBarsEmitted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "microbars_bars_emitted_total",
		Help: "Closed bars emitted by the bar builder.",
	})

	mtxOrdersExecuted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microbars_orders_executed_total",
			Help: "Orders that produced at least one fill, by side.",
		},
		[]string{"side"},
	)

	mtxOrdersRejected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "microbars_orders_rejected_total",
		Help: "Orders rejected by symbol filter validation or insufficient funds.",
	})

	mtxFills = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microbars_fills_total",
			Help: "Fills applied by the paper broker, by role (maker|taker).",
		},
		[]string{"role"},
	)

	mtxDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "microbars_decisions_total",
			Help: "Strategy-recorded decisions, by action.",
		},
		[]string{"action"},
	)

	mtxEquity = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "microbars_equity_usd",
		Help: "Mark-to-market equity, updated once per closed bar.",
	})

	mtxWriterQueueDrops = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "microbars_writer_queue_drops_total",
		Help: "Rows dropped from a bounded async writer or spread-tracker queue because it was full.",
	})
)

func init() {
	prometheus.MustRegister(
		mtxBarsEmitted,
		mtxOrdersExecuted,
		mtxOrdersRejected,
		mtxFills,
		mtxDecisions,
		mtxEquity,
		mtxWriterQueueDrops,
	)
}

func metricsBarEmitted() { mtxBarsEmitted.Inc() }

func metricsOrderExecuted(side Side) {
	mtxOrdersExecuted.WithLabelValues(string(side)).Inc()
}

func metricsOrderRejected() { mtxOrdersRejected.Inc() }

func metricsFillObserved(ev FillEvent) {
	mtxFills.WithLabelValues(string(ev.Role)).Inc()
}

func metricsDecisionRecorded(d DecisionRow) {
	mtxDecisions.WithLabelValues(d.Action).Inc()
}

func metricsEquityUpdated(equity float64) { mtxEquity.Set(equity) }

func metricsWriterQueueDrop() { mtxWriterQueueDrops.Inc() }
